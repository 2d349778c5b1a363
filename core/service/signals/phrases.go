package signals

import "strings"

// PositivePhrases is the closed transactional-signal phrase set (§4.B).
var PositivePhrases = []string{
	"payment successful", "we charged", "invoice", "receipt", "order confirmation",
	"subscription renewed", "renews on", "next billing date", "amount due",
	"trial ends", "expires on", "you were charged", "you paid", "payment received",
	"billed on", "auto-renew", "subscription confirmed",
}

// NegativePhrases is the closed marketing-signal phrase set (§4.B).
var NegativePhrases = []string{
	"newsletter", "promo", "sale", "discount", "limited time", "recommended",
	"top picks", "deals", "% off", "unsubscribe and save", "new arrivals",
}

// BillingKeywords drive the Extractors §4.C ±60-char amount-proximity window
// and the ClusterBuilder §4.E "billing keywords in joined subjects/snippets" score term.
var BillingKeywords = []string{
	"total", "charged", "you paid", "amount due", "invoice", "receipt",
	"renewal", "subscription",
}

// HardNegativePhrases gate out top_up/ad_spend/promo candidates in the
// Aggregator post-process strict gate (§4.F).
var HardNegativePhrases = []string{
	"funds added", "ad spend", "campaign", "top up", "topped up", "wallet balance added",
}

// CountMatches returns how many phrases in set occur in haystack (case-insensitive).
func CountMatches(haystack string, set []string) int {
	h := strings.ToLower(haystack)
	n := 0
	for _, p := range set {
		if strings.Contains(h, p) {
			n++
		}
	}
	return n
}

// AnyMatch reports whether any phrase in set occurs in haystack.
func AnyMatch(haystack string, set []string) bool {
	h := strings.ToLower(haystack)
	for _, p := range set {
		if strings.Contains(h, p) {
			return true
		}
	}
	return false
}
