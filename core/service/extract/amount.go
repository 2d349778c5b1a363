// Package extract implements Extractors (§4.C): amount+currency, cadence,
// next-renewal date, plan label, and platform-specific merchant extraction.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"subscan_server/core/service/signals"
)

var amountPattern = regexp.MustCompile(`(?i)(USD|EUR|GBP|CAD|AUD|\$|€|£)\s?([0-9]{1,3}(?:[.,][0-9]{3})*(?:[.,][0-9]{2})?)`)

var symbolCurrency = map[string]string{
	"$": "USD", "€": "EUR", "£": "GBP",
}

// AmountResult is the Extractors §4.C amount+currency output.
type AmountResult struct {
	Amount   float64
	Currency string
	Found    bool
}

// ExtractAmount scans haystack for symbol/code patterns, preferring amounts
// within ±60 chars of a billing keyword, and rejects values outside (0, 1,000,000].
func ExtractAmount(haystack string) AmountResult {
	matches := amountPattern.FindAllStringSubmatchIndex(haystack, -1)
	var best AmountResult
	bestNearBilling := false

	for _, m := range matches {
		symbol := haystack[m[2]:m[3]]
		numRaw := haystack[m[4]:m[5]]
		amount, ok := parseDecimal(numRaw)
		if !ok || amount <= 0 || amount > 1000000 {
			continue
		}
		currency := strings.ToUpper(symbol)
		if c, ok := symbolCurrency[symbol]; ok {
			currency = c
		}

		near := isNearBillingKeyword(haystack, m[0], m[1])
		if !best.Found || (near && !bestNearBilling) {
			best = AmountResult{Amount: amount, Currency: currency, Found: true}
			bestNearBilling = near
		}
	}
	return best
}

func isNearBillingKeyword(haystack string, start, end int) bool {
	lo := start - 60
	if lo < 0 {
		lo = 0
	}
	hi := end + 60
	if hi > len(haystack) {
		hi = len(haystack)
	}
	window := strings.ToLower(haystack[lo:hi])
	for _, kw := range signals.BillingKeywords {
		if strings.Contains(window, kw) {
			return true
		}
	}
	return false
}

// parseDecimal detects the decimal convention by the rightmost separator:
// whichever of '.' or ',' appears last is the decimal point.
func parseDecimal(raw string) (float64, bool) {
	lastDot := strings.LastIndex(raw, ".")
	lastComma := strings.LastIndex(raw, ",")
	var normalized string
	if lastComma > lastDot {
		normalized = strings.ReplaceAll(raw, ".", "")
		normalized = strings.Replace(normalized, ",", ".", 1)
	} else {
		normalized = strings.ReplaceAll(raw, ",", "")
	}
	v, err := strconv.ParseFloat(normalized, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
