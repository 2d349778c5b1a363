// Package classify implements Classifier (§4.B): labeling an email as
// transactional / marketing / platform-receipt / trial from headers, subject,
// snippet, and body.
package classify

import (
	"strings"

	"subscan_server/core/domain"
	"subscan_server/core/service/signals"
)

// Flags is the Classifier output (§4.B).
type Flags struct {
	BulkHeader         bool
	MarketingHeavy     bool
	LikelyTransactional bool
	AppleReceiptHint   bool
	PosHits            int
	NegHits            int
}

func hasBulkHeader(h domain.MailHeaders) bool {
	precedence := strings.ToLower(h.Precedence)
	if strings.Contains(precedence, "bulk") || strings.Contains(precedence, "list") || strings.Contains(precedence, "junk") {
		return true
	}
	autoSubmitted := strings.ToLower(h.AutoSubmitted)
	if strings.Contains(autoSubmitted, "auto-generated") || strings.Contains(autoSubmitted, "auto-replied") {
		return true
	}
	return h.ListID != ""
}

// Classify computes the §4.B flags from subject, snippet, full text, headers, and fromDomain.
func Classify(subject, snippet, text string, headers domain.MailHeaders, fromDomain string) Flags {
	haystack := subject + "\n" + snippet + "\n" + text

	f := Flags{
		BulkHeader: hasBulkHeader(headers),
		PosHits:    signals.CountMatches(haystack, signals.PositivePhrases),
		NegHits:    signals.CountMatches(haystack, signals.NegativePhrases),
	}

	if signals.DomainSuffixMatch(fromDomain, "apple.com") {
		h := strings.ToLower(haystack)
		if strings.Contains(h, "subscription") || strings.Contains(h, "purchase") ||
			strings.Contains(h, "app store") || strings.Contains(h, "itunes") || strings.Contains(h, "receipt") {
			f.AppleReceiptHint = true
		}
	}

	strongPhrases := []string{"invoice", "receipt", "charged", "payment", "subscription renewed"}
	f.LikelyTransactional = f.AppleReceiptHint || f.PosHits >= 2 || signals.AnyMatch(haystack, strongPhrases)

	f.MarketingHeavy = f.BulkHeader && f.NegHits >= 1 && f.PosHits == 0 && !f.AppleReceiptHint

	return f
}

// ScreenReason is the closed quick-screen verdict reason (§4.B).
type ScreenReason string

const (
	ScreenOK          ScreenReason = "ok"
	ScreenHardNo      ScreenReason = "hard_no"
	ScreenWeakSignal  ScreenReason = "weak_signal"
	ScreenMarketing   ScreenReason = "marketing"
)

// ScreenResult is the quick-screen output, computed before a body fetch (§4.B).
type ScreenResult struct {
	OK     bool
	Reason ScreenReason
}

// QuickScreen evaluates only from+subject+snippet+headers (no body) to decide
// whether a message is worth a full fetch. weak_signal always passes so
// screening never nukes everything.
func QuickScreen(from, subject, snippet string, headers domain.MailHeaders, fromDomain string) ScreenResult {
	flags := Classify(subject, snippet, "", headers, fromDomain)

	if flags.MarketingHeavy {
		return ScreenResult{OK: false, Reason: ScreenMarketing}
	}
	if flags.LikelyTransactional {
		return ScreenResult{OK: true, Reason: ScreenOK}
	}
	if flags.PosHits == 0 && flags.NegHits == 0 && !flags.BulkHeader {
		return ScreenResult{OK: true, Reason: ScreenWeakSignal}
	}
	if flags.BulkHeader && flags.PosHits == 0 {
		return ScreenResult{OK: false, Reason: ScreenHardNo}
	}
	return ScreenResult{OK: true, Reason: ScreenWeakSignal}
}
