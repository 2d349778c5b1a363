package extract

import (
	"regexp"
	"strings"

	"subscan_server/core/service/signals"
)

// PlatformParser extracts the real merchant identity from a platform-aggregator
// receipt (Apple/PayPal/Google Play all bill "as" the platform, not the merchant).
//
// Implementations dispatch by sender domain; each claims a domain and pulls
// the underlying merchant name out of the receipt body.
type PlatformParser interface {
	CanParse(fromDomain string) bool
	ExtractMerchant(haystack string) (string, bool)
}

// PlatformRegistry dispatches to the first parser that claims a fromDomain.
type PlatformRegistry struct {
	parsers []PlatformParser
}

// NewPlatformRegistry returns a registry preloaded with the Apple, PayPal, and
// Google Play parsers (§4.C "Platform receipts").
func NewPlatformRegistry() *PlatformRegistry {
	return &PlatformRegistry{parsers: []PlatformParser{
		appleParser{}, payPalParser{}, googlePlayParser{},
	}}
}

// FindParser returns the parser owning fromDomain, or nil if none claims it.
func (r *PlatformRegistry) FindParser(fromDomain string) PlatformParser {
	for _, p := range r.parsers {
		if p.CanParse(fromDomain) {
			return p
		}
	}
	return nil
}

type appleParser struct{}

func (appleParser) CanParse(fromDomain string) bool {
	return signals.DomainSuffixMatch(fromDomain, "apple.com")
}

var (
	appleAppLine          = regexp.MustCompile(`(?i)App:\s*([^\n\r]{2,80})`)
	appleSubscriptionLine = regexp.MustCompile(`(?i)Subscription:\s*([^\n\r]{2,80})`)
	appleDeveloperLine    = regexp.MustCompile(`(?i)Developer:\s*([^\n\r]{2,80})`)
)

func (appleParser) ExtractMerchant(haystack string) (string, bool) {
	if m := appleAppLine.FindStringSubmatch(haystack); len(m) == 2 {
		return firstSegment(m[1]), true
	}
	if m := appleSubscriptionLine.FindStringSubmatch(haystack); len(m) == 2 {
		return firstSegment(m[1]), true
	}
	if m := appleDeveloperLine.FindStringSubmatch(haystack); len(m) == 2 {
		return firstSegment(m[1]), true
	}
	return "", false
}

type payPalParser struct{}

func (payPalParser) CanParse(fromDomain string) bool {
	return signals.DomainSuffixMatch(fromDomain, "paypal.com") || signals.DomainSuffixMatch(fromDomain, "paypal.co.uk")
}

var (
	paypalYouPaidTo      = regexp.MustCompile(`(?i)you paid(?: to)?\s+([^\n\r.]{2,80})`)
	paypalSubscriptionTo = regexp.MustCompile(`(?i)subscription to\s+([^\n\r.]{2,80})`)
)

func (payPalParser) ExtractMerchant(haystack string) (string, bool) {
	if m := paypalSubscriptionTo.FindStringSubmatch(haystack); len(m) == 2 {
		return strings.TrimSpace(m[1]), true
	}
	if m := paypalYouPaidTo.FindStringSubmatch(haystack); len(m) == 2 {
		return strings.TrimSpace(m[1]), true
	}
	return "", false
}

type googlePlayParser struct{}

func (googlePlayParser) CanParse(fromDomain string) bool {
	return signals.DomainSuffixMatch(fromDomain, "google.com") || signals.DomainSuffixMatch(fromDomain, "play.google.com")
}

var googlePlayAppLine = regexp.MustCompile(`(?i)(?:App|Item|Order):\s*([^\n\r]{2,80})`)

func (googlePlayParser) ExtractMerchant(haystack string) (string, bool) {
	if m := googlePlayAppLine.FindStringSubmatch(haystack); len(m) == 2 {
		return firstSegment(m[1]), true
	}
	return "", false
}

func firstSegment(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ":"); i > 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}
