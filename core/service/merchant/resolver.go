// Package merchant implements MerchantResolver (§4.A): mapping an email's
// sender surface to a canonical merchant with an explainable confidence score.
//
// Resolution runs as an ordered, early-exit cascade of tiers; the first
// confident match short-circuits the rest.
package merchant

import (
	"strings"

	"subscan_server/core/domain"
	"subscan_server/core/service/signals"
)

// Reason is the closed resolution-reason enum (§4.A).
type Reason string

const (
	ReasonOverrideEmail  Reason = "override-email"
	ReasonOverrideDomain Reason = "override-domain"
	ReasonSenderEmail    Reason = "sender-email"
	ReasonDomain         Reason = "domain"
	ReasonKeywords       Reason = "keywords"
	ReasonFallbackDomain Reason = "fallback-domain"
	ReasonNoMatch        Reason = "no-match"
)

// Surface is the normalized email surface MerchantResolver consumes (§4.A input).
type Surface struct {
	From            string
	ReplyTo         string
	ReturnPath      string
	ListUnsubscribe string
	LinkDomains     []string
	Haystack        string
}

// Result is the MerchantResolver output (§4.A).
type Result struct {
	Canonical     *string
	PrettyFallback *string
	Confidence    int
	Reason        Reason
	Signals       []string
	FromDomain    string
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func candidateDomains(s Surface) []string {
	seen := map[string]bool{}
	var out []string
	add := func(email string) {
		d := signals.EmailDomain(email)
		if d != "" && !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	add(s.From)
	add(s.ReplyTo)
	add(s.ReturnPath)
	if d := extractListUnsubDomain(s.ListUnsubscribe); d != "" && !seen[d] {
		seen[d] = true
		out = append(out, d)
	}
	for _, d := range s.LinkDomains {
		d = signals.NormalizeDomain(d)
		if d != "" && !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	return out
}

func extractListUnsubDomain(header string) string {
	// List-Unsubscribe commonly carries <mailto:...> and/or <https://...>
	h := strings.ToLower(header)
	if i := strings.Index(h, "mailto:"); i >= 0 {
		rest := h[i+len("mailto:"):]
		if end := strings.IndexAny(rest, ">,\" "); end >= 0 {
			rest = rest[:end]
		}
		return signals.EmailDomain(rest)
	}
	if i := strings.Index(h, "://"); i >= 0 {
		rest := h[i+3:]
		if end := strings.IndexAny(rest, "/>,\" "); end >= 0 {
			rest = rest[:end]
		}
		return signals.NormalizeDomain(rest)
	}
	return ""
}

// Resolve runs the §4.A cascade: override-email > override-domain > directory-email
// > directory-domain > keywords > fallback-domain > no-match.
func Resolve(s Surface, directory []domain.MerchantDirectoryEntry, overrides []domain.UserOverride) Result {
	fromEmail := strings.ToLower(strings.TrimSpace(s.From))
	fromDomain := signals.EmailDomain(fromEmail)
	domains := candidateDomains(s)

	// Tier 1: user override by exact sender email.
	for _, o := range overrides {
		if o.SenderEmail != nil && strings.ToLower(*o.SenderEmail) == fromEmail {
			canon := o.CanonicalName
			return Result{Canonical: &canon, Confidence: 95, Reason: ReasonOverrideEmail, FromDomain: fromDomain}
		}
	}

	// Tier 2: user override by any candidate domain.
	for _, o := range overrides {
		if o.SenderDomain == nil {
			continue
		}
		od := signals.NormalizeDomain(*o.SenderDomain)
		for _, d := range domains {
			if signals.DomainSuffixMatch(d, od) {
				canon := o.CanonicalName
				return Result{Canonical: &canon, Confidence: 90, Reason: ReasonOverrideDomain, FromDomain: fromDomain}
			}
		}
	}

	// Tier 3: directory exact sender email.
	for _, entry := range directory {
		for _, email := range entry.SenderEmails {
			if strings.ToLower(email) != fromEmail {
				continue
			}
			conf := 50
			for _, email2 := range entry.SenderEmails {
				le := strings.ToLower(email2)
				if le == strings.ToLower(s.ReplyTo) || le == strings.ToLower(s.ReturnPath) {
					conf += 10
				}
			}
			canon := entry.CanonicalName
			return Result{Canonical: &canon, Confidence: clamp(conf, 0, 100), Reason: ReasonSenderEmail, FromDomain: fromDomain}
		}
	}

	// Tier 4: directory domain match, preferring fromDomain.
	if res, ok := resolveDirectoryDomain(directory, domains, fromDomain, s); ok {
		return res
	}

	// Tier 5: keyword hit score.
	if res, ok := resolveKeywords(directory, s.Haystack, fromDomain); ok {
		return res
	}

	// Tier 6: fallback-domain.
	if fromDomain != "" && !signals.IsConsumerDomain(fromDomain) && !signals.IsInfraDomain(fromDomain) {
		pretty := prettyFromDomain(fromDomain)
		return Result{PrettyFallback: &pretty, Confidence: 35, Reason: ReasonFallbackDomain, FromDomain: fromDomain}
	}

	// Tier 7: no-match.
	return Result{Confidence: 0, Reason: ReasonNoMatch, FromDomain: fromDomain}
}

func resolveDirectoryDomain(directory []domain.MerchantDirectoryEntry, domains []string, fromDomain string, s Surface) (Result, bool) {
	var best *domain.MerchantDirectoryEntry
	var bestConf int
	var bestIsFrom bool

	for i := range directory {
		entry := &directory[i]
		for _, sd := range entry.SenderDomains {
			nd := signals.NormalizeDomain(sd)
			for _, d := range domains {
				if !signals.DomainSuffixMatch(d, nd) {
					continue
				}
				conf := 55
				isFrom := d == fromDomain
				if extractListUnsubDomain(s.ListUnsubscribe) == d {
					conf += 8
				}
				for _, ld := range s.LinkDomains {
					if signals.DomainSuffixMatch(signals.NormalizeDomain(ld), nd) {
						conf += 5
						break
					}
				}
				if signals.IsConsumerDomain(fromDomain) {
					conf -= 30
				}
				conf = clamp(conf, 0, 100)
				if best == nil || (isFrom && !bestIsFrom) || (isFrom == bestIsFrom && conf > bestConf) {
					best = entry
					bestConf = conf
					bestIsFrom = isFrom
				}
			}
		}
	}
	if best == nil {
		return Result{}, false
	}
	canon := best.CanonicalName
	return Result{Canonical: &canon, Confidence: bestConf, Reason: ReasonDomain, FromDomain: fromDomain}, true
}

func bestKeywordMatch(directory []domain.MerchantDirectoryEntry, haystack string) (*domain.MerchantDirectoryEntry, int) {
	h := strings.ToLower(haystack)
	var best *domain.MerchantDirectoryEntry
	var bestHits int
	for i := range directory {
		entry := &directory[i]
		hits := 0
		for _, kw := range entry.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(h, strings.ToLower(kw)) {
				hits++
			}
		}
		if hits > 0 && (best == nil || hits > bestHits) {
			best = entry
			bestHits = hits
		}
	}
	return best, bestHits
}

func resolveKeywords(directory []domain.MerchantDirectoryEntry, haystack, fromDomain string) (Result, bool) {
	best, bestHits := bestKeywordMatch(directory, haystack)
	if best == nil {
		return Result{}, false
	}
	score := clamp(10+7*bestHits, 10, 38)
	if signals.IsConsumerDomain(fromDomain) {
		score -= 10
	}
	canon := best.CanonicalName
	return Result{Canonical: &canon, Confidence: clamp(score, 0, 100), Reason: ReasonKeywords, FromDomain: fromDomain}, true
}

// KeywordSignal independently evaluates the keyword tier regardless of which
// tier the cascade actually resolved through, so callers can compare a
// domain/override pick against what the body's keywords alone would suggest
// (§4.D "resolver/keyword conflict").
func KeywordSignal(directory []domain.MerchantDirectoryEntry, haystack string) (string, bool) {
	best, _ := bestKeywordMatch(directory, haystack)
	if best == nil {
		return "", false
	}
	return best.CanonicalName, true
}

func prettyFromDomain(domain string) string {
	base := strings.Split(domain, ".")[0]
	if base == "" {
		return domain
	}
	return strings.ToUpper(base[:1]) + base[1:]
}
