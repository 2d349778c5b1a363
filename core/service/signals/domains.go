// Package signals holds the closed enumerated sets and small text-normalization
// helpers shared by MerchantResolver, Classifier, and Extractors.
package signals

import "strings"

// consumerDomains is the closed set from the Glossary ("Consumer domain").
var consumerDomains = map[string]bool{
	"gmail.com":      true,
	"googlemail.com": true,
	"yahoo.com":      true,
	"ymail.com":      true,
	"hotmail.com":    true,
	"outlook.com":    true,
	"live.com":       true,
	"msn.com":        true,
	"icloud.com":     true,
	"me.com":         true,
	"mac.com":        true,
	"aol.com":        true,
	"protonmail.com": true,
	"proton.me":      true,
}

// infraDomains is the closed set from the Glossary ("Infra (ESP) domain").
var infraDomains = map[string]bool{
	"sendgrid.net":     true,
	"mailgun.org":      true,
	"amazonses.com":    true,
	"list-manage.com":  true,
	"mailchimp.com":    true,
	"sparkpostmail.com": true,
}

// mailSubdomainPrefixes are stripped during domain normalization (§4.A).
var mailSubdomainPrefixes = []string{"mail", "email", "em", "m", "news", "notify", "noreply"}

// NormalizeDomain lowercases a domain and strips a leading known mail-subdomain
// label, e.g. "mail.example.com" -> "example.com".
func NormalizeDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, "www.")
	parts := strings.Split(d, ".")
	if len(parts) > 2 {
		for _, p := range mailSubdomainPrefixes {
			if parts[0] == p {
				return strings.Join(parts[1:], ".")
			}
		}
	}
	return d
}

// DomainSuffixMatch reports whether candidate equals base or is a subdomain of it,
// e.g. DomainSuffixMatch("mail.example.com", "example.com") == true.
func DomainSuffixMatch(candidate, base string) bool {
	candidate = strings.ToLower(candidate)
	base = strings.ToLower(base)
	if candidate == base {
		return true
	}
	return strings.HasSuffix(candidate, "."+base)
}

// IsConsumerDomain reports membership in the closed consumer-domain set, honoring subdomains.
func IsConsumerDomain(domain string) bool {
	n := NormalizeDomain(domain)
	for base := range consumerDomains {
		if DomainSuffixMatch(n, base) {
			return true
		}
	}
	return false
}

// IsInfraDomain reports membership in the closed mail-infrastructure-domain set.
func IsInfraDomain(domain string) bool {
	n := NormalizeDomain(domain)
	for base := range infraDomains {
		if DomainSuffixMatch(n, base) {
			return true
		}
	}
	return false
}

// EmailDomain extracts the domain part of an email address, lowercased.
func EmailDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(email[at+1:]))
}
