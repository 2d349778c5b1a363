package extract

import (
	"net/url"
	"regexp"

	"subscan_server/core/service/signals"
)

var urlPattern = regexp.MustCompile(`https?://[^\s"'<>)]+`)

const maxLinkDomains = 200

// ExtractLinkDomains pulls distinct link domains from combined text+HTML,
// capped at 200 (§4.D step 2).
func ExtractLinkDomains(text, html string) []string {
	seen := map[string]bool{}
	var out []string
	for _, raw := range urlPattern.FindAllString(text+"\n"+html, -1) {
		u, err := url.Parse(raw)
		if err != nil || u.Host == "" {
			continue
		}
		d := signals.NormalizeDomain(u.Hostname())
		if d == "" || seen[d] {
			continue
		}
		seen[d] = true
		out = append(out, d)
		if len(out) >= maxLinkDomains {
			break
		}
	}
	return out
}

const nbspRune = rune(0x00A0)

// NormalizeBody dedupes repeated horizontal whitespace, strips tabs/CR, and
// turns NBSP into a regular space (§4.D step 1).
func NormalizeBody(s string) string {
	out := make([]rune, 0, len(s))
	prevWasSpace := false
	for _, r := range s {
		switch r {
		case '\t', '\r':
			continue
		case nbspRune:
			r = rune(' ')
		}
		if r == rune(' ') {
			if prevWasSpace {
				continue
			}
			prevWasSpace = true
		} else {
			prevWasSpace = false
		}
		out = append(out, r)
	}
	return string(out)
}
