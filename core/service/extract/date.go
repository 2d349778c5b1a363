package extract

import (
	"regexp"
	"strings"
	"time"
)

var (
	isoDatePattern  = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	longDatePattern = regexp.MustCompile(`(?i)\b(Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+(\d{1,2}),?\s+(\d{4})\b`)
	renewalKeywords = regexp.MustCompile(`(?i)renews|renewal|next billing|billed on|trial ends|valid until|expires`)
)

// ExtractNextRenewalDate finds an ISO or "Mon DD, YYYY" date near a renewal
// keyword, constrained to [now-1d, now+400d] (§4.C).
func ExtractNextRenewalDate(haystack string, now time.Time) (string, bool) {
	lo := now.AddDate(0, 0, -1)
	hi := now.AddDate(0, 0, 400)

	for _, loc := range renewalKeywordLocations(haystack) {
		window := windowAround(haystack, loc, 80)
		if d, ok := findISODate(window); ok && withinRange(d, lo, hi) {
			return d.Format("2006-01-02"), true
		}
		if d, ok := findLongDate(window); ok && withinRange(d, lo, hi) {
			return d.Format("2006-01-02"), true
		}
	}
	return "", false
}

func renewalKeywordLocations(haystack string) []int {
	var locs []int
	for _, m := range renewalKeywords.FindAllStringIndex(haystack, -1) {
		locs = append(locs, m[0])
	}
	return locs
}

func windowAround(haystack string, idx, radius int) string {
	lo := idx - radius
	if lo < 0 {
		lo = 0
	}
	hi := idx + radius
	if hi > len(haystack) {
		hi = len(haystack)
	}
	return haystack[lo:hi]
}

func findISODate(window string) (time.Time, bool) {
	m := isoDatePattern.FindString(window)
	if m == "" {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-01-02", m)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func findLongDate(window string) (time.Time, bool) {
	m := longDatePattern.FindString(window)
	if m == "" {
		return time.Time{}, false
	}
	normalized := strings.ReplaceAll(m, ",", "")
	t, err := time.Parse("Jan 2 2006", normalized)
	if err != nil {
		t, err = time.Parse("January 2 2006", normalized)
		if err != nil {
			return time.Time{}, false
		}
	}
	return t, true
}

func withinRange(t, lo, hi time.Time) bool {
	return !t.Before(lo) && !t.After(hi)
}
