package extract

import "regexp"

var (
	labeledPlanPattern = regexp.MustCompile(`(?i)\b(Plan|Membership|Subscription):\s*([^\n\r]{1,80})`)
	titledPlanPattern  = regexp.MustCompile(`([A-Z][\w .&'-]{1,60})\s*\((Monthly|Yearly|Weekly)\)`)
)

// ExtractPlan finds a "Plan|Membership|Subscription: <value>" line or a
// "<Title> (Monthly|Yearly|Weekly)" label (§4.C).
func ExtractPlan(haystack string) (string, bool) {
	if m := labeledPlanPattern.FindStringSubmatch(haystack); len(m) == 3 {
		return trimPlan(m[2]), true
	}
	if m := titledPlanPattern.FindStringSubmatch(haystack); len(m) == 3 {
		return m[1] + " (" + m[2] + ")", true
	}
	return "", false
}

func trimPlan(s string) string {
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '.') {
		s = s[:len(s)-1]
	}
	return s
}
