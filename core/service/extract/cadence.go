package extract

import (
	"math"
	"regexp"
	"sort"
	"time"

	"subscan_server/core/domain"
)

// cadencePatterns' order matters: week < month < quarter < year, so the first regex to
// match in this order wins when multiple cadence words are present (§4.C).
var cadencePatterns = []struct {
	cadence domain.Cadence
	re      *regexp.Regexp
}{
	{domain.CadenceWeekly, regexp.MustCompile(`(?i)\bweekly\b|/\s*week\b`)},
	{domain.CadenceMonthly, regexp.MustCompile(`(?i)\bmonthly\b|/\s*month\b`)},
	{domain.CadenceQuarterly, regexp.MustCompile(`(?i)\bquarterly\b|/\s*quarter\b`)},
	{domain.CadenceYearly, regexp.MustCompile(`(?i)\b(yearly|annually)\b|/\s*year\b`)},
}

// ExtractCadenceKeyword scans haystack for a cadence keyword in week<month<quarter<year order.
func ExtractCadenceKeyword(haystack string) (domain.Cadence, bool) {
	for _, p := range cadencePatterns {
		if p.re.MatchString(haystack) {
			return p.cadence, true
		}
	}
	return "", false
}

type cadenceTolerance struct {
	days      int
	tolerance int
	cadence   domain.Cadence
}

var cadenceTolerances = []cadenceTolerance{
	{7, 2, domain.CadenceWeekly},
	{14, 3, domain.CadenceBiweekly},
	{30, 6, domain.CadenceMonthly},
	{90, 15, domain.CadenceQuarterly},
	{365, 45, domain.CadenceYearly},
}

// InferCadenceFromDates computes the median gap between ≥2 event dates and maps
// it to a cadence within the §4.C tolerance bands.
func InferCadenceFromDates(dates []time.Time) (domain.Cadence, bool) {
	if len(dates) < 2 {
		return "", false
	}
	sorted := append([]time.Time{}, dates...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	gaps := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, sorted[i].Sub(sorted[i-1]).Hours()/24)
	}
	sort.Float64s(gaps)
	median := medianOf(gaps)

	for _, ct := range cadenceTolerances {
		if math.Abs(median-float64(ct.days)) <= float64(ct.tolerance) {
			return ct.cadence, true
		}
	}
	return "", false
}

func medianOf(v []float64) float64 {
	n := len(v)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return v[n/2]
	}
	return (v[n/2-1] + v[n/2]) / 2
}
