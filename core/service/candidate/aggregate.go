package candidate

import (
	"sort"
	"strings"
	"time"

	"subscan_server/core/domain"
	"subscan_server/core/service/extract"
	"subscan_server/core/service/signals"
)

// AggregateWithinChunk runs §4.F pass 1: group by fingerprint, keep the
// max-confidence representative, and boost confidence when ≥2 dated samples
// imply a cadence not already captured.
func AggregateWithinChunk(candidates []domain.Candidate) []domain.Candidate {
	groups := map[string][]domain.Candidate{}
	order := []string{}
	for _, c := range candidates {
		if _, ok := groups[c.Fingerprint]; !ok {
			order = append(order, c.Fingerprint)
		}
		groups[c.Fingerprint] = append(groups[c.Fingerprint], c)
	}

	out := make([]domain.Candidate, 0, len(order))
	for _, fp := range order {
		group := groups[fp]
		best := group[0]
		for _, c := range group[1:] {
			if c.Confidence > best.Confidence {
				best = c
			}
		}
		best.EvidenceSamples = mergeEvidence(group)

		if best.CadenceGuess == nil {
			dates := datedTimes(group)
			if len(dates) >= 2 {
				if cadence, ok := extract.InferCadenceFromDates(dates); ok {
					best.CadenceGuess = &cadence
					best.Confidence = clampInt(best.Confidence+10, 0, 100)
					best.ConfidenceLabel = domain.LabelForConfidence(best.Confidence)
					best.Reasons = append(best.Reasons, "inferredCadenceFromDates")
				}
			}
		}
		out = append(out, best)
	}
	return out
}

func mergeEvidence(group []domain.Candidate) []domain.Evidence {
	var all []domain.Evidence
	for _, c := range group {
		all = append(all, c.EvidenceSamples...)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].DateMs > all[j].DateMs })
	if len(all) > 3 {
		all = all[:3]
	}
	return all
}

func datedTimes(group []domain.Candidate) []time.Time {
	var out []time.Time
	for _, c := range group {
		for _, e := range c.EvidenceSamples {
			if e.DateMs > 0 {
				out = append(out, time.UnixMilli(e.DateMs))
			}
		}
	}
	return out
}

// merchantKey is the across-chunk dedupe grouping key (§4.F pass 2).
func merchantKey(c domain.Candidate) string {
	return strings.ToLower(strings.TrimSpace(c.Merchant)) + "|" + strings.ToLower(c.Evidence.SenderDomain)
}

// rankScore implements the §4.F pass-2 ranking formula.
func rankScore(c domain.Candidate) int {
	hasAmount := 0
	if c.Amount != nil {
		hasAmount = 1
	}
	hasDate := 0
	if c.NextDateGuess != nil {
		hasDate = 1
	}
	fullBodyBoost := 0
	if c.EvidenceType == domain.EvidenceTransactional || c.EvidenceType == domain.EvidencePlatformReceipt {
		fullBodyBoost = 1
	}
	return c.EventType.Priority()*10000 + hasAmount*2000 + c.Confidence*100 + hasDate*10 + fullBodyBoost
}

// DedupeAcrossChunks runs §4.F pass 2: rank within a merchant key and keep
// the single best representative with up to 3 recent evidence samples.
func DedupeAcrossChunks(candidates []domain.Candidate) []domain.Candidate {
	groups := map[string][]domain.Candidate{}
	order := []string{}
	for _, c := range candidates {
		k := merchantKey(c)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], c)
	}

	out := make([]domain.Candidate, 0, len(order))
	for _, k := range order {
		group := groups[k]
		sort.SliceStable(group, func(i, j int) bool {
			si, sj := rankScore(group[i]), rankScore(group[j])
			if si != sj {
				return si > sj
			}
			return group[i].Evidence.DateMs > group[j].Evidence.DateMs
		})
		best := group[0]
		best.EvidenceSamples = mergeEvidence(group)
		out = append(out, best)
	}
	return out
}

// StrictGate drops strict-gate-excluded candidates and tags status-only
// candidates as excludeFromSpend (§4.F post-process).
func StrictGate(candidates []domain.Candidate) []domain.Candidate {
	var out []domain.Candidate
	for _, c := range candidates {
		if isStrictGated(c) {
			continue
		}
		if c.EventType == domain.EventPaused || c.EventType == domain.EventPaymentFailed {
			c.ExcludeFromSpend = true
		}
		out = append(out, c)
	}
	return out
}

func isStrictGated(c domain.Candidate) bool {
	switch c.EventType {
	case domain.EventTopUp, domain.EventAdSpend, domain.EventPromo:
		return true
	}
	haystack := c.Evidence.Subject + "\n" + c.Evidence.Snippet
	return signals.AnyMatch(haystack, signals.HardNegativePhrases)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
