package candidate

import (
	"math"
	"strconv"
	"strings"
	"time"

	"subscan_server/core/domain"
	"subscan_server/core/service/extract"
	"subscan_server/core/service/signals"
)

// ClusterMember is one screened-in message's metadata contribution to a cluster.
type ClusterMember struct {
	MessageID           string
	SenderDomain        string
	BestDomain          string
	IsInfra             bool
	DateMs              int64
	HasDate             bool
	Subject             string
	Snippet             string
	LikelyTransactional bool
	BulkHeader          bool
	ResolverConfidence  int
	Merchant            string
}

const minClusterDatedMessages = 3
const clusterScoreFloor = 55

// clusterKey groups members by bestDomain, or infra:<bestDomain>:<senderDomain>
// when bestDomain is mail-infra (§4.E).
func clusterKey(m ClusterMember) string {
	if m.IsInfra {
		return "infra:" + m.BestDomain + ":" + m.SenderDomain
	}
	return m.BestDomain
}

// BuildClusters groups screened-in metadata by bestDomain and scores each
// group, discarding clusters under the §4.E threshold.
func BuildClusters(members []ClusterMember) []domain.Candidate {
	groups := map[string][]ClusterMember{}
	for _, m := range members {
		k := clusterKey(m)
		if k == "" {
			continue
		}
		groups[k] = append(groups[k], m)
	}

	var out []domain.Candidate
	for _, group := range groups {
		if c, ok := scoreCluster(group); ok {
			out = append(out, c)
		}
	}
	return out
}

func scoreCluster(group []ClusterMember) (domain.Candidate, bool) {
	var dates []time.Time
	datedCount := 0
	transactionalCount := 0
	bulkCount := 0
	haystack := strings.Builder{}
	var sumResolverConfidence int
	merchant := ""
	senderDomain := ""

	for _, m := range group {
		if m.HasDate {
			datedCount++
			dates = append(dates, time.UnixMilli(m.DateMs))
		}
		if m.LikelyTransactional {
			transactionalCount++
		}
		if m.BulkHeader {
			bulkCount++
		}
		haystack.WriteString(m.Subject)
		haystack.WriteString("\n")
		haystack.WriteString(m.Snippet)
		haystack.WriteString("\n")
		sumResolverConfidence += m.ResolverConfidence
		if merchant == "" && m.Merchant != "" {
			merchant = m.Merchant
		}
		if senderDomain == "" {
			senderDomain = m.SenderDomain
		}
	}

	if datedCount < minClusterDatedMessages {
		return domain.Candidate{}, false
	}

	n := len(group)
	cadence, hasCadence := extract.InferCadenceFromDates(dates)
	billingHits := signals.CountMatches(haystack.String(), signals.BillingKeywords)
	transactionalRatio := float64(transactionalCount) / float64(n)
	bulkRatio := float64(bulkCount) / float64(n)
	avgResolverConfidence := float64(sumResolverConfidence) / float64(n)

	score := math.Min(35, math.Log2(float64(n+1))*12)
	if hasCadence {
		score += 22
	}
	if billingHits > 0 {
		score += 18
	}
	score += math.Min(15, 20*transactionalRatio)
	score += math.Min(20, 0.35*avgResolverConfidence)

	if bulkRatio > 0.8 && billingHits == 0 {
		score -= 10
	}

	finalScore := clampFloat(score, 0, 100)
	if finalScore < clusterScoreFloor {
		return domain.Candidate{}, false
	}

	intScore := int(finalScore)

	var cadencePtr *domain.Cadence
	if hasCadence {
		cadencePtr = &cadence
	}
	fp := domain.ComputeFingerprint(domain.FingerprintCluster, merchant, senderDomain, nil, nil, cadencePtr)

	mostRecent := group[0]
	for _, m := range group {
		if m.DateMs > mostRecent.DateMs {
			mostRecent = m
		}
	}

	c := domain.Candidate{
		Fingerprint:     fp,
		Merchant:        merchant,
		CadenceGuess:    cadencePtr,
		Confidence:      intScore,
		ConfidenceLabel: domain.LabelForConfidence(intScore),
		EvidenceType:    domain.EvidenceCluster,
		Reasons:         []string{"clusterSize:" + strconv.Itoa(n)},
		Evidence: domain.Evidence{
			Subject:      mostRecent.Subject,
			Snippet:      mostRecent.Snippet,
			SenderDomain: senderDomain,
			DateMs:       mostRecent.DateMs,
			MessageID:    mostRecent.MessageID,
		},
		NeedsConfirm: true,
		EventType:    domain.EventBillingSignalNoAmount,
	}
	return c, true
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
