package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"strings"
)

// Cadence is the closed billing-cadence enum (§3).
type Cadence string

const (
	CadenceWeekly    Cadence = "weekly"
	CadenceBiweekly  Cadence = "biweekly"
	CadenceMonthly   Cadence = "monthly"
	CadenceQuarterly Cadence = "quarterly"
	CadenceYearly    Cadence = "yearly"
)

// ConfidenceLabel is the closed label bucket derived from Candidate.Confidence.
type ConfidenceLabel string

const (
	ConfidenceLow    ConfidenceLabel = "Low"
	ConfidenceMedium ConfidenceLabel = "Medium"
	ConfidenceHigh   ConfidenceLabel = "High"
)

// LabelForConfidence applies the §4.D step 10 thresholds.
func LabelForConfidence(confidence int) ConfidenceLabel {
	switch {
	case confidence >= 80:
		return ConfidenceHigh
	case confidence >= 55:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// EvidenceType is the closed candidate-origin enum (§3).
type EvidenceType string

const (
	EvidenceTransactional   EvidenceType = "transactional"
	EvidencePlatformReceipt EvidenceType = "platform_receipt"
	EvidenceTrial           EvidenceType = "trial"
	EvidenceCluster         EvidenceType = "cluster"
	EvidenceUnknown         EvidenceType = "unknown"
)

// EventKind is the closed candidate eventType enum (§3) and drives Aggregator
// tie-break priority (§4.F pass 2).
type EventKind string

const (
	EventReceipt               EventKind = "receipt"
	EventRenewal               EventKind = "renewal"
	EventTrial                 EventKind = "trial"
	EventPaymentFailed         EventKind = "payment_failed"
	EventPaused                EventKind = "paused"
	EventCancellation          EventKind = "cancellation"
	EventBillingSignal         EventKind = "billing_signal"
	EventBillingSignalNoAmount EventKind = "billing_signal_no_amount"
	EventMarketing             EventKind = "marketing"
	EventUnknown               EventKind = "unknown"
	// strict-gate-only kinds (§4.F post-process); never survive to a stored Candidate.
	EventTopUp   EventKind = "top_up"
	EventAdSpend EventKind = "ad_spend"
	EventPromo   EventKind = "promo"
)

// Priority returns the §4.F event-priority used for across-chunk tie-break ranking.
func (k EventKind) Priority() int {
	switch k {
	case EventReceipt:
		return 100
	case EventRenewal:
		return 90
	case EventBillingSignal:
		return 80
	case EventBillingSignalNoAmount:
		return 70
	case EventTrial:
		return 60
	case EventPaymentFailed:
		return 50
	case EventPaused:
		return 40
	case EventCancellation:
		return 35
	case EventMarketing:
		return 0
	default:
		return 20
	}
}

// ExcludeFromSpend is true for event kinds that are status-only, not a charge (§3).
func (k EventKind) ExcludeFromSpend() bool {
	return k == EventPaused || k == EventPaymentFailed
}

// Evidence is the best-representative sample backing a Candidate.
type Evidence struct {
	From         string
	Subject      string
	Snippet      string
	SenderEmail  string
	SenderDomain string
	DateMs       int64
	// MessageID is the source message's driver-scoped id, kept so the
	// ChunkEngine enrichment stage can re-fetch this message's body.
	MessageID string
}

// Candidate is one deduped (session, fingerprint) subscription row (§3).
type Candidate struct {
	Fingerprint      string
	Merchant         string
	Plan             *string
	Amount           *float64
	Currency         *string
	CadenceGuess     *Cadence
	NextDateGuess    *string
	Confidence       int
	ConfidenceLabel  ConfidenceLabel
	EvidenceType     EvidenceType
	Reasons          []string
	Evidence         Evidence
	EvidenceSamples  []Evidence
	NeedsConfirm     bool
	EventType        EventKind
	ExcludeFromSpend bool
}

// FingerprintKind selects the fingerprint shape (§3 "Fingerprint").
type FingerprintKind string

const (
	FingerprintEmail   FingerprintKind = "email"
	FingerprintCluster FingerprintKind = "cluster"
)

// ComputeFingerprint returns the stable dedupe hash described in §3.
// v=2 is baked into the hashed string so a future fingerprint revision never
// collides with rows written under this scheme.
func ComputeFingerprint(kind FingerprintKind, merchant, senderDomain string, amount *float64, currency *string, cadence *Cadence) string {
	var amountKey string
	if amount != nil {
		amountKey = fmt.Sprintf("%d", int64(math.Round(*amount*100)))
	} else {
		amountKey = "null"
	}
	currencyKey := "null"
	if currency != nil {
		currencyKey = strings.ToLower(*currency)
	}
	parts := []string{
		"v=2",
		string(kind),
		strings.ToLower(strings.TrimSpace(merchant)),
		strings.ToLower(strings.TrimSpace(senderDomain)),
		amountKey,
		currencyKey,
	}
	if kind == FingerprintCluster {
		cadenceKey := "null"
		if cadence != nil {
			cadenceKey = string(*cadence)
		}
		parts = append(parts, cadenceKey)
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
