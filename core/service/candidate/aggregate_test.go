package candidate

import (
	"testing"

	"subscan_server/core/domain"
)

func TestAggregateWithinChunkKeepsHighestConfidenceAndMergesEvidence(t *testing.T) {
	candidates := []domain.Candidate{
		{
			Fingerprint: "fp1",
			Confidence:  50,
			Evidence:    domain.Evidence{DateMs: 1000},
			EvidenceSamples: []domain.Evidence{
				{DateMs: 1000},
			},
		},
		{
			Fingerprint: "fp1",
			Confidence:  70,
			Evidence:    domain.Evidence{DateMs: 2000},
			EvidenceSamples: []domain.Evidence{
				{DateMs: 2000},
			},
		},
	}
	out := AggregateWithinChunk(candidates)
	if len(out) != 1 {
		t.Fatalf("got %d groups, want 1", len(out))
	}
	if out[0].Confidence != 70 {
		t.Errorf("Confidence = %d, want 70 (best of group)", out[0].Confidence)
	}
	if len(out[0].EvidenceSamples) != 2 {
		t.Errorf("EvidenceSamples = %d, want 2 merged", len(out[0].EvidenceSamples))
	}
}

func TestAggregateWithinChunkInfersCadenceBoost(t *testing.T) {
	day := int64(86400000)
	candidates := []domain.Candidate{
		{
			Fingerprint: "fp2",
			Confidence:  50,
			Evidence:    domain.Evidence{DateMs: 30 * day},
			EvidenceSamples: []domain.Evidence{
				{DateMs: 30 * day},
			},
		},
		{
			Fingerprint: "fp2",
			Confidence:  50,
			Evidence:    domain.Evidence{DateMs: 60 * day},
			EvidenceSamples: []domain.Evidence{
				{DateMs: 60 * day},
			},
		},
	}
	out := AggregateWithinChunk(candidates)
	if len(out) != 1 {
		t.Fatalf("got %d groups, want 1", len(out))
	}
	if out[0].CadenceGuess == nil {
		t.Fatal("expected an inferred cadence")
	}
	if *out[0].CadenceGuess != domain.CadenceMonthly {
		t.Errorf("CadenceGuess = %v, want monthly", *out[0].CadenceGuess)
	}
	if out[0].Confidence != 60 {
		t.Errorf("Confidence = %d, want 60 (50+10 boost)", out[0].Confidence)
	}
}

func TestDedupeAcrossChunksPrefersHigherPriorityEventType(t *testing.T) {
	candidates := []domain.Candidate{
		{
			Merchant:   "Netflix",
			Evidence:   domain.Evidence{SenderDomain: "netflix.com", DateMs: 1000},
			EventType:  domain.EventMarketing,
			Confidence: 90,
		},
		{
			Merchant:   "netflix",
			Evidence:   domain.Evidence{SenderDomain: "netflix.com", DateMs: 500},
			EventType:  domain.EventReceipt,
			Confidence: 60,
		},
	}
	out := DedupeAcrossChunks(candidates)
	if len(out) != 1 {
		t.Fatalf("got %d candidates, want 1 merged by merchant+domain", len(out))
	}
	if out[0].EventType != domain.EventReceipt {
		t.Errorf("EventType = %v, want receipt (higher priority wins over confidence)", out[0].EventType)
	}
}

func TestStrictGateDropsTopUpAndTagsExcludeFromSpend(t *testing.T) {
	candidates := []domain.Candidate{
		{EventType: domain.EventTopUp},
		{EventType: domain.EventPaused},
		{EventType: domain.EventReceipt},
	}
	out := StrictGate(candidates)
	if len(out) != 2 {
		t.Fatalf("got %d candidates, want 2 (top_up dropped)", len(out))
	}
	var sawPaused bool
	for _, c := range out {
		if c.EventType == domain.EventPaused {
			sawPaused = true
			if !c.ExcludeFromSpend {
				t.Error("expected paused candidate to be tagged ExcludeFromSpend")
			}
		}
	}
	if !sawPaused {
		t.Fatal("expected paused candidate to survive the gate")
	}
}

func TestStrictGateDropsHardNegativePhraseMatch(t *testing.T) {
	candidates := []domain.Candidate{
		{
			EventType: domain.EventReceipt,
			Evidence:  domain.Evidence{Subject: "Funds added to your wallet"},
		},
	}
	out := StrictGate(candidates)
	if len(out) != 0 {
		t.Errorf("got %d candidates, want 0 (hard negative phrase match)", len(out))
	}
}
