package extract

import (
	"testing"
	"time"
)

func TestExtractNextRenewalDateISOWithinRange(t *testing.T) {
	now := time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)
	haystack := "Your subscription renews on 2026-09-01 automatically."
	got, ok := ExtractNextRenewalDate(haystack, now)
	if !ok {
		t.Fatal("expected a renewal date")
	}
	if got != "2026-09-01" {
		t.Errorf("date = %q, want 2026-09-01", got)
	}
}

func TestExtractNextRenewalDateLongForm(t *testing.T) {
	now := time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)
	haystack := "Your trial ends Sep 1, 2026, so act now."
	got, ok := ExtractNextRenewalDate(haystack, now)
	if !ok {
		t.Fatal("expected a renewal date")
	}
	if got != "2026-09-01" {
		t.Errorf("date = %q, want 2026-09-01", got)
	}
}

func TestExtractNextRenewalDateOutsideRangeRejected(t *testing.T) {
	now := time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)
	haystack := "This billed on 2020-01-01 in the past, unrelated to renewal."
	if _, ok := ExtractNextRenewalDate(haystack, now); ok {
		t.Error("expected date outside [-1d, +400d] to be rejected")
	}
}

func TestExtractNextRenewalDateNoKeywordNoMatch(t *testing.T) {
	now := time.Date(2026, 8, 6, 0, 0, 0, 0, time.UTC)
	haystack := "We shipped your order on 2026-09-01."
	if _, ok := ExtractNextRenewalDate(haystack, now); ok {
		t.Error("expected no match without a renewal keyword nearby")
	}
}
