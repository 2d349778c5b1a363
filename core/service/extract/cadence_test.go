package extract

import (
	"testing"
	"time"

	"subscan_server/core/domain"
)

func TestExtractCadenceKeywordPriorityOrder(t *testing.T) {
	cadence, ok := ExtractCadenceKeyword("Billed yearly, renews /month for add-ons, weekly digest included")
	if !ok {
		t.Fatal("expected a cadence match")
	}
	if cadence != domain.CadenceWeekly {
		t.Errorf("cadence = %v, want %v (week beats month/year)", cadence, domain.CadenceWeekly)
	}
}

func TestExtractCadenceKeywordQuarterlyBeatsYearly(t *testing.T) {
	cadence, ok := ExtractCadenceKeyword("Billed annually or quarterly, your choice")
	if !ok {
		t.Fatal("expected a cadence match")
	}
	if cadence != domain.CadenceQuarterly {
		t.Errorf("cadence = %v, want %v", cadence, domain.CadenceQuarterly)
	}
}

func TestExtractCadenceKeywordNoMatch(t *testing.T) {
	if _, ok := ExtractCadenceKeyword("just a regular note"); ok {
		t.Error("expected no cadence match")
	}
}

func TestInferCadenceFromDatesMonthly(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := []time.Time{
		base,
		base.AddDate(0, 0, 30),
		base.AddDate(0, 0, 60),
	}
	cadence, ok := InferCadenceFromDates(dates)
	if !ok {
		t.Fatal("expected a cadence to be inferred")
	}
	if cadence != domain.CadenceMonthly {
		t.Errorf("cadence = %v, want %v", cadence, domain.CadenceMonthly)
	}
}

func TestInferCadenceFromDatesWeekly(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := []time.Time{
		base,
		base.AddDate(0, 0, 7),
		base.AddDate(0, 0, 14),
		base.AddDate(0, 0, 21),
	}
	cadence, ok := InferCadenceFromDates(dates)
	if !ok {
		t.Fatal("expected a cadence to be inferred")
	}
	if cadence != domain.CadenceWeekly {
		t.Errorf("cadence = %v, want %v", cadence, domain.CadenceWeekly)
	}
}

func TestInferCadenceFromDatesInsufficientData(t *testing.T) {
	if _, ok := InferCadenceFromDates([]time.Time{time.Now()}); ok {
		t.Error("expected no inference with fewer than 2 dates")
	}
}

func TestInferCadenceFromDatesOutsideTolerance(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	dates := []time.Time{
		base,
		base.AddDate(0, 0, 45),
	}
	if _, ok := InferCadenceFromDates(dates); ok {
		t.Error("expected no cadence for a gap that falls between tolerance bands")
	}
}
