package extract

import "testing"

func TestExtractPlanLabeledLine(t *testing.T) {
	got, ok := ExtractPlan("Order summary\nPlan: Premium Annual.\nThanks for subscribing.")
	if !ok {
		t.Fatal("expected a plan match")
	}
	if got != "Premium Annual" {
		t.Errorf("plan = %q, want Premium Annual", got)
	}
}

func TestExtractPlanTitledCadenceLabel(t *testing.T) {
	got, ok := ExtractPlan("Your ProPlan(Monthly) renews soon.")
	if !ok {
		t.Fatal("expected a plan match")
	}
	if got != "Your ProPlan (Monthly)" {
		t.Errorf("plan = %q, want %q", got, "Your ProPlan (Monthly)")
	}
}

func TestExtractPlanNoMatch(t *testing.T) {
	if _, ok := ExtractPlan("just a regular note"); ok {
		t.Error("expected no plan match")
	}
}
