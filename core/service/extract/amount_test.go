package extract

import "testing"

func TestExtractAmountPrefersBillingProximity(t *testing.T) {
	haystack := "Order #12345 estimated value $999.00. Thanks for shopping with us, we hope to see you again soon. Amount charged: $15.99 for your subscription."
	got := ExtractAmount(haystack)
	if !got.Found {
		t.Fatal("expected an amount to be found")
	}
	if got.Amount != 15.99 {
		t.Errorf("Amount = %v, want 15.99 (near billing keyword)", got.Amount)
	}
	if got.Currency != "USD" {
		t.Errorf("Currency = %q, want USD", got.Currency)
	}
}

func TestExtractAmountEuropeanDecimalConvention(t *testing.T) {
	haystack := "Total charged: €1.234,56"
	got := ExtractAmount(haystack)
	if !got.Found {
		t.Fatal("expected an amount to be found")
	}
	if got.Amount != 1234.56 {
		t.Errorf("Amount = %v, want 1234.56", got.Amount)
	}
	if got.Currency != "EUR" {
		t.Errorf("Currency = %q, want EUR", got.Currency)
	}
}

func TestExtractAmountRejectsOutOfRange(t *testing.T) {
	got := ExtractAmount("Grand total: $1,234,567.00")
	if got.Found {
		t.Errorf("expected out-of-range amount to be rejected, got %v", got)
	}
}

func TestExtractAmountNoMatch(t *testing.T) {
	got := ExtractAmount("Hello, just checking in.")
	if got.Found {
		t.Errorf("expected no amount, got %v", got)
	}
}
