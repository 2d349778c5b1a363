package extract

import "testing"

func TestPlatformRegistryDispatchesAppleParser(t *testing.T) {
	reg := NewPlatformRegistry()
	p := reg.FindParser("apple.com")
	if p == nil {
		t.Fatal("expected apple.com to be claimed")
	}
	merchant, ok := p.ExtractMerchant("Receipt\nApp: Duolingo Plus\nDeveloper: Duolingo, Inc.")
	if !ok {
		t.Fatal("expected a merchant match")
	}
	if merchant != "Duolingo Plus" {
		t.Errorf("merchant = %q, want Duolingo Plus", merchant)
	}
}

func TestPlatformRegistryDispatchesPayPalParser(t *testing.T) {
	reg := NewPlatformRegistry()
	p := reg.FindParser("paypal.com")
	if p == nil {
		t.Fatal("expected paypal.com to be claimed")
	}
	merchant, ok := p.ExtractMerchant("You paid Spotify AB.")
	if !ok {
		t.Fatal("expected a merchant match")
	}
	if merchant != "Spotify AB" {
		t.Errorf("merchant = %q, want Spotify AB", merchant)
	}
}

func TestPlatformRegistryDispatchesGooglePlayParser(t *testing.T) {
	reg := NewPlatformRegistry()
	p := reg.FindParser("play.google.com")
	if p == nil {
		t.Fatal("expected play.google.com to be claimed")
	}
	merchant, ok := p.ExtractMerchant("Order: HBO Max Premium\nTotal: $14.99")
	if !ok {
		t.Fatal("expected a merchant match")
	}
	if merchant != "HBO Max Premium" {
		t.Errorf("merchant = %q, want HBO Max Premium", merchant)
	}
}

func TestPlatformRegistryNoParserForUnknownDomain(t *testing.T) {
	reg := NewPlatformRegistry()
	if p := reg.FindParser("random-shop.io"); p != nil {
		t.Error("expected no parser to claim an unrelated domain")
	}
}
