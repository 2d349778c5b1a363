package merchant

import (
	"testing"

	"subscan_server/core/domain"
)

func TestResolveOverrideTiers(t *testing.T) {
	email := "billing@random-biller.io"
	overrides := []domain.UserOverride{
		{SenderEmail: &email, CanonicalName: "My Gym"},
	}

	got := Resolve(Surface{From: "Billing@Random-Biller.io"}, nil, overrides)
	if got.Reason != ReasonOverrideEmail {
		t.Fatalf("Reason = %v, want %v", got.Reason, ReasonOverrideEmail)
	}
	if got.Canonical == nil || *got.Canonical != "My Gym" {
		t.Fatalf("Canonical = %v, want My Gym", got.Canonical)
	}
	if got.Confidence != 95 {
		t.Errorf("Confidence = %d, want 95", got.Confidence)
	}
}

func TestResolveOverrideDomain(t *testing.T) {
	domainStr := "random-biller.io"
	overrides := []domain.UserOverride{
		{SenderDomain: &domainStr, CanonicalName: "My Gym"},
	}

	got := Resolve(Surface{From: "noreply@billing.random-biller.io"}, nil, overrides)
	if got.Reason != ReasonOverrideDomain {
		t.Fatalf("Reason = %v, want %v", got.Reason, ReasonOverrideDomain)
	}
	if got.Canonical == nil || *got.Canonical != "My Gym" {
		t.Fatalf("Canonical = %v, want My Gym", got.Canonical)
	}
}

func TestResolveDirectorySenderEmail(t *testing.T) {
	directory := []domain.MerchantDirectoryEntry{
		{CanonicalName: "Netflix", SenderEmails: []string{"info@account.netflix.com"}},
	}

	got := Resolve(Surface{From: "info@account.netflix.com"}, directory, nil)
	if got.Reason != ReasonSenderEmail {
		t.Fatalf("Reason = %v, want %v", got.Reason, ReasonSenderEmail)
	}
	if got.Canonical == nil || *got.Canonical != "Netflix" {
		t.Fatalf("Canonical = %v, want Netflix", got.Canonical)
	}
}

func TestResolveDirectoryDomainPrefersFromDomain(t *testing.T) {
	directory := []domain.MerchantDirectoryEntry{
		{CanonicalName: "Spotify", SenderDomains: []string{"spotify.com"}},
	}

	got := Resolve(Surface{From: "no-reply@spotify.com"}, directory, nil)
	if got.Reason != ReasonDomain {
		t.Fatalf("Reason = %v, want %v", got.Reason, ReasonDomain)
	}
	if got.Canonical == nil || *got.Canonical != "Spotify" {
		t.Fatalf("Canonical = %v, want Spotify", got.Canonical)
	}
}

func TestResolveKeywordsFallsThroughBeforeNoMatch(t *testing.T) {
	directory := []domain.MerchantDirectoryEntry{
		{CanonicalName: "Acme Gym", Keywords: []string{"acme fitness", "membership renewal"}},
	}

	got := Resolve(Surface{
		From:     "billing@random-biller.io",
		Haystack: "Your Acme Fitness membership renewal is complete",
	}, directory, nil)

	if got.Reason != ReasonKeywords {
		t.Fatalf("Reason = %v, want %v", got.Reason, ReasonKeywords)
	}
	if got.Canonical == nil || *got.Canonical != "Acme Gym" {
		t.Fatalf("Canonical = %v, want Acme Gym", got.Canonical)
	}
}

func TestResolveFallbackDomainSkipsConsumerAndInfraDomains(t *testing.T) {
	got := Resolve(Surface{From: "person@gmail.com"}, nil, nil)
	if got.Reason != ReasonNoMatch {
		t.Errorf("gmail.com: Reason = %v, want %v", got.Reason, ReasonNoMatch)
	}

	got = Resolve(Surface{From: "bounce@sendgrid.net"}, nil, nil)
	if got.Reason != ReasonNoMatch {
		t.Errorf("sendgrid.net: Reason = %v, want %v", got.Reason, ReasonNoMatch)
	}

	got = Resolve(Surface{From: "billing@some-saas-vendor.io"}, nil, nil)
	if got.Reason != ReasonFallbackDomain {
		t.Errorf("some-saas-vendor.io: Reason = %v, want %v", got.Reason, ReasonFallbackDomain)
	}
	if got.PrettyFallback == nil || *got.PrettyFallback != "Some-saas-vendor" {
		t.Errorf("PrettyFallback = %v, want Some-saas-vendor", got.PrettyFallback)
	}
}

func TestResolveNoMatch(t *testing.T) {
	got := Resolve(Surface{From: "friend@gmail.com"}, nil, nil)
	if got.Reason != ReasonNoMatch {
		t.Errorf("Reason = %v, want %v", got.Reason, ReasonNoMatch)
	}
	if got.Confidence != 0 {
		t.Errorf("Confidence = %d, want 0", got.Confidence)
	}
}
