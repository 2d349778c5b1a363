package gmail

import (
	"strings"
	"testing"

	"subscan_server/core/domain"
)

func TestBuildQueryTransactionalModeExcludesPromotionsAndSocial(t *testing.T) {
	q := buildQuery(domain.Options{DaysBack: 30, QueryMode: domain.QueryTransactions})
	if !strings.Contains(q, "newer_than:30d") {
		t.Errorf("query %q missing lookback window", q)
	}
	if !strings.Contains(q, "-category:promotions") || !strings.Contains(q, "-category:social") {
		t.Errorf("query %q should exclude promotions and social categories", q)
	}
	if !strings.Contains(q, "invoice") {
		t.Errorf("query %q missing transactional phrase bank", q)
	}
}

func TestBuildQueryBroadModeIncludesPromotionsWhenRequested(t *testing.T) {
	q := buildQuery(domain.Options{DaysBack: 7, QueryMode: domain.QueryBroad, IncludePromotions: true})
	if strings.Contains(q, "-category:promotions") {
		t.Errorf("query %q should not exclude promotions when IncludePromotions is set", q)
	}
	if strings.Contains(q, "invoice") {
		t.Errorf("broad query %q should not carry the transactional phrase bank", q)
	}
}

func TestBuildQueryBroadModeExcludesPromotionsByDefault(t *testing.T) {
	q := buildQuery(domain.Options{DaysBack: 7, QueryMode: domain.QueryBroad})
	if !strings.Contains(q, "-category:promotions") {
		t.Errorf("query %q should exclude promotions by default", q)
	}
}

func TestExtractEmailParsesDisplayNameAddress(t *testing.T) {
	got := extractEmail(`"Acme Billing" <billing@acme.com>`)
	if got != "billing@acme.com" {
		t.Errorf("extractEmail() = %q, want billing@acme.com", got)
	}
}

func TestExtractEmailFallsBackToRawStringWhenUnparseable(t *testing.T) {
	got := extractEmail("not-an-address")
	if got != "not-an-address" {
		t.Errorf("extractEmail() = %q, want the lowercased raw string", got)
	}
}

func TestDomainOfExtractsHostAfterAt(t *testing.T) {
	if got := domainOf("billing@acme.com"); got != "acme.com" {
		t.Errorf("domainOf() = %q, want acme.com", got)
	}
	if got := domainOf("no-at-sign"); got != "" {
		t.Errorf("domainOf() = %q, want empty string for input without @", got)
	}
}
