package extract

import "testing"

func TestExtractLinkDomainsDedupesAcrossTextAndHTML(t *testing.T) {
	text := "Manage your plan at https://billing.acme.com/account or see https://acme.com/help"
	html := `<a href="https://billing.acme.com/account">manage</a>`
	got := ExtractLinkDomains(text, html)
	if len(got) != 2 {
		t.Fatalf("got %d domains, want 2: %v", len(got), got)
	}
	seen := map[string]bool{}
	for _, d := range got {
		seen[d] = true
	}
	if !seen["billing.acme.com"] || !seen["acme.com"] {
		t.Errorf("domains = %v, want billing.acme.com and acme.com", got)
	}
}

func TestExtractLinkDomainsNoLinks(t *testing.T) {
	got := ExtractLinkDomains("no links here", "")
	if len(got) != 0 {
		t.Errorf("got %v, want none", got)
	}
}

func TestNormalizeBodyCollapsesWhitespaceAndNBSP(t *testing.T) {
	input := "Hello\t\r  World  Again"
	got := NormalizeBody(input)
	want := "Hello World Again"
	if got != want {
		t.Errorf("NormalizeBody = %q, want %q", got, want)
	}
}
