package classify

import (
	"testing"

	"subscan_server/core/domain"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name           string
		subject        string
		snippet        string
		text           string
		headers        domain.MailHeaders
		fromDomain     string
		wantTransact   bool
		wantMarketing  bool
	}{
		{
			name:          "renewal receipt is transactional",
			subject:       "Your subscription renewed",
			snippet:       "We charged your card on file",
			wantTransact:  true,
			wantMarketing: false,
		},
		{
			name:          "bulk newsletter with no transactional signal is marketing",
			subject:       "Top picks just for you",
			snippet:       "Check out our new arrivals and deals",
			headers:       domain.MailHeaders{Precedence: "bulk"},
			wantTransact:  false,
			wantMarketing: true,
		},
		{
			name:          "apple receipt domain with purchase wording",
			subject:       "Your receipt from Apple",
			snippet:       "Your subscription to App Store purchase",
			fromDomain:    "apple.com",
			wantTransact:  true,
			wantMarketing: false,
		},
		{
			name:          "bulk header with a transactional phrase stays transactional",
			subject:       "Invoice attached",
			snippet:       "Your invoice is ready, amount due now",
			headers:       domain.MailHeaders{ListID: "<list.example.com>"},
			wantTransact:  true,
			wantMarketing: false,
		},
		{
			name:          "plain personal email is neither",
			subject:       "Dinner tonight?",
			snippet:       "Are you free around 7?",
			wantTransact:  false,
			wantMarketing: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flags := Classify(tt.subject, tt.snippet, tt.text, tt.headers, tt.fromDomain)
			if flags.LikelyTransactional != tt.wantTransact {
				t.Errorf("LikelyTransactional = %v, want %v", flags.LikelyTransactional, tt.wantTransact)
			}
			if flags.MarketingHeavy != tt.wantMarketing {
				t.Errorf("MarketingHeavy = %v, want %v", flags.MarketingHeavy, tt.wantMarketing)
			}
		})
	}
}

func TestQuickScreen(t *testing.T) {
	tests := []struct {
		name       string
		from       string
		subject    string
		snippet    string
		headers    domain.MailHeaders
		fromDomain string
		wantOK     bool
		wantReason ScreenReason
	}{
		{
			name:       "transactional subject passes",
			from:       "billing@service.com",
			subject:    "Payment successful",
			snippet:    "We charged your card $9.99",
			wantOK:     true,
			wantReason: ScreenOK,
		},
		{
			name:       "bulk marketing with no positive signal fails",
			from:       "deals@store.com",
			subject:    "50% off everything",
			snippet:    "Limited time deals, new arrivals",
			headers:    domain.MailHeaders{Precedence: "bulk"},
			wantOK:     false,
			wantReason: ScreenMarketing,
		},
		{
			name:       "bulk header with zero positive hits is a hard no",
			from:       "list@example.com",
			subject:    "Community digest",
			snippet:    "Here is what happened this week",
			headers:    domain.MailHeaders{ListID: "<digest.example.com>"},
			wantOK:     false,
			wantReason: ScreenHardNo,
		},
		{
			name:       "no signal at all passes as weak_signal",
			from:       "friend@gmail.com",
			subject:    "Hey",
			snippet:    "What's up",
			wantOK:     true,
			wantReason: ScreenWeakSignal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QuickScreen(tt.from, tt.subject, tt.snippet, tt.headers, tt.fromDomain)
			if got.OK != tt.wantOK {
				t.Errorf("OK = %v, want %v", got.OK, tt.wantOK)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %v, want %v", got.Reason, tt.wantReason)
			}
		})
	}
}
