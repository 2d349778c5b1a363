package imap

import (
	"testing"

	"github.com/emersion/go-imap/v2"

	"subscan_server/core/domain"
)

func TestEncodeDecodeCursorRoundTrips(t *testing.T) {
	encoded := encodeCursor(4242)
	got := decodeCursor(&encoded)
	if got != 4242 {
		t.Errorf("decodeCursor(encodeCursor(4242)) = %d, want 4242", got)
	}
}

func TestDecodeCursorHandlesNilAndEmpty(t *testing.T) {
	if got := decodeCursor(nil); got != 0 {
		t.Errorf("decodeCursor(nil) = %d, want 0", got)
	}
	empty := ""
	if got := decodeCursor(&empty); got != 0 {
		t.Errorf("decodeCursor(\"\") = %d, want 0", got)
	}
}

func TestDecodeCursorRejectsGarbage(t *testing.T) {
	garbage := "not-base64url!!"
	if got := decodeCursor(&garbage); got != 0 {
		t.Errorf("decodeCursor(garbage) = %d, want 0", got)
	}
}

func TestParseUIDRoundTrips(t *testing.T) {
	uid, err := parseUID("123")
	if err != nil {
		t.Fatalf("parseUID: %v", err)
	}
	if uid != imap.UID(123) {
		t.Errorf("parseUID(\"123\") = %v, want 123", uid)
	}
}

func TestParseUIDRejectsNonNumeric(t *testing.T) {
	if _, err := parseUID("not-a-uid"); err == nil {
		t.Error("expected an error for a non-numeric UID")
	}
}

func TestFormatAddressUsesMailboxAtHost(t *testing.T) {
	addr := imap.Address{Mailbox: "billing", Host: "acme.com"}
	if got := formatAddress(addr); got != "billing@acme.com" {
		t.Errorf("formatAddress() = %q, want billing@acme.com", got)
	}
}

func TestFormatAddressFallsBackToNameWhenHostMissing(t *testing.T) {
	addr := imap.Address{Name: "Acme Billing"}
	if got := formatAddress(addr); got != "Acme Billing" {
		t.Errorf("formatAddress() = %q, want Acme Billing", got)
	}
}

func TestParseExtraHeadersExtractsKnownFields(t *testing.T) {
	raw := "Return-Path: <bounce@acme.com>\r\n" +
		"List-Unsubscribe: <mailto:unsub@acme.com>\r\n" +
		"List-Id: acme-newsletter\r\n" +
		"Precedence: bulk\r\n" +
		"Auto-Submitted: auto-generated\r\n"

	var headers domain.MailHeaders
	parseExtraHeaders(raw, &headers)

	if headers.ReturnPath != "<bounce@acme.com>" {
		t.Errorf("ReturnPath = %q", headers.ReturnPath)
	}
	if headers.ListUnsubscribe != "<mailto:unsub@acme.com>" {
		t.Errorf("ListUnsubscribe = %q", headers.ListUnsubscribe)
	}
	if headers.ListID != "acme-newsletter" {
		t.Errorf("ListID = %q", headers.ListID)
	}
	if headers.Precedence != "bulk" {
		t.Errorf("Precedence = %q", headers.Precedence)
	}
	if headers.AutoSubmitted != "auto-generated" {
		t.Errorf("AutoSubmitted = %q", headers.AutoSubmitted)
	}
}

func TestExtractEmailParsesDisplayNameAddress(t *testing.T) {
	if got := extractEmail(`"Acme Billing" <billing@acme.com>`); got != "billing@acme.com" {
		t.Errorf("extractEmail() = %q, want billing@acme.com", got)
	}
}

func TestParseMessageSourceExtractsPlainTextPart(t *testing.T) {
	raw := "From: billing@acme.com\r\n" +
		"Subject: Receipt\r\n" +
		"Content-Type: text/plain\r\n" +
		"\r\n" +
		"Thanks for your payment of $9.99.\r\n"

	body := parseMessageSource([]byte(raw))
	if body.Text == "" {
		t.Error("expected non-empty text body from a text/plain message")
	}
}

func TestParseMessageSourceReturnsEmptyBodyOnGarbage(t *testing.T) {
	body := parseMessageSource([]byte("not a valid mime message"))
	if body.Text != "" || body.HTML != "" {
		t.Errorf("expected empty body for unparseable input, got %+v", body)
	}
}
