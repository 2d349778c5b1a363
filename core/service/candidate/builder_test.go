package candidate

import (
	"testing"
	"time"

	"subscan_server/core/domain"
)

func TestBuildTransactionalReceiptWithAmount(t *testing.T) {
	msg := domain.MessageMeta{
		Headers: domain.MailHeaders{
			From:    "billing@netflix.com",
			Subject: "Your Netflix receipt",
		},
		Snippet:      "Your monthly payment of $15.99 was processed.",
		SenderDomain: "netflix.com",
	}
	body := domain.MessageBody{
		Text: "Thanks for being a member. Your subscription renews on 2026-09-01. Amount charged: $15.99.",
	}
	directory := []domain.MerchantDirectoryEntry{
		{CanonicalName: "Netflix", SenderDomains: []string{"netflix.com"}},
	}

	result := Build(BuildInput{Message: msg, Body: body, Directory: directory, Now: time.Now()})
	if result.Drop != "" {
		t.Fatalf("unexpected drop: %v", result.Drop)
	}
	if result.Candidate == nil {
		t.Fatal("expected a candidate")
	}
	if result.Candidate.Merchant != "Netflix" {
		t.Errorf("Merchant = %q, want Netflix", result.Candidate.Merchant)
	}
	if result.Candidate.Amount == nil {
		t.Fatal("expected an extracted amount")
	}
	if result.Candidate.Confidence < 45 {
		t.Errorf("Confidence = %d, want >= floor 45", result.Candidate.Confidence)
	}
}

func TestBuildDropsMarketingHeavyNonTransactional(t *testing.T) {
	msg := domain.MessageMeta{
		Headers: domain.MailHeaders{
			From:            "newsletter@random-shop.io",
			Subject:         "50% off everything this weekend!",
			ListUnsubscribe: "<mailto:unsub@random-shop.io>",
			Precedence:      "bulk",
		},
		Snippet:      "Huge sale, unsubscribe anytime, limited offer, shop now",
		SenderDomain: "random-shop.io",
	}
	body := domain.MessageBody{Text: "Don't miss our biggest sale of the year. Shop now and save."}

	result := Build(BuildInput{Message: msg, Body: body, Now: time.Now()})
	if result.Drop != DropMarketingHeavy {
		t.Fatalf("Drop = %v, want %v", result.Drop, DropMarketingHeavy)
	}
	if result.Candidate != nil {
		t.Error("expected no candidate on drop")
	}
}

func TestBuildDropsLowConfidenceBelowFloor(t *testing.T) {
	msg := domain.MessageMeta{
		Headers: domain.MailHeaders{
			From:    "hello@some-random-vendor.example",
			Subject: "A quick note",
		},
		Snippet:      "Just checking in, nothing billing related here",
		SenderDomain: "some-random-vendor.example",
	}
	body := domain.MessageBody{Text: "Hope you're doing well."}

	result := Build(BuildInput{Message: msg, Body: body, Now: time.Now()})
	if result.Drop != DropLowConfidence {
		t.Fatalf("Drop = %v, want %v", result.Drop, DropLowConfidence)
	}
}

func TestBuildAppliesUserOverride(t *testing.T) {
	senderEmail := "billing@random-biller.io"
	msg := domain.MessageMeta{
		Headers: domain.MailHeaders{
			From:    "Billing@Random-Biller.io",
			Subject: "Your receipt from Random Biller",
		},
		Snippet:      "Payment of $9.99 processed for your subscription",
		SenderDomain: "random-biller.io",
	}
	body := domain.MessageBody{Text: "Your subscription payment of $9.99 was processed. Renews monthly."}
	overrides := []domain.UserOverride{
		{SenderEmail: &senderEmail, CanonicalName: "My Gym"},
	}

	result := Build(BuildInput{Message: msg, Body: body, Overrides: overrides, Now: time.Now()})
	if result.Candidate == nil {
		t.Fatalf("unexpected drop: %v", result.Drop)
	}
	if result.Candidate.Merchant != "My Gym" {
		t.Errorf("Merchant = %q, want My Gym", result.Candidate.Merchant)
	}
}
