package chunkengine

import (
	"context"
	"testing"

	"subscan_server/core/domain"
)

type emptyDriver struct{}

func (emptyDriver) ListPage(ctx context.Context, cursor *string, opts domain.Options) (domain.ListPage, error) {
	return domain.ListPage{}, nil
}

func (emptyDriver) FetchMetadata(ctx context.Context, id string) (domain.MessageMeta, error) {
	return domain.MessageMeta{}, nil
}

func (emptyDriver) FetchFull(ctx context.Context, id string) (domain.MessageBody, error) {
	return domain.MessageBody{}, nil
}

func TestRunOnEmptyMailboxReturnsNoCandidatesAndNilCursor(t *testing.T) {
	e := New(emptyDriver{}, nil, nil)
	result, err := e.Run(context.Background(), nil, domain.DefaultOptions().Normalize())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(result.Candidates) != 0 {
		t.Errorf("Candidates = %v, want none", result.Candidates)
	}
	if result.NextCursor != nil {
		t.Errorf("NextCursor = %v, want nil", *result.NextCursor)
	}
	if result.Stats.Listed != 0 {
		t.Errorf("Stats.Listed = %d, want 0", result.Stats.Listed)
	}
}

// singlePageDriver lists a fixed set of ids once, then reports no further pages.
type singlePageDriver struct {
	ids   []string
	metas map[string]domain.MessageMeta
}

func (d singlePageDriver) ListPage(ctx context.Context, cursor *string, opts domain.Options) (domain.ListPage, error) {
	if cursor != nil {
		return domain.ListPage{}, nil
	}
	return domain.ListPage{IDs: d.ids, NextCursor: nil}, nil
}

func (d singlePageDriver) FetchMetadata(ctx context.Context, id string) (domain.MessageMeta, error) {
	return d.metas[id], nil
}

func (d singlePageDriver) FetchFull(ctx context.Context, id string) (domain.MessageBody, error) {
	return domain.MessageBody{}, nil
}

// TestClusterMemberMarksSharedEspDomainsAsInfra exercises the §4.E clustering
// wiring end to end: messages relayed through a known ESP domain must resolve
// IsInfra=true and get grouped by the underlying merchant, not the shared
// sendgrid.net domain.
func TestClusterMemberMarksSharedEspDomainsAsInfra(t *testing.T) {
	e := New(singlePageDriver{}, nil, nil)

	infraMsg := domain.MessageMeta{
		ID:           "m1",
		SenderDomain: "sendgrid.net",
		Headers:      domain.MailHeaders{From: "billing@acme.com", Subject: "Your receipt"},
	}
	member := e.clusterMember(screenedMessage{meta: infraMsg})
	if !member.IsInfra {
		t.Error("expected IsInfra=true for a sendgrid.net sender domain")
	}

	directMsg := domain.MessageMeta{
		ID:           "m2",
		SenderDomain: "acme.com",
		Headers:      domain.MailHeaders{From: "billing@acme.com", Subject: "Your receipt"},
	}
	direct := e.clusterMember(screenedMessage{meta: directMsg})
	if direct.IsInfra {
		t.Error("expected IsInfra=false for a direct merchant domain")
	}
	if direct.BestDomain != "acme.com" {
		t.Errorf("BestDomain = %q, want acme.com", direct.BestDomain)
	}
}
