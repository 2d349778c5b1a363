package candidate

import "testing"

func TestBuildClustersScoresGroupAboveFloor(t *testing.T) {
	day := int64(86400000)
	base := int64(1700000000000)
	members := []ClusterMember{
		{BestDomain: "acme-billing.example", DateMs: base, HasDate: true, LikelyTransactional: true, Subject: "Your invoice", Snippet: "total charged $9.99", ResolverConfidence: 60, Merchant: "Acme", SenderDomain: "acme-billing.example"},
		{BestDomain: "acme-billing.example", DateMs: base + 30*day, HasDate: true, LikelyTransactional: true, Subject: "Your invoice", Snippet: "total charged $9.99", ResolverConfidence: 60, Merchant: "Acme", SenderDomain: "acme-billing.example"},
		{BestDomain: "acme-billing.example", DateMs: base + 60*day, HasDate: true, LikelyTransactional: true, Subject: "Your invoice", Snippet: "total charged $9.99", ResolverConfidence: 60, Merchant: "Acme", SenderDomain: "acme-billing.example"},
	}
	out := BuildClusters(members)
	if len(out) != 1 {
		t.Fatalf("got %d clusters, want 1", len(out))
	}
	c := out[0]
	if c.Merchant != "Acme" {
		t.Errorf("Merchant = %q, want Acme", c.Merchant)
	}
	if c.CadenceGuess == nil {
		t.Error("expected an inferred cadence from evenly-spaced dates")
	}
	if c.Confidence < clusterScoreFloor {
		t.Errorf("Confidence = %d, want >= %d", c.Confidence, clusterScoreFloor)
	}
}

func TestBuildClustersDropsBelowMinDatedMessages(t *testing.T) {
	members := []ClusterMember{
		{BestDomain: "sparse.example", DateMs: 1000, HasDate: true, Subject: "hi", SenderDomain: "sparse.example"},
		{BestDomain: "sparse.example", DateMs: 2000, HasDate: true, Subject: "hi", SenderDomain: "sparse.example"},
	}
	out := BuildClusters(members)
	if len(out) != 0 {
		t.Errorf("got %d clusters, want 0 (fewer than %d dated messages)", len(out), minClusterDatedMessages)
	}
}

func TestBuildClustersSeparatesInfraDomainsBySender(t *testing.T) {
	base := int64(1700000000000)
	members := []ClusterMember{
		{BestDomain: "sendgrid.net", IsInfra: true, SenderDomain: "vendor-a.example", DateMs: base, HasDate: true, Subject: "a"},
		{BestDomain: "sendgrid.net", IsInfra: true, SenderDomain: "vendor-b.example", DateMs: base, HasDate: true, Subject: "b"},
	}
	out := BuildClusters(members)
	if len(out) != 0 {
		t.Fatalf("got %d clusters, want 0 (each infra key has too few dated messages)", len(out))
	}
}
