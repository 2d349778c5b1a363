package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/lib/pq"

	"subscan_server/core/domain"
)

func TestSessionRowToDomainDecodesNullableFields(t *testing.T) {
	row := &sessionRow{
		ID:       "sess-1",
		UserID:   "user-1",
		Provider: string(domain.ProviderGmail),
		Status:   string(domain.SessionRunning),
		Options:  []byte(`{"mode":"quick","daysBack":30}`),
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	sess, err := row.toDomain()
	if err != nil {
		t.Fatalf("toDomain: %v", err)
	}
	if sess.Cursor != nil {
		t.Errorf("Cursor = %v, want nil for a NULL column", *sess.Cursor)
	}
	if sess.Options.DaysBack != 30 {
		t.Errorf("Options.DaysBack = %d, want 30", sess.Options.DaysBack)
	}
	if sess.ErrorCode != nil || sess.LeasedBy != nil {
		t.Error("ErrorCode/LeasedBy should be nil when their columns are NULL")
	}
}

func TestSessionRowToDomainPopulatesLeaseAndErrorFields(t *testing.T) {
	leaseExpiry := time.Date(2026, 1, 1, 1, 0, 0, 0, time.UTC)
	row := &sessionRow{
		ID:             "sess-2",
		Status:         string(domain.SessionError),
		Cursor:         sql.NullString{String: "cursor-1", Valid: true},
		ErrorCode:      sql.NullString{String: string(domain.ErrChunkError), Valid: true},
		ErrorMessage:   sql.NullString{String: "boom", Valid: true},
		LeasedBy:       sql.NullString{String: "holder-1", Valid: true},
		LeaseExpiresAt: sql.NullTime{Time: leaseExpiry, Valid: true},
	}

	sess, err := row.toDomain()
	if err != nil {
		t.Fatalf("toDomain: %v", err)
	}
	if sess.Cursor == nil || *sess.Cursor != "cursor-1" {
		t.Errorf("Cursor = %v, want cursor-1", sess.Cursor)
	}
	if sess.ErrorCode == nil || *sess.ErrorCode != domain.ErrChunkError {
		t.Errorf("ErrorCode = %v, want %v", sess.ErrorCode, domain.ErrChunkError)
	}
	if sess.ErrorMessage == nil || *sess.ErrorMessage != "boom" {
		t.Errorf("ErrorMessage = %v, want boom", sess.ErrorMessage)
	}
	if sess.LeasedBy == nil || *sess.LeasedBy != "holder-1" {
		t.Errorf("LeasedBy = %v, want holder-1", sess.LeasedBy)
	}
	if sess.LeaseExpiresAt == nil || !sess.LeaseExpiresAt.Equal(leaseExpiry) {
		t.Errorf("LeaseExpiresAt = %v, want %v", sess.LeaseExpiresAt, leaseExpiry)
	}
}

func TestSessionRowToDomainRejectsMalformedOptionsJSON(t *testing.T) {
	row := &sessionRow{Options: []byte("not-json")}
	if _, err := row.toDomain(); err == nil {
		t.Error("expected an error for malformed options JSON")
	}
}

func TestCandidateRowToDomainDecodesEvidenceAndAmount(t *testing.T) {
	evidence, err := json.Marshal(domain.Evidence{From: "billing@acme.com", MessageID: "m1"})
	if err != nil {
		t.Fatalf("marshal evidence: %v", err)
	}
	row := &candidateRow{
		Fingerprint:     "fp-1",
		Merchant:        "Acme",
		Amount:          sql.NullFloat64{Float64: 9.99, Valid: true},
		Currency:        sql.NullString{String: "USD", Valid: true},
		CadenceGuess:    sql.NullString{String: string(domain.CadenceMonthly), Valid: true},
		Confidence:      80,
		ConfidenceLabel: string(domain.ConfidenceHigh),
		EvidenceType:    string(domain.EvidenceTransactional),
		Reasons:         pq.StringArray{"amountFound", "senderMatch"},
		Evidence:        evidence,
		EventType:       string(domain.EventRenewal),
	}

	c, err := row.toDomain()
	if err != nil {
		t.Fatalf("toDomain: %v", err)
	}
	if c.Amount == nil || *c.Amount != 9.99 {
		t.Errorf("Amount = %v, want 9.99", c.Amount)
	}
	if c.CadenceGuess == nil || *c.CadenceGuess != domain.CadenceMonthly {
		t.Errorf("CadenceGuess = %v, want monthly", c.CadenceGuess)
	}
	if c.Evidence.MessageID != "m1" {
		t.Errorf("Evidence.MessageID = %q, want m1", c.Evidence.MessageID)
	}
	if len(c.Reasons) != 2 {
		t.Errorf("Reasons = %v, want 2 entries", c.Reasons)
	}
}

func TestCandidateRowToDomainLeavesAmountNilWhenColumnIsNull(t *testing.T) {
	row := &candidateRow{Fingerprint: "fp-2", Merchant: "Acme"}
	c, err := row.toDomain()
	if err != nil {
		t.Fatalf("toDomain: %v", err)
	}
	if c.Amount != nil {
		t.Errorf("Amount = %v, want nil", *c.Amount)
	}
	if c.Plan != nil || c.Currency != nil || c.CadenceGuess != nil {
		t.Error("nullable candidate fields should stay nil when their columns are NULL")
	}
}

func TestCandidateRowToDomainRejectsMalformedEvidenceJSON(t *testing.T) {
	row := &candidateRow{Fingerprint: "fp-3", Evidence: []byte("not-json")}
	if _, err := row.toDomain(); err == nil {
		t.Error("expected an error for malformed evidence JSON")
	}
}
