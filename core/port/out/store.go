// Package out declares the outbound ports the core services depend on.
package out

import (
	"context"

	"subscan_server/core/domain"
)

// Store is the abstract persistence boundary used by the orchestrator (§6).
// Session mutation is only valid for the owning lease holder; EventLog appends
// are idempotent and may come from any writer.
type Store interface {
	CreateSession(ctx context.Context, s *domain.Session) error
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	CancelSession(ctx context.Context, sessionID string) error

	// LeaseNext steals or renews ownership of sessionID for holder, extending
	// leaseExpiresAt by leaseTTL. Returns the session as leased, or nil if the
	// session is terminal or already leased by someone else with time remaining.
	LeaseNext(ctx context.Context, sessionID, holder string, leaseTTLMs int64) (*domain.Session, error)
	RenewLease(ctx context.Context, sessionID, holder string, leaseTTLMs int64) error

	UpdateSessionProgress(ctx context.Context, sessionID string, cursor *string, pagesDelta, scannedDelta, foundDelta int, stats *domain.ChunkStats) error
	MarkSessionDone(ctx context.Context, sessionID string) error
	MarkSessionError(ctx context.Context, sessionID string, code domain.ErrorCode, message string) error

	// UpsertCandidates inserts new rows on (sessionId, fingerprint) conflict-free;
	// existing fingerprints are left untouched. Returns the count of rows actually inserted.
	UpsertCandidates(ctx context.Context, sessionID string, candidates []domain.Candidate) (inserted int, err error)
	ListCandidates(ctx context.Context, sessionID string) ([]domain.Candidate, error)

	// AppendEvent inserts an event, collapsing on (sessionId, dedupeKey) when dedupeKey is set.
	AppendEvent(ctx context.Context, e *domain.Event) error
	PollEventsAfter(ctx context.Context, sessionID string, afterID int64, limit int) ([]domain.Event, error)

	GetMerchantDirectory(ctx context.Context) ([]domain.MerchantDirectoryEntry, error)
	GetUserOverrides(ctx context.Context, userID string) ([]domain.UserOverride, error)
	UpsertUserOverride(ctx context.Context, o domain.UserOverride) error
}
