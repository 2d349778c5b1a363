// Package store implements out.Store against PostgreSQL (§3.1).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"subscan_server/core/domain"
	"subscan_server/core/port/out"
)

// Store implements out.Store using PostgreSQL via sqlx.
type Store struct {
	db *sqlx.DB
}

// New builds a Store bound to db.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

const sessionSelectColumns = `
	id, user_id, provider, status, cursor, options, pages, scanned_total, found_total,
	last_stats, error_code, error_message, leased_by, lease_expires_at, created_at`

type sessionRow struct {
	ID             string         `db:"id"`
	UserID         string         `db:"user_id"`
	Provider       string         `db:"provider"`
	Status         string         `db:"status"`
	Cursor         sql.NullString `db:"cursor"`
	Options        []byte         `db:"options"`
	Pages          int            `db:"pages"`
	ScannedTotal   int            `db:"scanned_total"`
	FoundTotal     int            `db:"found_total"`
	LastStats      []byte         `db:"last_stats"`
	ErrorCode      sql.NullString `db:"error_code"`
	ErrorMessage   sql.NullString `db:"error_message"`
	LeasedBy       sql.NullString `db:"leased_by"`
	LeaseExpiresAt sql.NullTime   `db:"lease_expires_at"`
	CreatedAt      time.Time      `db:"created_at"`
}

func (r *sessionRow) toDomain() (*domain.Session, error) {
	s := &domain.Session{
		ID:           r.ID,
		UserID:       r.UserID,
		Provider:     domain.Provider(r.Provider),
		Status:       domain.SessionStatus(r.Status),
		Pages:        r.Pages,
		ScannedTotal: r.ScannedTotal,
		FoundTotal:   r.FoundTotal,
		CreatedAt:    r.CreatedAt,
	}
	if r.Cursor.Valid {
		c := r.Cursor.String
		s.Cursor = &c
	}
	if len(r.Options) > 0 {
		if err := json.Unmarshal(r.Options, &s.Options); err != nil {
			return nil, fmt.Errorf("decode session options: %w", err)
		}
	}
	if len(r.LastStats) > 0 {
		var stats domain.ChunkStats
		if err := json.Unmarshal(r.LastStats, &stats); err != nil {
			return nil, fmt.Errorf("decode session last stats: %w", err)
		}
		s.LastStats = &stats
	}
	if r.ErrorCode.Valid {
		code := domain.ErrorCode(r.ErrorCode.String)
		s.ErrorCode = &code
	}
	if r.ErrorMessage.Valid {
		msg := r.ErrorMessage.String
		s.ErrorMessage = &msg
	}
	if r.LeasedBy.Valid {
		holder := r.LeasedBy.String
		s.LeasedBy = &holder
	}
	if r.LeaseExpiresAt.Valid {
		t := r.LeaseExpiresAt.Time
		s.LeaseExpiresAt = &t
	}
	return s, nil
}

// CreateSession implements out.Store.
func (s *Store) CreateSession(ctx context.Context, sess *domain.Session) error {
	optionsJSON, err := json.Marshal(sess.Options)
	if err != nil {
		return fmt.Errorf("encode session options: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scan_sessions (id, user_id, provider, status, options, pages, scanned_total, found_total, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, 0, $6)`,
		sess.ID, sess.UserID, string(sess.Provider), string(sess.Status), optionsJSON, sess.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// GetSession implements out.Store.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row,
		fmt.Sprintf(`SELECT %s FROM scan_sessions WHERE id = $1`, sessionSelectColumns), sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return row.toDomain()
}

// CancelSession implements out.Store.
func (s *Store) CancelSession(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scan_sessions SET status = $1
		WHERE id = $2 AND status IN ($3, $4)`,
		string(domain.SessionCanceled), sessionID, string(domain.SessionQueued), string(domain.SessionRunning))
	if err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}
	return nil
}

// LeaseNext implements out.Store.
func (s *Store) LeaseNext(ctx context.Context, sessionID, holder string, leaseTTLMs int64) (*domain.Session, error) {
	now := time.Now()
	expires := now.Add(time.Duration(leaseTTLMs) * time.Millisecond)

	res, err := s.db.ExecContext(ctx, `
		UPDATE scan_sessions
		SET leased_by = $1, lease_expires_at = $2
		WHERE id = $3
		  AND status NOT IN ($4, $5, $6)
		  AND (leased_by IS NULL OR lease_expires_at IS NULL OR lease_expires_at <= $7 OR leased_by = $1)`,
		holder, expires, sessionID,
		string(domain.SessionDone), string(domain.SessionCanceled), string(domain.SessionError), now)
	if err != nil {
		return nil, fmt.Errorf("lease session: %w", err)
	}
	rows, _ := res.RowsAffected()
	if rows == 0 {
		return nil, nil
	}
	return s.GetSession(ctx, sessionID)
}

// RenewLease implements out.Store.
func (s *Store) RenewLease(ctx context.Context, sessionID, holder string, leaseTTLMs int64) error {
	expires := time.Now().Add(time.Duration(leaseTTLMs) * time.Millisecond)
	_, err := s.db.ExecContext(ctx, `
		UPDATE scan_sessions SET lease_expires_at = $1
		WHERE id = $2 AND leased_by = $3`,
		expires, sessionID, holder)
	if err != nil {
		return fmt.Errorf("renew lease: %w", err)
	}
	return nil
}

// UpdateSessionProgress implements out.Store.
func (s *Store) UpdateSessionProgress(ctx context.Context, sessionID string, cursor *string, pagesDelta, scannedDelta, foundDelta int, stats *domain.ChunkStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("encode chunk stats: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE scan_sessions
		SET cursor = $1, pages = pages + $2, scanned_total = scanned_total + $3,
		    found_total = found_total + $4, last_stats = $5
		WHERE id = $6`,
		cursor, pagesDelta, scannedDelta, foundDelta, statsJSON, sessionID)
	if err != nil {
		return fmt.Errorf("update session progress: %w", err)
	}
	return nil
}

// MarkSessionDone implements out.Store.
func (s *Store) MarkSessionDone(ctx context.Context, sessionID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE scan_sessions SET status = $1 WHERE id = $2`,
		string(domain.SessionDone), sessionID)
	if err != nil {
		return fmt.Errorf("mark session done: %w", err)
	}
	return nil
}

// MarkSessionError implements out.Store.
func (s *Store) MarkSessionError(ctx context.Context, sessionID string, code domain.ErrorCode, message string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scan_sessions SET status = $1, error_code = $2, error_message = $3 WHERE id = $4`,
		string(domain.SessionError), string(code), message, sessionID)
	if err != nil {
		return fmt.Errorf("mark session error: %w", err)
	}
	return nil
}

const candidateSelectColumns = `
	fingerprint, merchant, plan, amount, currency, cadence_guess, next_date_guess,
	confidence, confidence_label, evidence_type, reasons, evidence, evidence_samples,
	needs_confirm, event_type, exclude_from_spend`

type candidateRow struct {
	Fingerprint     string         `db:"fingerprint"`
	Merchant        string         `db:"merchant"`
	Plan            sql.NullString `db:"plan"`
	Amount          sql.NullFloat64 `db:"amount"`
	Currency        sql.NullString `db:"currency"`
	CadenceGuess    sql.NullString `db:"cadence_guess"`
	NextDateGuess   sql.NullString `db:"next_date_guess"`
	Confidence      int            `db:"confidence"`
	ConfidenceLabel string         `db:"confidence_label"`
	EvidenceType    string         `db:"evidence_type"`
	Reasons         pq.StringArray `db:"reasons"`
	Evidence        []byte         `db:"evidence"`
	EvidenceSamples []byte         `db:"evidence_samples"`
	NeedsConfirm    bool           `db:"needs_confirm"`
	EventType       string         `db:"event_type"`
	ExcludeFromSpend bool          `db:"exclude_from_spend"`
}

func (r *candidateRow) toDomain() (domain.Candidate, error) {
	c := domain.Candidate{
		Fingerprint:      r.Fingerprint,
		Merchant:         r.Merchant,
		Confidence:       r.Confidence,
		ConfidenceLabel:  domain.ConfidenceLabel(r.ConfidenceLabel),
		EvidenceType:     domain.EvidenceType(r.EvidenceType),
		Reasons:          r.Reasons,
		NeedsConfirm:     r.NeedsConfirm,
		EventType:        domain.EventKind(r.EventType),
		ExcludeFromSpend: r.ExcludeFromSpend,
	}
	if r.Plan.Valid {
		c.Plan = &r.Plan.String
	}
	if r.Amount.Valid {
		c.Amount = &r.Amount.Float64
	}
	if r.Currency.Valid {
		c.Currency = &r.Currency.String
	}
	if r.CadenceGuess.Valid {
		cadence := domain.Cadence(r.CadenceGuess.String)
		c.CadenceGuess = &cadence
	}
	if r.NextDateGuess.Valid {
		c.NextDateGuess = &r.NextDateGuess.String
	}
	if len(r.Evidence) > 0 {
		if err := json.Unmarshal(r.Evidence, &c.Evidence); err != nil {
			return c, fmt.Errorf("decode candidate evidence: %w", err)
		}
	}
	if len(r.EvidenceSamples) > 0 {
		if err := json.Unmarshal(r.EvidenceSamples, &c.EvidenceSamples); err != nil {
			return c, fmt.Errorf("decode candidate evidence samples: %w", err)
		}
	}
	return c, nil
}

// UpsertCandidates implements out.Store, inserting only new fingerprints.
func (s *Store) UpsertCandidates(ctx context.Context, sessionID string, candidates []domain.Candidate) (int, error) {
	inserted := 0
	for _, c := range candidates {
		evidenceJSON, err := json.Marshal(c.Evidence)
		if err != nil {
			return inserted, fmt.Errorf("encode evidence: %w", err)
		}
		samplesJSON, err := json.Marshal(c.EvidenceSamples)
		if err != nil {
			return inserted, fmt.Errorf("encode evidence samples: %w", err)
		}

		res, err := s.db.ExecContext(ctx, `
			INSERT INTO scan_candidates (
				session_id, fingerprint, merchant, plan, amount, currency, cadence_guess,
				next_date_guess, confidence, confidence_label, evidence_type, reasons,
				evidence, evidence_samples, needs_confirm, event_type, exclude_from_spend
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
			ON CONFLICT (session_id, fingerprint) DO NOTHING`,
			sessionID, c.Fingerprint, c.Merchant, c.Plan, c.Amount, c.Currency, c.CadenceGuess,
			c.NextDateGuess, c.Confidence, string(c.ConfidenceLabel), string(c.EvidenceType),
			pq.Array(c.Reasons), evidenceJSON, samplesJSON, c.NeedsConfirm, string(c.EventType), c.ExcludeFromSpend,
		)
		if err != nil {
			return inserted, fmt.Errorf("upsert candidate: %w", err)
		}
		rows, _ := res.RowsAffected()
		inserted += int(rows)
	}
	return inserted, nil
}

// ListCandidates implements out.Store.
func (s *Store) ListCandidates(ctx context.Context, sessionID string) ([]domain.Candidate, error) {
	var rows []candidateRow
	err := s.db.SelectContext(ctx, &rows,
		fmt.Sprintf(`SELECT %s FROM scan_candidates WHERE session_id = $1 ORDER BY confidence DESC`, candidateSelectColumns),
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("list candidates: %w", err)
	}
	out := make([]domain.Candidate, 0, len(rows))
	for i := range rows {
		c, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// AppendEvent implements out.Store, collapsing on (sessionId, dedupeKey).
func (s *Store) AppendEvent(ctx context.Context, e *domain.Event) error {
	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO scan_events (session_id, user_id, type, payload, dedupe_key, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id, dedupe_key) WHERE dedupe_key IS NOT NULL DO NOTHING`,
		e.SessionID, e.UserID, string(e.Type), payloadJSON, e.DedupeKey, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// PollEventsAfter implements out.Store.
func (s *Store) PollEventsAfter(ctx context.Context, sessionID string, afterID int64, limit int) ([]domain.Event, error) {
	type eventRow struct {
		ID        int64          `db:"id"`
		SessionID string         `db:"session_id"`
		UserID    string         `db:"user_id"`
		Type      string         `db:"type"`
		Payload   []byte         `db:"payload"`
		DedupeKey sql.NullString `db:"dedupe_key"`
		CreatedAt time.Time      `db:"created_at"`
	}
	var rows []eventRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, session_id, user_id, type, payload, dedupe_key, created_at
		FROM scan_events
		WHERE session_id = $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3`, sessionID, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("poll events: %w", err)
	}

	out := make([]domain.Event, 0, len(rows))
	for _, r := range rows {
		ev := domain.Event{
			ID:        r.ID,
			SessionID: r.SessionID,
			UserID:    r.UserID,
			Type:      domain.EventType(r.Type),
			CreatedAt: r.CreatedAt,
		}
		if r.DedupeKey.Valid {
			ev.DedupeKey = &r.DedupeKey.String
		}
		if len(r.Payload) > 0 {
			if err := json.Unmarshal(r.Payload, &ev.Payload); err != nil {
				return nil, fmt.Errorf("decode event payload: %w", err)
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

// GetMerchantDirectory implements out.Store.
func (s *Store) GetMerchantDirectory(ctx context.Context) ([]domain.MerchantDirectoryEntry, error) {
	type directoryRow struct {
		CanonicalName string         `db:"canonical_name"`
		SenderEmails  pq.StringArray `db:"sender_emails"`
		SenderDomains pq.StringArray `db:"sender_domains"`
		Keywords      pq.StringArray `db:"keywords"`
	}
	var rows []directoryRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT canonical_name, sender_emails, sender_domains, keywords FROM merchant_directory`)
	if err != nil {
		return nil, fmt.Errorf("get merchant directory: %w", err)
	}
	out := make([]domain.MerchantDirectoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.MerchantDirectoryEntry{
			CanonicalName: r.CanonicalName,
			SenderEmails:  r.SenderEmails,
			SenderDomains: r.SenderDomains,
			Keywords:      r.Keywords,
		})
	}
	return out, nil
}

// GetUserOverrides implements out.Store.
func (s *Store) GetUserOverrides(ctx context.Context, userID string) ([]domain.UserOverride, error) {
	type overrideRow struct {
		UserID        string         `db:"user_id"`
		SenderEmail   sql.NullString `db:"sender_email"`
		SenderDomain  sql.NullString `db:"sender_domain"`
		CanonicalName string         `db:"canonical_name"`
	}
	var rows []overrideRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT user_id, sender_email, sender_domain, canonical_name FROM merchant_overrides WHERE user_id = $1`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("get user overrides: %w", err)
	}
	out := make([]domain.UserOverride, 0, len(rows))
	for _, r := range rows {
		o := domain.UserOverride{UserID: r.UserID, CanonicalName: r.CanonicalName}
		if r.SenderEmail.Valid {
			o.SenderEmail = &r.SenderEmail.String
		}
		if r.SenderDomain.Valid {
			o.SenderDomain = &r.SenderDomain.String
		}
		out = append(out, o)
	}
	return out, nil
}

// UpsertUserOverride implements out.Store.
func (s *Store) UpsertUserOverride(ctx context.Context, o domain.UserOverride) error {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO merchant_overrides (id, user_id, sender_email, sender_domain, canonical_name)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id, sender_email) WHERE sender_email IS NOT NULL DO UPDATE SET canonical_name = EXCLUDED.canonical_name`,
		id, o.UserID, o.SenderEmail, o.SenderDomain, o.CanonicalName)
	if err != nil {
		return fmt.Errorf("upsert user override: %w", err)
	}
	return nil
}

var _ out.Store = (*Store)(nil)
