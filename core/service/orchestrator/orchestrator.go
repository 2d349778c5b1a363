// Package orchestrator implements SessionOrchestrator (§4.I): the per-job
// lifecycle that drives a Session through repeated ChunkEngine invocations.
package orchestrator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"subscan_server/core/domain"
	"subscan_server/core/port/in"
	"subscan_server/core/port/out"
	"subscan_server/core/service/chunkengine"
	"subscan_server/pkg/logger"
)

const leaseTTLMs = 30_000
const interChunkSleep = 120 * time.Millisecond

// DriverFactory builds the out.MailboxDriver to run a session's chunk against,
// given the session's provider and a resolved access token (Gmail) or IMAP auth.
type DriverFactory interface {
	GmailDriver(accessToken string) out.MailboxDriver
	IMAPDriver(auth out.IMAPAuth) out.MailboxDriver
}

// TokenProvider is out.TokenProvider widened with the registration step the
// orchestrator performs on session start, when the caller's credential bundle
// is first seen.
type TokenProvider interface {
	out.TokenProvider
	Register(ctx context.Context, sessionID string, auth out.GmailAuth) error
}

// Orchestrator implements in.ScanService and in.MerchantService.
type Orchestrator struct {
	store    out.Store
	queue    out.Queue
	tokens   TokenProvider
	drivers  DriverFactory
	holderID string
}

// New builds an Orchestrator. holderID identifies this worker process for
// lease ownership.
func New(store out.Store, queue out.Queue, tokens TokenProvider, drivers DriverFactory, holderID string) *Orchestrator {
	return &Orchestrator{store: store, queue: queue, tokens: tokens, drivers: drivers, holderID: holderID}
}

func randomID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

// StartGmailScan implements in.ScanService (§4.I "start").
func (o *Orchestrator) StartGmailScan(ctx context.Context, userID string, auth out.GmailAuth, opts domain.Options) (in.StartResult, error) {
	opts = opts.Normalize().EnforceBudgets()

	session := &domain.Session{
		ID:           randomID(),
		UserID:       userID,
		Provider:     domain.ProviderGmail,
		Status:       domain.SessionQueued,
		Options:      opts,
		CreatedAt:    time.Now(),
	}
	if err := o.store.CreateSession(ctx, session); err != nil {
		return in.StartResult{}, fmt.Errorf("%s: %w", domain.ErrSessionCreateFailed, err)
	}

	if err := o.tokens.Register(ctx, session.ID, auth); err != nil {
		return in.StartResult{}, fmt.Errorf("%s: %w", domain.ErrTokenBootstrapFailed, err)
	}

	dedupeKey := "hello:" + session.ID
	_ = o.store.AppendEvent(ctx, &domain.Event{
		SessionID: session.ID,
		UserID:    userID,
		Type:      domain.EventHello,
		Payload:   map[string]any{"sessionId": session.ID},
		DedupeKey: &dedupeKey,
	})

	if err := o.queue.EnqueueChunk(ctx, out.ChunkJob{SessionID: session.ID, Phase: "chunk"}); err != nil {
		return in.StartResult{}, fmt.Errorf("%s: %w", domain.ErrQueueEnqueueFailed, err)
	}

	return in.StartResult{OK: true, SessionID: session.ID, Status: session.Status}, nil
}

// Run implements in.ScanService: re-enqueues a chunk job for an idle session.
func (o *Orchestrator) Run(ctx context.Context, sessionID string) error {
	cursor := ""
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session != nil && session.Cursor != nil {
		cursor = *session.Cursor
	}
	return o.queue.EnqueueChunk(ctx, out.ChunkJob{SessionID: sessionID, Phase: "chunk", Cursor: cursor})
}

// Cancel implements in.ScanService.
func (o *Orchestrator) Cancel(ctx context.Context, sessionID string) error {
	if err := o.store.CancelSession(ctx, sessionID); err != nil {
		return err
	}
	return o.emitCanceled(ctx, sessionID)
}

// emitCanceled appends the terminal done/{canceled:true} event for a session
// that has transitioned to SessionCanceled, if it hasn't already been emitted.
// Shares the "done" dedupeKey with normal completion so a session can never
// emit both.
func (o *Orchestrator) emitCanceled(ctx context.Context, sessionID string) error {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil || session.Status != domain.SessionCanceled {
		return nil
	}
	logger.Info("orchestrator: session %s canceled (pages=%d foundTotal=%d)", session.ID, session.Pages, session.FoundTotal)
	doneKey := "done"
	return o.store.AppendEvent(ctx, &domain.Event{
		SessionID: session.ID,
		UserID:    session.UserID,
		Type:      domain.EventDone,
		Payload:   map[string]any{"canceled": true, "pages": session.Pages, "foundTotal": session.FoundTotal},
		DedupeKey: &doneKey,
	})
}

// Status implements in.ScanService.
func (o *Orchestrator) Status(ctx context.Context, sessionID string) (*domain.Session, error) {
	return o.store.GetSession(ctx, sessionID)
}

// PollEvents implements in.ScanService.
func (o *Orchestrator) PollEvents(ctx context.Context, sessionID string, afterID int64, limit int) ([]domain.Event, error) {
	return o.store.PollEventsAfter(ctx, sessionID, afterID, limit)
}

// Diagnostics implements in.ScanService.
func (o *Orchestrator) Diagnostics(ctx context.Context, sessionID string) (*in.DiagnosticsResult, error) {
	session, err := o.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	events, err := o.store.PollEventsAfter(ctx, sessionID, 0, 50)
	if err != nil {
		return nil, err
	}
	return &in.DiagnosticsResult{Session: session, LastEvents: events}, nil
}

// HandleChunk implements out.ChunkHandler: the per-job lifecycle steps 1-9 of §4.I.
func (o *Orchestrator) HandleChunk(ctx context.Context, job out.ChunkJob) error {
	session, err := o.store.LeaseNext(ctx, job.SessionID, o.holderID, leaseTTLMs)
	if err != nil {
		logger.Error("orchestrator: lease acquisition failed for session %s: %v", job.SessionID, err)
		return err
	}
	if session == nil {
		logger.Debug("orchestrator: session %s terminal or leased elsewhere, skipping", job.SessionID)
		return o.emitCanceled(ctx, job.SessionID)
	}
	logger.Debug("orchestrator: leased session %s (holder=%s)", session.ID, o.holderID)

	if session.Status == domain.SessionQueued {
		logger.Info("orchestrator: session %s starting", session.ID)
		if err := o.emitProgress(ctx, session, "starting", nil); err != nil {
			return err
		}
	}

	token, driver, err := o.resolveDriver(ctx, session)
	if err != nil {
		logger.Error("orchestrator: session %s terminal, driver resolution failed: %v", session.ID, err)
		_ = o.store.MarkSessionError(ctx, session.ID, domain.ErrMissingToken, err.Error())
		return nil
	}
	_ = token

	opts := session.Options.Normalize().EnforceBudgets()

	directory, err := o.store.GetMerchantDirectory(ctx)
	if err != nil {
		return err
	}
	overrides, err := o.store.GetUserOverrides(ctx, session.UserID)
	if err != nil {
		return err
	}

	if err := o.store.RenewLease(ctx, session.ID, o.holderID, leaseTTLMs); err != nil {
		logger.Warn("orchestrator: lease renewal failed for session %s: %v", session.ID, err)
	}

	logger.Debug("orchestrator: chunk starting for session %s (page %d)", session.ID, session.Pages+1)
	engine := chunkengine.New(driver, directory, overrides)
	result, err := engine.Run(ctx, session.Cursor, opts)
	if err != nil {
		logger.Error("orchestrator: chunk failed for session %s: %v", session.ID, err)
		_ = o.store.MarkSessionError(ctx, session.ID, domain.ErrChunkError, err.Error())
		return nil
	}
	logger.Debug("orchestrator: chunk done for session %s, matched=%d tookMs=%d", session.ID, result.Stats.Matched, result.Stats.TookMs)

	inserted, err := o.store.UpsertCandidates(ctx, session.ID, result.Candidates)
	if err != nil {
		return err
	}

	scannedDelta := result.Stats.Scanned
	if err := o.store.UpdateSessionProgress(ctx, session.ID, result.NextCursor, 1, scannedDelta, inserted, &result.Stats); err != nil {
		return err
	}

	session.Pages++
	session.ScannedTotal += scannedDelta
	session.FoundTotal += inserted
	session.Cursor = result.NextCursor

	cursorTag := "end"
	if result.NextCursor != nil {
		cursorTag = *result.NextCursor
	}
	progressKey := fmt.Sprintf("progress:%d:%s", session.Pages, cursorTag)
	statsCopy := result.Stats
	_ = o.store.AppendEvent(ctx, &domain.Event{
		SessionID: session.ID,
		UserID:    session.UserID,
		Type:      domain.EventProgress,
		Payload: map[string]any{
			"phase":        "chunk",
			"pages":        session.Pages,
			"cursor":       result.NextCursor,
			"scannedTotal": session.ScannedTotal,
			"foundTotal":   session.FoundTotal,
			"stats":        statsCopy,
		},
		DedupeKey: &progressKey,
	})

	if inserted > 0 {
		candidatesKey := fmt.Sprintf("candidates:%d:%s", session.Pages, cursorTag)
		_ = o.store.AppendEvent(ctx, &domain.Event{
			SessionID: session.ID,
			UserID:    session.UserID,
			Type:      domain.EventCandidates,
			Payload:   map[string]any{"candidates": result.Candidates},
			DedupeKey: &candidatesKey,
		})
	}

	done := result.NextCursor == nil || session.Pages >= opts.MaxPages || session.FoundTotal >= opts.MaxCandidates
	if done {
		if err := o.store.MarkSessionDone(ctx, session.ID); err != nil {
			return err
		}
		logger.Info("orchestrator: session %s done (pages=%d foundTotal=%d)", session.ID, session.Pages, session.FoundTotal)
		doneKey := "done"
		_ = o.store.AppendEvent(ctx, &domain.Event{
			SessionID: session.ID,
			UserID:    session.UserID,
			Type:      domain.EventDone,
			Payload:   map[string]any{"pages": session.Pages, "foundTotal": session.FoundTotal},
			DedupeKey: &doneKey,
		})
		return nil
	}

	select {
	case <-time.After(interChunkSleep):
	case <-ctx.Done():
		return ctx.Err()
	}

	nextCursor := ""
	if result.NextCursor != nil {
		nextCursor = *result.NextCursor
	}
	if err := o.queue.EnqueueChunk(ctx, out.ChunkJob{SessionID: session.ID, Phase: "chunk", Cursor: nextCursor}); err != nil {
		return fmt.Errorf("%s: %w", domain.ErrQueueEnqueueFailed, err)
	}
	return nil
}

func (o *Orchestrator) resolveDriver(ctx context.Context, session *domain.Session) (string, out.MailboxDriver, error) {
	switch session.Provider {
	case domain.ProviderGmail:
		token, err := o.tokens.AccessToken(ctx, session.ID)
		if err != nil || token == "" {
			return "", nil, fmt.Errorf("missing gmail access token")
		}
		return token, o.drivers.GmailDriver(token), nil
	default:
		return "", nil, fmt.Errorf("unsupported provider %q", session.Provider)
	}
}

func (o *Orchestrator) emitProgress(ctx context.Context, session *domain.Session, phase string, stats *domain.ChunkStats) error {
	key := "progress:starting:" + session.ID
	return o.store.AppendEvent(ctx, &domain.Event{
		SessionID: session.ID,
		UserID:    session.UserID,
		Type:      domain.EventProgress,
		Payload:   map[string]any{"phase": phase, "pages": session.Pages},
		DedupeKey: &key,
	})
}

// VerifyMailbox implements in.ScanService's synchronous verify surface.
func (o *Orchestrator) VerifyMailbox(ctx context.Context, provider domain.Provider, imapAuth *out.IMAPAuth, gmailAuth *out.GmailAuth) (in.VerifyResult, error) {
	switch provider {
	case domain.ProviderGmail:
		if gmailAuth == nil || gmailAuth.AccessToken == "" {
			return in.VerifyResult{}, fmt.Errorf("%s", domain.ErrMissingToken)
		}
		driver := o.drivers.GmailDriver(gmailAuth.AccessToken)
		if _, err := driver.ListPage(ctx, nil, domain.DefaultOptions()); err != nil {
			return in.VerifyResult{}, fmt.Errorf("%s: %w", domain.ErrAuthFailed, err)
		}
		return in.VerifyResult{OK: true, Mailbox: "gmail", Capabilities: []string{"list", "metadata", "full"}}, nil
	case domain.ProviderIMAP:
		if imapAuth == nil {
			return in.VerifyResult{}, fmt.Errorf("%s", domain.ErrMissingToken)
		}
		driver := o.drivers.IMAPDriver(*imapAuth)
		if _, err := driver.ListPage(ctx, nil, domain.DefaultOptions()); err != nil {
			return in.VerifyResult{}, fmt.Errorf("%s: %w", domain.ErrNeedsAppPassword, err)
		}
		return in.VerifyResult{OK: true, Mailbox: imapAuth.Username, Capabilities: []string{"list", "metadata", "full"}}, nil
	default:
		return in.VerifyResult{}, fmt.Errorf("%s", domain.ErrUnsupportedProvider)
	}
}

// SyncScan implements in.ScanService's inline single-chunk surface.
func (o *Orchestrator) SyncScan(ctx context.Context, provider domain.Provider, imapAuth *out.IMAPAuth, gmailAuth *out.GmailAuth, opts domain.Options) (in.SyncScanResult, error) {
	opts = opts.Normalize().EnforceBudgets()

	var driver out.MailboxDriver
	switch provider {
	case domain.ProviderGmail:
		if gmailAuth == nil || gmailAuth.AccessToken == "" {
			return in.SyncScanResult{}, fmt.Errorf("%s", domain.ErrMissingToken)
		}
		driver = o.drivers.GmailDriver(gmailAuth.AccessToken)
	case domain.ProviderIMAP:
		if imapAuth == nil {
			return in.SyncScanResult{}, fmt.Errorf("%s", domain.ErrMissingToken)
		}
		driver = o.drivers.IMAPDriver(*imapAuth)
	default:
		return in.SyncScanResult{}, fmt.Errorf("%s", domain.ErrUnsupportedProvider)
	}

	directory, _ := o.store.GetMerchantDirectory(ctx)
	engine := chunkengine.New(driver, directory, nil)
	result, err := engine.Run(ctx, opts.Cursor, opts)
	if err != nil {
		return in.SyncScanResult{}, fmt.Errorf("%s: %w", domain.ErrChunkError, err)
	}
	return in.SyncScanResult{OK: true, Stats: result.Stats, Candidates: result.Candidates, NextCursor: result.NextCursor}, nil
}

// Confirm implements in.MerchantService.
func (o *Orchestrator) Confirm(ctx context.Context, userID string, override domain.UserOverride) error {
	override.UserID = userID
	return o.store.UpsertUserOverride(ctx, override)
}

var _ in.ScanService = (*Orchestrator)(nil)
var _ in.MerchantService = (*Orchestrator)(nil)
