package orchestrator

import (
	"context"
	"testing"
	"time"

	"subscan_server/core/domain"
	"subscan_server/core/port/out"
)

// fakeStore is an in-memory out.Store good enough to drive the orchestrator
// through a chunk lifecycle without a database.
type fakeStore struct {
	sessions  map[string]*domain.Session
	events    []domain.Event
	overrides []domain.UserOverride
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: map[string]*domain.Session{}}
}

func (s *fakeStore) CreateSession(ctx context.Context, sess *domain.Session) error {
	s.sessions[sess.ID] = sess
	return nil
}

func (s *fakeStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	cp := *sess
	return &cp, nil
}

func (s *fakeStore) CancelSession(ctx context.Context, sessionID string) error {
	if sess, ok := s.sessions[sessionID]; ok {
		sess.Status = domain.SessionCanceled
	}
	return nil
}

func (s *fakeStore) LeaseNext(ctx context.Context, sessionID, holder string, leaseTTLMs int64) (*domain.Session, error) {
	sess, ok := s.sessions[sessionID]
	if !ok || sess.Status.IsTerminal() {
		return nil, nil
	}
	if sess.Status == domain.SessionQueued {
		sess.Status = domain.SessionRunning
	}
	expiry := time.Now().Add(time.Duration(leaseTTLMs) * time.Millisecond)
	sess.LeasedBy = &holder
	sess.LeaseExpiresAt = &expiry
	cp := *sess
	return &cp, nil
}

func (s *fakeStore) RenewLease(ctx context.Context, sessionID, holder string, leaseTTLMs int64) error {
	return nil
}

func (s *fakeStore) UpdateSessionProgress(ctx context.Context, sessionID string, cursor *string, pagesDelta, scannedDelta, foundDelta int, stats *domain.ChunkStats) error {
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}
	sess.Cursor = cursor
	sess.Pages += pagesDelta
	sess.ScannedTotal += scannedDelta
	sess.FoundTotal += foundDelta
	sess.LastStats = stats
	return nil
}

func (s *fakeStore) MarkSessionDone(ctx context.Context, sessionID string) error {
	if sess, ok := s.sessions[sessionID]; ok {
		sess.Status = domain.SessionDone
	}
	return nil
}

func (s *fakeStore) MarkSessionError(ctx context.Context, sessionID string, code domain.ErrorCode, message string) error {
	if sess, ok := s.sessions[sessionID]; ok {
		sess.Status = domain.SessionError
		sess.ErrorCode = &code
		sess.ErrorMessage = &message
	}
	return nil
}

func (s *fakeStore) UpsertCandidates(ctx context.Context, sessionID string, candidates []domain.Candidate) (int, error) {
	return len(candidates), nil
}

func (s *fakeStore) ListCandidates(ctx context.Context, sessionID string) ([]domain.Candidate, error) {
	return nil, nil
}

func (s *fakeStore) AppendEvent(ctx context.Context, e *domain.Event) error {
	if e.DedupeKey != nil {
		for _, existing := range s.events {
			if existing.SessionID == e.SessionID && existing.DedupeKey != nil && *existing.DedupeKey == *e.DedupeKey {
				return nil
			}
		}
	}
	e.ID = int64(len(s.events) + 1)
	s.events = append(s.events, *e)
	return nil
}

func (s *fakeStore) PollEventsAfter(ctx context.Context, sessionID string, afterID int64, limit int) ([]domain.Event, error) {
	var out []domain.Event
	for _, e := range s.events {
		if e.SessionID == sessionID && e.ID > afterID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeStore) GetMerchantDirectory(ctx context.Context) ([]domain.MerchantDirectoryEntry, error) {
	return nil, nil
}

func (s *fakeStore) GetUserOverrides(ctx context.Context, userID string) ([]domain.UserOverride, error) {
	return s.overrides, nil
}

func (s *fakeStore) UpsertUserOverride(ctx context.Context, o domain.UserOverride) error {
	s.overrides = append(s.overrides, o)
	return nil
}

var _ out.Store = (*fakeStore)(nil)

type fakeQueue struct {
	jobs []out.ChunkJob
}

func (q *fakeQueue) EnqueueChunk(ctx context.Context, job out.ChunkJob) error {
	q.jobs = append(q.jobs, job)
	return nil
}

type fakeTokens struct {
	registered map[string]out.GmailAuth
	token      string
}

func (t *fakeTokens) Register(ctx context.Context, sessionID string, auth out.GmailAuth) error {
	if t.registered == nil {
		t.registered = map[string]out.GmailAuth{}
	}
	t.registered[sessionID] = auth
	return nil
}

func (t *fakeTokens) AccessToken(ctx context.Context, sessionID string) (string, error) {
	return t.token, nil
}

// fakeDriver returns a single-page empty mailbox: nothing to list, so the
// engine finishes the session on the first chunk.
type fakeDriver struct{}

func (fakeDriver) ListPage(ctx context.Context, cursor *string, opts domain.Options) (domain.ListPage, error) {
	return domain.ListPage{}, nil
}

func (fakeDriver) FetchMetadata(ctx context.Context, id string) (domain.MessageMeta, error) {
	return domain.MessageMeta{}, nil
}

func (fakeDriver) FetchFull(ctx context.Context, id string) (domain.MessageBody, error) {
	return domain.MessageBody{}, nil
}

type fakeDrivers struct{}

func (fakeDrivers) GmailDriver(accessToken string) out.MailboxDriver { return fakeDriver{} }
func (fakeDrivers) IMAPDriver(auth out.IMAPAuth) out.MailboxDriver   { return fakeDriver{} }

func newTestOrchestrator() (*Orchestrator, *fakeStore, *fakeQueue) {
	store := newFakeStore()
	queue := &fakeQueue{}
	tokens := &fakeTokens{token: "tok"}
	return New(store, queue, tokens, fakeDrivers{}, "holder-1"), store, queue
}

func TestStartGmailScanCreatesQueuedSessionAndEnqueuesChunk(t *testing.T) {
	o, store, queue := newTestOrchestrator()

	res, err := o.StartGmailScan(context.Background(), "user-1", out.GmailAuth{AccessToken: "tok"}, domain.Options{})
	if err != nil {
		t.Fatalf("StartGmailScan: %v", err)
	}
	if !res.OK || res.SessionID == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Status != domain.SessionQueued {
		t.Errorf("Status = %v, want queued", res.Status)
	}
	if len(queue.jobs) != 1 || queue.jobs[0].SessionID != res.SessionID {
		t.Errorf("expected one enqueued chunk job for session, got %+v", queue.jobs)
	}
	if _, ok := store.sessions[res.SessionID]; !ok {
		t.Error("session not persisted in store")
	}
}

func TestHandleChunkOnEmptyMailboxMarksSessionDone(t *testing.T) {
	o, store, _ := newTestOrchestrator()
	res, err := o.StartGmailScan(context.Background(), "user-1", out.GmailAuth{AccessToken: "tok"}, domain.Options{})
	if err != nil {
		t.Fatalf("StartGmailScan: %v", err)
	}

	if err := o.HandleChunk(context.Background(), out.ChunkJob{SessionID: res.SessionID, Phase: "chunk"}); err != nil {
		t.Fatalf("HandleChunk: %v", err)
	}

	sess := store.sessions[res.SessionID]
	if sess.Status != domain.SessionDone {
		t.Errorf("Status = %v, want done", sess.Status)
	}

	foundDone := false
	for _, e := range store.events {
		if e.SessionID == res.SessionID && e.Type == domain.EventDone {
			foundDone = true
			if e.Payload["canceled"] == true {
				t.Error("normal completion should not carry canceled:true")
			}
		}
	}
	if !foundDone {
		t.Error("expected a done event after chunk completion")
	}
}

func TestCancelEmitsCanceledDoneEvent(t *testing.T) {
	o, store, _ := newTestOrchestrator()
	res, err := o.StartGmailScan(context.Background(), "user-1", out.GmailAuth{AccessToken: "tok"}, domain.Options{})
	if err != nil {
		t.Fatalf("StartGmailScan: %v", err)
	}

	if err := o.Cancel(context.Background(), res.SessionID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	sess := store.sessions[res.SessionID]
	if sess.Status != domain.SessionCanceled {
		t.Fatalf("Status = %v, want canceled", sess.Status)
	}

	found := false
	for _, e := range store.events {
		if e.SessionID == res.SessionID && e.Type == domain.EventDone {
			found = true
			if e.Payload["canceled"] != true {
				t.Errorf("done event payload = %+v, want canceled:true", e.Payload)
			}
		}
	}
	if !found {
		t.Fatal("expected a done event with canceled:true after Cancel")
	}
}

// TestHandleChunkOnCanceledSessionEmitsCanceledEventOnce covers the race where
// a chunk job is already queued when a cancel request lands: LeaseNext excludes
// the now-terminal session, and HandleChunk must still surface the terminal
// done/{canceled:true} event exactly once rather than silently dropping it.
func TestHandleChunkOnCanceledSessionEmitsCanceledEventOnce(t *testing.T) {
	o, store, _ := newTestOrchestrator()
	res, err := o.StartGmailScan(context.Background(), "user-1", out.GmailAuth{AccessToken: "tok"}, domain.Options{})
	if err != nil {
		t.Fatalf("StartGmailScan: %v", err)
	}

	if err := store.CancelSession(context.Background(), res.SessionID); err != nil {
		t.Fatalf("CancelSession: %v", err)
	}

	// The queued chunk job races in after cancellation landed.
	if err := o.HandleChunk(context.Background(), out.ChunkJob{SessionID: res.SessionID, Phase: "chunk"}); err != nil {
		t.Fatalf("HandleChunk: %v", err)
	}

	doneCount := 0
	for _, e := range store.events {
		if e.SessionID == res.SessionID && e.Type == domain.EventDone {
			doneCount++
		}
	}
	if doneCount != 1 {
		t.Fatalf("expected exactly one done event, got %d", doneCount)
	}

	// A second HandleChunk on the same terminal session must not duplicate it.
	if err := o.HandleChunk(context.Background(), out.ChunkJob{SessionID: res.SessionID, Phase: "chunk"}); err != nil {
		t.Fatalf("second HandleChunk: %v", err)
	}
	doneCount = 0
	for _, e := range store.events {
		if e.SessionID == res.SessionID && e.Type == domain.EventDone {
			doneCount++
		}
	}
	if doneCount != 1 {
		t.Fatalf("done event should be deduped, got %d occurrences", doneCount)
	}
}

func TestHandleChunkOnUnknownSessionIsANoop(t *testing.T) {
	o, _, _ := newTestOrchestrator()
	if err := o.HandleChunk(context.Background(), out.ChunkJob{SessionID: "does-not-exist", Phase: "chunk"}); err != nil {
		t.Fatalf("HandleChunk on unknown session should not error: %v", err)
	}
}

func TestRunReenqueuesFromStoredCursor(t *testing.T) {
	o, store, queue := newTestOrchestrator()
	res, err := o.StartGmailScan(context.Background(), "user-1", out.GmailAuth{AccessToken: "tok"}, domain.Options{})
	if err != nil {
		t.Fatalf("StartGmailScan: %v", err)
	}
	cursor := "cursor-42"
	store.sessions[res.SessionID].Cursor = &cursor
	queue.jobs = nil

	if err := o.Run(context.Background(), res.SessionID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(queue.jobs) != 1 || queue.jobs[0].Cursor != cursor {
		t.Fatalf("expected re-enqueue with stored cursor, got %+v", queue.jobs)
	}
}
