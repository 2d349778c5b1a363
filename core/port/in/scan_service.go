// Package in declares the inbound ports driven by the HTTP surface.
package in

import (
	"context"

	"subscan_server/core/domain"
	"subscan_server/core/port/out"
)

// StartResult is the response shape of /v1/gmail/scan/start (§6).
type StartResult struct {
	OK        bool                 `json:"ok"`
	SessionID string               `json:"sessionId"`
	Status    domain.SessionStatus `json:"status"`
}

// ScanService is the inbound port backing the Gmail scan HTTP routes (§6).
type ScanService interface {
	StartGmailScan(ctx context.Context, userID string, auth out.GmailAuth, opts domain.Options) (StartResult, error)
	Run(ctx context.Context, sessionID string) error
	Cancel(ctx context.Context, sessionID string) error
	Status(ctx context.Context, sessionID string) (*domain.Session, error)
	PollEvents(ctx context.Context, sessionID string, afterID int64, limit int) ([]domain.Event, error)
	Diagnostics(ctx context.Context, sessionID string) (*DiagnosticsResult, error)

	// SyncScan runs /v1/email/verify and /v1/email/scan against either provider
	// inline (a single bounded chunk), without a durable session.
	VerifyMailbox(ctx context.Context, provider domain.Provider, imap *out.IMAPAuth, gmail *out.GmailAuth) (VerifyResult, error)
	SyncScan(ctx context.Context, provider domain.Provider, imap *out.IMAPAuth, gmail *out.GmailAuth, opts domain.Options) (SyncScanResult, error)
}

// VerifyResult is the response shape of /v1/email/verify (§6).
type VerifyResult struct {
	OK           bool     `json:"ok"`
	Mailbox      string   `json:"mailbox"`
	Capabilities []string `json:"capabilities"`
}

// SyncScanResult is the response shape of /v1/email/scan (§6).
type SyncScanResult struct {
	OK         bool                `json:"ok"`
	Stats      domain.ChunkStats   `json:"stats"`
	Candidates []domain.Candidate  `json:"candidates"`
	NextCursor *string             `json:"nextCursor"`
}

// DiagnosticsResult is the response shape of /v1/gmail/scan/diagnostics/:sessionId (§6).
type DiagnosticsResult struct {
	Session    *domain.Session `json:"session"`
	LastEvents []domain.Event  `json:"lastEvents"`
}

// MerchantService is the inbound port backing /v1/merchant/confirm (§6).
type MerchantService interface {
	Confirm(ctx context.Context, userID string, override domain.UserOverride) error
}
