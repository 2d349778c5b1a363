package out

import (
	"context"

	"subscan_server/core/domain"
)

// MailboxDriver is the shared contract both Gmail and IMAP drivers implement (§4.G).
type MailboxDriver interface {
	ListPage(ctx context.Context, cursor *string, opts domain.Options) (domain.ListPage, error)
	FetchMetadata(ctx context.Context, id string) (domain.MessageMeta, error)
	FetchFull(ctx context.Context, id string) (domain.MessageBody, error)
}

// TokenProvider resolves and refreshes provider credentials for a session (§1, §4.I).
// Token encryption at rest and OAuth refresh mechanics are this interface's concern,
// not the orchestrator's.
type TokenProvider interface {
	// AccessToken returns a currently-valid access token for sessionID, refreshing
	// via the stored refresh token when the cached access token is stale or absent.
	AccessToken(ctx context.Context, sessionID string) (string, error)
}

// GmailAuth is the inbound credential bundle carried by /v1/gmail/scan/start (§6).
type GmailAuth struct {
	AccessToken  string
	RefreshToken string
	ExpiresAtMs  int64
}

// IMAPAuth is the inbound credential bundle for the IMAP surface (§6).
type IMAPAuth struct {
	Host     string
	Port     int
	Secure   bool
	Username string
	Password string
}
