// Package token implements out.TokenProvider: per-session Gmail credential
// storage with refresh-token-at-rest encryption and OAuth2 refresh (§1, §4.I).
package token

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"subscan_server/core/port/out"
	"subscan_server/pkg/crypto"
)

// GoogleOAuthConfig carries the client credentials used to refresh a session's
// access token once its cached one has gone stale.
type GoogleOAuthConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type entry struct {
	accessToken          string
	encryptedRefreshToken string
	expiresAt            time.Time
}

// Provider caches one credential bundle per session and refreshes it via
// oauth2.Config.TokenSource when the cached access token is within 60s of
// expiring. Refresh tokens are kept encrypted at rest via pkg/crypto.
type Provider struct {
	mu        sync.Mutex
	sessions  map[string]*entry
	oauth     *oauth2.Config
	encryptor *crypto.Encryptor
}

// New builds a Provider. encryptor must be initialized with a 32-byte key
// (pkg/crypto.NewEncryptor derives one via SHA-256 if shorter).
func New(cfg GoogleOAuthConfig, encryptor *crypto.Encryptor) *Provider {
	return &Provider{
		sessions: make(map[string]*entry),
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     google.Endpoint,
		},
		encryptor: encryptor,
	}
}

// Register implements orchestrator.TokenProvider: records a session's initial
// credential bundle, encrypting the refresh token before it is held in memory.
func (p *Provider) Register(ctx context.Context, sessionID string, auth out.GmailAuth) error {
	encrypted := ""
	if auth.RefreshToken != "" {
		enc, err := p.encryptor.Encrypt(auth.RefreshToken)
		if err != nil {
			return fmt.Errorf("token: encrypt refresh token: %w", err)
		}
		encrypted = enc
	}

	expiresAt := time.Time{}
	if auth.ExpiresAtMs > 0 {
		expiresAt = time.UnixMilli(auth.ExpiresAtMs)
	}

	p.mu.Lock()
	p.sessions[sessionID] = &entry{
		accessToken:           auth.AccessToken,
		encryptedRefreshToken: encrypted,
		expiresAt:             expiresAt,
	}
	p.mu.Unlock()
	return nil
}

// AccessToken implements out.TokenProvider: returns the cached access token,
// refreshing it first if it is absent or within 60s of expiring and a refresh
// token is on file.
func (p *Provider) AccessToken(ctx context.Context, sessionID string) (string, error) {
	p.mu.Lock()
	e, ok := p.sessions[sessionID]
	p.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("token: no credentials registered for session %s", sessionID)
	}

	if e.accessToken != "" && (e.expiresAt.IsZero() || time.Until(e.expiresAt) > 60*time.Second) {
		return e.accessToken, nil
	}
	if e.encryptedRefreshToken == "" {
		if e.accessToken != "" {
			return e.accessToken, nil
		}
		return "", fmt.Errorf("token: access token expired and no refresh token on file for session %s", sessionID)
	}

	refreshToken, err := p.encryptor.Decrypt(e.encryptedRefreshToken)
	if err != nil {
		return "", fmt.Errorf("token: decrypt refresh token: %w", err)
	}

	src := p.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	fresh, err := src.Token()
	if err != nil {
		return "", fmt.Errorf("token: refresh failed: %w", err)
	}

	p.mu.Lock()
	e.accessToken = fresh.AccessToken
	e.expiresAt = fresh.Expiry
	p.mu.Unlock()
	return fresh.AccessToken, nil
}

var _ out.TokenProvider = (*Provider)(nil)
