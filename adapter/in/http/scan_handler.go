package http

import (
	"bufio"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"

	"subscan_server/core/domain"
	"subscan_server/core/port/in"
	"subscan_server/core/port/out"
)

// ScanHandler wires the mailbox-scanning HTTP surface (§6) onto ScanService
// and MerchantService.
type ScanHandler struct {
	scan     in.ScanService
	merchant in.MerchantService
}

// NewScanHandler builds a ScanHandler.
func NewScanHandler(scan in.ScanService, merchant in.MerchantService) *ScanHandler {
	return &ScanHandler{scan: scan, merchant: merchant}
}

// Register mounts every §6 route.
func (h *ScanHandler) Register(app fiber.Router) {
	app.Post("/v1/gmail/scan/start", h.StartGmailScan)
	app.Post("/v1/gmail/scan/run", h.RunGmailScan)
	app.Post("/v1/gmail/scan/cancel", h.CancelGmailScan)
	app.Get("/v1/gmail/scan/status", h.ScanStatus)
	app.Get("/v1/gmail/scan/stream", h.ScanStream)
	app.Get("/v1/gmail/scan/diagnostics/:sessionId", h.ScanDiagnostics)
	app.Post("/v1/email/verify", h.VerifyMailbox)
	app.Post("/v1/email/scan", h.SyncScan)
	app.Post("/v1/merchant/confirm", h.ConfirmMerchant)
}

// wireError renders the §6 error envelope: the given status with
// {"error": code}, plus "details" set to err's message when err is non-nil.
func wireError(c *fiber.Ctx, status int, code string, err error) error {
	body := fiber.Map{"error": code}
	if err != nil {
		body["details"] = err.Error()
	}
	return c.Status(status).JSON(body)
}

func userSubject(c *fiber.Ctx) (string, error) {
	userID, err := GetUserID(c)
	if err != nil {
		return "", errors.New("missing_bearer_token")
	}
	return userID.String(), nil
}

type gmailScanStartRequest struct {
	Auth struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		ExpiresAt    int64  `json:"expiresAt"`
	} `json:"auth"`
	Options domain.Options `json:"options"`
}

func (h *ScanHandler) StartGmailScan(c *fiber.Ctx) error {
	userID, err := userSubject(c)
	if err != nil {
		return wireError(c, 401, "missing_bearer_token", nil)
	}

	var req gmailScanStartRequest
	if err := c.BodyParser(&req); err != nil {
		return wireError(c, 400, "bad_request", err)
	}
	if req.Auth.AccessToken == "" {
		return wireError(c, 400, "bad_request", errors.New("auth.accessToken is required"))
	}

	auth := out.GmailAuth{
		AccessToken:  req.Auth.AccessToken,
		RefreshToken: req.Auth.RefreshToken,
		ExpiresAtMs:  req.Auth.ExpiresAt,
	}

	result, err := h.scan.StartGmailScan(c.Context(), userID, auth, req.Options)
	if err != nil {
		return scanErrorResponse(c, err)
	}
	return c.JSON(result)
}

type sessionIDRequest struct {
	SessionID string `json:"sessionId"`
}

func (h *ScanHandler) RunGmailScan(c *fiber.Ctx) error {
	var req sessionIDRequest
	if err := c.BodyParser(&req); err != nil || req.SessionID == "" {
		return wireError(c, 400, "bad_request", errors.New("sessionId is required"))
	}
	if err := h.scan.Run(c.Context(), req.SessionID); err != nil {
		return scanErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (h *ScanHandler) CancelGmailScan(c *fiber.Ctx) error {
	var req sessionIDRequest
	if err := c.BodyParser(&req); err != nil || req.SessionID == "" {
		return wireError(c, 400, "bad_request", errors.New("sessionId is required"))
	}
	if err := h.scan.Cancel(c.Context(), req.SessionID); err != nil {
		return scanErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (h *ScanHandler) ScanStatus(c *fiber.Ctx) error {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		return wireError(c, 400, "bad_request", errors.New("sessionId is required"))
	}
	session, err := h.scan.Status(c.Context(), sessionID)
	if err != nil {
		return scanErrorResponse(c, err)
	}
	if session == nil {
		return wireError(c, 404, "not_found", nil)
	}
	return c.JSON(session)
}

func (h *ScanHandler) ScanDiagnostics(c *fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	result, err := h.scan.Diagnostics(c.Context(), sessionID)
	if err != nil {
		return scanErrorResponse(c, err)
	}
	if result == nil || result.Session == nil {
		return wireError(c, 404, "not_found", nil)
	}
	return c.JSON(result)
}

const (
	ssePollInterval = 800 * time.Millisecond
	ssePingInterval = 2 * time.Second
)

// ScanStream implements the §4.J SSE streamer: polls PollEventsAfter on an
// interval instead of pushing through an in-memory hub, so any process can
// serve the stream for a session it does not itself own.
func (h *ScanHandler) ScanStream(c *fiber.Ctx) error {
	sessionID := c.Query("sessionId")
	if sessionID == "" {
		return wireError(c, 400, "bad_request", errors.New("sessionId is required"))
	}
	afterID := int64(0)
	if v := c.Query("afterId"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			afterID = parsed
		}
	}

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("Transfer-Encoding", "chunked")
	c.Set("X-Accel-Buffering", "no")

	ctx := c.Context()
	scan := h.scan

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		pollTicker := time.NewTicker(ssePollInterval)
		pingTicker := time.NewTicker(ssePingInterval)
		defer pollTicker.Stop()
		defer pingTicker.Stop()

		cursor := afterID
		for {
			select {
			case <-ctx.Done():
				return
			case <-pingTicker.C:
				w.WriteString("event: ping\ndata: {}\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			case <-pollTicker.C:
				events, err := scan.PollEvents(ctx, sessionID, cursor, 100)
				if err != nil {
					continue
				}
				for _, ev := range events {
					cursor = ev.ID
					data, err := json.Marshal(ev.Payload)
					if err != nil {
						continue
					}
					w.WriteString("event: ")
					w.WriteString(string(ev.Type))
					w.WriteString("\ndata: ")
					w.Write(data)
					w.WriteString("\n\n")
					if flushErr := w.Flush(); flushErr != nil {
						return
					}
					if ev.Type == domain.EventDone || ev.Type == domain.EventError {
						return
					}
				}
			}
		}
	})

	return nil
}

type verifyRequest struct {
	Provider domain.Provider `json:"provider"`
	IMAP     *out.IMAPAuth   `json:"imap"`
	Auth     *out.GmailAuth  `json:"auth"`
}

func (h *ScanHandler) VerifyMailbox(c *fiber.Ctx) error {
	var req verifyRequest
	if err := c.BodyParser(&req); err != nil {
		return wireError(c, 400, "bad_request", err)
	}
	result, err := h.scan.VerifyMailbox(c.Context(), req.Provider, req.IMAP, req.Auth)
	if err != nil {
		return scanErrorResponse(c, err)
	}
	return c.JSON(result)
}

type syncScanRequest struct {
	Provider domain.Provider `json:"provider"`
	IMAP     *out.IMAPAuth   `json:"imap"`
	Auth     *out.GmailAuth  `json:"auth"`
	Options  domain.Options  `json:"options"`
}

func (h *ScanHandler) SyncScan(c *fiber.Ctx) error {
	var req syncScanRequest
	if err := c.BodyParser(&req); err != nil {
		return wireError(c, 400, "bad_request", err)
	}
	result, err := h.scan.SyncScan(c.Context(), req.Provider, req.IMAP, req.Auth, req.Options)
	if err != nil {
		return scanErrorResponse(c, err)
	}
	return c.JSON(result)
}

type confirmMerchantRequest struct {
	CanonicalName string  `json:"canonicalName"`
	From          *string `json:"from"`
	SenderEmail   *string `json:"senderEmail"`
	SenderDomain  *string `json:"senderDomain"`
}

func (h *ScanHandler) ConfirmMerchant(c *fiber.Ctx) error {
	userID, err := userSubject(c)
	if err != nil {
		return wireError(c, 401, "missing_bearer_token", nil)
	}

	var req confirmMerchantRequest
	if err := c.BodyParser(&req); err != nil {
		return wireError(c, 400, "bad_request", err)
	}
	if req.CanonicalName == "" {
		return wireError(c, 400, "bad_request", errors.New("canonicalName is required"))
	}

	senderEmail := req.SenderEmail
	if senderEmail == nil {
		senderEmail = req.From
	}

	override := domain.UserOverride{
		SenderEmail:   senderEmail,
		SenderDomain:  req.SenderDomain,
		CanonicalName: req.CanonicalName,
	}
	if err := h.merchant.Confirm(c.Context(), userID, override); err != nil {
		return wireError(c, 500, "internal_error", err)
	}
	return c.JSON(fiber.Map{"ok": true})
}

// scanErrorResponse maps a session-lifecycle error to the §6 status/code pair,
// recognizing the closed ErrorCode set surfaced by the orchestrator.
func scanErrorResponse(c *fiber.Ctx, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, string(domain.ErrQueueEnqueueFailed)):
		return wireError(c, 503, "queue_unavailable", err)
	case strings.Contains(msg, string(domain.ErrMissingToken)):
		return wireError(c, 401, "invalid_token", err)
	case strings.Contains(msg, string(domain.ErrUnsupportedProvider)):
		return wireError(c, 400, "bad_request", err)
	default:
		return wireError(c, 500, "internal_error", err)
	}
}
