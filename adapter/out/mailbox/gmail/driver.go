// Package gmail implements the Gmail side of MailboxDriver (§4.G).
package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"math/rand"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"golang.org/x/oauth2"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"subscan_server/core/domain"
)

// metadataHeaders are the only headers §4.G's metadata fetch requests.
var metadataHeaders = []string{
	"From", "Subject", "Date", "Reply-To", "Return-Path",
	"List-Unsubscribe", "List-Id", "Precedence", "Auto-Submitted",
}

const maxAttachmentBodyBytes = 250 * 1024

// Driver implements out.MailboxDriver against the Gmail REST API.
type Driver struct {
	accessToken string
	cb          *gobreaker.CircuitBreaker
	log         zerolog.Logger
}

// New builds a Driver scoped to a single resolved access token.
func New(accessToken string) *Driver {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "gmail-driver").Logger()

	settings := gobreaker.Settings{
		Name:        "gmail-api",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures > 5 ||
				(counts.Requests >= 10 && failureRatio >= 0.6)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("gmail circuit breaker state change")
		},
	}
	return &Driver{
		accessToken: accessToken,
		cb:          gobreaker.NewCircuitBreaker(settings),
		log:         log,
	}
}

func (d *Driver) service(ctx context.Context) (*gmailapi.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: d.accessToken})
	return gmailapi.NewService(ctx, option.WithTokenSource(ts))
}

// buildQuery renders the §4.G search string for the given mode and lookback window.
func buildQuery(o domain.Options) string {
	base := fmt.Sprintf("in:anywhere newer_than:%dd", o.DaysBack)
	if o.QueryMode == domain.QueryBroad {
		q := base + " -in:chats"
		if !o.IncludePromotions {
			q += " -category:promotions"
		}
		return q
	}
	phrases := `("invoice" OR "receipt" OR "subscription" OR "payment" OR "renew" OR "billing")`
	return base + " -category:promotions -category:social " + phrases
}

// ListPage implements out.MailboxDriver.
func (d *Driver) ListPage(ctx context.Context, cursor *string, opts domain.Options) (domain.ListPage, error) {
	svc, err := d.service(ctx)
	if err != nil {
		return domain.ListPage{}, err
	}

	req := svc.Users.Messages.List("me").
		MaxResults(int64(opts.PageSize)).
		Q(buildQuery(opts))
	if cursor != nil && *cursor != "" {
		req = req.PageToken(*cursor)
	}

	var resp *gmailapi.ListMessagesResponse
	err = d.withRetry(ctx, "ListMessages", func() error {
		r, e := req.Context(ctx).Do()
		resp = r
		return e
	})
	if err != nil {
		return domain.ListPage{}, err
	}

	ids := make([]string, 0, len(resp.Messages))
	for _, m := range resp.Messages {
		ids = append(ids, m.Id)
	}
	var next *string
	if resp.NextPageToken != "" {
		next = &resp.NextPageToken
	}
	return domain.ListPage{IDs: ids, NextCursor: next}, nil
}

// FetchMetadata implements out.MailboxDriver.
func (d *Driver) FetchMetadata(ctx context.Context, id string) (domain.MessageMeta, error) {
	svc, err := d.service(ctx)
	if err != nil {
		return domain.MessageMeta{}, err
	}

	var msg *gmailapi.Message
	err = d.withRetry(ctx, "Messages.Get(metadata)", func() error {
		m, e := svc.Users.Messages.Get("me", id).
			Format("metadata").
			MetadataHeaders(metadataHeaders...).
			Context(ctx).Do()
		msg = m
		return e
	})
	if err != nil {
		return domain.MessageMeta{}, err
	}

	headers := domain.MailHeaders{}
	if msg.Payload != nil {
		for _, h := range msg.Payload.Headers {
			switch h.Name {
			case "From":
				headers.From = h.Value
			case "Subject":
				headers.Subject = h.Value
			case "Date":
				headers.Date = h.Value
			case "Reply-To":
				headers.ReplyTo = h.Value
			case "Return-Path":
				headers.ReturnPath = h.Value
			case "List-Unsubscribe":
				headers.ListUnsubscribe = h.Value
			case "List-Id":
				headers.ListID = h.Value
			case "Precedence":
				headers.Precedence = h.Value
			case "Auto-Submitted":
				headers.AutoSubmitted = h.Value
			}
		}
	}

	var dateMs int64
	if t, err := mail.ParseDate(headers.Date); err == nil {
		dateMs = t.UnixMilli()
	} else if msg.InternalDate > 0 {
		dateMs = msg.InternalDate
	}

	senderEmail := extractEmail(headers.From)
	return domain.MessageMeta{
		ID:           msg.Id,
		Headers:      headers,
		Snippet:      msg.Snippet,
		DateMs:       dateMs,
		SenderEmail:  senderEmail,
		SenderDomain: domainOf(senderEmail),
	}, nil
}

// FetchFull implements out.MailboxDriver.
func (d *Driver) FetchFull(ctx context.Context, id string) (domain.MessageBody, error) {
	svc, err := d.service(ctx)
	if err != nil {
		return domain.MessageBody{}, err
	}

	var msg *gmailapi.Message
	err = d.withRetry(ctx, "Messages.Get(full)", func() error {
		m, e := svc.Users.Messages.Get("me", id).Format("full").Context(ctx).Do()
		msg = m
		return e
	})
	if err != nil {
		return domain.MessageBody{}, err
	}

	body := domain.MessageBody{}
	if msg.Payload != nil {
		d.extractBody(ctx, svc, id, msg.Payload, &body, 0)
	}
	return body, nil
}

func (d *Driver) extractBody(ctx context.Context, svc *gmailapi.Service, messageID string, part *gmailapi.MessagePart, body *domain.MessageBody, depth int) {
	if depth > 10 || part == nil {
		return
	}

	if part.Body != nil && part.Body.Data != "" {
		decoded, err := base64.URLEncoding.DecodeString(part.Body.Data)
		if err == nil {
			switch part.MimeType {
			case "text/plain":
				body.Text += string(decoded)
			case "text/html":
				body.HTML += string(decoded)
			}
		}
	} else if part.Body != nil && part.Body.AttachmentId != "" && part.Body.Size <= maxAttachmentBodyBytes {
		att, err := svc.Users.Messages.Attachments.Get("me", messageID, part.Body.AttachmentId).Context(ctx).Do()
		if err == nil && att.Data != "" {
			decoded, derr := base64.URLEncoding.DecodeString(att.Data)
			if derr == nil {
				switch part.MimeType {
				case "text/plain":
					body.Text += string(decoded)
				case "text/html":
					body.HTML += string(decoded)
				}
			}
		}
	}

	for _, child := range part.Parts {
		d.extractBody(ctx, svc, messageID, child, body, depth+1)
	}
}

func extractEmail(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return strings.ToLower(addr.Address)
	}
	return strings.ToLower(strings.TrimSpace(from))
}

func domainOf(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return ""
	}
	return email[at+1:]
}

var retriableCodes = map[int]bool{429: true, 403: true, 500: true, 502: true, 503: true, 504: true}

const maxAttempts = 3

// withRetry wraps a Gmail call with circuit breaker protection and exponential
// backoff + jitter on the §4.G retriable status codes, bounded by ctx's deadline.
func (d *Driver) withRetry(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		_, err := d.cb.Execute(func() (interface{}, error) {
			return nil, fn()
		})
		if err == nil {
			return nil
		}
		lastErr = err

		code := 0
		if apiErr, ok := err.(*googleapi.Error); ok {
			code = apiErr.Code
		}
		if !retriableCodes[code] || attempt == maxAttempts-1 {
			d.log.Error().Err(err).Str("op", operation).Int("attempt", attempt+1).Msg("gmail request failed, giving up")
			return err
		}
		d.log.Warn().Err(err).Str("op", operation).Int("attempt", attempt+1).Msg("gmail request failed, retrying")

		backoff := time.Duration(1<<attempt) * 500 * time.Millisecond
		jitter := time.Duration(rand.Intn(250)) * time.Millisecond
		select {
		case <-time.After(backoff + jitter):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
