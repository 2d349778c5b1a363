// Package imap implements the IMAP side of MailboxDriver (§4.G).
//
// No IMAP example exists to ground this adapter's wire plumbing on; its
// retry/backoff shape and method layout follow the Gmail driver's, and the
// IMAP protocol work itself is delegated to github.com/emersion/go-imap/v2.
package imap

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/mail"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	_ "github.com/emersion/go-message/charset"
	emmail "github.com/emersion/go-message/mail"
	"github.com/rs/zerolog"

	"subscan_server/core/domain"
	"subscan_server/core/service/signals"
)

// Driver implements out.MailboxDriver against a single IMAP account.
type Driver struct {
	host     string
	port     int
	secure   bool
	username string
	password string
	log      zerolog.Logger
}

// New builds a Driver bound to one IMAP account's connection parameters.
func New(host string, port int, secure bool, username, password string) *Driver {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).
		With().Timestamp().Str("component", "imap-driver").Str("host", host).Logger()
	return &Driver{host: host, port: port, secure: secure, username: username, password: password, log: log}
}

func (d *Driver) dial(ctx context.Context) (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", d.host, d.port)
	var client *imapclient.Client
	var err error
	if d.secure {
		client, err = imapclient.DialTLS(addr, nil)
	} else {
		client, err = imapclient.DialInsecure(addr, nil)
	}
	if err != nil {
		d.log.Error().Err(err).Msg("imap dial failed")
		return nil, err
	}
	if err := client.Login(d.username, d.password).Wait(); err != nil {
		client.Close()
		d.log.Error().Err(err).Msg("imap login failed")
		return nil, err
	}
	if _, err := client.Select("INBOX", &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		client.Close()
		d.log.Error().Err(err).Msg("imap select INBOX failed")
		return nil, err
	}
	return client, nil
}

// encodeCursor/decodeCursor implement the opaque base64url({uid: lastProcessedUid})
// cursor (§4.G).
type imapCursor struct {
	UID uint32 `json:"uid"`
}

func encodeCursor(uid uint32) string {
	raw, _ := json.Marshal(imapCursor{UID: uid})
	return base64.URLEncoding.EncodeToString(raw)
}

func decodeCursor(cursor *string) uint32 {
	if cursor == nil || *cursor == "" {
		return 0
	}
	raw, err := base64.URLEncoding.DecodeString(*cursor)
	if err != nil {
		return 0
	}
	var c imapCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return 0
	}
	return c.UID
}

// ListPage implements out.MailboxDriver: searches since now-daysBack, resuming
// at uid > lastProcessed.
func (d *Driver) ListPage(ctx context.Context, cursor *string, opts domain.Options) (domain.ListPage, error) {
	var page domain.ListPage
	err := d.withRetry(ctx, func() error {
		client, err := d.dial(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		lastUID := decodeCursor(cursor)
		criteria := &imap.SearchCriteria{
			Since: time.Now().AddDate(0, 0, -opts.DaysBack),
		}
		if lastUID > 0 {
			criteria.UID = []imap.UIDSet{{{Start: imap.UID(lastUID + 1), Stop: 0}}}
		}

		data, err := client.UIDSearch(criteria, nil).Wait()
		if err != nil {
			return err
		}

		uids := data.AllUIDs()
		if len(uids) > opts.PageSize {
			uids = uids[:opts.PageSize]
		}

		ids := make([]string, 0, len(uids))
		var maxUID uint32
		for _, uid := range uids {
			ids = append(ids, strconv.FormatUint(uint64(uid), 10))
			if uint32(uid) > maxUID {
				maxUID = uint32(uid)
			}
		}

		var next *string
		if len(ids) > 0 {
			c := encodeCursor(maxUID)
			next = &c
		}
		page = domain.ListPage{IDs: ids, NextCursor: next}
		return nil
	})
	return page, err
}

func parseUID(id string) (imap.UID, error) {
	v, err := strconv.ParseUint(id, 10, 32)
	if err != nil {
		return 0, err
	}
	return imap.UID(v), nil
}

// FetchMetadata implements out.MailboxDriver, fetching envelope and header
// data only; the caller runs the marketing/transactional prefilter over the
// result before deciding whether a full-body fetch is worth the round trip.
func (d *Driver) FetchMetadata(ctx context.Context, id string) (domain.MessageMeta, error) {
	var meta domain.MessageMeta
	err := d.withRetry(ctx, func() error {
		client, err := d.dial(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		uid, err := parseUID(id)
		if err != nil {
			return err
		}

		seqSet := imap.UIDSetNum(uid)
		fetchOpts := &imap.FetchOptions{
			Envelope: true,
			UID:      true,
			BodySection: []*imap.FetchItemBodySection{
				{Specifier: imap.PartSpecifierHeader},
			},
		}
		cmd := client.Fetch(seqSet, fetchOpts)
		defer cmd.Close()

		msg := cmd.Next()
		if msg == nil {
			return fmt.Errorf("imap: message %s not found", id)
		}

		headers := domain.MailHeaders{}
		var dateMs int64
		for {
			item := msg.Next()
			if item == nil {
				break
			}
			switch it := item.(type) {
			case imapclient.FetchItemDataEnvelope:
				headers.Subject = it.Envelope.Subject
				headers.Date = it.Envelope.Date.Format(time.RFC1123Z)
				dateMs = it.Envelope.Date.UnixMilli()
				if len(it.Envelope.From) > 0 {
					headers.From = formatAddress(it.Envelope.From[0])
				}
				if len(it.Envelope.ReplyTo) > 0 {
					headers.ReplyTo = formatAddress(it.Envelope.ReplyTo[0])
				}
			case imapclient.FetchItemDataBodySection:
				raw, _ := io.ReadAll(it.Literal)
				parseExtraHeaders(string(raw), &headers)
			}
		}
		if err := cmd.Close(); err != nil {
			return err
		}

		senderEmail := extractEmail(headers.From)
		meta = domain.MessageMeta{
			ID:           id,
			Headers:      headers,
			DateMs:       dateMs,
			SenderEmail:  senderEmail,
			SenderDomain: signals.EmailDomain(senderEmail),
		}
		return nil
	})
	return meta, err
}

// FetchFull implements out.MailboxDriver: downloads the full message source
// and parses it into text/html bodies.
func (d *Driver) FetchFull(ctx context.Context, id string) (domain.MessageBody, error) {
	var body domain.MessageBody
	err := d.withRetry(ctx, func() error {
		client, err := d.dial(ctx)
		if err != nil {
			return err
		}
		defer client.Close()

		uid, err := parseUID(id)
		if err != nil {
			return err
		}

		seqSet := imap.UIDSetNum(uid)
		fetchOpts := &imap.FetchOptions{
			BodySection: []*imap.FetchItemBodySection{{}},
		}
		cmd := client.Fetch(seqSet, fetchOpts)
		defer cmd.Close()

		msg := cmd.Next()
		if msg == nil {
			return fmt.Errorf("imap: message %s not found", id)
		}

		var raw []byte
		for {
			item := msg.Next()
			if item == nil {
				break
			}
			if sec, ok := item.(imapclient.FetchItemDataBodySection); ok {
				raw, _ = io.ReadAll(sec.Literal)
			}
		}
		if err := cmd.Close(); err != nil {
			return err
		}

		body = parseMessageSource(raw)
		return nil
	})
	return body, err
}

func parseMessageSource(raw []byte) domain.MessageBody {
	body := domain.MessageBody{}
	mr, err := emmail.CreateReader(strings.NewReader(string(raw)))
	if err != nil {
		return body
	}
	for {
		p, err := mr.NextPart()
		if err != nil {
			break
		}
		switch h := p.Header.(type) {
		case *emmail.InlineHeader:
			ct, _, _ := h.ContentType()
			data, rerr := io.ReadAll(p.Body)
			if rerr != nil {
				continue
			}
			switch ct {
			case "text/plain":
				body.Text += string(data)
			case "text/html":
				body.HTML += string(data)
			}
		}
	}
	return body
}

func parseExtraHeaders(raw string, headers *domain.MailHeaders) {
	for _, line := range strings.Split(raw, "\r\n") {
		lower := strings.ToLower(line)
		switch {
		case strings.HasPrefix(lower, "return-path:"):
			headers.ReturnPath = strings.TrimSpace(line[len("Return-Path:"):])
		case strings.HasPrefix(lower, "list-unsubscribe:"):
			headers.ListUnsubscribe = strings.TrimSpace(line[len("List-Unsubscribe:"):])
		case strings.HasPrefix(lower, "list-id:"):
			headers.ListID = strings.TrimSpace(line[len("List-Id:"):])
		case strings.HasPrefix(lower, "precedence:"):
			headers.Precedence = strings.TrimSpace(line[len("Precedence:"):])
		case strings.HasPrefix(lower, "auto-submitted:"):
			headers.AutoSubmitted = strings.TrimSpace(line[len("Auto-Submitted:"):])
		}
	}
}

func formatAddress(addr imap.Address) string {
	if addr.Host == "" {
		return addr.Name
	}
	return fmt.Sprintf("%s@%s", addr.Mailbox, addr.Host)
}

func extractEmail(from string) string {
	if addr, err := mail.ParseAddress(from); err == nil {
		return strings.ToLower(addr.Address)
	}
	return strings.ToLower(strings.TrimSpace(from))
}

const maxAttempts = 3

// withRetry retries a whole connect+command cycle with exponential backoff +
// jitter, bounded by ctx, mirroring the Gmail driver's retry policy (§4.G).
func (d *Driver) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == maxAttempts-1 {
			d.log.Error().Err(err).Int("attempt", attempt+1).Msg("imap request failed, giving up")
			return err
		}
		d.log.Warn().Err(err).Int("attempt", attempt+1).Msg("imap request failed, retrying")

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
