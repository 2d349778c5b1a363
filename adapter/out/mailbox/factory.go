// Package mailbox wires the Gmail and IMAP drivers behind a single factory
// the orchestrator uses to build a out.MailboxDriver per session.
package mailbox

import (
	"subscan_server/adapter/out/mailbox/gmail"
	"subscan_server/adapter/out/mailbox/imap"
	"subscan_server/core/port/out"
)

// Factory implements orchestrator.DriverFactory.
type Factory struct{}

// NewFactory builds a Factory.
func NewFactory() *Factory {
	return &Factory{}
}

// GmailDriver builds a driver scoped to one resolved access token.
func (f *Factory) GmailDriver(accessToken string) out.MailboxDriver {
	return gmail.New(accessToken)
}

// IMAPDriver builds a driver scoped to one IMAP account's connection parameters.
func (f *Factory) IMAPDriver(auth out.IMAPAuth) out.MailboxDriver {
	return imap.New(auth.Host, auth.Port, auth.Secure, auth.Username, auth.Password)
}
