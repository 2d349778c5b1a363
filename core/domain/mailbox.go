package domain

// MailHeaders is the subset of RFC 5322 headers the pipeline inspects (§4.G).
type MailHeaders struct {
	From            string
	ReplyTo         string
	ReturnPath      string
	ListUnsubscribe string
	ListID          string
	Precedence      string
	AutoSubmitted   string
	Subject         string
	Date            string
}

// MessageMeta is the result of MailboxDriver.fetchMetadata (§4.G).
type MessageMeta struct {
	ID           string
	Headers      MailHeaders
	Snippet      string
	DateMs       int64
	SenderEmail  string
	SenderDomain string
}

// MessageBody is the result of MailboxDriver.fetchFull (§4.G).
type MessageBody struct {
	Text string
	HTML string
}

// ListPage is the result of MailboxDriver.listPage (§4.G).
type ListPage struct {
	IDs        []string
	NextCursor *string
}

// MerchantDirectoryEntry is a read-only directory row (§3).
type MerchantDirectoryEntry struct {
	CanonicalName  string
	SenderEmails   []string
	SenderDomains  []string
	Keywords       []string
}

// UserOverride pins a canonical merchant to a sender email or domain for one user (§3).
type UserOverride struct {
	UserID        string
	SenderEmail   *string
	SenderDomain  *string
	CanonicalName string
}
