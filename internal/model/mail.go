package model

import "time"

// Address is a mailbox address with an optional display name.
type Address struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// String returns the display name when present, otherwise the address.
func (a Address) String() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Address
}

// MailSummary is the listing-level view of a message, as returned by a
// provider's mailbox listing and stored in the mail cache.
type MailSummary struct {
	// ID is the provider-specific message identifier. It is the value
	// passed back to the provider for delete and content requests.
	ID string `json:"id"`

	// Subject is the message subject line.
	Subject string `json:"subject"`

	// From is the message sender.
	From Address `json:"from"`

	// To holds the primary recipients.
	To []Address `json:"toRecipients,omitempty"`

	// IsRead reports whether the message was read when it was listed.
	IsRead bool `json:"isRead"`

	// Folder is the name or identifier of the folder the message was
	// listed from.
	Folder string `json:"folder,omitempty"`

	// ReceivedAt is when the provider received the message, if known.
	ReceivedAt time.Time `json:"receivedAt,omitempty"`
}

// MailContent is a fully fetched message.
type MailContent struct {
	MailSummary

	TextBody    string       `json:"textBody,omitempty"`
	HTMLBody    string       `json:"htmlBody,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment holds metadata about a message attachment.
type Attachment struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
	MIMEType string `json:"mimeType"`
}

// SyncRun records the outcome of a single queued sync operation.
type SyncRun struct {
	ID         string     `db:"id"`
	AccountID  string     `db:"account_id"`
	Job        string     `db:"job"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
	MailCount  int        `db:"mail_count"`
	Error      string     `db:"error"`
}

// Job names recorded in sync history.
const (
	JobCheck   = "check"
	JobSync    = "sync"
	JobManual  = "manual"
	JobRefresh = "refresh"
	JobDelete  = "delete"
	JobOpen    = "open"
)
