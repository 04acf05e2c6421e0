package app

import (
	gosync "sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/mailsync/internal/model"
	mailsync "github.com/nhle/mailsync/internal/sync"
)

// LoadingMsg reports that a task for the account started or finished.
type LoadingMsg struct {
	AccountID string
	Loading   bool
}

// ErrorMsg carries the account's latest task error; nil clears it.
type ErrorMsg struct {
	AccountID string
	Err       error
}

// ResultMsg carries a fresh mailbox listing.
type ResultMsg struct {
	AccountID string
	Mails     []model.MailSummary
}

// ContentMsg carries an opened message or the reason it could not be
// fetched.
type ContentMsg struct {
	AccountID string
	MessageID string
	Content   *model.MailContent
	Err       error
}

// Bridge turns engine callbacks, which run on the queue goroutine, into
// messages for the running program. Messages sent before Attach are
// dropped.
type Bridge struct {
	mu   gosync.RWMutex
	send func(tea.Msg)
}

// NewBridge returns a Bridge with no program attached.
func NewBridge() *Bridge {
	return &Bridge{}
}

// Attach routes messages to send, usually (*tea.Program).Send.
func (b *Bridge) Attach(send func(tea.Msg)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.send = send
}

// Send delivers msg to the attached program.
func (b *Bridge) Send(msg tea.Msg) {
	b.mu.RLock()
	send := b.send
	b.mu.RUnlock()
	if send != nil {
		send(msg)
	}
}

// Callbacks returns the engine callbacks for one account.
func (b *Bridge) Callbacks(accountID string) mailsync.Callbacks {
	return mailsync.Callbacks{
		SetLoading: func(v bool) {
			b.Send(LoadingMsg{AccountID: accountID, Loading: v})
		},
		SetError: func(err error) {
			b.Send(ErrorMsg{AccountID: accountID, Err: err})
		},
		SetResult: func(id string, mails []model.MailSummary) {
			b.Send(ResultMsg{AccountID: id, Mails: mails})
		},
	}
}

// contentCallback returns the done function for an open request.
func (b *Bridge) contentCallback(accountID, messageID string) func(*model.MailContent, error) {
	return func(c *model.MailContent, err error) {
		b.Send(ContentMsg{AccountID: accountID, MessageID: messageID, Content: c, Err: err})
	}
}
