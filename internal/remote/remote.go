package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/nhle/mailsync/internal/model"
)

// Kind classifies a remote failure.
type Kind int

const (
	// KindRemote is any failure that should not be retried.
	KindRemote Kind = iota

	// KindRateLimited means the service asked the client to slow down
	// (HTTP 429 or an equivalent protocol signal).
	KindRateLimited

	// KindAuth means the credential was rejected.
	KindAuth

	// KindNotFound means the addressed message does not exist.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	default:
		return "remote"
	}
}

// Error is returned by Client implementations. Kind is decided where the
// call is made, from the transport's own status signal.
type Error struct {
	Kind   Kind
	Status int    // HTTP status, or 0 for non-HTTP transports
	Op     string // e.g. "list folders", "delete message"
	Err    error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Status != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// RateLimited reports whether the failure is eligible for backoff retry.
func (e *Error) RateLimited() bool { return e.Kind == KindRateLimited }

// FromStatus builds an Error for a non-2xx HTTP status.
func FromStatus(op string, status int, err error) *Error {
	kind := KindRemote
	switch status {
	case http.StatusTooManyRequests:
		kind = KindRateLimited
	case http.StatusUnauthorized, http.StatusForbidden:
		kind = KindAuth
	case http.StatusNotFound:
		kind = KindNotFound
	}
	return &Error{Kind: kind, Status: status, Op: op, Err: err}
}

func isKind(err error, k Kind) bool {
	var re *Error
	return errors.As(err, &re) && re.Kind == k
}

// IsRateLimited reports whether err is a rate-limit failure.
func IsRateLimited(err error) bool { return isKind(err, KindRateLimited) }

// IsAuth reports whether err is a rejected-credential failure.
func IsAuth(err error) bool { return isKind(err, KindAuth) }

// IsNotFound reports whether err is a missing-message failure.
func IsNotFound(err error) bool { return isKind(err, KindNotFound) }

// Client is the remote mail service used by the sync engine. All
// methods must be safe to call more than once with the same arguments.
type Client interface {
	// FetchMail lists the account's messages.
	FetchMail(ctx context.Context, tok *oauth2.Token, accountID string) ([]model.MailSummary, error)

	// DeleteMail removes a message. Deleting a message that is already
	// gone succeeds.
	DeleteMail(ctx context.Context, tok *oauth2.Token, messageID string) error

	// FetchContent retrieves a full message.
	FetchContent(ctx context.Context, tok *oauth2.Token, messageID string) (*model.MailContent, error)
}
