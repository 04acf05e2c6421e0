package store

import (
	"context"
	"time"

	"github.com/nhle/mailsync/internal/model"
)

// Store defines the persistence interface for cache namespaces, account
// sync metadata, and sync history.
type Store interface {
	// === Cache namespaces ===

	// Load returns the raw record for namespace, or nil if it was never
	// written.
	Load(ctx context.Context, namespace string) ([]byte, error)
	Save(ctx context.Context, namespace string, payload []byte) error

	// === Accounts ===

	SetLastSync(ctx context.Context, accountID string, at time.Time) error
	// LastSync returns the zero time if the account never synced.
	LastSync(ctx context.Context, accountID string) (time.Time, error)
	DeleteAccount(ctx context.Context, accountID string) error

	// === Sync history ===

	StartRun(ctx context.Context, accountID, job string) (model.SyncRun, error)
	FinishRun(ctx context.Context, run model.SyncRun) error
	// LastError returns the error text of the account's most recent
	// finished run, or "" if it succeeded.
	LastError(ctx context.Context, accountID string) (string, error)
	RecentRuns(ctx context.Context, accountID string, limit int) ([]model.SyncRun, error)

	Close() error
}
