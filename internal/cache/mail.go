package cache

import (
	"context"

	"github.com/nhle/mailsync/internal/model"
)

// MailCache maps account IDs to their last fetched mail list. Entries
// never expire; they live until overwritten or invalidated.
type MailCache struct {
	backend Backend
}

// NewMailCache returns a mail cache stored under MailNamespace.
func NewMailCache(b Backend) *MailCache {
	return &MailCache{backend: b}
}

// Get returns the cached list for account. A miss, including one caused
// by a malformed namespace or a null entry, reports false. An empty list
// is a hit.
func (c *MailCache) Get(ctx context.Context, account string) ([]model.MailSummary, bool) {
	record := loadRecord[[]model.MailSummary](ctx, c.backend, MailNamespace)
	mails, ok := record[account]
	if !ok || mails == nil {
		return nil, false
	}
	return mails, true
}

// Set replaces the cached list for account.
func (c *MailCache) Set(ctx context.Context, account string, mails []model.MailSummary) error {
	if mails == nil {
		mails = []model.MailSummary{}
	}
	record := loadRecord[[]model.MailSummary](ctx, c.backend, MailNamespace)
	record[account] = mails
	return saveRecord(ctx, c.backend, MailNamespace, record)
}

// Invalidate removes the entry for account. Removing an absent entry is a
// no-op.
func (c *MailCache) Invalidate(ctx context.Context, account string) error {
	record := loadRecord[[]model.MailSummary](ctx, c.backend, MailNamespace)
	if _, ok := record[account]; !ok {
		return nil
	}
	delete(record, account)
	return saveRecord(ctx, c.backend, MailNamespace, record)
}
