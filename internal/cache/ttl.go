package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTTL is how long a TTLCache entry stays visible.
const DefaultTTL = 5 * time.Minute

type ttlEntry struct {
	Value     json.RawMessage `json:"value"`
	Timestamp int64           `json:"timestamp"` // unix milliseconds
}

// TTLCache stores arbitrary JSON values that expire DefaultTTL (or the
// configured TTL) after they were written.
type TTLCache struct {
	backend Backend
	ttl     time.Duration
	now     func() time.Time
}

// TTLOption configures a TTLCache.
type TTLOption func(*TTLCache)

// WithTTL overrides DefaultTTL. Non-positive values are ignored.
func WithTTL(d time.Duration) TTLOption {
	return func(c *TTLCache) {
		if d > 0 {
			c.ttl = d
		}
	}
}

// WithClock sets the time source used for timestamps and expiry.
func WithClock(now func() time.Time) TTLOption {
	return func(c *TTLCache) { c.now = now }
}

// NewTTLCache returns a TTL cache stored under TTLNamespace.
func NewTTLCache(b Backend, opts ...TTLOption) *TTLCache {
	c := &TTLCache{backend: b, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the raw value for key while it is younger than the TTL.
// An expired entry is removed from the namespace and reported absent.
func (c *TTLCache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	record := loadRecord[ttlEntry](ctx, c.backend, TTLNamespace)
	entry, ok := record[key]
	if !ok {
		return nil, false
	}

	age := c.now().Sub(time.UnixMilli(entry.Timestamp))
	if age >= c.ttl {
		delete(record, key)
		if err := saveRecord(ctx, c.backend, TTLNamespace, record); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("removing expired cache entry failed")
		}
		return nil, false
	}
	return entry.Value, true
}

// GetInto decodes the value for key into v. It reports false on a miss or
// when the stored value does not decode into v.
func (c *TTLCache) GetInto(ctx context.Context, key string, v any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("cached value malformed")
		return false
	}
	return true
}

// Set stores value with the current timestamp, replacing any prior entry.
func (c *TTLCache) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache value %s: %w", key, err)
	}
	record := loadRecord[ttlEntry](ctx, c.backend, TTLNamespace)
	record[key] = ttlEntry{Value: raw, Timestamp: c.now().UnixMilli()}
	return saveRecord(ctx, c.backend, TTLNamespace, record)
}

// Delete removes key if present.
func (c *TTLCache) Delete(ctx context.Context, key string) error {
	record := loadRecord[ttlEntry](ctx, c.backend, TTLNamespace)
	if _, ok := record[key]; !ok {
		return nil
	}
	delete(record, key)
	return saveRecord(ctx, c.backend, TTLNamespace, record)
}
