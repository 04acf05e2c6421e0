// Package cache provides the persisted mail-summary and TTL caches. Each
// cache keeps every entry under one namespace record that is decoded and
// re-encoded as a whole on every operation. The caches do no locking;
// callers serialize writers through the task queue.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Namespaces used by the caches.
const (
	MailNamespace = "email_cache"
	TTLNamespace  = "data_cache"
)

// Backend persists raw namespace records. Load returns nil, nil when the
// namespace has never been written.
type Backend interface {
	Load(ctx context.Context, namespace string) ([]byte, error)
	Save(ctx context.Context, namespace string, payload []byte) error
}

// MemoryBackend is an in-process Backend.
type MemoryBackend struct {
	mu   sync.Mutex
	data map[string][]byte
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Load(_ context.Context, namespace string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.data[namespace]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), b...), nil
}

func (m *MemoryBackend) Save(_ context.Context, namespace string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[namespace] = append([]byte(nil), payload...)
	return nil
}

// loadRecord decodes a namespace into a map. Backend failures and
// malformed payloads are logged and yield an empty map.
func loadRecord[V any](ctx context.Context, b Backend, namespace string) map[string]V {
	record := make(map[string]V)

	raw, err := b.Load(ctx, namespace)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("namespace", namespace).Msg("reading cache namespace failed")
		return record
	}
	if len(raw) == 0 {
		return record
	}
	if err := json.Unmarshal(raw, &record); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("namespace", namespace).Msg("cache namespace malformed; treating as empty")
		return make(map[string]V)
	}
	if record == nil {
		return make(map[string]V)
	}
	return record
}

func saveRecord[V any](ctx context.Context, b Backend, namespace string, record map[string]V) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding cache namespace %s: %w", namespace, err)
	}
	if err := b.Save(ctx, namespace, raw); err != nil {
		return fmt.Errorf("writing cache namespace %s: %w", namespace, err)
	}
	return nil
}
