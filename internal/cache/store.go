// Package cache is the persistent key-value cache that keeps learner content
// available when the network is not.
//
// A Store is the raw string-keyed byte store (the localStorage of a browser,
// a SQLite file on a kiosk, a DynamoDB table behind the Lambdas). Cache[T]
// layers typed, namespaced, TTL-bearing entries on top of it. Caching is
// always best effort: every Store or serialisation failure is logged and
// swallowed so it can never break the operation whose result is being cached.
package cache

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrQuotaExceeded is returned by a Store that ran out of space.
var ErrQuotaExceeded = errors.New("cache store quota exceeded")

// Store is a string-keyed byte store. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value for key. A missing key returns false and a nil error.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set stores value under key, replacing any previous value. A non-zero
	// expiresAt lets backends with native expiry reclaim the record.
	Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// Keys lists every key in the store, namespaced or not.
	Keys(ctx context.Context) ([]string, error)
}

// MemoryStore is an in-process Store with an optional byte quota, mirroring
// the few-megabyte ceiling of browser storage.
type MemoryStore struct {
	mu    sync.RWMutex
	items map[string][]byte
	size  int
	limit int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a MemoryStore. limit caps the total key+value bytes;
// zero means unlimited.
func NewMemoryStore(limit int) *MemoryStore {
	return &MemoryStore{items: make(map[string][]byte), limit: limit}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value []byte, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	size := m.size + len(key) + len(value)
	if old, ok := m.items[key]; ok {
		size -= len(key) + len(old)
	}
	if m.limit > 0 && size > m.limit {
		return ErrQuotaExceeded
	}
	m.items[key] = append([]byte(nil), value...)
	m.size = size
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.items[key]; ok {
		m.size -= len(key) + len(old)
		delete(m.items, key)
	}
	return nil
}

func (m *MemoryStore) Keys(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.items))
	for k := range m.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
