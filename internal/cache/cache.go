package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sarassure/sarassure/internal/metrics"
)

// KeyPrefix namespaces every cache entry inside a shared Store. Keys without
// it (a theme preference, a session token) are never touched by the cache.
const KeyPrefix = "cache:"

// DefaultTTL applies when Put is given no TTL.
const DefaultTTL = time.Hour

// StaleRetention is how long an entry outlives its TTL in the backing store.
// Native expiry (the SQLite purge, the DynamoDB TTL attribute) is set this
// far past freshness so GetStale still has a copy after a restart.
const StaleRetention = 7 * 24 * time.Hour

// Entry is the stored envelope. Timestamp and TTL are in milliseconds.
type Entry[T any] struct {
	Data      T     `json:"data"`
	Timestamp int64 `json:"timestamp"`
	TTL       int64 `json:"ttl"`
}

// Fresh reports whether the entry is still valid at now.
func (e Entry[T]) Fresh(now time.Time) bool {
	return now.UnixMilli()-e.Timestamp < e.TTL
}

// Cache stores values of one type in a Store.
type Cache[T any] struct {
	store    Store
	name     string
	ttl      time.Duration
	now      func() time.Time
	validate func(T) error
}

// New creates a Cache over store. name only labels log lines.
func New[T any](store Store, name string) *Cache[T] {
	return &Cache[T]{
		store: store,
		name:  name,
		ttl:   DefaultTTL,
		now:   time.Now,
	}
}

// WithTTL sets the default TTL.
func (c *Cache[T]) WithTTL(ttl time.Duration) *Cache[T] {
	if ttl > 0 {
		c.ttl = ttl
	}
	return c
}

// WithValidator installs a check run on every read. An entry that fails it is
// treated as malformed and evicted, so payloads written by an older release
// with a different shape never reach callers.
func (c *Cache[T]) WithValidator(fn func(T) error) *Cache[T] {
	c.validate = fn
	return c
}

// WithClock replaces time.Now.
func (c *Cache[T]) WithClock(now func() time.Time) *Cache[T] {
	c.now = now
	return c
}

// Name returns the label given to New.
func (c *Cache[T]) Name() string { return c.name }

// TTL returns the default TTL.
func (c *Cache[T]) TTL() time.Duration { return c.ttl }

// StoreKey returns the namespaced key key is stored under.
func StoreKey(key string) string {
	return KeyPrefix + key
}

// IsCacheKey reports whether a raw store key belongs to the cache namespace.
func IsCacheKey(storeKey string) bool {
	return strings.HasPrefix(storeKey, KeyPrefix)
}

// Put writes data under key, overwriting any existing entry. ttl <= 0 uses
// the cache default. Failures are logged, never returned.
func (c *Cache[T]) Put(ctx context.Context, key string, data T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.now()
	raw, err := json.Marshal(Entry[T]{Data: data, Timestamp: now.UnixMilli(), TTL: ttl.Milliseconds()})
	if err != nil {
		log.Warn().Err(err).Str("cache", c.name).Str("key", key).Msg("Failed to serialise cache entry")
		return
	}
	if err := c.store.Set(ctx, StoreKey(key), raw, now.Add(ttl+StaleRetention)); err != nil {
		log.Warn().Err(err).Str("cache", c.name).Str("key", key).Int("bytes", len(raw)).Msg("Failed to write cache entry")
		return
	}
	log.Trace().Str("cache", c.name).Str("key", key).Dur("ttl", ttl).Msg("Cache entry written")
}

// Get returns the fresh value for key. Absent, malformed and expired entries
// are misses; expired and malformed ones are deleted on the way out.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool) {
	v, ok := c.get(ctx, key, true)
	metrics.CacheLookup(c.name, ok)
	return v, ok
}

// GetStale returns the value for key regardless of its age. It is the
// emergency path used when the primary source has failed.
func (c *Cache[T]) GetStale(ctx context.Context, key string) (T, bool) {
	return c.get(ctx, key, false)
}

// Delete removes key. Failures are logged.
func (c *Cache[T]) Delete(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, StoreKey(key)); err != nil {
		log.Warn().Err(err).Str("cache", c.name).Str("key", key).Msg("Failed to delete cache entry")
	}
}

func (c *Cache[T]) get(ctx context.Context, key string, requireFresh bool) (T, bool) {
	var zero T
	v, fresh, ok := c.Lookup(ctx, key)
	if !ok {
		return zero, false
	}
	if requireFresh && !fresh {
		log.Debug().Str("cache", c.name).Str("key", key).Msg("Evicting expired cache entry")
		c.Delete(ctx, key)
		return zero, false
	}
	return v, true
}

// Lookup returns the value for key and whether it is still fresh, without
// evicting an expired entry. Malformed entries are still evicted.
func (c *Cache[T]) Lookup(ctx context.Context, key string) (v T, fresh, ok bool) {
	raw, found, err := c.store.Get(ctx, StoreKey(key))
	if err != nil {
		log.Warn().Err(err).Str("cache", c.name).Str("key", key).Msg("Failed to read cache entry")
		return v, false, false
	}
	if !found {
		return v, false, false
	}

	entry, err := c.decode(raw)
	if err != nil {
		log.Warn().Err(err).Str("cache", c.name).Str("key", key).Msg("Evicting malformed cache entry")
		c.Delete(ctx, key)
		return v, false, false
	}
	return entry.Data, entry.Fresh(c.now()), true
}

func (c *Cache[T]) decode(raw []byte) (Entry[T], error) {
	var entry Entry[T]
	if err := json.Unmarshal(raw, &entry); err != nil {
		return entry, fmt.Errorf("unmarshal: %w", err)
	}
	if entry.Timestamp <= 0 || entry.TTL <= 0 {
		return entry, fmt.Errorf("missing timestamp or ttl")
	}
	if c.validate != nil {
		if err := c.validate(entry.Data); err != nil {
			return entry, fmt.Errorf("validate: %w", err)
		}
	}
	return entry, nil
}
