package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrMiss indicates no entry exists for the requested key.
	ErrMiss = errors.New("cache miss")
	// ErrStoreUnavailable indicates the cache has no backing store configured.
	ErrStoreUnavailable = errors.New("cache store unavailable")
)

// Cache key namespaces. Relationship lists and the notification inbox share
// the store but never collide.
const (
	KeyFriends         = "relationships/friends"
	KeyPendingIncoming = "relationships/pendingIncoming"
	KeyPendingOutgoing = "relationships/pendingOutgoing"
	KeyInbox           = "notifications/inbox"
)

// RawEntry is the stored form of a cache entry: an opaque value plus the
// fetch timestamp, always written and replaced as one unit.
type RawEntry struct {
	Value     json.RawMessage `json:"value"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// Store persists raw entries. Implementations must replace entries
// atomically; readers never observe a value paired with a stale timestamp.
type Store interface {
	Get(ctx context.Context, key string) (RawEntry, error)
	Set(ctx context.Context, key string, entry RawEntry) error
	Delete(ctx context.Context, key string) error
}

// Entry is a typed cache entry handed back to callers.
type Entry[T any] struct {
	Value     T
	FetchedAt time.Time
}

// Cache layers TTL bookkeeping over a pluggable Store. Staleness is a
// property of the read, not the write: entries past their TTL are still
// returned, flagged stale by the caller's IsFresh check.
type Cache struct {
	store Store
	now   func() time.Time
}

// New constructs a cache over the provided store.
func New(store Store) *Cache {
	return &Cache{store: store, now: time.Now}
}

// IsFresh reports whether the entry under key exists and is younger than ttl.
func (c *Cache) IsFresh(ctx context.Context, key string, ttl time.Duration) bool {
	if c == nil || c.store == nil {
		return false
	}
	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return false
	}
	return c.now().Sub(raw.FetchedAt) < ttl
}

// Invalidate drops the entry under key, if any.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if c == nil || c.store == nil {
		return ErrStoreUnavailable
	}
	return c.store.Delete(ctx, key)
}

// Get retrieves the typed entry under key, regardless of freshness.
func Get[T any](ctx context.Context, c *Cache, key string) (Entry[T], error) {
	var entry Entry[T]
	if c == nil || c.store == nil {
		return entry, ErrStoreUnavailable
	}

	raw, err := c.store.Get(ctx, key)
	if err != nil {
		return entry, err
	}

	if err := json.Unmarshal(raw.Value, &entry.Value); err != nil {
		return entry, fmt.Errorf("decode cache entry %s: %w", key, err)
	}
	entry.FetchedAt = raw.FetchedAt

	return entry, nil
}

// Set writes the value under key with the current timestamp, overwriting any
// previous entry. Every successful network fetch writes through here before
// the result reaches consumers.
func Set[T any](ctx context.Context, c *Cache, key string, value T) error {
	if c == nil || c.store == nil {
		return ErrStoreUnavailable
	}

	buf, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}

	return c.store.Set(ctx, key, RawEntry{Value: buf, FetchedAt: c.now()})
}

// WithNowFunc allows tests to override the time source.
func (c *Cache) WithNowFunc(now func() time.Time) {
	if now != nil {
		c.now = now
	}
}
