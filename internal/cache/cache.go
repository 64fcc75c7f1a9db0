// Package cache stores pipeline outputs keyed by content fingerprint.
//
// The cache keeps an in-memory index of entry sizes and timestamps over a
// Storage backend. The index and the running size are guarded by one mutex,
// and every operation that changes the total holds it for the whole
// storage round trip. Entries older than the TTL are dropped when read;
// when an insert would exceed the byte budget the least recently accessed
// entries are evicted first.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// ErrEntryTooLarge is returned by Set for payloads larger than the budget.
var ErrEntryTooLarge = errors.New("cache: entry exceeds byte budget")

// Config bounds the cache.
type Config struct {
	MaxBytes int64         // total payload budget
	TTL      time.Duration // zero disables expiry
}

// DefaultConfig allows 64 MiB of payloads for 24 hours.
func DefaultConfig() Config {
	return Config{MaxBytes: 64 << 20, TTL: 24 * time.Hour}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.MaxBytes <= 0 {
		return fmt.Errorf("byte budget must be positive, got %d", c.MaxBytes)
	}
	if c.TTL < 0 {
		return fmt.Errorf("ttl must not be negative, got %s", c.TTL)
	}
	return nil
}

// Stats is a snapshot of the cache counters.
type Stats struct {
	Entries   int   `json:"entries"`
	TotalSize int64 `json:"total_size"`
	MaxBytes  int64 `json:"max_bytes"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

type meta struct {
	size       int64
	createdAt  time.Time
	accessedAt time.Time
	seq        uint64 // insertion order, breaks timestamp ties
}

// Cache is safe for concurrent use.
type Cache struct {
	cfg     Config
	storage Storage
	now     func() time.Time

	mu        sync.Mutex
	index     map[string]*meta
	total     int64
	seq       uint64
	hits      int64
	misses    int64
	evictions int64
}

// Option customizes a Cache.
type Option func(*Cache)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// Open builds a cache over storage and rebuilds the index from the records
// it already holds. Undecodable records are purged; records that no longer
// fit the budget are evicted oldest first.
func Open(ctx context.Context, storage Storage, cfg Config, opts ...Option) (*Cache, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid cache config: %w", err)
	}
	if storage == nil {
		return nil, errors.New("cache storage is required")
	}
	c := &Cache{cfg: cfg, storage: storage, now: time.Now, index: make(map[string]*meta)}
	for _, o := range opts {
		o(c)
	}

	keys, err := storage.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cache keys: %w", err)
	}
	type loaded struct {
		key string
		m   *meta
	}
	var found []loaded
	for _, k := range keys {
		raw, err := storage.Get(ctx, k)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load cache entry %s: %w", k, err)
		}
		e, err := decodeEntry(k, raw)
		if err != nil {
			slog.Warn("purging corrupt cache entry", "key", k, "error", err)
			if err := storage.Remove(ctx, k); err != nil {
				return nil, fmt.Errorf("purge cache entry %s: %w", k, err)
			}
			continue
		}
		found = append(found, loaded{k, &meta{size: e.Size(), createdAt: e.CreatedAt, accessedAt: e.AccessedAt}})
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].m.accessedAt.Before(found[j].m.accessedAt) })
	for _, l := range found {
		c.seq++
		l.m.seq = c.seq
		c.index[l.key] = l.m
		c.total += l.m.size
	}
	if err := c.evictLocked(ctx, 0); err != nil {
		return nil, err
	}
	slog.Debug("cache opened", "entries", len(c.index), "total_size", c.total)
	return c, nil
}

// Get returns the payload stored under key. Expired and corrupt entries are
// removed and reported as misses. A hit refreshes the entry's access time.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.index[key]
	if !ok {
		c.misses++
		return nil, false, nil
	}
	now := c.now()
	if c.expired(m, now) {
		c.misses++
		return nil, false, c.removeLocked(ctx, key)
	}
	raw, err := c.storage.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		c.forgetLocked(key)
		c.misses++
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	e, err := decodeEntry(key, raw)
	if err != nil {
		slog.Warn("purging corrupt cache entry", "key", key, "error", err)
		c.misses++
		return nil, false, c.removeLocked(ctx, key)
	}

	m.accessedAt = now
	e.AccessedAt = now
	if err := c.storage.Set(ctx, key, encodeEntry(e)); err != nil {
		slog.Warn("failed to persist cache access time", "key", key, "error", err)
	}
	c.hits++
	return e.Payload, true, nil
}

// Set stores payload under key, replacing any previous value, and evicts the
// least recently accessed entries until the budget holds.
func (c *Cache) Set(ctx context.Context, key string, payload []byte) error {
	size := int64(len(payload))
	if size > c.cfg.MaxBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrEntryTooLarge, size, c.cfg.MaxBytes)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index[key]; ok {
		if err := c.removeLocked(ctx, key); err != nil {
			return err
		}
	}
	if err := c.evictLocked(ctx, size); err != nil {
		return err
	}
	now := c.now()
	e := &Entry{Key: key, Payload: payload, CreatedAt: now, AccessedAt: now}
	if err := c.storage.Set(ctx, key, encodeEntry(e)); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	c.seq++
	c.index[key] = &meta{size: size, createdAt: now, accessedAt: now, seq: c.seq}
	c.total += size
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (c *Cache) Remove(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.index[key]; !ok {
		return nil
	}
	return c.removeLocked(ctx, key)
}

// Clear deletes every entry. Counters other than the size are kept.
func (c *Cache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.index {
		if err := c.removeLocked(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// Stats returns a snapshot of the counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   len(c.index),
		TotalSize: c.total,
		MaxBytes:  c.cfg.MaxBytes,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}

func (c *Cache) expired(m *meta, now time.Time) bool {
	return c.cfg.TTL > 0 && now.Sub(m.createdAt) > c.cfg.TTL
}

// evictLocked drops entries, oldest access first, until incoming more
// bytes fit.
func (c *Cache) evictLocked(ctx context.Context, incoming int64) error {
	if c.total+incoming <= c.cfg.MaxBytes {
		return nil
	}
	keys := make([]string, 0, len(c.index))
	for k := range c.index {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := c.index[keys[i]], c.index[keys[j]]
		if !a.accessedAt.Equal(b.accessedAt) {
			return a.accessedAt.Before(b.accessedAt)
		}
		return a.seq < b.seq
	})
	for _, k := range keys {
		if c.total+incoming <= c.cfg.MaxBytes {
			break
		}
		if err := c.removeLocked(ctx, k); err != nil {
			return fmt.Errorf("evict %s: %w", k, err)
		}
		c.evictions++
		slog.Debug("evicted cache entry", "key", k, "total_size", c.total)
	}
	return nil
}

func (c *Cache) removeLocked(ctx context.Context, key string) error {
	if err := c.storage.Remove(ctx, key); err != nil {
		return fmt.Errorf("cache remove %s: %w", key, err)
	}
	c.forgetLocked(key)
	return nil
}

func (c *Cache) forgetLocked(key string) {
	m, ok := c.index[key]
	if !ok {
		return
	}
	delete(c.index, key)
	c.total -= m.size
	if c.total < 0 {
		c.total = 0
	}
}
