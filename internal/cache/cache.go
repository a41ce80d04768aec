// Package cache implements the TTL response cache for remote reads.
//
// Entries expire lazily on read and are written through to a durable
// storage.Store under the "cache/" namespace, so a restarted process can
// serve still-valid responses while offline.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/faceguard/internal/core/domain"
	"github.com/vietddude/faceguard/internal/infra/storage"
	"github.com/vietddude/faceguard/internal/metrics"
)

var (
	// ErrNotCacheable is returned when a non-read operation is offered to the cache
	ErrNotCacheable = errors.New("operation is not cacheable")
	// ErrInvalidTTL is returned for a zero or negative ttl
	ErrInvalidTTL = errors.New("ttl must be positive")
)

const keyPrefix = "cache/"

// Cache maps operation keys to responses with an expiry.
type Cache struct {
	mu      sync.Mutex
	entries map[string]domain.CacheEntry
	store   storage.Store
	now     func() time.Time
	logger  *slog.Logger
}

// New creates a cache. store may be nil for a purely in-memory cache.
func New(store storage.Store, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		entries: make(map[string]domain.CacheEntry),
		store:   store,
		now:     time.Now,
		logger:  logger,
	}
}

// SetClock replaces the time source, mainly for tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get returns the value for key if it has not expired. An expired entry is
// removed on the way out and is never served again.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
		return nil, false
	}
	if !entry.ValidAt(c.now()) {
		c.removeLocked(ctx, key)
		metrics.CacheLookupsTotal.WithLabelValues("expired").Inc()
		return nil, false
	}

	metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	return slices.Clone(entry.Value), true
}

// Put stores value under key for ttl.
func (c *Cache) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	entry := domain.CacheEntry{
		Value:     slices.Clone(value),
		StoredAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	if c.store != nil {
		raw, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("encode cache entry: %w", err)
		}
		if err := c.store.Set(ctx, keyPrefix+key, raw); err != nil {
			return fmt.Errorf("persist cache entry %s: %w", key, err)
		}
	}

	c.entries[key] = entry
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return nil
}

// Fill caches the response of a read operation.
func (c *Cache) Fill(ctx context.Context, op domain.Operation, value []byte, ttl time.Duration) error {
	if !op.IsRead() {
		return ErrNotCacheable
	}
	return c.Put(ctx, op.Key, value, ttl)
}

// AfterWrite drops every entry of the resource a write just mutated.
func (c *Cache) AfterWrite(ctx context.Context, op domain.Operation) error {
	if !op.IsWrite() {
		return nil
	}
	return c.InvalidateResource(ctx, op.Resource())
}

// Invalidate removes a single key.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Remove(ctx, keyPrefix+key); err != nil {
			return fmt.Errorf("remove cache entry %s: %w", key, err)
		}
	}
	delete(c.entries, key)
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return nil
}

// InvalidateResource removes every key whose resource prefix is resource.
func (c *Cache) InvalidateResource(ctx context.Context, resource string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var keys []string
	for key := range c.entries {
		if domain.ResourcePrefix(key) == resource {
			keys = append(keys, key)
		}
	}

	// Entries that exist only on disk (not yet loaded) must go too.
	if c.store != nil {
		stored, err := c.store.ListKeys(ctx, keyPrefix+resource)
		if err != nil {
			return fmt.Errorf("list cache entries: %w", err)
		}
		for _, sk := range stored {
			key := strings.TrimPrefix(sk, keyPrefix)
			if domain.ResourcePrefix(key) == resource && !slices.Contains(keys, key) {
				keys = append(keys, key)
			}
		}
	}

	for _, key := range keys {
		if c.store != nil {
			if err := c.store.Remove(ctx, keyPrefix+key); err != nil {
				return fmt.Errorf("remove cache entry %s: %w", key, err)
			}
		}
		delete(c.entries, key)
	}

	if len(keys) > 0 {
		c.logger.Debug("Invalidated cache resource", "resource", resource, "entries", len(keys))
	}
	metrics.CacheEntries.Set(float64(len(c.entries)))
	return nil
}

// InvalidateAll empties the cache. Only cache keys are removed from the store.
func (c *Cache) InvalidateAll(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store != nil {
		keys, err := c.store.ListKeys(ctx, keyPrefix)
		if err != nil {
			return fmt.Errorf("list cache entries: %w", err)
		}
		for _, k := range keys {
			if err := c.store.Remove(ctx, k); err != nil {
				return fmt.Errorf("remove cache entry %s: %w", k, err)
			}
		}
	}

	clear(c.entries)
	metrics.CacheEntries.Set(0)
	return nil
}

// Sweep removes all expired entries and returns how many were dropped.
func (c *Cache) Sweep(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if entry.ValidAt(now) {
			continue
		}
		if c.store != nil {
			if err := c.store.Remove(ctx, keyPrefix+key); err != nil {
				return removed, fmt.Errorf("remove cache entry %s: %w", key, err)
			}
		}
		delete(c.entries, key)
		removed++
	}

	metrics.CacheEntries.Set(float64(len(c.entries)))
	return removed, nil
}

// Load restores persisted entries, discarding the ones that already expired.
func (c *Cache) Load(ctx context.Context) (int, error) {
	if c.store == nil {
		return 0, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	keys, err := c.store.ListKeys(ctx, keyPrefix)
	if err != nil {
		return 0, fmt.Errorf("list cache entries: %w", err)
	}

	now := c.now()
	loaded := 0
	for _, sk := range keys {
		raw, err := c.store.Get(ctx, sk)
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			return loaded, fmt.Errorf("read cache entry %s: %w", sk, err)
		}

		var entry domain.CacheEntry
		if err := json.Unmarshal(raw, &entry); err != nil || !entry.ValidAt(now) {
			if err != nil {
				c.logger.Warn("Dropping unreadable cache entry", "key", sk, "error", err)
			}
			if err := c.store.Remove(ctx, sk); err != nil {
				return loaded, fmt.Errorf("remove cache entry %s: %w", sk, err)
			}
			continue
		}

		c.entries[strings.TrimPrefix(sk, keyPrefix)] = entry
		loaded++
	}

	metrics.CacheEntries.Set(float64(len(c.entries)))
	return loaded, nil
}

// Len returns the number of entries held in memory, expired or not.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *Cache) removeLocked(ctx context.Context, key string) {
	if c.store != nil {
		if err := c.store.Remove(ctx, keyPrefix+key); err != nil {
			// The in-memory entry is dropped regardless; Load filters expired entries.
			c.logger.Warn("Failed to remove expired cache entry", "key", key, "error", err)
		}
	}
	delete(c.entries, key)
	metrics.CacheEntries.Set(float64(len(c.entries)))
}
