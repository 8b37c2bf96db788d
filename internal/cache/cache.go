// Package cache provides a TTL cache over per-source enrichment results so
// repeated lookups for the same item do not repeat external calls. Entries
// live in a mutex-guarded in-memory map with lazy expiry; an optional backing
// store persists entries best-effort across process restarts.
package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/enrich-cli/internal/model"
)

// Backing persists cache entries across restarts. Writes and reads are
// best-effort; a failing backing store never fails a cache operation.
type Backing interface {
	GetCacheEntry(ctx context.Context, key string) (*model.EnrichmentResult, time.Time, error)
	SetCacheEntry(ctx context.Context, key string, result model.EnrichmentResult, expiresAt time.Time) error
	DeleteExpiredCacheEntries(ctx context.Context) (int, error)
}

// entry is one cached result with its expiry.
type entry struct {
	result    model.EnrichmentResult
	expiresAt time.Time
}

// Stats counts cache traffic since construction.
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
	Entries   int   `json:"entries"`
}

// Cache is safe for concurrent use by in-flight enrichment calls.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	backing Backing
	now     func() time.Time

	hits, misses, evictions int64
}

// New creates a cache. backing may be nil for a purely in-memory cache.
func New(backing Backing) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		backing: backing,
		now:     time.Now,
	}
}

// WithNow fixes the clock for testing.
func (c *Cache) WithNow(now func() time.Time) *Cache {
	c.now = now
	return c
}

// Get returns the cached result for key, if present and unexpired. Expired
// entries are evicted on the spot and reported as misses.
func (c *Cache) Get(ctx context.Context, key string) (model.EnrichmentResult, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.now().After(e.expiresAt) {
		delete(c.entries, key)
		c.evictions++
		ok = false
	}
	if ok {
		c.hits++
		c.mu.Unlock()
		return e.result, true
	}
	c.misses++
	c.mu.Unlock()

	if c.backing == nil {
		return model.EnrichmentResult{}, false
	}

	// Fall through to the backing store; a hit rehydrates the memory map.
	result, expiresAt, err := c.backing.GetCacheEntry(ctx, key)
	if err != nil {
		zap.L().Debug("cache: backing read failed", zap.String("key", key), zap.Error(err))
		return model.EnrichmentResult{}, false
	}
	if result == nil || c.now().After(expiresAt) {
		return model.EnrichmentResult{}, false
	}

	c.mu.Lock()
	c.entries[key] = entry{result: *result, expiresAt: expiresAt}
	c.mu.Unlock()
	return *result, true
}

// Set stores a result under key for ttl. Non-positive TTLs are ignored.
func (c *Cache) Set(ctx context.Context, key string, result model.EnrichmentResult, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	expiresAt := c.now().Add(ttl)

	c.mu.Lock()
	c.entries[key] = entry{result: result, expiresAt: expiresAt}
	c.mu.Unlock()

	if c.backing != nil {
		if err := c.backing.SetCacheEntry(ctx, key, result, expiresAt); err != nil {
			zap.L().Debug("cache: backing write failed", zap.String("key", key), zap.Error(err))
		}
	}
}

// Clear drops every in-memory entry and asks the backing store to drop
// expired rows.
func (c *Cache) Clear(ctx context.Context) {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()

	if c.backing != nil {
		if _, err := c.backing.DeleteExpiredCacheEntries(ctx); err != nil {
			zap.L().Debug("cache: backing clear failed", zap.Error(err))
		}
	}
}

// Stats returns a snapshot of traffic counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.entries),
	}
}
