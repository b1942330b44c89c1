// Package cache provides a content-addressed store for synthesized audio.
// Entries expire after a fixed TTL and the entry count is bounded;
// eviction releases the underlying audio exactly once.
package cache

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	// DefaultTTL is how long an entry stays readable after creation.
	DefaultTTL = 24 * time.Hour

	// DefaultMaxEntries bounds the entry count; the oldest entries are
	// evicted first once the cap is exceeded.
	DefaultMaxEntries = 50

	// keyTextRunes bounds the normalized-text prefix used in keys so a
	// pasted document cannot produce unbounded key growth. Two requests
	// sharing a prefix but differing later collide on purpose: this is a
	// cache, not an archive.
	keyTextRunes = 96
)

// Key derives the cache key for a (text, voice) pair. Text is lowercased,
// whitespace-normalized and truncated to a bounded prefix.
func Key(text, voiceID string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(text)), " ")
	runes := []rune(normalized)
	if len(runes) > keyTextRunes {
		normalized = string(runes[:keyTextRunes])
	}
	return normalized + "|" + voiceID
}

// Entry owns one synthesized audio artifact.
type Entry struct {
	Key       string
	Handle    *Handle
	CreatedAt time.Time
}

// Stats holds cache counters for introspection.
type Stats struct {
	Entries    int
	Hits       int64
	Misses     int64
	Evictions  int64
	Expired    int64
	StoredSize int64 // compressed bytes currently held
}

// String renders the stats for log output.
func (s Stats) String() string {
	return fmt.Sprintf("%d entries (%s), %d hits, %d misses, %d evicted, %d expired",
		s.Entries, humanize.Bytes(uint64(s.StoredSize)), s.Hits, s.Misses, s.Evictions, s.Expired)
}

// Cache maps keys to audio entries. Mutation happens only from the
// orchestrator, synchronously with respect to reads, so an entry is never
// observed half-written. The cache is per-context and never shared across
// contexts.
type Cache struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]*Entry
	stats      Stats

	// now is swappable in tests.
	now func() time.Time
}

// New creates a cache with the given TTL and entry cap. Zero values select
// the defaults.
func New(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]*Entry),
		now:        time.Now,
	}
}

// Get returns the entry for key, or nil on a miss. Expired entries are
// evicted lazily on read, not only during sweeps.
func (c *Cache) Get(key string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil
	}
	if c.now().Sub(entry.CreatedAt) > c.ttl {
		c.removeLocked(key)
		c.stats.Expired++
		c.stats.Misses++
		return nil
	}

	c.stats.Hits++
	return entry
}

// Put inserts a handle under key and runs an eviction pass. The cache takes
// ownership of the handle; a replaced entry's previous handle is released.
func (c *Cache) Put(key string, h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(key)
	c.entries[key] = &Entry{Key: key, Handle: h, CreatedAt: c.now()}
	c.stats.StoredSize += int64(h.StoredSize())

	c.evictLocked()
}

// Remove drops a single entry and releases its handle. Used when a stored
// payload turns out to be unreadable.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

// Evict removes all expired entries, then removes oldest-first until the
// entry count is at or under the cap.
func (c *Cache) Evict() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictLocked()
}

func (c *Cache) evictLocked() {
	cutoff := c.now().Add(-c.ttl)
	for key, entry := range c.entries {
		if entry.CreatedAt.Before(cutoff) {
			c.removeLocked(key)
			c.stats.Expired++
		}
	}

	for len(c.entries) > c.maxEntries {
		oldestKey := ""
		var oldest time.Time
		for key, entry := range c.entries {
			if oldestKey == "" || entry.CreatedAt.Before(oldest) {
				oldestKey, oldest = key, entry.CreatedAt
			}
		}
		c.removeLocked(oldestKey)
		c.stats.Evictions++
	}
}

// removeLocked removes the map entry before releasing the handle, so a
// released handle is never reachable through the cache.
func (c *Cache) removeLocked(key string) {
	entry, ok := c.entries[key]
	if !ok {
		return
	}
	delete(c.entries, key)
	c.stats.StoredSize -= int64(entry.Handle.StoredSize())
	entry.Handle.Release()
}

// Len reports the current entry count.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	stats := c.stats
	stats.Entries = len(c.entries)
	return stats
}

// Close releases every remaining entry. Used on orchestrator shutdown.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		c.removeLocked(key)
	}
}
