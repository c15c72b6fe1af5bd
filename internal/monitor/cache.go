package monitor

import (
	"sync"
	"time"

	"github.com/roach88/semledger/internal/integrity"
)

// Cache defaults.
const (
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheMaxEntries = 1000
)

// CacheKey identifies a chain state at a validation level. Any append
// changes the length and the tail hash.
type CacheKey struct {
	Length   int
	TailHash string
	Level    Level
}

type cacheEntry struct {
	report *integrity.Report
	stored time.Time
}

// CacheStats is a snapshot of cache counters.
type CacheStats struct {
	Entries   int     `json:"entries"`
	Hits      uint64  `json:"hits"`
	Misses    uint64  `json:"misses"`
	Evictions uint64  `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// Cache holds validation reports for a bounded time. It stores and returns
// clones, so callers may modify what they get.
type Cache struct {
	mu         sync.Mutex
	entries    map[CacheKey]cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	hits, misses, evictions uint64
}

// NewCache creates a cache. Non-positive arguments take the defaults.
func NewCache(ttl time.Duration, maxEntries int) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &Cache{
		entries:    make(map[CacheKey]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns a clone of the cached report for key, if fresh.
func (c *Cache) Get(key CacheKey) (*integrity.Report, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if ok && c.now().Sub(e.stored) > c.ttl {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		c.misses++
		return nil, false
	}
	c.hits++
	return e.report.Clone(), true
}

// Put stores a clone of report, evicting the oldest entry when full.
func (c *Cache) Put(key CacheKey, report *integrity.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldest()
	}
	c.entries[key] = cacheEntry{report: report.Clone(), stored: c.now()}
}

func (c *Cache) evictOldest() {
	var (
		oldest   CacheKey
		oldestAt time.Time
		found    bool
	)
	for k, e := range c.entries {
		if !found || e.stored.Before(oldestAt) {
			oldest, oldestAt, found = k, e.stored, true
		}
	}
	if found {
		delete(c.entries, oldest)
		c.evictions++
	}
}

// Clear drops every entry. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := CacheStats{Entries: len(c.entries), Hits: c.hits, Misses: c.misses, Evictions: c.evictions}
	if total := c.hits + c.misses; total > 0 {
		st.HitRate = float64(c.hits) / float64(total)
	}
	return st
}
