// Package searchcache implements the query result cache used by the search
// coordinator: TTL varies with tier stability and result-set size, and
// eviction prefers expired entries, then the least important ones.
package searchcache

import (
	"fmt"
	"hash/fnv"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/blackms/memtier-go/internal/shared"
)

// Config tunes the query cache.
type Config struct {
	// Capacity bounds the number of cached entries.
	Capacity int
	// Adaptive switches overflow eviction from a FIFO backstop (oldest
	// 10%) to importance-scored eviction (lowest-scored 25%).
	Adaptive bool
	// SmallResultThreshold marks result sets that earn a TTL boost;
	// fewer results means a recomputation is cheap to get wrong, so they
	// are kept longer.
	SmallResultThreshold int
	// SmallResultBoost multiplies the base TTL for small result sets.
	// Valid range is 1.5 to 2.0.
	SmallResultBoost float64
	// Clock overrides the time source for expiry decisions. Nil means
	// time.Now.
	Clock func() time.Time
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:             1000,
		Adaptive:             true,
		SmallResultThreshold: 20,
		SmallResultBoost:     1.5,
	}
}

// Entry is one cached result set.
type Entry struct {
	Key       string
	Results   []shared.SearchResult
	CreatedAt time.Time
	TTL       time.Duration
	Tier      shared.Tier
	Options   shared.SearchOptions
}

func (e *Entry) expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) >= e.TTL
}

// importance scores an entry for adaptive eviction: bigger result sets and
// more stable tiers are worth keeping, older entries less so.
func (e *Entry) importance(now time.Time) float64 {
	score := float64(len(e.Results)) * 10
	switch e.Tier {
	case shared.TierAssets:
		score += 50
	case shared.TierInsights:
		score += 30
	case shared.TierInteract:
		score += 10
	}
	score -= now.Sub(e.CreatedAt).Minutes()
	return score
}

// Cache is a capacity-bounded query cache. Operations are linearizable per
// key under the cache's own lock. Safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	config  Config
	entries map[string]*Entry
	order   []string // insertion order, FIFO eviction backstop
	hits    uint64
	misses  uint64
	now     func() time.Time
}

// New creates an empty cache.
func New(config Config) *Cache {
	if config.Capacity <= 0 {
		config.Capacity = 1000
	}
	if config.SmallResultThreshold <= 0 {
		config.SmallResultThreshold = 20
	}
	if config.SmallResultBoost < 1.5 {
		config.SmallResultBoost = 1.5
	} else if config.SmallResultBoost > 2.0 {
		config.SmallResultBoost = 2.0
	}
	now := config.Clock
	if now == nil {
		now = time.Now
	}
	return &Cache{
		config:  config,
		entries: make(map[string]*Entry),
		now:     now,
	}
}

// Key derives the cache key for a (query, tier, options) triple.
func Key(query string, tier shared.Tier, opts shared.SearchOptions) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%s|%d|%.4f|%s|%s",
		query, tier, opts.TopK, opts.ScoreThreshold,
		strings.Join(opts.Tags, ","), opts.Project)
	return fmt.Sprintf("%x", h.Sum64())
}

// BaseTTL returns the per-tier time-to-live: more durable tiers change less
// often, so their results stay fresh longer.
func BaseTTL(tier shared.Tier) time.Duration {
	switch tier {
	case shared.TierAssets:
		return 30 * time.Minute
	case shared.TierInsights:
		return 10 * time.Minute
	default:
		return 3 * time.Minute
	}
}

// Get returns the cached results for key, or (nil, false) on miss or expiry.
// Callers receive a deep copy and may mutate it freely.
func (c *Cache) Get(key string) ([]shared.SearchResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}
	if entry.expired(c.now()) {
		c.removeLocked(key)
		c.misses++
		return nil, false
	}
	c.hits++
	return shared.CloneResults(entry.Results), true
}

// Put stores a result set under key with the adaptive TTL for its tier and
// size, evicting as needed.
func (c *Cache) Put(key string, tier shared.Tier, opts shared.SearchOptions, results []shared.SearchResult) {
	ttl := BaseTTL(tier)
	if len(results) < c.config.SmallResultThreshold {
		ttl = time.Duration(float64(ttl) * c.config.SmallResultBoost)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; exists {
		c.removeLocked(key)
	}
	if len(c.entries) >= c.config.Capacity {
		c.evictLocked()
	}

	c.entries[key] = &Entry{
		Key:       key,
		Results:   shared.CloneResults(results),
		CreatedAt: c.now(),
		TTL:       ttl,
		Tier:      tier,
		Options:   opts,
	}
	c.order = append(c.order, key)
}

// evictLocked frees room for one insertion. Expired entries go first; if the
// cache is still full, either the oldest 10% (FIFO) or the lowest-scored 25%
// (adaptive) are dropped.
func (c *Cache) evictLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if entry.expired(now) {
			c.removeLocked(key)
		}
	}
	if len(c.entries) < c.config.Capacity {
		return
	}

	if c.config.Adaptive {
		type scored struct {
			key   string
			score float64
		}
		candidates := make([]scored, 0, len(c.entries))
		for key, entry := range c.entries {
			candidates = append(candidates, scored{key: key, score: entry.importance(now)})
		}
		sort.Slice(candidates, func(i, j int) bool {
			return candidates[i].score < candidates[j].score
		})
		drop := len(candidates) / 4
		if drop < 1 {
			drop = 1
		}
		for _, cand := range candidates[:drop] {
			c.removeLocked(cand.key)
		}
		return
	}

	drop := len(c.order) / 10
	if drop < 1 {
		drop = 1
	}
	oldest := make([]string, drop)
	copy(oldest, c.order[:drop])
	for _, key := range oldest {
		c.removeLocked(key)
	}
}

func (c *Cache) removeLocked(key string) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear drops every entry, leaving counters intact.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)
	c.order = nil
}

// Stats returns the hit/miss counters.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}
