package promotion

import (
	"math"
	"sort"
	"sync"
	"time"

	domainpromo "github.com/blackms/memtier-go/internal/domain/promotion"
)

// FeatureCacheConfig tunes the per-record feature cache.
type FeatureCacheConfig struct {
	// TTL is how long a computed feature vector stays valid.
	TTL time.Duration
	// DriftTolerance invalidates an entry once the record's access count
	// has moved further than this from the cached computation.
	DriftTolerance uint32
	// Capacity bounds the cache.
	Capacity int
}

// DefaultFeatureCacheConfig returns the production defaults.
func DefaultFeatureCacheConfig() FeatureCacheConfig {
	return FeatureCacheConfig{
		TTL:            24 * time.Hour,
		DriftTolerance: 2,
		Capacity:       10000,
	}
}

type featureEntry struct {
	features    domainpromo.Features
	accessCount uint32
	computedAt  time.Time
}

// FeatureCache memoizes feature vectors by record id, tolerating small
// access-count drift. Safe for concurrent use.
type FeatureCache struct {
	mu      sync.Mutex
	config  FeatureCacheConfig
	entries map[string]featureEntry
	now     func() time.Time
}

// NewFeatureCache creates an empty cache.
func NewFeatureCache(config FeatureCacheConfig) *FeatureCache {
	if config.TTL <= 0 {
		config.TTL = 24 * time.Hour
	}
	if config.Capacity <= 0 {
		config.Capacity = 10000
	}
	return &FeatureCache{
		config:  config,
		entries: make(map[string]featureEntry),
		now:     time.Now,
	}
}

// Get returns the cached features for a record if they are fresh and the
// access count has not drifted past tolerance.
func (c *FeatureCache) Get(id string, currentAccessCount uint32) (domainpromo.Features, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[id]
	if !ok {
		return domainpromo.Features{}, false
	}
	if c.now().Sub(entry.computedAt) >= c.config.TTL {
		delete(c.entries, id)
		return domainpromo.Features{}, false
	}
	drift := math.Abs(float64(currentAccessCount) - float64(entry.accessCount))
	if drift > float64(c.config.DriftTolerance) {
		delete(c.entries, id)
		return domainpromo.Features{}, false
	}
	return entry.features, true
}

// Put stores a computed vector, evicting expired entries first and then the
// oldest when full.
func (c *FeatureCache) Put(id string, accessCount uint32, features domainpromo.Features) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if len(c.entries) >= c.config.Capacity {
		for key, entry := range c.entries {
			if now.Sub(entry.computedAt) >= c.config.TTL {
				delete(c.entries, key)
			}
		}
	}
	if len(c.entries) >= c.config.Capacity {
		c.evictOldestLocked()
	}

	c.entries[id] = featureEntry{
		features:    features,
		accessCount: accessCount,
		computedAt:  now,
	}
}

// evictOldestLocked drops the oldest tenth of the entries.
func (c *FeatureCache) evictOldestLocked() {
	type aged struct {
		id string
		at time.Time
	}
	all := make([]aged, 0, len(c.entries))
	for id, entry := range c.entries {
		all = append(all, aged{id: id, at: entry.computedAt})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	drop := len(all) / 10
	if drop < 1 {
		drop = 1
	}
	for _, a := range all[:drop] {
		delete(c.entries, a.id)
	}
}

// Invalidate removes one record's entry.
func (c *FeatureCache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.entries, id)
	c.mu.Unlock()
}

// Len returns the number of cached vectors.
func (c *FeatureCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
