package embeddings

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
)

// CacheConfig tunes the embedding cache.
type CacheConfig struct {
	// MaxCostBytes bounds the cache by the byte size of stored vectors.
	MaxCostBytes int64
	// TTL is how long a cached embedding stays valid.
	TTL time.Duration
}

// DefaultCacheConfig returns the production defaults: 64MB of vectors kept
// for an hour.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		MaxCostBytes: 64 << 20,
		TTL:          time.Hour,
	}
}

// CachedProvider wraps a provider with a ristretto cache keyed by an
// FNV-64a digest of the text.
type CachedProvider struct {
	inner  Provider
	cache  *ristretto.Cache
	ttl    time.Duration
	hits   atomic.Uint64
	misses atomic.Uint64
}

// Provider is the minimal surface CachedProvider needs from its inner
// provider.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Name() string
}

// NewCachedProvider wraps inner with a cache.
func NewCachedProvider(inner Provider, config CacheConfig) (*CachedProvider, error) {
	if config.MaxCostBytes <= 0 {
		config.MaxCostBytes = 64 << 20
	}
	if config.TTL <= 0 {
		config.TTL = time.Hour
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: config.MaxCostBytes / 256,
		MaxCost:     config.MaxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache init: %w", err)
	}
	return &CachedProvider{inner: inner, cache: cache, ttl: config.TTL}, nil
}

// Embed returns a cached embedding when present, otherwise delegates and
// caches the result.
func (p *CachedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	key := cacheKey(text)
	if cached, found := p.cache.Get(key); found {
		if vec, ok := cached.([]float32); ok {
			p.hits.Add(1)
			return vec, nil
		}
	}
	p.misses.Add(1)

	vec, err := p.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	p.cache.SetWithTTL(key, vec, int64(len(vec)*4), p.ttl)
	return vec, nil
}

// Dimensions returns the inner provider's dimensionality.
func (p *CachedProvider) Dimensions() int { return p.inner.Dimensions() }

// Name identifies the wrapped provider.
func (p *CachedProvider) Name() string { return p.inner.Name() + "+cache" }

// Stats returns the hit/miss counters.
func (p *CachedProvider) Stats() (hits, misses uint64) {
	return p.hits.Load(), p.misses.Load()
}

// Wait blocks until pending cache writes are applied. Tests use it.
func (p *CachedProvider) Wait() { p.cache.Wait() }

// Close releases the cache.
func (p *CachedProvider) Close() error {
	p.cache.Close()
	return nil
}

func cacheKey(text string) string {
	h := fnv.New64a()
	h.Write([]byte(text))
	return fmt.Sprintf("emb:%x", h.Sum64())
}
