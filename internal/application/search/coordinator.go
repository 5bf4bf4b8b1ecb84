// Package search implements the search coordinator: the admission-controlled,
// cached, circuit-broken front door for queries against the tiered store.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	domainsearch "github.com/blackms/memtier-go/internal/domain/search"
	"github.com/blackms/memtier-go/internal/infrastructure/resilience"
	"github.com/blackms/memtier-go/internal/infrastructure/searchcache"
	"github.com/blackms/memtier-go/internal/shared"
)

// Config tunes the coordinator.
type Config struct {
	// Permits bounds concurrent in-flight searches; further requests
	// queue on the semaphore.
	Permits int
	// TextTimeout is the hard per-attempt budget for text-query index
	// calls.
	TextTimeout time.Duration
	// VectorTimeout is the stricter budget for raw vector searches.
	VectorTimeout time.Duration
	// RerankMultiplier sizes the candidate set for reranking relative to
	// the requested top-k.
	RerankMultiplier int
	// RerankCandidateCap bounds the candidate set regardless of top-k.
	RerankCandidateCap int

	Cache   searchcache.Config
	Breaker resilience.BreakerConfig
	Retry   resilience.RetryConfig
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Permits:            32,
		TextTimeout:        100 * time.Millisecond,
		VectorTimeout:      50 * time.Millisecond,
		RerankMultiplier:   3,
		RerankCandidateCap: 100,
		Cache:              searchcache.DefaultConfig(),
		Breaker:            resilience.DefaultBreakerConfig(),
		Retry:              resilience.DefaultRetryConfig(),
	}
}

// Coordinator serves ranked records within a latency budget, degrading
// gracefully under failure or load. All dependencies are injected; there is
// no ambient state.
type Coordinator struct {
	config   Config
	embedder domainsearch.EmbeddingProvider
	index    domainsearch.VectorIndex
	reranker domainsearch.Reranker
	cache    *searchcache.Cache
	guard    *resilience.Guard
	permits  chan struct{}
	metrics  *metrics
	logger   *slog.Logger
}

// Option configures optional coordinator dependencies.
type Option func(*Coordinator)

// WithReranker attaches a reranking model.
func WithReranker(r domainsearch.Reranker) Option {
	return func(c *Coordinator) { c.reranker = r }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = logger }
}

// NewCoordinator wires a coordinator from its required dependencies.
func NewCoordinator(config Config, embedder domainsearch.EmbeddingProvider, index domainsearch.VectorIndex, opts ...Option) *Coordinator {
	if config.Permits <= 0 {
		config.Permits = 32
	}
	if config.TextTimeout <= 0 {
		config.TextTimeout = 100 * time.Millisecond
	}
	if config.VectorTimeout <= 0 {
		config.VectorTimeout = 50 * time.Millisecond
	}
	if config.RerankMultiplier <= 0 {
		config.RerankMultiplier = 3
	}
	if config.RerankCandidateCap <= 0 {
		config.RerankCandidateCap = 100
	}

	c := &Coordinator{
		config:   config,
		embedder: embedder,
		index:    index,
		cache:    searchcache.New(config.Cache),
		guard:    resilience.NewGuard(resilience.NewCircuitBreaker(config.Breaker), resilience.NewRetryPolicy(config.Retry)),
		permits:  make(chan struct{}, config.Permits),
		metrics:  newMetrics(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search returns ranked records for a text query. Cache hits return without
// touching the index; misses go through the breaker, the embedder, and the
// index under the text timeout.
func (c *Coordinator) Search(ctx context.Context, query string, tier shared.Tier, opts shared.SearchOptions) ([]shared.SearchResult, error) {
	if query == "" {
		return nil, shared.Validationf("empty query")
	}
	if !tier.Valid() {
		return nil, shared.Validationf("unknown tier %q", tier)
	}
	if opts.TopK <= 0 {
		opts.TopK = shared.DefaultSearchOptions().TopK
	}

	start := time.Now()
	c.metrics.recordSearchStart()

	release, err := c.acquire(ctx)
	if err != nil {
		c.metrics.recordFailure()
		return nil, err
	}
	defer release()

	key := searchcache.Key(query, tier, opts)
	if cached, ok := c.cache.Get(key); ok {
		c.metrics.recordSuccess(time.Since(start))
		return cached, nil
	}

	results, err := c.searchIndex(ctx, query, tier, opts)
	if err != nil {
		c.metrics.recordFailure()
		return nil, err
	}

	c.cache.Put(key, tier, opts, results)
	c.metrics.recordSuccess(time.Since(start))
	return results, nil
}

// VectorSearch searches with a caller-supplied vector. It skips embedding
// and caching and runs under the stricter vector timeout.
func (c *Coordinator) VectorSearch(ctx context.Context, vector []float32, tier shared.Tier, opts shared.SearchOptions) ([]shared.SearchResult, error) {
	if len(vector) == 0 {
		return nil, shared.Validationf("empty query vector")
	}
	if !tier.Valid() {
		return nil, shared.Validationf("unknown tier %q", tier)
	}
	if opts.TopK <= 0 {
		opts.TopK = shared.DefaultSearchOptions().TopK
	}

	start := time.Now()
	c.metrics.recordSearchStart()

	release, err := c.acquire(ctx)
	if err != nil {
		c.metrics.recordFailure()
		return nil, err
	}
	defer release()

	results, err := c.guardedIndexSearch(ctx, vector, tier, opts, c.config.VectorTimeout)
	if err != nil {
		c.metrics.recordFailure()
		return nil, err
	}
	c.metrics.recordSuccess(time.Since(start))
	return results, nil
}

// HybridSearch dispatches to VectorSearch when a vector is supplied,
// otherwise to Search.
func (c *Coordinator) HybridSearch(ctx context.Context, query string, vector []float32, tier shared.Tier, opts shared.SearchOptions) ([]shared.SearchResult, error) {
	if len(vector) > 0 {
		return c.VectorSearch(ctx, vector, tier, opts)
	}
	return c.Search(ctx, query, tier, opts)
}

// SearchWithRerank over-fetches candidates and reorders them with the
// reranking model, falling back silently to similarity order when the model
// is missing or fails.
func (c *Coordinator) SearchWithRerank(ctx context.Context, query string, tier shared.Tier, opts shared.SearchOptions, rerankTopK int) ([]shared.SearchResult, error) {
	if rerankTopK <= 0 {
		rerankTopK = shared.DefaultSearchOptions().TopK
	}

	candidateK := rerankTopK * c.config.RerankMultiplier
	if candidateK > c.config.RerankCandidateCap {
		candidateK = c.config.RerankCandidateCap
	}
	candidateOpts := opts
	candidateOpts.TopK = candidateK

	candidates, err := c.Search(ctx, query, tier, candidateOpts)
	if err != nil {
		return nil, err
	}
	if len(candidates) <= rerankTopK {
		return candidates, nil
	}
	if c.reranker == nil {
		return candidates[:rerankTopK], nil
	}

	texts := make([]string, len(candidates))
	for i, cand := range candidates {
		texts[i] = cand.Record.Content
	}
	scores, err := c.reranker.Rerank(ctx, query, texts)
	if err != nil || len(scores) != len(candidates) {
		c.logger.Debug("rerank failed, keeping similarity order", "error", err)
		return candidates[:rerankTopK], nil
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].Score > scores[j].Score })
	reranked := make([]shared.SearchResult, 0, rerankTopK)
	for _, s := range scores[:rerankTopK] {
		result := candidates[s.Index]
		result.Score = s.Score
		reranked = append(reranked, result)
	}
	c.metrics.recordRerank()
	return reranked, nil
}

// Metrics returns a copy of the coordinator counters.
func (c *Coordinator) Metrics() domainsearch.Metrics {
	m := c.metrics.snapshot()
	m.CacheHits, m.CacheMisses = c.cache.Stats()
	m.BreakerState = string(c.guard.Breaker.State())
	return m
}

// BreakerSnapshot exposes breaker internals for diagnostics.
func (c *Coordinator) BreakerSnapshot() resilience.BreakerSnapshot {
	return c.guard.Breaker.Snapshot()
}

// InvalidateCache drops all cached results.
func (c *Coordinator) InvalidateCache() {
	c.cache.Clear()
}

// ============================================================================
// Internals
// ============================================================================

// acquire takes a concurrency permit, queuing until one frees up or the
// caller's context expires.
func (c *Coordinator) acquire(ctx context.Context) (func(), error) {
	select {
	case c.permits <- struct{}{}:
		return func() { <-c.permits }, nil
	case <-ctx.Done():
		return nil, shared.Timeoutf("waiting for search permit: %v", ctx.Err())
	}
}

// searchIndex embeds the query and runs the guarded index call.
func (c *Coordinator) searchIndex(ctx context.Context, query string, tier shared.Tier, opts shared.SearchOptions) ([]shared.SearchResult, error) {
	if err := c.guard.Breaker.Allow(); err != nil {
		return nil, err
	}

	embedStart := time.Now()
	vector, err := c.embedder.Embed(ctx, query)
	c.metrics.recordEmbedLatency(time.Since(embedStart))
	if err != nil {
		c.guard.Breaker.RecordFailure()
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var results []shared.SearchResult
	err = c.guard.Retry.Execute(ctx, func(ctx context.Context) error {
		found, err := c.indexAttempt(ctx, vector, tier, opts.TopK, c.config.TextTimeout)
		if err != nil {
			return err
		}
		results = found
		return nil
	})
	if err != nil {
		c.guard.Breaker.RecordFailure()
		return nil, err
	}
	c.guard.Breaker.RecordSuccess()
	return filterResults(results, opts), nil
}

// guardedIndexSearch is the vector-search path: the guard composes breaker
// and retry around the index attempt, no embedding step.
func (c *Coordinator) guardedIndexSearch(ctx context.Context, vector []float32, tier shared.Tier, opts shared.SearchOptions, timeout time.Duration) ([]shared.SearchResult, error) {
	var results []shared.SearchResult
	err := c.guard.Do(ctx, func(ctx context.Context) error {
		found, err := c.indexAttempt(ctx, vector, tier, opts.TopK, timeout)
		if err != nil {
			return err
		}
		results = found
		return nil
	})
	if err != nil {
		return nil, err
	}
	return filterResults(results, opts), nil
}

// indexAttempt is one index call under the per-attempt hard timeout.
func (c *Coordinator) indexAttempt(ctx context.Context, vector []float32, tier shared.Tier, topK int, timeout time.Duration) ([]shared.SearchResult, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	found, err := c.index.Search(attemptCtx, vector, tier, topK)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, shared.Timeoutf("vector index exceeded %v", timeout)
		}
		return nil, fmt.Errorf("vector index: %w", err)
	}
	return found, nil
}

// filterResults applies the score threshold and metadata filters, keeping
// similarity order and the top-k bound.
func filterResults(results []shared.SearchResult, opts shared.SearchOptions) []shared.SearchResult {
	filtered := make([]shared.SearchResult, 0, len(results))
	for _, res := range results {
		if opts.ScoreThreshold > 0 && res.Score < opts.ScoreThreshold {
			continue
		}
		if opts.Project != "" && res.Record.Metadata.Project != opts.Project {
			continue
		}
		if len(opts.Tags) > 0 && !hasAllTags(res.Record.Metadata.Tags, opts.Tags) {
			continue
		}
		filtered = append(filtered, res)
		if len(filtered) == opts.TopK {
			break
		}
	}
	return filtered
}

func hasAllTags(have, want []string) bool {
	set := make(map[string]struct{}, len(have))
	for _, tag := range have {
		set[tag] = struct{}{}
	}
	for _, tag := range want {
		if _, ok := set[tag]; !ok {
			return false
		}
	}
	return true
}
