// Package search defines the ports and metric types of the search
// coordinator.
package search

import (
	"context"

	"github.com/blackms/memtier-go/internal/shared"
)

// ============================================================================
// Ports
// ============================================================================

// EmbeddingProvider turns text into a fixed-dimensionality vector.
type EmbeddingProvider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding dimensionality.
	Dimensions() int

	// Name identifies the provider for logging.
	Name() string
}

// VectorIndex answers nearest-neighbor queries within one tier, sorted by
// similarity descending.
type VectorIndex interface {
	Search(ctx context.Context, vector []float32, tier shared.Tier, topK int) ([]shared.SearchResult, error)
}

// RerankScore pairs an original candidate position with its model score.
type RerankScore struct {
	// Index is the position of the candidate in the input slice.
	Index int `json:"index"`

	// Score is the model's relevance score for that candidate.
	Score float64 `json:"score"`
}

// Reranker reorders a candidate set against the query. Optional: a
// coordinator without one falls back to similarity order.
type Reranker interface {
	Rerank(ctx context.Context, query string, texts []string) ([]RerankScore, error)
}

// ============================================================================
// Metrics
// ============================================================================

// Metrics is a point-in-time copy of the coordinator's counters. Latencies
// are exponential moving averages with alpha 0.1.
type Metrics struct {
	TotalSearches      uint64  `json:"totalSearches"`
	SuccessfulSearches uint64  `json:"successfulSearches"`
	FailedSearches     uint64  `json:"failedSearches"`
	CacheHits          uint64  `json:"cacheHits"`
	CacheMisses        uint64  `json:"cacheMisses"`
	RerankOperations   uint64  `json:"rerankOperations"`
	AvgSearchLatencyMS float64 `json:"avgSearchLatencyMs"`
	AvgEmbedLatencyMS  float64 `json:"avgEmbedLatencyMs"`
	BreakerState       string  `json:"breakerState"`
}
