// Package index provides the vector index adapters used by the search
// coordinator: a brute-force scan over the storage repository and an
// embedded chromem collection per tier.
package index

import (
	"context"
	"math"
	"sort"

	"github.com/blackms/memtier-go/internal/shared"
)

// RecordSource is the slice of the storage repository the brute-force index
// needs.
type RecordSource interface {
	List(ctx context.Context, tier shared.Tier, limit int) ([]*shared.Record, error)
}

// BruteForce scans every embedded record of a tier and ranks by cosine
// similarity. Exact but linear; fine for the record counts SQLite holds.
type BruteForce struct {
	source   RecordSource
	scanSize int
}

// NewBruteForce creates an index over source. scanSize caps how many records
// one search will load; zero means 10000.
func NewBruteForce(source RecordSource, scanSize int) *BruteForce {
	if scanSize <= 0 {
		scanSize = 10000
	}
	return &BruteForce{source: source, scanSize: scanSize}
}

// Search returns the topK most similar records of a tier, descending.
func (b *BruteForce) Search(ctx context.Context, vector []float32, tier shared.Tier, topK int) ([]shared.SearchResult, error) {
	if len(vector) == 0 {
		return nil, shared.Validationf("empty query vector")
	}
	if topK <= 0 {
		topK = 10
	}

	records, err := b.source.List(ctx, tier, b.scanSize)
	if err != nil {
		return nil, err
	}

	results := make([]shared.SearchResult, 0, len(records))
	for _, record := range records {
		if len(record.Embedding) != len(vector) {
			continue
		}
		results = append(results, shared.SearchResult{
			Record: record,
			Score:  Cosine(vector, record.Embedding),
		})
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Cosine computes the cosine similarity of two equal-length vectors.
func Cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
