// Package promotion implements the promotion engine: per-record feature
// extraction, training-data assembly, and the domain service that moves
// records between tiers.
package promotion

import (
	"context"
	"fmt"

	domainpromo "github.com/blackms/memtier-go/internal/domain/promotion"
	"github.com/blackms/memtier-go/internal/shared"
)

// Extractor derives the raw feature vector for a record from the usage and
// semantic collaborators.
type Extractor struct {
	usage    domainpromo.UsageAnalyzer
	semantic domainpromo.SemanticAnalyzer
}

// NewExtractor wires an extractor.
func NewExtractor(usage domainpromo.UsageAnalyzer, semantic domainpromo.SemanticAnalyzer) *Extractor {
	return &Extractor{usage: usage, semantic: semantic}
}

// Extract computes the feature vector for one record.
func (e *Extractor) Extract(ctx context.Context, record *shared.Record) (domainpromo.Features, error) {
	if record == nil {
		return domainpromo.Features{}, shared.Validationf("nil record")
	}

	importance, err := e.semantic.AnalyzeImportance(ctx, record.Content)
	if err != nil {
		return domainpromo.Features{}, fmt.Errorf("analyze importance for %s: %w", record.ID, err)
	}
	relevance, err := e.semantic.GetTopicRelevance(ctx, record.Content)
	if err != nil {
		return domainpromo.Features{}, fmt.Errorf("topic relevance for %s: %w", record.ID, err)
	}

	return domainpromo.Features{
		AgeHours:             record.AgeHours(),
		AccessRecency:        e.usage.CalculateAccessRecency(record),
		TemporalPatternScore: e.usage.GetTemporalPatternScore(record.ID),

		AccessCount:       float64(record.AccessCount),
		AccessFrequency:   e.usage.CalculateAccessFrequency(record),
		SessionImportance: sessionImportance(record.Tier),

		SemanticImportance: clamp01(importance),
		KeywordDensity:     e.semantic.CalculateKeywordDensity(record.Content),
		TopicRelevance:     clamp01(relevance),

		LayerAffinity:       layerAffinity(record.Tier, record.AccessCount),
		CoOccurrenceScore:   coOccurrence(record),
		UserPreferenceScore: 0.5,
	}, nil
}

// sessionImportance is the tier heuristic: more durable tiers carry more
// session weight.
func sessionImportance(tier shared.Tier) float64 {
	switch tier {
	case shared.TierAssets:
		return 0.9
	case shared.TierInsights:
		return 0.6
	default:
		return 0.3
	}
}

// layerAffinity says how well a record fits its current tier given its
// access pattern; a poor fit is a promotion signal.
func layerAffinity(tier shared.Tier, accessCount uint32) float64 {
	switch tier {
	case shared.TierAssets:
		return 1.0
	case shared.TierInsights:
		if accessCount < 10 {
			return 0.5
		}
		return 0.9
	default:
		if accessCount < 3 {
			return 0.2
		}
		return 0.8
	}
}

// coOccurrence approximates how connected a record is to its context:
// session membership and tagging both raise it.
func coOccurrence(record *shared.Record) float64 {
	score := 0.2 * float64(len(record.Metadata.Tags))
	if record.Metadata.Session != "" {
		score += 0.3
	}
	return clamp01(score)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
