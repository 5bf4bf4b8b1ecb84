package promotion

import (
	"context"
	"math"

	domainpromo "github.com/blackms/memtier-go/internal/domain/promotion"
	"github.com/blackms/memtier-go/internal/shared"
)

// featureStats is the corpus mean and standard deviation of one feature.
type featureStats struct {
	mean float64
	std  float64
}

// Fallback statistics used when the corpus is empty at startup.
var fallbackStats = map[string]featureStats{
	"age_hours":           {mean: 24, std: 24},
	"access_count":        {mean: 5, std: 10},
	"access_frequency":    {mean: 0.3, std: 0.2},
	"semantic_importance": {mean: 0.5, std: 0.2},
}

// normalizeClamp bounds z-scores.
const normalizeClamp = 3.0

// statsSampleLimit caps how many records per tier the startup sampling reads.
const statsSampleLimit = 1000

// Normalizer z-scores the unbounded features against corpus-wide statistics
// sampled once at startup, clamping to [-3, 3].
type Normalizer struct {
	ageHours           featureStats
	accessCount        featureStats
	accessFrequency    featureStats
	semanticImportance featureStats
}

// NewNormalizer samples up to 1000 records per tier from the repository and
// fits the statistics, falling back to fixed defaults on an empty corpus.
func NewNormalizer(ctx context.Context, repo shared.StorageRepository, usage domainpromo.UsageAnalyzer) (*Normalizer, error) {
	var ages, counts, freqs, importances []float64
	for _, tier := range shared.AllTiers() {
		records, err := repo.List(ctx, tier, statsSampleLimit)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			ages = append(ages, record.AgeHours())
			counts = append(counts, float64(record.AccessCount))
			freqs = append(freqs, usage.CalculateAccessFrequency(record))
			importances = append(importances, record.Score)
		}
	}
	return &Normalizer{
		ageHours:           fitStats(ages, fallbackStats["age_hours"]),
		accessCount:        fitStats(counts, fallbackStats["access_count"]),
		accessFrequency:    fitStats(freqs, fallbackStats["access_frequency"]),
		semanticImportance: fitStats(importances, fallbackStats["semantic_importance"]),
	}, nil
}

// NewDefaultNormalizer uses the fixed fallback statistics only.
func NewDefaultNormalizer() *Normalizer {
	return &Normalizer{
		ageHours:           fallbackStats["age_hours"],
		accessCount:        fallbackStats["access_count"],
		accessFrequency:    fallbackStats["access_frequency"],
		semanticImportance: fallbackStats["semantic_importance"],
	}
}

// Normalize z-scores the unbounded features. Bounded [0,1] features pass
// through untouched.
func (n *Normalizer) Normalize(features domainpromo.Features) domainpromo.Features {
	features.AgeHours = zScore(features.AgeHours, n.ageHours)
	features.AccessCount = zScore(features.AccessCount, n.accessCount)
	features.AccessFrequency = zScore(features.AccessFrequency, n.accessFrequency)
	features.SemanticImportance = zScore(features.SemanticImportance, n.semanticImportance)
	return features
}

func zScore(v float64, stats featureStats) float64 {
	std := stats.std
	if std == 0 {
		std = 1
	}
	z := (v - stats.mean) / std
	if z > normalizeClamp {
		return normalizeClamp
	}
	if z < -normalizeClamp {
		return -normalizeClamp
	}
	return z
}

// fitStats computes mean/std of samples, falling back when there is no data
// or no variance.
func fitStats(samples []float64, fallback featureStats) featureStats {
	if len(samples) == 0 {
		return fallback
	}
	var sum float64
	for _, s := range samples {
		sum += s
	}
	mean := sum / float64(len(samples))

	var variance float64
	for _, s := range samples {
		variance += (s - mean) * (s - mean)
	}
	std := math.Sqrt(variance / float64(len(samples)))
	if std == 0 {
		std = fallback.std
	}
	return featureStats{mean: mean, std: std}
}
