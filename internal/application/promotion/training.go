package promotion

import (
	"context"
	"math/rand"

	domainpromo "github.com/blackms/memtier-go/internal/domain/promotion"
	"github.com/blackms/memtier-go/internal/shared"
)

// trainingTarget is the minimum example count; smaller corpora are padded
// with noisy copies so a scorer never trains on a handful of rows.
const trainingTarget = 1000

// trainingSampleLimit caps how many records each tier contributes.
const trainingSampleLimit = 1000

// labelFor assigns a heuristic training label from tier placement and age.
// Records that earned a stable tier are positive examples; stale interact
// records that nobody touched are negatives. Everything else is ambiguous
// and excluded.
func labelFor(record *shared.Record) (float64, bool) {
	age := record.AgeHours()
	switch record.Tier {
	case shared.TierAssets:
		if age >= 24 {
			return 1.0, true
		}
	case shared.TierInsights:
		if age >= 12 {
			return 0.7, true
		}
	case shared.TierInteract:
		if age >= 48 && record.AccessCount < 3 {
			return 0.1, true
		}
	}
	return 0, false
}

// prepareTrainingData builds a labeled, normalized, shuffled data set from
// the repository. The RNG is injected so runs are reproducible.
func prepareTrainingData(ctx context.Context, repo shared.StorageRepository, extractor *Extractor, normalizer *Normalizer, rng *rand.Rand) ([]domainpromo.TrainingExample, error) {
	var examples []domainpromo.TrainingExample
	for _, tier := range shared.AllTiers() {
		records, err := repo.List(ctx, tier, trainingSampleLimit)
		if err != nil {
			return nil, err
		}
		for _, record := range records {
			label, ok := labelFor(record)
			if !ok {
				continue
			}
			features, err := extractor.Extract(ctx, record)
			if err != nil {
				continue
			}
			features = ApplyEngineering(features, record)
			examples = append(examples, domainpromo.TrainingExample{
				Features: normalizer.Normalize(features),
				Label:    label,
			})
		}
	}

	if len(examples) > 0 && len(examples) < trainingTarget {
		examples = augment(examples, trainingTarget, rng)
	}

	rng.Shuffle(len(examples), func(i, j int) {
		examples[i], examples[j] = examples[j], examples[i]
	})
	return examples, nil
}

// augment pads the set to target by cloning existing examples with small
// Gaussian noise on the features. Labels are preserved.
func augment(examples []domainpromo.TrainingExample, target int, rng *rand.Rand) []domainpromo.TrainingExample {
	base := len(examples)
	for i := 0; len(examples) < target; i++ {
		src := examples[i%base]
		examples = append(examples, domainpromo.TrainingExample{
			Features: perturb(src.Features, rng),
			Label:    src.Label,
		})
	}
	return examples
}

// perturb jitters a feature vector. Z-scored features get wider noise than
// the bounded [0,1] scores.
func perturb(f domainpromo.Features, rng *rand.Rand) domainpromo.Features {
	wide := func(v float64) float64 { return v + rng.NormFloat64()*0.1 }
	narrow := func(v float64) float64 { return clamp01(v + rng.NormFloat64()*0.02) }

	f.AgeHours = wide(f.AgeHours)
	f.AccessCount = wide(f.AccessCount)
	f.AccessFrequency = wide(f.AccessFrequency)
	f.SemanticImportance = wide(f.SemanticImportance)

	f.AccessRecency = narrow(f.AccessRecency)
	f.TemporalPatternScore = narrow(f.TemporalPatternScore)
	f.SessionImportance = narrow(f.SessionImportance)
	f.KeywordDensity = narrow(f.KeywordDensity)
	f.TopicRelevance = narrow(f.TopicRelevance)
	f.LayerAffinity = narrow(f.LayerAffinity)
	f.CoOccurrenceScore = narrow(f.CoOccurrenceScore)
	f.UserPreferenceScore = narrow(f.UserPreferenceScore)
	return f
}
