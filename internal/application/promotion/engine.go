package promotion

import (
	"context"
	"math/rand"
	"sync"

	domainpromo "github.com/blackms/memtier-go/internal/domain/promotion"
	"github.com/blackms/memtier-go/internal/shared"
)

// ============================================================================
// Engine
// ============================================================================

// EngineConfig tunes feature extraction.
type EngineConfig struct {
	// EnableEngineering applies the derived-feature overwrites after raw
	// extraction.
	EnableEngineering bool `json:"enableEngineering"`

	// Cache configures the per-record feature cache.
	Cache FeatureCacheConfig `json:"cache"`

	// TrainingSeed seeds the RNG used for shuffling and augmentation so
	// training runs are reproducible.
	TrainingSeed int64 `json:"trainingSeed"`
}

// DefaultEngineConfig returns production extraction settings.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		EnableEngineering: true,
		Cache:             DefaultFeatureCacheConfig(),
		TrainingSeed:      42,
	}
}

// Engine produces feature vectors and training data for the promotion
// pipeline. Extraction results are cached per record and invalidated when
// the record's access count drifts past the cache tolerance.
type Engine struct {
	config     EngineConfig
	extractor  *Extractor
	normalizer *Normalizer
	cache      *FeatureCache
	repo       shared.StorageRepository

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewEngine wires the extraction pipeline. The normalizer may come from
// NewNormalizer (repository-fitted) or NewDefaultNormalizer (fallback stats).
func NewEngine(config EngineConfig, extractor *Extractor, normalizer *Normalizer, repo shared.StorageRepository) *Engine {
	return &Engine{
		config:     config,
		extractor:  extractor,
		normalizer: normalizer,
		cache:      NewFeatureCache(config.Cache),
		repo:       repo,
		rng:        rand.New(rand.NewSource(config.TrainingSeed)),
	}
}

// ExtractFeatures returns the (optionally engineered) raw feature vector for
// a record, serving from cache when the record has not drifted.
func (e *Engine) ExtractFeatures(ctx context.Context, record *shared.Record) (domainpromo.Features, error) {
	if record == nil {
		return domainpromo.Features{}, shared.Validationf("nil record")
	}
	if cached, ok := e.cache.Get(record.ID, record.AccessCount); ok {
		return cached, nil
	}

	features, err := e.extractor.Extract(ctx, record)
	if err != nil {
		return domainpromo.Features{}, err
	}
	if e.config.EnableEngineering {
		features = ApplyEngineering(features, record)
	}

	e.cache.Put(record.ID, record.AccessCount, features)
	return features, nil
}

// Normalize z-scores the unbounded features of a vector.
func (e *Engine) Normalize(features domainpromo.Features) domainpromo.Features {
	return e.normalizer.Normalize(features)
}

// InvalidateFeatures drops a record's cached vector, e.g. after promotion.
func (e *Engine) InvalidateFeatures(id string) {
	e.cache.Invalidate(id)
}

// PrepareTrainingData assembles a labeled, normalized, shuffled training set
// from the repository, padding small corpora with augmented copies.
func (e *Engine) PrepareTrainingData(ctx context.Context) ([]domainpromo.TrainingExample, error) {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return prepareTrainingData(ctx, e.repo, e.extractor, e.normalizer, e.rng)
}
