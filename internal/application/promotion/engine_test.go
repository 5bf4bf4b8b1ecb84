package promotion

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	domainpromo "github.com/blackms/memtier-go/internal/domain/promotion"
	"github.com/blackms/memtier-go/internal/shared"
)

// ============================================================================
// Stub analyzers
// ============================================================================

type stubUsage struct {
	frequency float64
	recency   float64
	pattern   float64
	accel     bool
}

func (u stubUsage) CalculateAccessFrequency(*shared.Record) float64 { return u.frequency }
func (u stubUsage) CalculateAccessRecency(*shared.Record) float64   { return u.recency }
func (u stubUsage) GetTemporalPatternScore(string) float64          { return u.pattern }
func (u stubUsage) HasAcceleration(string) bool                     { return u.accel }

type stubSemantic struct {
	importance float64
	relevance  float64
	density    float64
	err        error
}

func (s stubSemantic) AnalyzeImportance(context.Context, string) (float64, error) {
	return s.importance, s.err
}

func (s stubSemantic) GetTopicRelevance(context.Context, string) (float64, error) {
	return s.relevance, s.err
}

func (s stubSemantic) CalculateKeywordDensity(string) float64 { return s.density }

func testRecord(id string, tier shared.Tier, age time.Duration, accessCount uint32) *shared.Record {
	now := time.Now()
	return &shared.Record{
		ID:          id,
		Tier:        tier,
		Content:     "deployment notes for the search service. Latency regressed after rollout.",
		CreatedAt:   now.Add(-age),
		UpdatedAt:   now.Add(-age),
		AccessCount: accessCount,
		LastAccess:  now.Add(-time.Minute),
	}
}

// ============================================================================
// Extraction
// ============================================================================

func TestExtractBuildsFullVector(t *testing.T) {
	extractor := NewExtractor(
		stubUsage{frequency: 0.4, recency: 0.8, pattern: 0.6},
		stubSemantic{importance: 0.7, relevance: 0.9, density: 0.2},
	)
	record := testRecord("r1", shared.TierInsights, 10*time.Hour, 12)
	record.Metadata.Tags = []string{"deploy", "search"}
	record.Metadata.Session = "s1"

	features, err := extractor.Extract(context.Background(), record)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if features.AgeHours < 9.9 || features.AgeHours > 10.1 {
		t.Fatalf("AgeHours = %v, want ~10", features.AgeHours)
	}
	if features.AccessCount != 12 {
		t.Fatalf("AccessCount = %v, want 12", features.AccessCount)
	}
	if features.SessionImportance != 0.6 {
		t.Fatalf("SessionImportance = %v, want 0.6 for insights", features.SessionImportance)
	}
	if features.LayerAffinity != 0.9 {
		t.Fatalf("LayerAffinity = %v, want 0.9 for a well-used insights record", features.LayerAffinity)
	}
	// Two tags plus a session: 0.2*2 + 0.3.
	if math.Abs(features.CoOccurrenceScore-0.7) > 1e-9 {
		t.Fatalf("CoOccurrenceScore = %v, want 0.7", features.CoOccurrenceScore)
	}
	if features.SemanticImportance != 0.7 || features.TopicRelevance != 0.9 {
		t.Fatalf("semantic features not passed through: %+v", features)
	}
}

func TestExtractNilRecord(t *testing.T) {
	extractor := NewExtractor(stubUsage{}, stubSemantic{})
	if _, err := extractor.Extract(context.Background(), nil); err == nil {
		t.Fatal("expected error for nil record")
	}
}

func TestApplyEngineeringOverwrites(t *testing.T) {
	tests := []struct {
		name       string
		age        time.Duration
		wantBucket float64
	}{
		{"under an hour", 30 * time.Minute, 0.9},
		{"under a day", 12 * time.Hour, 0.7},
		{"under a week", 100 * time.Hour, 0.5},
		{"under a month", 500 * time.Hour, 0.3},
		{"ancient", 2000 * time.Hour, 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record := testRecord("r1", shared.TierInteract, tt.age, 10)
			features := domainpromo.Features{AgeHours: tt.age.Hours(), AccessCount: 10}
			got := ApplyEngineering(features, record)
			if got.TemporalPatternScore != tt.wantBucket {
				t.Fatalf("age bucket = %v, want %v", got.TemporalPatternScore, tt.wantBucket)
			}
		})
	}
}

func TestAccessVelocity(t *testing.T) {
	record := testRecord("r1", shared.TierInteract, 10*time.Hour, 20)
	features := ApplyEngineering(domainpromo.Features{AgeHours: 10, AccessCount: 20}, record)
	if math.Abs(features.AccessFrequency-2.0) > 1e-9 {
		t.Fatalf("velocity = %v, want 2.0", features.AccessFrequency)
	}

	// Sub-hour ages are floored to one hour.
	features = ApplyEngineering(domainpromo.Features{AgeHours: 0.1, AccessCount: 5}, record)
	if math.Abs(features.AccessFrequency-5.0) > 1e-9 {
		t.Fatalf("velocity = %v, want 5.0 with floored age", features.AccessFrequency)
	}
}

func TestContentQualityBounds(t *testing.T) {
	short := contentQuality("hi")
	long := contentQuality(strings.Repeat("a full sentence with several words in it. ", 20))
	if short >= long {
		t.Fatalf("quality(short)=%v should be below quality(long)=%v", short, long)
	}
	if long > 1 {
		t.Fatalf("quality = %v, want <= 1", long)
	}
}

func TestLayerProgression(t *testing.T) {
	for tier, want := range map[shared.Tier]float64{
		shared.TierInteract: 0.3,
		shared.TierInsights: 0.6,
		shared.TierAssets:   1.0,
	} {
		record := testRecord("r1", tier, time.Hour, 1)
		got := ApplyEngineering(domainpromo.Features{}, record)
		if got.LayerAffinity != want {
			t.Fatalf("layer progression for %s = %v, want %v", tier, got.LayerAffinity, want)
		}
	}
}

// ============================================================================
// Normalization
// ============================================================================

func TestNormalizeBounded(t *testing.T) {
	normalizer := NewDefaultNormalizer()

	extreme := domainpromo.Features{
		AgeHours:           1e6,
		AccessCount:        1e6,
		AccessFrequency:    -1e6,
		SemanticImportance: 1e6,
		AccessRecency:      0.7,
	}
	got := normalizer.Normalize(extreme)
	for name, v := range map[string]float64{
		"age_hours":           got.AgeHours,
		"access_count":        got.AccessCount,
		"access_frequency":    got.AccessFrequency,
		"semantic_importance": got.SemanticImportance,
	} {
		if v < -normalizeClamp || v > normalizeClamp {
			t.Fatalf("%s = %v, want within [%v, %v]", name, v, -normalizeClamp, normalizeClamp)
		}
	}
	if got.AccessRecency != 0.7 {
		t.Fatalf("bounded feature was rescaled: %v", got.AccessRecency)
	}
}

func TestNormalizeCentersOnFallbackMean(t *testing.T) {
	normalizer := NewDefaultNormalizer()
	got := normalizer.Normalize(domainpromo.Features{AgeHours: 24})
	if math.Abs(got.AgeHours) > 1e-9 {
		t.Fatalf("age at fallback mean should normalize to 0, got %v", got.AgeHours)
	}
}

// ============================================================================
// Feature cache
// ============================================================================

func TestFeatureCacheDriftTolerance(t *testing.T) {
	cache := NewFeatureCache(DefaultFeatureCacheConfig())
	features := domainpromo.Features{SemanticImportance: 0.8}
	cache.Put("r1", 5, features)

	if _, ok := cache.Get("r1", 6); !ok {
		t.Fatal("drift of 1 should still hit")
	}
	if _, ok := cache.Get("r1", 7); !ok {
		t.Fatal("drift of 2 should still hit")
	}
	if _, ok := cache.Get("r1", 8); ok {
		t.Fatal("drift of 3 should miss")
	}
	if cache.Len() != 0 {
		t.Fatalf("drifted entry should be dropped, len = %d", cache.Len())
	}
}

func TestEngineExtractFeaturesNilRecord(t *testing.T) {
	repo := newFakeRepo()
	extractor := NewExtractor(stubUsage{}, stubSemantic{})
	engine := NewEngine(DefaultEngineConfig(), extractor, NewDefaultNormalizer(), repo)

	_, err := engine.ExtractFeatures(context.Background(), nil)
	if !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("err = %v, want validation error for nil record", err)
	}
}

func TestEngineCachesExtraction(t *testing.T) {
	repo := newFakeRepo()
	extractor := NewExtractor(stubUsage{recency: 1}, stubSemantic{importance: 0.5})
	engine := NewEngine(DefaultEngineConfig(), extractor, NewDefaultNormalizer(), repo)

	record := testRecord("r1", shared.TierInteract, 2*time.Hour, 4)
	first, err := engine.ExtractFeatures(context.Background(), record)
	if err != nil {
		t.Fatalf("ExtractFeatures: %v", err)
	}
	second, err := engine.ExtractFeatures(context.Background(), record)
	if err != nil {
		t.Fatalf("ExtractFeatures: %v", err)
	}
	if first != second {
		t.Fatalf("cached vector differs: %+v vs %+v", first, second)
	}

	engine.InvalidateFeatures("r1")
	record.Tier = shared.TierInsights
	third, err := engine.ExtractFeatures(context.Background(), record)
	if err != nil {
		t.Fatalf("ExtractFeatures: %v", err)
	}
	if third.LayerAffinity == first.LayerAffinity {
		t.Fatal("invalidation should force re-extraction with the new tier")
	}
}

// ============================================================================
// Training data
// ============================================================================

func TestPrepareTrainingDataLabelsAndPadding(t *testing.T) {
	repo := newFakeRepo()
	ctx := context.Background()
	mustStore(t, repo, testRecord("a1", shared.TierAssets, 48*time.Hour, 30))
	mustStore(t, repo, testRecord("i1", shared.TierInsights, 24*time.Hour, 10))
	mustStore(t, repo, testRecord("t1", shared.TierInteract, 72*time.Hour, 1))
	// Fresh interact record: ambiguous, contributes nothing.
	mustStore(t, repo, testRecord("t2", shared.TierInteract, time.Hour, 5))

	extractor := NewExtractor(stubUsage{recency: 0.5}, stubSemantic{importance: 0.5})
	engine := NewEngine(DefaultEngineConfig(), extractor, NewDefaultNormalizer(), repo)

	examples, err := engine.PrepareTrainingData(ctx)
	if err != nil {
		t.Fatalf("PrepareTrainingData: %v", err)
	}
	if len(examples) != trainingTarget {
		t.Fatalf("examples = %d, want padded to %d", len(examples), trainingTarget)
	}

	labels := make(map[float64]int)
	for _, ex := range examples {
		labels[ex.Label]++
	}
	if len(labels) != 3 {
		t.Fatalf("labels = %v, want exactly {1.0, 0.7, 0.1}", labels)
	}
	for _, want := range []float64{1.0, 0.7, 0.1} {
		if labels[want] == 0 {
			t.Fatalf("label %v missing from %v", want, labels)
		}
	}
}

func TestPrepareTrainingDataReproducibleShuffle(t *testing.T) {
	repo := newFakeRepo()
	mustStore(t, repo, testRecord("a1", shared.TierAssets, 48*time.Hour, 30))
	mustStore(t, repo, testRecord("i1", shared.TierInsights, 24*time.Hour, 10))
	mustStore(t, repo, testRecord("t1", shared.TierInteract, 72*time.Hour, 1))

	extractor := NewExtractor(stubUsage{recency: 0.5}, stubSemantic{importance: 0.5})

	run := func() []float64 {
		engine := NewEngine(DefaultEngineConfig(), extractor, NewDefaultNormalizer(), repo)
		examples, err := engine.PrepareTrainingData(context.Background())
		if err != nil {
			t.Fatalf("PrepareTrainingData: %v", err)
		}
		labels := make([]float64, len(examples))
		for i, ex := range examples {
			labels[i] = ex.Label
		}
		return labels
	}

	first := run()
	second := run()
	if len(first) != len(second) {
		t.Fatalf("run sizes differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("label order diverges at %d with the same seed", i)
		}
	}
}

func TestPrepareTrainingDataEmptyCorpus(t *testing.T) {
	repo := newFakeRepo()
	extractor := NewExtractor(stubUsage{}, stubSemantic{})
	engine := NewEngine(DefaultEngineConfig(), extractor, NewDefaultNormalizer(), repo)

	examples, err := engine.PrepareTrainingData(context.Background())
	if err != nil {
		t.Fatalf("PrepareTrainingData: %v", err)
	}
	if len(examples) != 0 {
		t.Fatalf("empty corpus should yield no examples, got %d", len(examples))
	}
}
