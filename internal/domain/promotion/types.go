// Package promotion defines the feature model, criteria, and ports of the
// promotion engine.
package promotion

import (
	"context"
	"time"

	"github.com/blackms/memtier-go/internal/shared"
)

// ============================================================================
// Features
// ============================================================================

// Features is the per-record feature vector driving promotion decisions.
type Features struct {
	// Temporal features.
	AgeHours             float64 `json:"ageHours"`
	AccessRecency        float64 `json:"accessRecency"`
	TemporalPatternScore float64 `json:"temporalPatternScore"`

	// Usage features.
	AccessCount       float64 `json:"accessCount"`
	AccessFrequency   float64 `json:"accessFrequency"`
	SessionImportance float64 `json:"sessionImportance"`

	// Semantic features.
	SemanticImportance float64 `json:"semanticImportance"`
	KeywordDensity     float64 `json:"keywordDensity"`
	TopicRelevance     float64 `json:"topicRelevance"`

	// Context features.
	LayerAffinity       float64 `json:"layerAffinity"`
	CoOccurrenceScore   float64 `json:"coOccurrenceScore"`
	UserPreferenceScore float64 `json:"userPreferenceScore"`
}

// Criteria gates which records qualify for promotion.
type Criteria struct {
	// MinAccessCount is the minimum number of accesses.
	MinAccessCount uint32 `json:"minAccessCount"`

	// MaxAccessInterval is the longest tolerated gap since last access.
	MaxAccessInterval time.Duration `json:"maxAccessInterval"`

	// MinAge keeps brand-new records from promoting immediately.
	MinAge time.Duration `json:"minAge"`

	// MinImportanceScore is the semantic importance floor.
	MinImportanceScore float64 `json:"minImportanceScore"`

	// RequireAcceleration, when set, additionally demands a rising access
	// pattern.
	RequireAcceleration bool `json:"requireAcceleration"`
}

// DefaultCriteria returns the standard interact -> insights gate.
func DefaultCriteria() Criteria {
	return Criteria{
		MinAccessCount:     2,
		MaxAccessInterval:  24 * time.Hour,
		MinAge:             time.Hour,
		MinImportanceScore: 0.3,
	}
}

// ============================================================================
// Scoring
// ============================================================================

// Score is a scorer's verdict for one record.
type Score struct {
	// Confidence in [0,1]; callers compare it against their threshold.
	Confidence float64 `json:"confidence"`

	// Rationale is a short human-readable justification.
	Rationale string `json:"rationale"`
}

// Scorer turns a feature vector into a promotion confidence. The default
// implementation is rule-based; a learned model can replace it without
// changing callers.
type Scorer interface {
	Score(features Features) Score
}

// ============================================================================
// Analysis Ports
// ============================================================================

// UsageAnalyzer computes access-pattern scores for a record.
type UsageAnalyzer interface {
	CalculateAccessFrequency(record *shared.Record) float64
	CalculateAccessRecency(record *shared.Record) float64
	GetTemporalPatternScore(id string) float64
}

// SemanticAnalyzer computes content scores. Importance and topic relevance
// may be backed by slow models and take a context.
type SemanticAnalyzer interface {
	AnalyzeImportance(ctx context.Context, text string) (float64, error)
	GetTopicRelevance(ctx context.Context, text string) (float64, error)
	CalculateKeywordDensity(text string) float64
}

// ============================================================================
// Training Data
// ============================================================================

// TrainingExample is one labeled feature vector for scorer training.
type TrainingExample struct {
	Features Features `json:"features"`
	Label    float64  `json:"label"`
}

// ============================================================================
// Decisions & Results
// ============================================================================

// Recommendation is one ranked promotion candidate.
type Recommendation struct {
	RecordID   string      `json:"recordId"`
	FromTier   shared.Tier `json:"fromTier"`
	ToTier     shared.Tier `json:"toTier"`
	Confidence float64     `json:"confidence"`
	Rationale  string      `json:"rationale"`
	Features   Features    `json:"features"`
}

// RecordOutcome is the per-record result of an executed promotion.
type RecordOutcome struct {
	RecordID string        `json:"recordId"`
	FromTier shared.Tier   `json:"fromTier"`
	ToTier   shared.Tier   `json:"toTier"`
	Success  bool          `json:"success"`
	Skipped  bool          `json:"skipped"`
	Reason   string        `json:"reason,omitempty"`
	Duration time.Duration `json:"duration"`
}

// BatchResult aggregates an executed promotion batch. One record's failure
// never aborts the batch; successes, failures, and skips count independently.
type BatchResult struct {
	TotalCandidates int             `json:"totalCandidates"`
	Promoted        int             `json:"promoted"`
	Failed          int             `json:"failed"`
	Skipped         int             `json:"skipped"`
	Expired         int             `json:"expired"`
	DryRun          bool            `json:"dryRun"`
	Outcomes        []RecordOutcome `json:"outcomes"`
	Duration        time.Duration   `json:"duration"`
}

// TierStatistics summarizes one tier for the statistics endpoint.
type TierStatistics struct {
	Tier       shared.Tier `json:"tier"`
	Records    int         `json:"records"`
	Candidates int         `json:"candidates"`
}
