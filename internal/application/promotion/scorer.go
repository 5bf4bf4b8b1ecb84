package promotion

import (
	"fmt"

	domainpromo "github.com/blackms/memtier-go/internal/domain/promotion"
)

// RuleBasedScorer is the default promotion scorer: semantic importance plus
// capped access and recency bonuses, with a small boost for an active
// temporal pattern. A learned model can replace it behind the Scorer
// interface without touching callers.
type RuleBasedScorer struct{}

// NewRuleBasedScorer creates the default scorer.
func NewRuleBasedScorer() *RuleBasedScorer {
	return &RuleBasedScorer{}
}

// Score computes confidence from raw (un-normalized) features.
func (s *RuleBasedScorer) Score(features domainpromo.Features) domainpromo.Score {
	accessBonus := features.AccessCount / 20
	if accessBonus > 0.3 {
		accessBonus = 0.3
	}
	confidence := features.SemanticImportance + accessBonus + 0.2*features.AccessRecency

	accelerated := features.TemporalPatternScore > 0.5
	if accelerated {
		confidence += 0.1
	}
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0 {
		confidence = 0
	}

	rationale := fmt.Sprintf("importance=%.2f access_bonus=%.2f recency=%.2f",
		features.SemanticImportance, accessBonus, features.AccessRecency)
	if accelerated {
		rationale += " accelerating"
	}
	return domainpromo.Score{Confidence: confidence, Rationale: rationale}
}
