package promotion

import (
	"strings"

	domainpromo "github.com/blackms/memtier-go/internal/domain/promotion"
	"github.com/blackms/memtier-go/internal/shared"
)

// ApplyEngineering derives coarse engineered features and writes them over
// their raw counterparts: the age bucket replaces the temporal pattern
// score, access velocity replaces access frequency, the content-quality
// proxy replaces the user preference score, and layer progression replaces
// layer affinity.
func ApplyEngineering(features domainpromo.Features, record *shared.Record) domainpromo.Features {
	features.TemporalPatternScore = ageBucket(features.AgeHours)
	features.AccessFrequency = accessVelocity(features.AccessCount, features.AgeHours)
	features.UserPreferenceScore = contentQuality(record.Content)
	features.LayerAffinity = layerProgression(record.Tier)
	return features
}

// ageBucket collapses age into coarse recency classes.
func ageBucket(ageHours float64) float64 {
	switch {
	case ageHours <= 1:
		return 0.9
	case ageHours <= 24:
		return 0.7
	case ageHours <= 168:
		return 0.5
	case ageHours <= 720:
		return 0.3
	default:
		return 0.1
	}
}

// accessVelocity is accesses per hour of lifetime.
func accessVelocity(accessCount, ageHours float64) float64 {
	if ageHours < 1 {
		ageHours = 1
	}
	return accessCount / ageHours
}

// contentQuality blends capped word-count, sentence-length, and char-count
// heuristics into a [0,1] proxy.
func contentQuality(content string) float64 {
	words := len(strings.Fields(content))
	chars := len(content)
	sentences := strings.Count(content, ".") + strings.Count(content, "!") + strings.Count(content, "?")
	if sentences == 0 {
		sentences = 1
	}

	wordScore := capAt1(float64(words) / 50)
	sentenceScore := capAt1(float64(words) / float64(sentences) / 20)
	charScore := capAt1(float64(chars) / 200)
	return (wordScore + sentenceScore + charScore) / 3
}

// layerProgression encodes how far along the tier path a record already is.
func layerProgression(tier shared.Tier) float64 {
	switch tier {
	case shared.TierAssets:
		return 1.0
	case shared.TierInsights:
		return 0.6
	default:
		return 0.3
	}
}

func capAt1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
