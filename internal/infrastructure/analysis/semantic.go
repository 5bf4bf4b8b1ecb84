package analysis

import (
	"context"
	"strings"
	"unicode"
)

// keywordWeights maps signal keywords to their importance contribution.
var keywordWeights = map[string]float64{
	"error":     0.9,
	"critical":  0.9,
	"important": 0.8,
	"warning":   0.7,
	"info":      0.5,
}

// KeywordAnalyzer scores content by weighted signal keywords. It stands in
// for a model-backed analyzer; the slow operations keep their context-taking
// signatures so a remote implementation can replace this one.
type KeywordAnalyzer struct {
	topics map[string]struct{}
}

// NewKeywordAnalyzer creates an analyzer. topics, when non-empty, anchor the
// topic-relevance score; otherwise relevance defaults to neutral.
func NewKeywordAnalyzer(topics []string) *KeywordAnalyzer {
	set := make(map[string]struct{}, len(topics))
	for _, topic := range topics {
		set[strings.ToLower(topic)] = struct{}{}
	}
	return &KeywordAnalyzer{topics: set}
}

// AnalyzeImportance returns the keyword-weighted importance of text,
// normalized by token count and clamped to [0,1].
func (k *KeywordAnalyzer) AnalyzeImportance(ctx context.Context, text string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0, nil
	}
	var weighted float64
	for _, tok := range tokens {
		if w, ok := keywordWeights[tok]; ok {
			weighted += w
		}
	}
	// A handful of signal keywords should saturate a short text.
	score := weighted * 10 / float64(len(tokens))
	if score > 1 {
		score = 1
	}
	return score, nil
}

// GetTopicRelevance returns the share of configured topic terms found in
// text, or a neutral 0.5 when no topics are configured.
func (k *KeywordAnalyzer) GetTopicRelevance(ctx context.Context, text string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(k.topics) == 0 {
		return 0.5, nil
	}
	hits := 0
	for _, tok := range tokenize(text) {
		if _, ok := k.topics[tok]; ok {
			hits++
		}
	}
	score := float64(hits) / float64(len(k.topics))
	if score > 1 {
		score = 1
	}
	return score, nil
}

// CalculateKeywordDensity returns the fraction of tokens that are signal
// keywords.
func (k *KeywordAnalyzer) CalculateKeywordDensity(text string) float64 {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return 0
	}
	hits := 0
	for _, tok := range tokens {
		if _, ok := keywordWeights[tok]; ok {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}
