// Package rerank provides reranking model adapters. The lexical model is the
// in-process default; an external cross-encoder can replace it behind the
// same interface.
package rerank

import (
	"context"
	"math"
	"strings"
	"unicode"

	domainsearch "github.com/blackms/memtier-go/internal/domain/search"
	"github.com/blackms/memtier-go/internal/shared"
)

// Lexical scores candidates by token overlap with the query, length-
// normalized so long documents do not win by volume.
type Lexical struct{}

// NewLexical creates the lexical reranker.
func NewLexical() *Lexical {
	return &Lexical{}
}

// Rerank returns one score per candidate, in input order.
func (l *Lexical) Rerank(ctx context.Context, query string, texts []string) ([]domainsearch.RerankScore, error) {
	if query == "" {
		return nil, shared.Validationf("empty rerank query")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	queryTokens := tokenSet(query)
	scores := make([]domainsearch.RerankScore, len(texts))
	for i, text := range texts {
		scores[i] = domainsearch.RerankScore{
			Index: i,
			Score: overlapScore(queryTokens, tokenSet(text)),
		}
	}
	return scores, nil
}

func tokenSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		set[tok] = struct{}{}
	}
	return set
}

// overlapScore is the query-token hit count normalized by the geometric mean
// of both set sizes, bounded to [0,1].
func overlapScore(query, doc map[string]struct{}) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	hits := 0
	for tok := range query {
		if _, ok := doc[tok]; ok {
			hits++
		}
	}
	return float64(hits) / math.Sqrt(float64(len(query))*float64(len(doc)))
}
