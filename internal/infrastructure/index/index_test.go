package index

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/blackms/memtier-go/internal/shared"
)

type staticSource struct {
	records map[shared.Tier][]*shared.Record
}

func (s *staticSource) List(ctx context.Context, tier shared.Tier, limit int) ([]*shared.Record, error) {
	records := s.records[tier]
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func embeddedRecord(content string, tier shared.Tier, embedding []float32) *shared.Record {
	rec := shared.NewRecord(content, tier)
	rec.Embedding = embedding
	return rec
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{name: "identical", a: []float32{1, 0}, b: []float32{1, 0}, expected: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, expected: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, expected: -1},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 0}, expected: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Cosine(tt.a, tt.b); math.Abs(got-tt.expected) > 1e-9 {
				t.Fatalf("Cosine = %f, expected %f", got, tt.expected)
			}
		})
	}
}

func TestBruteForceRanksBySimilarity(t *testing.T) {
	source := &staticSource{records: map[shared.Tier][]*shared.Record{
		shared.TierInteract: {
			embeddedRecord("far", shared.TierInteract, []float32{0, 1, 0}),
			embeddedRecord("near", shared.TierInteract, []float32{1, 0.1, 0}),
			embeddedRecord("nearest", shared.TierInteract, []float32{1, 0, 0}),
			embeddedRecord("no embedding", shared.TierInteract, nil),
		},
	}}
	idx := NewBruteForce(source, 0)

	results, err := idx.Search(context.Background(), []float32{1, 0, 0}, shared.TierInteract, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("len = %d, expected 2", len(results))
	}
	if results[0].Record.Content != "nearest" || results[1].Record.Content != "near" {
		t.Errorf("order = [%s, %s], expected [nearest, near]",
			results[0].Record.Content, results[1].Record.Content)
	}
	if results[0].Score < results[1].Score {
		t.Error("scores not descending")
	}
}

func TestBruteForceRejectsEmptyVector(t *testing.T) {
	idx := NewBruteForce(&staticSource{}, 0)
	if _, err := idx.Search(context.Background(), nil, shared.TierInteract, 5); !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("err = %v, expected validation", err)
	}
}

func TestChromemAddSearchRemove(t *testing.T) {
	idx, err := NewChromem()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	a := embeddedRecord("alpha", shared.TierInsights, []float32{1, 0, 0})
	b := embeddedRecord("beta", shared.TierInsights, []float32{0, 1, 0})
	for _, rec := range []*shared.Record{a, b} {
		if err := idx.Add(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	results, err := idx.Search(ctx, []float32{1, 0, 0}, shared.TierInsights, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("len = %d, expected topK clamped to document count", len(results))
	}
	if results[0].Record.ID != a.ID {
		t.Errorf("top result = %s, expected alpha", results[0].Record.Content)
	}

	if err := idx.Remove(ctx, a.ID, shared.TierInsights); err != nil {
		t.Fatal(err)
	}
	if idx.Count(shared.TierInsights) != 1 {
		t.Errorf("Count = %d after remove, expected 1", idx.Count(shared.TierInsights))
	}
}

func TestChromemTierIsolation(t *testing.T) {
	idx, err := NewChromem()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := idx.Add(ctx, embeddedRecord("hot", shared.TierInteract, []float32{1, 0})); err != nil {
		t.Fatal(err)
	}
	results, err := idx.Search(ctx, []float32{1, 0}, shared.TierAssets, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("len = %d, expected empty result from a different tier", len(results))
	}
}

func TestChromemMove(t *testing.T) {
	idx, err := NewChromem()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	rec := embeddedRecord("promoted", shared.TierInteract, []float32{0.5, 0.5})
	if err := idx.Add(ctx, rec); err != nil {
		t.Fatal(err)
	}
	if err := idx.Move(ctx, rec.ID, shared.TierInteract, shared.TierInsights); err != nil {
		t.Fatal(err)
	}

	if idx.Count(shared.TierInteract) != 0 {
		t.Error("record still indexed in source tier")
	}
	results, err := idx.Search(ctx, []float32{0.5, 0.5}, shared.TierInsights, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].Record.ID != rec.ID {
		t.Error("record not searchable in destination tier")
	}
	if results[0].Record.Tier != shared.TierInsights {
		t.Errorf("Tier = %q, expected insights", results[0].Record.Tier)
	}
}

func TestChromemRejectsUnembeddedRecord(t *testing.T) {
	idx, err := NewChromem()
	if err != nil {
		t.Fatal(err)
	}
	rec := shared.NewRecord("no vector", shared.TierInteract)
	if err := idx.Add(context.Background(), rec); !errors.Is(err, shared.ErrValidation) {
		t.Fatalf("err = %v, expected validation", err)
	}
}
