package index

import (
	"context"
	"fmt"
	"sync"

	"github.com/philippgille/chromem-go"

	"github.com/blackms/memtier-go/internal/shared"
)

// Chromem keeps one chromem collection per tier and answers similarity
// queries from it. Records are mirrored in memory so results carry the full
// record, not just the document text.
type Chromem struct {
	mu          sync.RWMutex
	db          *chromem.DB
	collections map[shared.Tier]*chromem.Collection
	records     map[shared.Tier]map[string]*shared.Record
}

// NewChromem creates an empty in-memory index.
func NewChromem() (*Chromem, error) {
	db := chromem.NewDB()
	idx := &Chromem{
		db:          db,
		collections: make(map[shared.Tier]*chromem.Collection),
		records:     make(map[shared.Tier]map[string]*shared.Record),
	}
	for _, tier := range shared.AllTiers() {
		col, err := db.CreateCollection("tier-"+string(tier), nil, nil)
		if err != nil {
			return nil, fmt.Errorf("create collection for %s: %w", tier, err)
		}
		idx.collections[tier] = col
		idx.records[tier] = make(map[string]*shared.Record)
	}
	return idx, nil
}

// Add indexes a record in its tier. The record must carry an embedding.
func (c *Chromem) Add(ctx context.Context, record *shared.Record) error {
	if record == nil || record.ID == "" {
		return shared.Validationf("nil or unidentified record")
	}
	if len(record.Embedding) == 0 {
		return shared.Validationf("record %s has no embedding", record.ID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	col, ok := c.collections[record.Tier]
	if !ok {
		return shared.Validationf("unknown tier %q", record.Tier)
	}
	err := col.AddDocument(ctx, chromem.Document{
		ID:        record.ID,
		Content:   record.Content,
		Embedding: record.Embedding,
	})
	if err != nil {
		return fmt.Errorf("index record %s: %w", record.ID, err)
	}
	c.records[record.Tier][record.ID] = record.Clone()
	return nil
}

// Remove drops a record from its tier's collection.
func (c *Chromem) Remove(ctx context.Context, id string, tier shared.Tier) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	col, ok := c.collections[tier]
	if !ok {
		return shared.Validationf("unknown tier %q", tier)
	}
	if err := col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("unindex record %s: %w", id, err)
	}
	delete(c.records[tier], id)
	return nil
}

// Move re-homes a record between tier collections.
func (c *Chromem) Move(ctx context.Context, id string, from, to shared.Tier) error {
	c.mu.RLock()
	record, ok := c.records[from][id]
	c.mu.RUnlock()
	if !ok {
		return shared.NotFoundf("record %s in tier %s index", id, from)
	}
	moved := record.Clone()
	moved.Tier = to
	if err := c.Remove(ctx, id, from); err != nil {
		return err
	}
	return c.Add(ctx, moved)
}

// Search returns the topK most similar records of a tier, descending.
func (c *Chromem) Search(ctx context.Context, vector []float32, tier shared.Tier, topK int) ([]shared.SearchResult, error) {
	if len(vector) == 0 {
		return nil, shared.Validationf("empty query vector")
	}
	if topK <= 0 {
		topK = 10
	}

	c.mu.RLock()
	col, ok := c.collections[tier]
	if !ok {
		c.mu.RUnlock()
		return nil, shared.Validationf("unknown tier %q", tier)
	}
	count := col.Count()
	c.mu.RUnlock()

	if count == 0 {
		return nil, nil
	}
	// chromem rejects queries asking for more results than documents.
	if topK > count {
		topK = count
	}

	hits, err := col.QueryEmbedding(ctx, vector, topK, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query tier %s: %w", tier, err)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	results := make([]shared.SearchResult, 0, len(hits))
	for _, hit := range hits {
		record, ok := c.records[tier][hit.ID]
		if !ok {
			continue
		}
		results = append(results, shared.SearchResult{
			Record: record.Clone(),
			Score:  float64(hit.Similarity),
		})
	}
	return results, nil
}

// Count returns how many records a tier's collection holds.
func (c *Chromem) Count(tier shared.Tier) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if col, ok := c.collections[tier]; ok {
		return col.Count()
	}
	return 0
}
