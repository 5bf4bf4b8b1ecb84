package shared

// Clone returns a deep copy of the record. The query cache and dry-run
// promotion previews hand out clones so callers can mutate results freely.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cloned := *r
	if r.Embedding != nil {
		cloned.Embedding = make([]float32, len(r.Embedding))
		copy(cloned.Embedding, r.Embedding)
	}
	if r.Metadata.Tags != nil {
		cloned.Metadata.Tags = make([]string, len(r.Metadata.Tags))
		copy(cloned.Metadata.Tags, r.Metadata.Tags)
	}
	return &cloned
}

// CloneResults deep-copies a result set, records included.
func CloneResults(results []SearchResult) []SearchResult {
	if results == nil {
		return nil
	}
	cloned := make([]SearchResult, len(results))
	for i, res := range results {
		cloned[i] = SearchResult{Record: res.Record.Clone(), Score: res.Score}
	}
	return cloned
}
