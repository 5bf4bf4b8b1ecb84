// Package embeddings provides the embedding providers consumed by the search
// coordinator, plus a cache in front of them.
package embeddings

import "errors"

// Provider errors.
var (
	ErrEmptyInput     = errors.New("input text is empty")
	ErrProviderClosed = errors.New("provider is closed")
)
