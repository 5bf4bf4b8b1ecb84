package embeddings

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// LocalConfig tunes the hash-based local provider.
type LocalConfig struct {
	// Dimensions is the embedding dimensionality.
	Dimensions int
	// Seed varies the hash family so distinct deployments produce
	// distinct spaces.
	Seed uint64
}

// DefaultLocalConfig returns the production defaults.
func DefaultLocalConfig() LocalConfig {
	return LocalConfig{Dimensions: 1024}
}

// LocalProvider generates deterministic hash-based embeddings without any
// external service. Texts that share n-grams land near each other, which is
// enough for development and tests.
type LocalProvider struct {
	mu     sync.RWMutex
	config LocalConfig
	closed bool
}

// NewLocalProvider creates a local provider.
func NewLocalProvider(config LocalConfig) *LocalProvider {
	if config.Dimensions <= 0 {
		config.Dimensions = 1024
	}
	return &LocalProvider{config: config}
}

// Embed generates an embedding for a single text.
func (p *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return nil, ErrProviderClosed
	}
	if text == "" {
		return nil, ErrEmptyInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.generate(text), nil
}

// Dimensions returns the embedding dimensionality.
func (p *LocalProvider) Dimensions() int { return p.config.Dimensions }

// Name identifies the provider.
func (p *LocalProvider) Name() string { return "local-hash" }

// Close marks the provider unusable.
func (p *LocalProvider) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	return nil
}

// generate spreads four FNV-1a passes over the dimensions and L2-normalizes
// the result.
func (p *LocalProvider) generate(text string) []float32 {
	dims := p.config.Dimensions
	embedding := make([]float32, dims)

	for pass := 0; pass < 4; pass++ {
		h := fnv.New64a()
		writeUint64(h, p.config.Seed)
		h.Write([]byte{byte(pass)})
		h.Write([]byte(text))
		hash := h.Sum64()

		for i := 0; i < dims; i++ {
			h2 := fnv.New64a()
			writeUint64(h2, hash)
			h2.Write([]byte{byte(i >> 8), byte(i)})
			val := float32(h2.Sum64())/float32(math.MaxUint64)*2 - 1
			embedding[i] += val / 4
		}
	}

	return normalizeL2(embedding)
}

func writeUint64(w interface{ Write([]byte) (int, error) }, v uint64) {
	w.Write([]byte{
		byte(v >> 56), byte(v >> 48), byte(v >> 40), byte(v >> 32),
		byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v),
	})
}

func normalizeL2(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm == 0 {
		return v
	}
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}
