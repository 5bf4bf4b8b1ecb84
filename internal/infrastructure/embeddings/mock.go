package embeddings

import (
	"context"
	"sync"
	"time"
)

// MockProvider is a deterministic provider for tests. It counts calls and
// can be told to fail or stall, which is how the coordinator's breaker and
// timeout paths are exercised.
type MockProvider struct {
	mu         sync.Mutex
	dimensions int
	calls      int
	failWith   error
	delay      time.Duration
	local      *LocalProvider
}

// NewMockProvider creates a mock with the given dimensionality.
func NewMockProvider(dimensions int) *MockProvider {
	if dimensions <= 0 {
		dimensions = 64
	}
	return &MockProvider{
		dimensions: dimensions,
		local:      NewLocalProvider(LocalConfig{Dimensions: dimensions}),
	}
}

// FailWith makes every subsequent Embed return err; nil restores success.
func (p *MockProvider) FailWith(err error) {
	p.mu.Lock()
	p.failWith = err
	p.mu.Unlock()
}

// Delay makes every subsequent Embed sleep first, honoring ctx.
func (p *MockProvider) Delay(d time.Duration) {
	p.mu.Lock()
	p.delay = d
	p.mu.Unlock()
}

// Calls returns how many times Embed ran.
func (p *MockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// Embed generates a deterministic embedding, or the configured failure.
func (p *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.calls++
	failWith := p.failWith
	delay := p.delay
	p.mu.Unlock()

	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if failWith != nil {
		return nil, failWith
	}
	return p.local.Embed(ctx, text)
}

// Dimensions returns the embedding dimensionality.
func (p *MockProvider) Dimensions() int { return p.dimensions }

// Name identifies the provider.
func (p *MockProvider) Name() string { return "mock" }
