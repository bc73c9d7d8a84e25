package embedding

import (
	"context"
	"sync"
)

// MockProvider generates deterministic embeddings from a text hash. Used in
// tests across packages; it also counts calls so tests can assert that
// unchanged documents are never re-embedded.
type MockProvider struct {
	dimension int

	mu    sync.Mutex
	calls int
	err   error
}

// NewMockProvider creates a deterministic mock provider.
func NewMockProvider(dimension int) *MockProvider {
	return &MockProvider{dimension: dimension}
}

func (p *MockProvider) Dimension() int {
	return p.dimension
}

// FailWith makes subsequent Embed calls return err (nil restores success).
func (p *MockProvider) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.err = err
}

// Calls returns how many times Embed has been invoked.
func (p *MockProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *MockProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.calls++
	err := p.err
	p.mu.Unlock()
	if err != nil {
		return nil, err
	}

	hash := 0
	for _, c := range text {
		hash = hash*31 + int(c)
	}

	embedding := make([]float32, p.dimension)
	for i := 0; i < p.dimension; i++ {
		embedding[i] = float32((hash+i)%100) / 100.0
	}
	return embedding, nil
}
