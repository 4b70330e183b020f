// Package mock provides a test double for the embeddings.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/emberforge/loreweave/pkg/provider/embeddings"
)

// Provider is a mock implementation of embeddings.Provider.
// It returns deterministic fixed-size vectors so that tests can assert on
// retrieval behaviour without a live embeddings backend.
type Provider struct {
	mu sync.Mutex

	// Vector, when non-nil, is returned from every Embed call.
	// When nil, a zero vector of length Dim is returned.
	Vector []float32

	// Err, if non-nil, is returned from Embed and EmbedBatch.
	Err error

	// Dim is the reported dimensionality. Defaults to 8 when zero.
	Dim int

	// EmbedCalls records the texts passed to Embed and EmbedBatch, in order.
	EmbedCalls []string
}

// Compile-time interface assertion.
var _ embeddings.Provider = (*Provider)(nil)

// Embed records the call and returns the configured vector.
func (p *Provider) Embed(_ context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.EmbedCalls = append(p.EmbedCalls, text)
	p.mu.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}
	if p.Vector != nil {
		return p.Vector, nil
	}
	return make([]float32, p.Dimensions()), nil
}

// EmbedBatch records the calls and returns one vector per input text.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the configured dimensionality.
func (p *Provider) Dimensions() int {
	if p.Dim == 0 {
		return 8
	}
	return p.Dim
}

// ModelID identifies the mock model.
func (p *Provider) ModelID() string { return "mock-embeddings" }
