package resilience

import (
	"context"

	"github.com/emberforge/loreweave/pkg/provider/embeddings"
)

// EmbeddingsFallback implements [embeddings.Provider] with automatic
// failover across multiple embedding backends. All backends in the chain
// must produce vectors of the same dimensionality, otherwise stored vectors
// become incomparable.
type EmbeddingsFallback struct {
	chain *Chain[embeddings.Provider]
}

var _ embeddings.Provider = (*EmbeddingsFallback)(nil)

// NewEmbeddingsFallback creates an [EmbeddingsFallback] with primary as the
// preferred backend.
func NewEmbeddingsFallback(primary embeddings.Provider, primaryName string, cfg ChainConfig) *EmbeddingsFallback {
	return &EmbeddingsFallback{
		chain: NewChain(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional embedding provider as a fallback.
func (f *EmbeddingsFallback) AddFallback(name string, provider embeddings.Provider) {
	f.chain.Add(name, provider)
}

// Embed returns the embedding of text from the first healthy provider.
func (f *EmbeddingsFallback) Embed(ctx context.Context, text string) ([]float32, error) {
	return TryResult(f.chain, func(p embeddings.Provider) ([]float32, error) {
		return p.Embed(ctx, text)
	})
}

// EmbedBatch returns the embeddings of texts from the first healthy provider.
func (f *EmbeddingsFallback) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return TryResult(f.chain, func(p embeddings.Provider) ([][]float32, error) {
		return p.EmbedBatch(ctx, texts)
	})
}

// Dimensions returns the primary backend's vector dimensionality.
func (f *EmbeddingsFallback) Dimensions() int {
	return f.chain.Primary().Dimensions()
}

// ModelID returns the primary backend's model identifier.
func (f *EmbeddingsFallback) ModelID() string {
	return f.chain.Primary().ModelID()
}
