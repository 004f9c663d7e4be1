// Package embedding resolves text to vectors through the embedding cache,
// calling the provider only on a miss.
package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/crawlpix/crawlpix/internal/cache"
)

// Provider generates embeddings for text.
type Provider interface {
	Embed(ctx context.Context, model, text string) ([]float32, error)
}

// Embedder combines a Provider with the cache gateway. Cache writes are
// best-effort; a cache outage only makes embedding slower, never wrong.
type Embedder struct {
	provider Provider
	cache    *cache.Gateway
	model    string
}

// New creates an Embedder using the given provider and model name.
func New(provider Provider, gateway *cache.Gateway, model string) *Embedder {
	return &Embedder{provider: provider, cache: gateway, model: model}
}

// Model returns the embedding model identifier.
func (e *Embedder) Model() string {
	return e.model
}

// Embed returns the embedding vector for a single text, served from cache
// when possible.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := e.cache.GetEmbedding(ctx, text, e.model); ok {
		return vec, nil
	}

	vec, err := e.provider.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}

	e.cache.SetEmbedding(ctx, text, e.model, vec)
	return vec, nil
}

// EmbedBatch returns embedding vectors for multiple texts concurrently.
// Returns nil (not error) for empty/nil input.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4) // Bound concurrency to avoid overwhelming the provider.

	for i, text := range texts {
		i, text := i, text
		g.Go(func() error {
			vec, err := e.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("embedding text %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
