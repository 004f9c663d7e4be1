package embedding

import (
	"context"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/crawlpix/crawlpix/internal/cache"
)

type memKV struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemKV() *memKV { return &memKV{data: make(map[string]string)} }

func (m *memKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return "", cache.ErrNotFound
	}
	return v, nil
}

func (m *memKV) Set(_ context.Context, key, value string, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memKV) DeleteByPattern(_ context.Context, pattern string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	deleted := 0
	for key := range m.data {
		if ok, _ := path.Match(pattern, key); ok {
			delete(m.data, key)
			deleted++
		}
	}
	return deleted, nil
}

func (m *memKV) Ping(_ context.Context) error { return nil }

type countingProvider struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (p *countingProvider) Embed(_ context.Context, _, text string) ([]float32, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return []float32{float32(len(text)), 1}, nil
}

func (p *countingProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func newTestEmbedder(provider Provider) *Embedder {
	gateway := cache.NewGateway(newMemKV(), nil, nil)
	return New(provider, gateway, "test-model")
}

func TestEmbed_CacheHitSkipsProvider(t *testing.T) {
	provider := &countingProvider{}
	e := newTestEmbedder(provider)
	ctx := context.Background()

	first, err := e.Embed(ctx, "red bicycle")
	if err != nil {
		t.Fatalf("first Embed failed: %v", err)
	}
	second, err := e.Embed(ctx, "red bicycle")
	if err != nil {
		t.Fatalf("second Embed failed: %v", err)
	}

	if provider.callCount() != 1 {
		t.Errorf("provider called %d times, want 1", provider.callCount())
	}
	if len(first) != len(second) || first[0] != second[0] {
		t.Errorf("cached vector differs: %v vs %v", first, second)
	}
}

func TestEmbed_ProviderErrorSurfaces(t *testing.T) {
	e := newTestEmbedder(&countingProvider{err: errors.New("provider down")})

	if _, err := e.Embed(context.Background(), "anything"); err == nil {
		t.Fatal("provider failure must surface as an error")
	}
}

func TestEmbedBatch_PreservesOrder(t *testing.T) {
	e := newTestEmbedder(&countingProvider{})

	texts := []string{"a", "bb", "ccc", "dddd", "eeeee"}
	vectors, err := e.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if len(vectors) != len(texts) {
		t.Fatalf("len = %d, want %d", len(vectors), len(texts))
	}
	for i, text := range texts {
		if vectors[i][0] != float32(len(text)) {
			t.Errorf("vectors[%d] = %v, want first element %d (order must match input)", i, vectors[i], len(text))
		}
	}
}

func TestEmbedBatch_EmptyInput(t *testing.T) {
	e := newTestEmbedder(&countingProvider{})

	vectors, err := e.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch(nil) failed: %v", err)
	}
	if vectors != nil {
		t.Errorf("vectors = %v, want nil", vectors)
	}
}

func TestEmbedBatch_DuplicateTextsHitCache(t *testing.T) {
	provider := &countingProvider{}
	e := newTestEmbedder(provider)
	ctx := context.Background()

	// Warm the cache, then batch with repeats of the same text.
	if _, err := e.Embed(ctx, "same"); err != nil {
		t.Fatalf("warmup failed: %v", err)
	}
	if _, err := e.EmbedBatch(ctx, []string{"same", "same", "same"}); err != nil {
		t.Fatalf("EmbedBatch failed: %v", err)
	}
	if provider.callCount() != 1 {
		t.Errorf("provider called %d times, want 1 (cache serves repeats)", provider.callCount())
	}
}
