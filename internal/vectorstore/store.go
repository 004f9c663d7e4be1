// Package vectorstore stores image-document vectors per namespace and
// answers top-K similarity queries. A namespace is the isolation unit: one
// per crawl session, so results never bleed across sessions.
package vectorstore

import (
	"context"

	"github.com/crawlpix/crawlpix/internal/extract"
)

// Candidate is one similarity-search hit.
type Candidate struct {
	Score    float32
	Document extract.ImageDocument
}

// VectorStore is the interface for vector storage and similarity-search
// backends. The production implementation is Qdrant; tests use mocks.
type VectorStore interface {
	// EnsureNamespace creates the namespace if it does not exist. Idempotent.
	EnsureNamespace(ctx context.Context, namespace string) error

	// Upsert stores documents with their vectors. docs and vectors are
	// parallel slices.
	Upsert(ctx context.Context, namespace string, docs []extract.ImageDocument, vectors [][]float32) error

	// Query returns the topK nearest neighbors to vector within namespace,
	// scores in [0,1] for cosine similarity.
	Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Candidate, error)

	// DeleteNamespace removes the namespace and everything in it.
	DeleteNamespace(ctx context.Context, namespace string) error
}
