package vectorstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/crawlpix/crawlpix/internal/extract"
)

const opTimeout = 30 * time.Second

// QdrantStore implements VectorStore on a Qdrant instance. Each namespace
// maps to its own collection.
type QdrantStore struct {
	client *qdrant.Client
	dim    uint64
}

// NewQdrantStore connects to Qdrant at host:port. dim is the embedding
// dimension every collection is created with.
func NewQdrantStore(host string, port int, apiKey string, dim int) (*QdrantStore, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:                   host,
		Port:                   port,
		APIKey:                 apiKey,
		SkipCompatibilityCheck: true,
		GrpcOptions: []grpc.DialOption{
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating qdrant client: %w", err)
	}
	return &QdrantStore{client: client, dim: uint64(dim)}, nil
}

// Ping verifies the Qdrant connection.
func (s *QdrantStore) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := s.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("qdrant unreachable: %w", err)
	}
	return nil
}

func (s *QdrantStore) EnsureNamespace(ctx context.Context, namespace string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if info, err := s.client.GetCollectionInfo(ctx, namespace); err == nil && info != nil {
		return nil
	}

	err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: namespace,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     s.dim,
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection %s: %w", namespace, err)
	}
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, namespace string, docs []extract.ImageDocument, vectors [][]float32) error {
	if len(docs) != len(vectors) {
		return fmt.Errorf("upsert: %d documents but %d vectors", len(docs), len(vectors))
	}
	if len(docs) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	points := make([]*qdrant.PointStruct, len(docs))
	for i, doc := range docs {
		points[i] = &qdrant.PointStruct{
			Id:      qdrant.NewID(uuid.New().String()),
			Vectors: qdrant.NewVectors(vectors[i]...),
			Payload: qdrant.NewValueMap(map[string]any{
				"text":       doc.Text,
				"img_url":    doc.ImgURL,
				"img_format": doc.ImgFormat,
				"alt_text":   doc.AltText,
				"title":      doc.Title,
				"class":      doc.Class,
				"tag_type":   doc.TagType,
				"source_url": doc.SourceURL,
				"session_id": doc.SessionID,
			}),
		}
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: namespace,
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("upserting %d points into %s: %w", len(points), namespace, err)
	}
	return nil
}

func (s *QdrantStore) Query(ctx context.Context, namespace string, vector []float32, topK int) ([]Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	limit := uint64(topK)
	points, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: namespace,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", namespace, err)
	}

	candidates := make([]Candidate, 0, len(points))
	for _, p := range points {
		candidates = append(candidates, Candidate{
			Score:    p.Score,
			Document: documentFromPayload(p.Payload),
		})
	}
	return candidates, nil
}

func (s *QdrantStore) DeleteNamespace(ctx context.Context, namespace string) error {
	ctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	if err := s.client.DeleteCollection(ctx, namespace); err != nil {
		return fmt.Errorf("deleting collection %s: %w", namespace, err)
	}
	return nil
}

func documentFromPayload(payload map[string]*qdrant.Value) extract.ImageDocument {
	str := func(key string) string {
		if v, ok := payload[key]; ok {
			return v.GetStringValue()
		}
		return ""
	}
	return extract.ImageDocument{
		Text:      str("text"),
		ImgURL:    str("img_url"),
		ImgFormat: str("img_format"),
		AltText:   str("alt_text"),
		Title:     str("title"),
		Class:     str("class"),
		TagType:   str("tag_type"),
		SourceURL: str("source_url"),
		SessionID: str("session_id"),
	}
}
