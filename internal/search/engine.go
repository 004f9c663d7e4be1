// Package search is the hybrid semantic+keyword ranking engine. A query is
// answered by a wide vector retrieval re-ranked with keyword boosts,
// deduplicated by alt text, filtered by format and truncated — with the
// whole result list cached per (query, namespace, filters).
package search

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/crawlpix/crawlpix/internal/cache"
	"github.com/crawlpix/crawlpix/internal/embedding"
	"github.com/crawlpix/crawlpix/internal/metrics"
	"github.com/crawlpix/crawlpix/internal/vectorstore"
)

// retrievalTopK is the wide pre-filter size: far more candidates than the
// final count, so the keyword layer has headroom to re-rank within.
const retrievalTopK = 50

// SearchResult is one ranked candidate. Computed per query, never persisted.
type SearchResult struct {
	ImgURL        string  `json:"img_url"`
	Format        string  `json:"format"`
	AltText       string  `json:"alt_text"`
	Title         string  `json:"title"`
	SourceURL     string  `json:"source_url"`
	SemanticScore float64 `json:"semantic_score"`
	KeywordBoost  float64 `json:"keyword_boost_score"`
	FinalScore    float64 `json:"final_score"`
}

// queryPayload is the query-cache envelope payload.
type queryPayload struct {
	Query       string         `json:"query"`
	Namespace   string         `json:"namespace"`
	Filters     []string       `json:"filters"`
	Results     []SearchResult `json:"results"`
	ResultCount int            `json:"result_count"`
}

// Engine executes image searches against one namespace at a time.
type Engine struct {
	embedder *embedding.Embedder
	store    vectorstore.VectorStore
	cache    *cache.Gateway
	metrics  *metrics.Metrics

	maxResults   int
	simThreshold float64
}

// NewEngine creates an Engine. maxResults <= 0 defaults to 5; a threshold
// outside (0,1] defaults to 0.8.
func NewEngine(embedder *embedding.Embedder, store vectorstore.VectorStore, gateway *cache.Gateway, m *metrics.Metrics, maxResults int, simThreshold float64) *Engine {
	if maxResults <= 0 {
		maxResults = 5
	}
	if simThreshold <= 0 || simThreshold > 1 {
		simThreshold = 0.8
	}
	return &Engine{
		embedder:     embedder,
		store:        store,
		cache:        gateway,
		metrics:      m,
		maxResults:   maxResults,
		simThreshold: simThreshold,
	}
}

// Search returns at most maxResults ranked, deduplicated, format-filtered
// results for query within namespace. An empty retrieval is an empty list,
// not an error; an empty query still runs the pipeline and ranks on
// semantic score alone.
func (e *Engine) Search(ctx context.Context, query, namespace string, formatFilter []string) ([]SearchResult, error) {
	if e.metrics != nil {
		e.metrics.SearchesTotal.Inc()
	}

	// Fast path: the full result list for this exact (query, namespace,
	// filters) triple may already be cached.
	key := cache.QueryKey(query, namespace, formatFilter)
	var cached queryPayload
	if e.cache.GetJSON(ctx, cache.KindQuery, key, &cached) {
		slog.Debug("query served from cache", "query", query, "namespace", namespace, "results", cached.ResultCount)
		return cached.Results, nil
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("resolving query embedding: %w", err)
	}

	candidates, err := e.store.Query(ctx, namespace, vec, retrievalTopK)
	if err != nil {
		return nil, fmt.Errorf("vector search in %s: %w", namespace, err)
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		doc := c.Document
		boost := keywordBoost(query, doc.AltText, doc.Title)
		semantic := float64(c.Score)
		results = append(results, SearchResult{
			ImgURL:        doc.ImgURL,
			Format:        doc.ImgFormat,
			AltText:       doc.AltText,
			Title:         doc.Title,
			SourceURL:     doc.SourceURL,
			SemanticScore: semantic,
			KeywordBoost:  boost,
			// Unnormalized sum: keyword boosts may outweigh semantic
			// score, exact textual matches can overturn the vector order.
			FinalScore: semantic + boost,
		})
	}

	// Dedup runs in retrieval order, before filtering and sorting.
	results = deduplicate(results, e.simThreshold)

	if len(formatFilter) > 0 {
		allowed := make(map[string]struct{}, len(formatFilter))
		for _, f := range formatFilter {
			allowed[f] = struct{}{}
		}
		filtered := results[:0]
		for _, r := range results {
			if _, ok := allowed[r.Format]; ok {
				filtered = append(filtered, r)
			}
		}
		results = filtered
	}

	sortResults(results)

	if len(results) > e.maxResults {
		results = results[:e.maxResults]
	}

	e.cache.Set(ctx, cache.KindQuery, key, queryPayload{
		Query:       query,
		Namespace:   namespace,
		Filters:     formatFilter,
		Results:     results,
		ResultCount: len(results),
	}, cache.QueryTTL(len(formatFilter) > 0))

	return results, nil
}

// Summary phrases a result count for the chat response.
func Summary(results []SearchResult) string {
	if len(results) == 0 {
		return "No images found matching your search."
	}
	return fmt.Sprintf("I found %d relevant images:", len(results))
}
