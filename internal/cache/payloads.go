package cache

import (
	"context"
)

// HTMLPayload caches the rendered pages of one crawl.
type HTMLPayload struct {
	URL        string       `json:"url"`
	Pages      []CachedPage `json:"pages"`
	ImageCount int          `json:"image_count"`
	SizeBytes  int          `json:"size_bytes"`
}

// CachedPage is one crawled page inside an HTMLPayload.
type CachedPage struct {
	PageURL string `json:"page_url"`
	RawHTML string `json:"raw_html"`
}

// EmbeddingPayload caches one text-to-vector mapping.
type EmbeddingPayload struct {
	Text       string    `json:"text"`
	Model      string    `json:"model"`
	Embedding  []float32 `json:"embedding"`
	TokenCount int       `json:"token_count"`
}

// GetHTML looks up cached pages for a crawl of url capped at limit pages.
// Yesterday's key is tried as a fallback so a long-TTL static page crawled
// late in the day is still reusable the next morning.
func (g *Gateway) GetHTML(ctx context.Context, url string, limit int) (*HTMLPayload, bool) {
	var payload HTMLPayload
	today := g.now()
	if g.GetJSON(ctx, KindHTML, HTMLKey(url, limit, today), &payload) {
		return &payload, true
	}
	if g.GetJSON(ctx, KindHTML, HTMLKey(url, limit, today.AddDate(0, 0, -1)), &payload) {
		return &payload, true
	}
	return nil, false
}

// SetHTML caches crawled pages under today's key with a TTL picked by the
// static-vs-dynamic heuristic.
func (g *Gateway) SetHTML(ctx context.Context, url string, limit int, payload *HTMLPayload) {
	payload.SizeBytes = 0
	for _, p := range payload.Pages {
		payload.SizeBytes += len(p.RawHTML)
	}
	g.Set(ctx, KindHTML, HTMLKey(url, limit, g.now()), payload, HTMLTTL(url, g.now()))
}

// GetEmbedding looks up a cached vector for text under the given model.
func (g *Gateway) GetEmbedding(ctx context.Context, text, model string) ([]float32, bool) {
	var payload EmbeddingPayload
	if !g.GetJSON(ctx, KindEmbedding, EmbeddingKey(text, model), &payload) {
		return nil, false
	}
	return payload.Embedding, true
}

// SetEmbedding caches a vector for text under the given model.
func (g *Gateway) SetEmbedding(ctx context.Context, text, model string, vec []float32) {
	payload := EmbeddingPayload{
		Text:       text,
		Model:      model,
		Embedding:  vec,
		TokenCount: approxTokens(text),
	}
	g.Set(ctx, KindEmbedding, EmbeddingKey(text, model), payload, TTLEmbedding)
}

// approxTokens is a whitespace-split approximation, good enough for stats.
func approxTokens(text string) int {
	count := 0
	inWord := false
	for _, r := range text {
		if r == ' ' || r == '\t' || r == '\n' {
			inWord = false
			continue
		}
		if !inWord {
			count++
			inWord = true
		}
	}
	return count
}
