package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/crawlpix/crawlpix/internal/cache"
	"github.com/crawlpix/crawlpix/internal/embedding"
	"github.com/crawlpix/crawlpix/internal/extract"
	"github.com/crawlpix/crawlpix/internal/metrics"
	"github.com/crawlpix/crawlpix/internal/session"
	"github.com/crawlpix/crawlpix/internal/vectorstore"
)

// Orchestrator runs one crawl-to-index pipeline per session: crawl (or HTML
// cache hit) → extract image documents → embed and upsert in batches. It is
// the single producer of a session's status changes and progress messages.
type Orchestrator struct {
	provider  Provider
	extractor *extract.Extractor
	embedder  *embedding.Embedder
	store     vectorstore.VectorStore
	cache     *cache.Gateway
	registry  *session.Registry
	metrics   *metrics.Metrics

	settleWait time.Duration
	batchSize  int
}

// NewOrchestrator wires the pipeline dependencies. batchSize <= 0 defaults
// to 100.
func NewOrchestrator(provider Provider, extractor *extract.Extractor, embedder *embedding.Embedder, store vectorstore.VectorStore, gateway *cache.Gateway, registry *session.Registry, m *metrics.Metrics, settleWait time.Duration, batchSize int) *Orchestrator {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Orchestrator{
		provider:   provider,
		extractor:  extractor,
		embedder:   embedder,
		store:      store,
		cache:      gateway,
		registry:   registry,
		metrics:    m,
		settleWait: settleWait,
		batchSize:  batchSize,
	}
}

// Start launches the pipeline for a session in the background. The crawl
// runs to completion or error regardless of whether anyone watches it.
func (o *Orchestrator) Start(s *session.CrawlSession) {
	go o.run(context.Background(), s)
}

func (o *Orchestrator) run(ctx context.Context, s *session.CrawlSession) {
	defer o.registry.UnlockDomain(s.URL, s.ID)

	if o.metrics != nil {
		o.metrics.CrawlsStarted.Inc()
	}

	pages, err := o.crawlPhase(ctx, s)
	if err != nil {
		o.fail(s, err)
		return
	}

	docs := o.processPhase(s, pages)

	if err := o.indexPhase(ctx, s, docs); err != nil {
		o.fail(s, err)
		return
	}

	s.SetStatus(session.StatusCompleted)
	s.AddMessage("completed", map[string]any{
		"status":       "completed",
		"summary":      crawlSummary(s.Snapshot()),
		"total_images": len(docs),
		"total_pages":  len(pages),
		"stats":        s.Snapshot().Stats,
	})
	if o.metrics != nil {
		o.metrics.CrawlsCompleted.Inc()
	}
	slog.Info("crawl completed", "session", s.ID, "pages", len(pages), "images", len(docs))
}

// crawlPhase fetches pages, preferring the HTML cache for this URL+limit.
func (o *Orchestrator) crawlPhase(ctx context.Context, s *session.CrawlSession) ([]Page, error) {
	s.SetStatus(session.StatusCrawling)
	s.AddMessage("status", map[string]any{
		"status":  string(session.StatusCrawling),
		"message": fmt.Sprintf("Starting to crawl %s", s.URL),
	})

	if payload, ok := o.cache.GetHTML(ctx, s.URL, s.Limit); ok {
		s.RecordCacheHit()
		pages := make([]Page, len(payload.Pages))
		for i, p := range payload.Pages {
			pages[i] = Page{URL: p.PageURL, RawHTML: p.RawHTML}
		}
		s.AddMessage("progress", map[string]any{
			"message":   fmt.Sprintf("Loaded %d pages from cache", len(pages)),
			"cache_hit": true,
		})
		return pages, nil
	}

	pages, err := o.provider.Crawl(ctx, s.URL, Options{
		PageLimit:  s.Limit,
		SettleWait: o.settleWait,
	})
	if err != nil {
		return nil, fmt.Errorf("crawl provider: %w", err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("crawl returned no pages for %s", s.URL)
	}
	if o.metrics != nil {
		o.metrics.PagesCrawled.Add(float64(len(pages)))
	}

	cached := make([]cache.CachedPage, len(pages))
	for i, p := range pages {
		cached[i] = cache.CachedPage{PageURL: p.URL, RawHTML: p.RawHTML}
	}
	o.cache.SetHTML(ctx, s.URL, s.Limit, &cache.HTMLPayload{URL: s.URL, Pages: cached})

	s.AddMessage("progress", map[string]any{
		"message": fmt.Sprintf("Successfully crawled %d pages", len(pages)),
	})
	return pages, nil
}

// processPhase extracts image documents from each page. A page that fails
// to parse is skipped, not fatal.
func (o *Orchestrator) processPhase(s *session.CrawlSession, pages []Page) []extract.ImageDocument {
	s.SetStatus(session.StatusProcessing)
	s.AddMessage("status", map[string]any{
		"status":  string(session.StatusProcessing),
		"message": "Extracting images from crawled content",
	})

	stats := session.Stats{Formats: map[string]int{}, Pages: map[string]int{}}
	var docs []extract.ImageDocument
	for _, page := range pages {
		pageDocs, err := o.extractor.Extract(page.RawHTML, page.URL)
		if err != nil {
			slog.Warn("page extraction failed, skipping", "session", s.ID, "url", page.URL, "error", err)
			continue
		}
		for i := range pageDocs {
			pageDocs[i].SessionID = s.ID
			stats.Formats[pageDocs[i].ImgFormat]++
			stats.Pages[pageDocs[i].SourceURL]++
		}
		docs = append(docs, pageDocs...)
	}

	s.RecordProgress(len(pages), len(docs))
	s.SetStats(stats)
	s.AddMessage("progress", map[string]any{
		"message": fmt.Sprintf("Processed %d images from %d pages", len(docs), len(pages)),
		"stats":   stats,
	})
	return docs
}

// indexPhase embeds and upserts documents in fixed-size batches. A failed
// batch is logged, counted and skipped; the pipeline continues with the
// remaining batches.
func (o *Orchestrator) indexPhase(ctx context.Context, s *session.CrawlSession, docs []extract.ImageDocument) error {
	s.SetStatus(session.StatusIndexing)
	s.AddMessage("status", map[string]any{
		"status":  string(session.StatusIndexing),
		"message": "Adding images to the vector index",
	})

	if err := o.store.EnsureNamespace(ctx, s.Namespace); err != nil {
		return fmt.Errorf("preparing namespace %s: %w", s.Namespace, err)
	}

	total := len(docs)
	for start := 0; start < total; start += o.batchSize {
		end := start + o.batchSize
		if end > total {
			end = total
		}
		batch := docs[start:end]

		if err := o.indexBatch(ctx, s.Namespace, batch); err != nil {
			slog.Warn("batch indexing failed, continuing", "session", s.ID, "batch_start", start, "error", err)
			if o.metrics != nil {
				o.metrics.CrawlErrors.WithLabelValues("batch_failed").Inc()
			}
			s.AddMessage("progress", map[string]any{
				"message": fmt.Sprintf("Warning: failed to index batch %d, continuing with remaining batches", start/o.batchSize+1),
				"error":   err.Error(),
			})
			continue
		}

		if o.metrics != nil {
			o.metrics.ImagesIndexed.Add(float64(len(batch)))
		}
		progress := float64(end) / float64(total) * 100
		s.AddMessage("progress", map[string]any{
			"message":          fmt.Sprintf("Indexing progress: %.1f%% (%d/%d documents)", progress, end, total),
			"progress_percent": progress,
		})
	}
	return nil
}

func (o *Orchestrator) indexBatch(ctx context.Context, namespace string, batch []extract.ImageDocument) error {
	texts := make([]string, len(batch))
	for i, doc := range batch {
		texts[i] = doc.Text
	}
	vectors, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embedding batch: %w", err)
	}
	if err := o.store.Upsert(ctx, namespace, batch, vectors); err != nil {
		return fmt.Errorf("upserting batch: %w", err)
	}
	return nil
}

func (o *Orchestrator) fail(s *session.CrawlSession, err error) {
	slog.Error("crawl failed", "session", s.ID, "url", s.URL, "error", err)
	if o.metrics != nil {
		o.metrics.CrawlErrors.WithLabelValues("provider_failed").Inc()
	}
	s.Fail(err.Error())
	s.AddMessage("error", map[string]any{
		"status":  string(session.StatusError),
		"message": fmt.Sprintf("Crawling failed: %v", err),
	})
}

// crawlSummary phrases what a completed crawl found.
func crawlSummary(snap session.Snapshot) string {
	var formatParts []string
	formats := make([]string, 0, len(snap.Stats.Formats))
	for f := range snap.Stats.Formats {
		formats = append(formats, f)
	}
	sort.Strings(formats)
	for _, f := range formats {
		if n := snap.Stats.Formats[f]; n > 0 {
			formatParts = append(formatParts, fmt.Sprintf("%d %s", n, strings.ToUpper(f)))
		}
	}
	formatsStr := "various formats"
	if len(formatParts) > 0 {
		formatsStr = strings.Join(formatParts, ", ")
	}

	return fmt.Sprintf(
		"I've successfully crawled %s and found %d images across %d pages. The images include %s. You can now search for specific images by describing what you're looking for!",
		snap.URL, snap.TotalImages, snap.TotalPages, formatsStr,
	)
}
