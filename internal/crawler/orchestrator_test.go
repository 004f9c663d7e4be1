package crawler

import (
	"context"
	"errors"
	"path"
	"sync"
	"testing"
	"time"

	"github.com/crawlpix/crawlpix/internal/cache"
	"github.com/crawlpix/crawlpix/internal/embedding"
	"github.com/crawlpix/crawlpix/internal/extract"
	"github.com/crawlpix/crawlpix/internal/session"
	"github.com/crawlpix/crawlpix/internal/vectorstore"
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

// fakeCrawlProvider serves canned pages and counts crawls.
type fakeCrawlProvider struct {
	mu     sync.Mutex
	pages  []Page
	err    error
	crawls int
}

func (f *fakeCrawlProvider) Crawl(_ context.Context, _ string, _ Options) ([]Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.crawls++
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

func (f *fakeCrawlProvider) crawlCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.crawls
}

type fakeEmbedProvider struct{}

func (fakeEmbedProvider) Embed(_ context.Context, _, _ string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

// recordingStore captures upserts per namespace.
type recordingStore struct {
	mu         sync.Mutex
	upserted   map[string][]extract.ImageDocument
	upsertErrs int // fail the first N upserts
}

func newRecordingStore() *recordingStore {
	return &recordingStore{upserted: make(map[string][]extract.ImageDocument)}
}

func (r *recordingStore) EnsureNamespace(context.Context, string) error { return nil }
func (r *recordingStore) DeleteNamespace(context.Context, string) error { return nil }
func (r *recordingStore) Query(context.Context, string, []float32, int) ([]vectorstore.Candidate, error) {
	return nil, nil
}

func (r *recordingStore) Upsert(_ context.Context, namespace string, docs []extract.ImageDocument, vectors [][]float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErrs > 0 {
		r.upsertErrs--
		return errors.New("upsert failed")
	}
	if len(docs) != len(vectors) {
		return errors.New("docs/vectors length mismatch")
	}
	r.upserted[namespace] = append(r.upserted[namespace], docs...)
	return nil
}

func (r *recordingStore) count(namespace string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.upserted[namespace])
}

const testPageHTML = `<html><body>
	<img src="/a.jpg" alt="red bicycle on grass">
	<img src="/b.png" alt="blue car in the city">
</body></html>`

type pipelineFixture struct {
	orchestrator *Orchestrator
	registry     *session.Registry
	store        *recordingStore
	provider     *fakeCrawlProvider
	gateway      *cache.Gateway
}

func newPipeline(t *testing.T, provider *fakeCrawlProvider, store *recordingStore, batchSize int) *pipelineFixture {
	t.Helper()
	gateway := cache.NewGateway(newMemKV(), nil, nil)
	embedder := embedding.New(fakeEmbedProvider{}, gateway, "test-model")
	registry := session.NewRegistry(3, nil)
	o := NewOrchestrator(provider, extract.New(), embedder, store, gateway, registry, nil, 0, batchSize)
	return &pipelineFixture{
		orchestrator: o,
		registry:     registry,
		store:        store,
		provider:     provider,
		gateway:      gateway,
	}
}

func startSession(t *testing.T, f *pipelineFixture, id, url string) *session.CrawlSession {
	t.Helper()
	if err := f.registry.LockDomain(url, id); err != nil {
		t.Fatalf("LockDomain failed: %v", err)
	}
	s, err := f.registry.Create(id, url, 5)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return s
}

func TestRun_FullPipeline(t *testing.T) {
	provider := &fakeCrawlProvider{pages: []Page{{URL: "https://example.com", RawHTML: testPageHTML}}}
	store := newRecordingStore()
	f := newPipeline(t, provider, store, 100)
	s := startSession(t, f, "run-1", "https://example.com")

	f.orchestrator.run(context.Background(), s)

	if s.Status() != session.StatusCompleted {
		t.Fatalf("status = %s, want completed (error: %s)", s.Status(), s.Snapshot().Error)
	}
	if got := store.count(s.Namespace); got != 2 {
		t.Errorf("indexed %d docs, want 2", got)
	}

	snap := s.Snapshot()
	if snap.TotalPages != 1 || snap.TotalImages != 2 {
		t.Errorf("snapshot = %+v, want 1 page / 2 images", snap)
	}
	if snap.Stats.Formats["jpg"] != 1 || snap.Stats.Formats["png"] != 1 {
		t.Errorf("format stats = %v", snap.Stats.Formats)
	}

	// Every doc carries the session id for provenance.
	for _, d := range store.upserted[s.Namespace] {
		if d.SessionID != s.ID {
			t.Errorf("doc %s missing session id", d.ImgURL)
		}
	}

	// The domain lock is released on completion.
	if err := f.registry.LockDomain("https://example.com", "other"); err != nil {
		t.Errorf("domain still locked after pipeline: %v", err)
	}
}

func TestRun_SecondRunServedFromHTMLCache(t *testing.T) {
	provider := &fakeCrawlProvider{pages: []Page{{URL: "https://example.com", RawHTML: testPageHTML}}}
	f := newPipeline(t, provider, newRecordingStore(), 100)

	s1 := startSession(t, f, "cache-1", "https://example.com")
	f.orchestrator.run(context.Background(), s1)

	s2 := startSession(t, f, "cache-2", "https://example.com")
	f.orchestrator.run(context.Background(), s2)

	if provider.crawlCount() != 1 {
		t.Errorf("provider crawled %d times, want 1 (second run from HTML cache)", provider.crawlCount())
	}
	if s2.Snapshot().CacheHits != 1 {
		t.Errorf("second session cache hits = %d, want 1", s2.Snapshot().CacheHits)
	}
	if s2.Status() != session.StatusCompleted {
		t.Errorf("second session status = %s, want completed", s2.Status())
	}
}

func TestRun_ProviderFailure(t *testing.T) {
	provider := &fakeCrawlProvider{err: errors.New("browser crashed")}
	f := newPipeline(t, provider, newRecordingStore(), 100)
	s := startSession(t, f, "fail-1", "https://example.com")

	f.orchestrator.run(context.Background(), s)

	if s.Status() != session.StatusError {
		t.Fatalf("status = %s, want error", s.Status())
	}
	if s.Snapshot().Error == "" {
		t.Error("error cause not recorded")
	}
	// Failure still releases the domain lock.
	if err := f.registry.LockDomain("https://example.com", "other"); err != nil {
		t.Errorf("domain still locked after failure: %v", err)
	}
}

func TestRun_EmptyCrawlIsError(t *testing.T) {
	provider := &fakeCrawlProvider{pages: nil}
	f := newPipeline(t, provider, newRecordingStore(), 100)
	s := startSession(t, f, "empty-1", "https://example.com")

	f.orchestrator.run(context.Background(), s)

	if s.Status() != session.StatusError {
		t.Fatalf("status = %s, want error for zero crawled pages", s.Status())
	}
}

func TestRun_FailedBatchSkippedPipelineCompletes(t *testing.T) {
	provider := &fakeCrawlProvider{pages: []Page{{URL: "https://example.com", RawHTML: testPageHTML}}}
	store := newRecordingStore()
	store.upsertErrs = 1
	// Batch size 1: first batch fails, second succeeds.
	f := newPipeline(t, provider, store, 1)
	s := startSession(t, f, "batch-1", "https://example.com")

	f.orchestrator.run(context.Background(), s)

	if s.Status() != session.StatusCompleted {
		t.Fatalf("status = %s, want completed despite one failed batch", s.Status())
	}
	if got := store.count(s.Namespace); got != 1 {
		t.Errorf("indexed %d docs, want 1 (failed batch skipped)", got)
	}
}

func TestRun_TerminalFeedEndsWithCompletion(t *testing.T) {
	provider := &fakeCrawlProvider{pages: []Page{{URL: "https://example.com", RawHTML: testPageHTML}}}
	f := newPipeline(t, provider, newRecordingStore(), 100)
	s := startSession(t, f, "feed-1", "https://example.com")

	f.orchestrator.run(context.Background(), s)

	done := make(chan struct{})
	defer close(done)
	feed := s.Watch(done)

	var last session.Message
	timeout := time.After(2 * time.Second)
	for {
		select {
		case msg, open := <-feed:
			if !open {
				if last.Type != "completed" {
					t.Fatalf("last message type = %q, want completed", last.Type)
				}
				return
			}
			last = msg
		case <-timeout:
			t.Fatal("feed never closed for a terminal session")
		}
	}
}
