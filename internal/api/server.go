// Package api is the HTTP surface: crawl management, chat search, session
// administration and operational endpoints.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/crawlpix/crawlpix/internal/cache"
	"github.com/crawlpix/crawlpix/internal/crawler"
	"github.com/crawlpix/crawlpix/internal/intent"
	"github.com/crawlpix/crawlpix/internal/search"
	"github.com/crawlpix/crawlpix/internal/session"
	"github.com/crawlpix/crawlpix/internal/vectorstore"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Deps carries everything the HTTP handlers need.
type Deps struct {
	Registry     *session.Registry
	Orchestrator *crawler.Orchestrator
	Parser       *intent.Parser
	Engine       *search.Engine
	Cache        *cache.Gateway
	Store        vectorstore.VectorStore
	Gatherer     prometheus.Gatherer

	DefaultCrawlLimit int
	CleanupAge        time.Duration
	WatchTimeout      time.Duration
}

// NewHandler builds the top-level router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", handleHealth(deps))
	r.Get("/healthz", handleHealth(deps))
	r.Handle("/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	r.Post("/crawl", handleCrawl(deps))
	r.Get("/crawl/{id}/status", handleCrawlStatus(deps))
	r.Post("/chat", handleChat(deps))

	r.Get("/sessions", handleListSessions(deps))
	r.Delete("/sessions/{id}", handleDeleteSession(deps))

	r.Post("/admin/cleanup", handleCleanup(deps))
	r.Get("/admin/cache/stats", handleCacheStats(deps))

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cacheStatus := "ok"
		if !deps.Cache.Available(r.Context()) {
			cacheStatus = "unavailable"
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"cache":  cacheStatus,
		})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]string{
			"type":    errType,
			"message": fmt.Sprintf(format, args...),
		},
	})
}
