package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/crawlpix/crawlpix/internal/session"
)

// CrawlRequest starts a crawl of one website.
type CrawlRequest struct {
	URL   string `json:"url"`
	Limit int    `json:"limit"`
}

func handleCrawl(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req CrawlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		req.URL = strings.TrimSpace(req.URL)
		if err := validateCrawlURL(req.URL); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if req.Limit <= 0 {
			req.Limit = deps.DefaultCrawlLimit
		}

		id := uuid.New().String()

		if err := deps.Registry.LockDomain(req.URL, id); err != nil {
			httpError(w, http.StatusConflict, "domain_busy", "%v", err)
			return
		}

		s, err := deps.Registry.Create(id, req.URL, req.Limit)
		if err != nil {
			deps.Registry.UnlockDomain(req.URL, id)
			if errors.Is(err, session.ErrCapacity) {
				httpError(w, http.StatusTooManyRequests, "capacity_exceeded", "%v", err)
				return
			}
			httpError(w, http.StatusInternalServerError, "api_error", "creating session: %v", err)
			return
		}

		deps.Orchestrator.Start(s)

		writeJSON(w, http.StatusAccepted, map[string]any{
			"session_id": id,
			"status":     string(session.StatusQueued),
			"url":        req.URL,
			"limit":      req.Limit,
		})
	}
}

func validateCrawlURL(raw string) error {
	if raw == "" {
		return errors.New("url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return errors.New("url is not valid")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return errors.New("url must use http or https")
	}
	if parsed.Host == "" {
		return errors.New("url must include a host")
	}
	return nil
}

// handleCrawlStatus reports crawl progress. With Accept: text/event-stream
// the full message feed is streamed as SSE, replaying from the first message
// and closing when the session reaches a terminal state; otherwise a JSON
// snapshot is returned.
func handleCrawlStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		s := deps.Registry.Get(id)
		if s == nil {
			httpError(w, http.StatusNotFound, "not_found", "session %s not found", id)
			return
		}

		if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
			writeJSON(w, http.StatusOK, s.Snapshot())
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		done := make(chan struct{})
		feed := s.Watch(done)
		defer close(done)

		timeout := time.NewTimer(deps.WatchTimeout)
		defer timeout.Stop()

		enc := json.NewEncoder(&sseWriter{w: w})
		for {
			select {
			case msg, open := <-feed:
				if !open {
					return
				}
				if err := enc.Encode(msg); err != nil {
					return
				}
				flusher.Flush()
			case <-timeout.C:
				return
			case <-r.Context().Done():
				return
			}
		}
	}
}

// sseWriter frames each JSON document as one SSE data event. The encoder's
// trailing newline plus the one added here produces the required blank line.
type sseWriter struct {
	w http.ResponseWriter
}

func (s *sseWriter) Write(p []byte) (int, error) {
	if _, err := s.w.Write([]byte("data: ")); err != nil {
		return 0, err
	}
	if _, err := s.w.Write(p); err != nil {
		return 0, err
	}
	if _, err := s.w.Write([]byte("\n")); err != nil {
		return 0, err
	}
	return len(p), nil
}
