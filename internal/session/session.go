// Package session tracks crawl sessions: their lifecycle state, progress
// message feed, and the concurrency gates that bound how many crawls run
// at once.
package session

import (
	"sync"
	"time"
)

// Status is the lifecycle state of a crawl session.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusCrawling   Status = "crawling"
	StatusProcessing Status = "processing"
	StatusIndexing   Status = "indexing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// statusRank orders the forward transitions. Error is terminal and reachable
// from any non-terminal state.
var statusRank = map[Status]int{
	StatusQueued:     0,
	StatusCrawling:   1,
	StatusProcessing: 2,
	StatusIndexing:   3,
	StatusCompleted:  4,
}

// Active reports whether the status counts against the concurrency cap.
// Queued does not count: a session is created at the moment its crawl starts.
func (s Status) Active() bool {
	return s == StatusCrawling || s == StatusProcessing || s == StatusIndexing
}

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Message is one progress event published by the crawl orchestrator.
type Message struct {
	Type      string         `json:"type"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// Stats aggregates what a crawl found.
type Stats struct {
	Formats map[string]int `json:"formats"`
	Pages   map[string]int `json:"pages"`
}

// CrawlSession is the state of one crawl-to-index pipeline run. It is owned
// by the Registry and mutated only through its methods; the orchestrator is
// the single producer of status changes and messages, any number of watchers
// consume the feed.
type CrawlSession struct {
	ID        string
	URL       string
	Limit     int
	Namespace string
	CreatedAt time.Time

	mu          sync.Mutex
	status      Status
	totalImages int
	totalPages  int
	cacheHits   int
	errMsg      string
	stats       Stats
	messages    []Message
	subs        map[int]chan struct{}
	nextSub     int
}

func newSession(id, url string, limit int, now time.Time) *CrawlSession {
	ns := "session_" + id
	if len(id) > 8 {
		ns = "session_" + id[:8]
	}
	return &CrawlSession{
		ID:        id,
		URL:       url,
		Limit:     limit,
		Namespace: ns,
		CreatedAt: now,
		status:    StatusQueued,
		stats:     Stats{Formats: map[string]int{}, Pages: map[string]int{}},
		subs:      map[int]chan struct{}{},
	}
}

// Status returns the current lifecycle state.
func (s *CrawlSession) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SetStatus moves the session forward. Transitions are monotonic along
// queued→crawling→processing→indexing→completed; backwards moves and any
// change out of a terminal state are ignored.
func (s *CrawlSession) SetStatus(next Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.Terminal() {
		return
	}
	if next == StatusError {
		s.status = StatusError
		return
	}
	if statusRank[next] > statusRank[s.status] {
		s.status = next
	}
}

// Fail marks the session as errored with a message. No-op if already terminal.
func (s *CrawlSession) Fail(msg string) {
	s.mu.Lock()
	if !s.status.Terminal() {
		s.status = StatusError
		s.errMsg = msg
	}
	s.mu.Unlock()
}

// AddMessage appends a progress event and wakes watchers. Appends keep
// producer order; a watcher that stopped reading never blocks the producer.
func (s *CrawlSession) AddMessage(msgType string, data map[string]any) {
	s.mu.Lock()
	s.messages = append(s.messages, Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now(),
	})
	for _, ch := range s.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	s.mu.Unlock()
}

// Watch returns a channel replaying the full message feed from the start and
// then following new messages. The channel closes when the session reaches a
// terminal state and the feed is drained, or when done is closed. Closing
// done detaches the watcher only; the producer keeps running.
func (s *CrawlSession) Watch(done <-chan struct{}) <-chan Message {
	out := make(chan Message)
	notify := make(chan struct{}, 1)

	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = notify
	s.mu.Unlock()

	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		}()

		next := 0
		for {
			s.mu.Lock()
			pending := make([]Message, len(s.messages[next:]))
			copy(pending, s.messages[next:])
			next = len(s.messages)
			terminal := s.status.Terminal()
			s.mu.Unlock()

			for _, msg := range pending {
				select {
				case out <- msg:
				case <-done:
					return
				}
			}
			if terminal && len(pending) == 0 {
				return
			}

			select {
			case <-notify:
			case <-done:
				return
			}
		}
	}()

	return out
}

// RecordProgress updates running crawl counters.
func (s *CrawlSession) RecordProgress(pages, images int) {
	s.mu.Lock()
	s.totalPages = pages
	s.totalImages = images
	s.mu.Unlock()
}

// RecordCacheHit counts one HTML-cache hit for this session.
func (s *CrawlSession) RecordCacheHit() {
	s.mu.Lock()
	s.cacheHits++
	s.mu.Unlock()
}

// SetStats stores the per-format and per-page histograms.
func (s *CrawlSession) SetStats(stats Stats) {
	s.mu.Lock()
	s.stats = stats
	s.mu.Unlock()
}

// Snapshot is a read-only copy of session state for listing and status APIs.
type Snapshot struct {
	ID          string    `json:"session_id"`
	URL         string    `json:"url"`
	Limit       int       `json:"limit"`
	Namespace   string    `json:"namespace"`
	Status      Status    `json:"status"`
	TotalImages int       `json:"total_images"`
	TotalPages  int       `json:"total_pages"`
	CacheHits   int       `json:"cache_hits"`
	Error       string    `json:"error,omitempty"`
	Stats       Stats     `json:"stats"`
	CreatedAt   time.Time `json:"created_at"`
}

// Snapshot returns a copy of the current state.
func (s *CrawlSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:          s.ID,
		URL:         s.URL,
		Limit:       s.Limit,
		Namespace:   s.Namespace,
		Status:      s.status,
		TotalImages: s.totalImages,
		TotalPages:  s.totalPages,
		CacheHits:   s.cacheHits,
		Error:       s.errMsg,
		Stats:       s.stats,
		CreatedAt:   s.CreatedAt,
	}
}
