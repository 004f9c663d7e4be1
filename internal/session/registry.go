package session

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrCapacity means admission control rejected a new crawl. Retryable later,
// never retried automatically.
var ErrCapacity = errors.New("server capacity reached")

// ErrDomainBusy means another session is already crawling the same domain.
var ErrDomainBusy = errors.New("domain is already being crawled")

// Registry is a thread-safe in-memory registry of crawl sessions. It
// enforces the global concurrency cap and per-domain exclusivity. It is an
// explicit owned object passed by reference; there is no package-level
// instance.
type Registry struct {
	mu            sync.Mutex
	sessions      map[string]*CrawlSession
	domains       map[string]string // domain -> session id holding the lock
	maxConcurrent int
	now           func() time.Time
}

// NewRegistry creates a Registry with the given concurrency cap. A cap of
// zero or less falls back to 3. now may be nil, in which case time.Now is
// used (tests inject a fake clock).
func NewRegistry(maxConcurrent int, now func() time.Time) *Registry {
	if maxConcurrent <= 0 {
		maxConcurrent = 3
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{
		sessions:      make(map[string]*CrawlSession),
		domains:       make(map[string]string),
		maxConcurrent: maxConcurrent,
		now:           now,
	}
}

// Create registers a new session if capacity allows. The capacity count and
// the insert happen under one lock: two concurrent creations can never both
// pass the check when a single slot remains.
func (r *Registry) Create(id, rawURL string, limit int) (*CrawlSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	active := 0
	for _, s := range r.sessions {
		if s.Status().Active() {
			active++
		}
	}
	if active >= r.maxConcurrent {
		return nil, fmt.Errorf("%w: maximum %d concurrent crawls allowed", ErrCapacity, r.maxConcurrent)
	}

	s := newSession(id, rawURL, limit, r.now())
	r.sessions[id] = s
	return s, nil
}

// Get returns the session with the given id, or nil.
func (r *Registry) Get(id string) *CrawlSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// Namespace returns the vector-store namespace for a session, or "".
func (r *Registry) Namespace(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[id]; ok {
		return s.Namespace
	}
	return ""
}

// Delete removes a session and drops any domain lock it still holds. The
// caller owns the external side effects (vector namespace deletion, query
// cache invalidation).
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return false
	}
	delete(r.sessions, id)
	for domain, holder := range r.domains {
		if holder == id {
			delete(r.domains, domain)
		}
	}
	return true
}

// List returns snapshots of all sessions, for display only.
func (r *Registry) List() []Snapshot {
	r.mu.Lock()
	sessions := make([]*CrawlSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.Unlock()

	out := make([]Snapshot, len(sessions))
	for i, s := range sessions {
		out[i] = s.Snapshot()
	}
	return out
}

// CleanupOlderThan deletes every terminal session older than the threshold
// and returns the deleted ids. Active sessions are never swept regardless of
// age.
func (r *Registry) CleanupOlderThan(age time.Duration) []string {
	cutoff := r.now().Add(-age)

	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted []string
	for id, s := range r.sessions {
		if s.Status().Terminal() && s.CreatedAt.Before(cutoff) {
			delete(r.sessions, id)
			for domain, holder := range r.domains {
				if holder == id {
					delete(r.domains, domain)
				}
			}
			deleted = append(deleted, id)
		}
	}
	return deleted
}

// LockDomain takes the per-domain crawl lock for a session. Two concurrent
// crawls of the same domain are wasteful duplicate work, so the second is
// rejected. Independent of the capacity check.
func (r *Registry) LockDomain(rawURL, sessionID string) error {
	domain := RegistrableDomain(rawURL)
	r.mu.Lock()
	defer r.mu.Unlock()
	if holder, held := r.domains[domain]; held && holder != sessionID {
		return fmt.Errorf("%w: %s", ErrDomainBusy, domain)
	}
	r.domains[domain] = sessionID
	return nil
}

// UnlockDomain releases the domain lock if the session holds it.
func (r *Registry) UnlockDomain(rawURL, sessionID string) {
	domain := RegistrableDomain(rawURL)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.domains[domain] == sessionID {
		delete(r.domains, domain)
	}
}

// RegistrableDomain extracts the host for domain locking, stripping a www
// prefix so "www.x.com" and "x.com" contend for the same lock.
func RegistrableDomain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return strings.TrimPrefix(strings.ToLower(parsed.Host), "www.")
}
