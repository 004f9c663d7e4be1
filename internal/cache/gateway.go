package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/crawlpix/crawlpix/internal/metrics"
)

// Entry is the envelope every cached payload travels in. The gateway
// enforces expiry on read from CreatedAt+TTLSeconds even if the store has
// not evicted the key yet; store-level TTL granularity and clock skew are
// not trusted.
type Entry struct {
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
	TTLSeconds int             `json:"ttl_seconds"`
}

// Expired reports whether the entry is past its TTL at the given time.
func (e *Entry) Expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) > time.Duration(e.TTLSeconds)*time.Second
}

// Stats is a point-in-time snapshot of gateway counters for one kind.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// Gateway is the single chokepoint for cache reads and writes. Every
// failure of the underlying store degrades to a miss (reads) or a no-op
// (writes): callers never see a cache error, only a slower system.
type Gateway struct {
	kv      KV
	metrics *metrics.Metrics
	now     func() time.Time

	mu    sync.Mutex
	stats map[string]*Stats
}

// NewGateway wraps a KV store. now may be nil, in which case time.Now is used.
func NewGateway(kv KV, m *metrics.Metrics, now func() time.Time) *Gateway {
	if now == nil {
		now = time.Now
	}
	return &Gateway{
		kv:      kv,
		metrics: m,
		now:     now,
		stats:   make(map[string]*Stats),
	}
}

// Get fetches the entry under key. A store error, a missing key, a corrupt
// envelope and an expired entry all report absent.
func (g *Gateway) Get(ctx context.Context, kind, key string) (json.RawMessage, bool) {
	start := g.now()

	raw, err := g.kv.Get(ctx, key)
	if err != nil {
		if err != ErrNotFound {
			slog.Debug("cache get failed, treating as miss", "kind", kind, "key", key, "error", err)
		}
		g.miss(kind, start)
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		slog.Warn("corrupt cache entry, treating as miss", "kind", kind, "key", key, "error", err)
		g.miss(kind, start)
		return nil, false
	}

	if entry.Expired(g.now()) {
		g.miss(kind, start)
		return nil, false
	}

	g.hit(kind, start)
	return entry.Payload, true
}

// GetJSON fetches and unmarshals the payload under key into v.
func (g *Gateway) GetJSON(ctx context.Context, kind, key string, v any) bool {
	payload, ok := g.Get(ctx, kind, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(payload, v); err != nil {
		slog.Warn("cache payload unmarshal failed", "kind", kind, "key", key, "error", err)
		return false
	}
	return true
}

// Set stores payload under key with the given TTL. Writes are best-effort:
// marshal or store failures are logged and swallowed, the caller must not
// depend on them.
func (g *Gateway) Set(ctx context.Context, kind, key string, payload any, ttl time.Duration) {
	start := g.now()

	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Warn("cache payload marshal failed", "kind", kind, "key", key, "error", err)
		return
	}

	entry := Entry{
		Payload:    raw,
		CreatedAt:  g.now(),
		TTLSeconds: int(ttl / time.Second),
	}
	data, err := json.Marshal(entry)
	if err != nil {
		slog.Warn("cache envelope marshal failed", "kind", kind, "key", key, "error", err)
		return
	}

	if err := g.kv.Set(ctx, key, string(data), ttl); err != nil {
		slog.Debug("cache set failed, skipping", "kind", kind, "key", key, "error", err)
	}
	if g.metrics != nil {
		g.metrics.ObserveCacheSet(kind, g.now().Sub(start))
	}
}

// Invalidate deletes every key matching the glob pattern, e.g. "query:*".
func (g *Gateway) Invalidate(ctx context.Context, pattern string) int {
	deleted, err := g.kv.DeleteByPattern(ctx, pattern)
	if err != nil {
		slog.Warn("cache invalidation incomplete", "pattern", pattern, "deleted", deleted, "error", err)
	}
	if deleted > 0 {
		slog.Info("cache invalidated", "pattern", pattern, "deleted", deleted)
	}
	return deleted
}

// Available reports whether the backing store answers a ping.
func (g *Gateway) Available(ctx context.Context) bool {
	return g.kv.Ping(ctx) == nil
}

// StatsSnapshot returns hit/miss counters per cache kind.
func (g *Gateway) StatsSnapshot() map[string]Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[string]Stats, len(g.stats))
	for kind, s := range g.stats {
		out[kind] = *s
	}
	return out
}

func (g *Gateway) hit(kind string, start time.Time) {
	g.mu.Lock()
	g.kindStats(kind).Hits++
	g.mu.Unlock()
	if g.metrics != nil {
		g.metrics.ObserveCacheHit(kind, g.now().Sub(start))
	}
}

func (g *Gateway) miss(kind string, start time.Time) {
	g.mu.Lock()
	g.kindStats(kind).Misses++
	g.mu.Unlock()
	if g.metrics != nil {
		g.metrics.ObserveCacheMiss(kind, g.now().Sub(start))
	}
}

// kindStats must be called with mu held.
func (g *Gateway) kindStats(kind string) *Stats {
	s, ok := g.stats[kind]
	if !ok {
		s = &Stats{}
		g.stats[kind] = s
	}
	return s
}
