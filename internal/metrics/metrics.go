package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	CacheHits    *prometheus.CounterVec
	CacheMisses  *prometheus.CounterVec
	CacheLatency *prometheus.HistogramVec

	CrawlsStarted   prometheus.Counter
	CrawlsCompleted prometheus.Counter
	CrawlErrors     *prometheus.CounterVec
	PagesCrawled    prometheus.Counter
	ImagesIndexed   prometheus.Counter

	SearchesTotal prometheus.Counter
}

// New registers and returns the application metric set.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawlpix_cache_hits_total",
			Help: "Cache hits by cache kind",
		}, []string{"kind"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawlpix_cache_misses_total",
			Help: "Cache misses by cache kind",
		}, []string{"kind"}),
		CacheLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawlpix_cache_op_seconds",
			Help:    "Cache operation latency by kind and operation",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind", "op"}),
		CrawlsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "crawlpix_crawls_started_total",
			Help: "Crawl sessions started",
		}),
		CrawlsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "crawlpix_crawls_completed_total",
			Help: "Crawl sessions completed successfully",
		}),
		CrawlErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crawlpix_crawl_errors_total",
			Help: "Crawl errors by type",
		}, []string{"type"}), // e.g. 'provider_failed', 'batch_failed'
		PagesCrawled: factory.NewCounter(prometheus.CounterOpts{
			Name: "crawlpix_pages_crawled_total",
			Help: "Pages fetched across all sessions",
		}),
		ImagesIndexed: factory.NewCounter(prometheus.CounterOpts{
			Name: "crawlpix_images_indexed_total",
			Help: "Image documents upserted into the vector store",
		}),
		SearchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "crawlpix_searches_total",
			Help: "Image searches executed",
		}),
	}
}

// ObserveCacheHit records a hit and its latency for one cache kind.
func (m *Metrics) ObserveCacheHit(kind string, elapsed time.Duration) {
	m.CacheHits.WithLabelValues(kind).Inc()
	m.CacheLatency.WithLabelValues(kind, "get").Observe(elapsed.Seconds())
}

// ObserveCacheMiss records a miss and its latency for one cache kind.
func (m *Metrics) ObserveCacheMiss(kind string, elapsed time.Duration) {
	m.CacheMisses.WithLabelValues(kind).Inc()
	m.CacheLatency.WithLabelValues(kind, "get").Observe(elapsed.Seconds())
}

// ObserveCacheSet records the latency of a cache write.
func (m *Metrics) ObserveCacheSet(kind string, elapsed time.Duration) {
	m.CacheLatency.WithLabelValues(kind, "set").Observe(elapsed.Seconds())
}
