package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Cache kinds. Every key carries its kind as a prefix so invalidation can
// target one layer at a time (e.g. "query:*").
const (
	KindHTML      = "html"
	KindQuery     = "query"
	KindEmbedding = "embedding"
	KindParser    = "parser"
)

// TTLs per kind, in line with content volatility: embeddings are
// deterministic for a fixed model, parsed queries change only when the
// prompt changes, HTML and query results go stale.
const (
	TTLHTMLStatic    = 7 * 24 * time.Hour
	TTLHTMLDynamic   = 24 * time.Hour
	TTLQueryFiltered = 30 * time.Minute
	TTLQuery         = time.Hour
	TTLEmbedding     = 30 * 24 * time.Hour
	TTLParser        = 7 * 24 * time.Hour
)

// hashKey returns a short stable digest for use inside cache keys.
func hashKey(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])[:16]
}

// normalizeURL reduces a URL to host plus path with the trailing slash
// stripped (except a bare root), so ".../page" and ".../page/" derive the
// same cache key.
func normalizeURL(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	path := parsed.Path
	if path == "" || path == "/" {
		path = "/"
	} else {
		path = strings.TrimRight(path, "/")
	}
	return parsed.Host + path
}

// HTMLKey derives the HTML-cache key for a crawl of url capped at limit
// pages, scoped to a calendar day. The limit is part of the key so a crawl
// capped at N pages never satisfies a request for M != N; the day bounds
// staleness to at most one day regardless of TTL.
func HTMLKey(rawURL string, limit int, day time.Time) string {
	return fmt.Sprintf("%s:%s:%d:%s", KindHTML, hashKey(normalizeURL(rawURL)), limit, day.Format("2006-01-02"))
}

// QueryKey derives the query-cache key. The namespace is embedded verbatim:
// two sessions must never share query results even for identical queries.
// Filters are sorted before hashing so set order doesn't split the key space.
func QueryKey(query, namespace string, filters []string) string {
	filterHash := "no-filter"
	if len(filters) > 0 {
		sorted := make([]string, len(filters))
		copy(sorted, filters)
		sort.Strings(sorted)
		filterHash = hashKey(strings.Join(sorted, ","))
	}
	return fmt.Sprintf("%s:%s:%s:%s", KindQuery, hashKey(query), namespace, filterHash)
}

// EmbeddingKey derives the embedding-cache key. The model identifier is part
// of the key so a model upgrade cannot transparently serve a stale vector.
func EmbeddingKey(text, model string) string {
	return fmt.Sprintf("%s:%s:%s", KindEmbedding, hashKey(text), model)
}

// ParserKey derives the parser-cache key for a raw user message.
func ParserKey(userMessage string) string {
	return fmt.Sprintf("%s:%s", KindParser, hashKey(userMessage))
}

// dynamicMarkers are URL fragments that suggest frequently changing content.
var dynamicMarkers = []string{
	"news", "blog", "article", "post",
	"rss", "feed", "update", "latest",
}

// HTMLTTL picks the HTML cache TTL by judging whether the page looks static.
// News/social-style URLs and URLs carrying a recent year get the short TTL.
func HTMLTTL(rawURL string, now time.Time) time.Duration {
	lower := strings.ToLower(rawURL)
	for _, marker := range dynamicMarkers {
		if strings.Contains(lower, marker) {
			return TTLHTMLDynamic
		}
	}
	for year := 2020; year <= now.Year(); year++ {
		if strings.Contains(rawURL, strconv.Itoa(year)) {
			return TTLHTMLDynamic
		}
	}
	return TTLHTMLStatic
}

// QueryTTL picks the query cache TTL. Filtered result sets are more
// situational and expire sooner.
func QueryTTL(hasFilter bool) time.Duration {
	if hasFilter {
		return TTLQueryFiltered
	}
	return TTLQuery
}
