package cache

import (
	"strings"
	"testing"
	"time"
)

func TestHTMLKey_TrailingSlashNormalized(t *testing.T) {
	day := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	a := HTMLKey("https://example.com/page/", 10, day)
	b := HTMLKey("https://example.com/page", 10, day)
	if a != b {
		t.Errorf("trailing-slash URLs derived different keys: %q vs %q", a, b)
	}

	root := HTMLKey("https://example.com/", 10, day)
	bare := HTMLKey("https://example.com", 10, day)
	if root != bare {
		t.Errorf("bare host and root path derived different keys: %q vs %q", root, bare)
	}
}

func TestHTMLKey_LimitAndDayScope(t *testing.T) {
	day := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	if HTMLKey("https://example.com", 5, day) == HTMLKey("https://example.com", 10, day) {
		t.Error("different limits must derive different keys")
	}
	if HTMLKey("https://example.com", 5, day) == HTMLKey("https://example.com", 5, day.AddDate(0, 0, 1)) {
		t.Error("different days must derive different keys")
	}
	if !strings.HasSuffix(HTMLKey("https://example.com", 5, day), ":2025-06-15") {
		t.Errorf("key %q should end with the calendar day", HTMLKey("https://example.com", 5, day))
	}
}

func TestQueryKey_FilterOrderIrrelevant(t *testing.T) {
	a := QueryKey("sunset", "session_abc", []string{"jpg", "png"})
	b := QueryKey("sunset", "session_abc", []string{"png", "jpg"})
	if a != b {
		t.Errorf("filter order split the key space: %q vs %q", a, b)
	}
}

func TestQueryKey_NoFilterMarker(t *testing.T) {
	key := QueryKey("sunset", "session_abc", nil)
	if !strings.HasSuffix(key, ":no-filter") {
		t.Errorf("unfiltered key = %q, want no-filter suffix", key)
	}
	if key == QueryKey("sunset", "session_abc", []string{"jpg"}) {
		t.Error("filtered and unfiltered queries must not share a key")
	}
}

func TestQueryKey_NamespaceIsolation(t *testing.T) {
	if QueryKey("sunset", "session_a", nil) == QueryKey("sunset", "session_b", nil) {
		t.Error("identical queries in different namespaces must not share a key")
	}
}

func TestEmbeddingKey_ModelScoped(t *testing.T) {
	if EmbeddingKey("text", "model-a") == EmbeddingKey("text", "model-b") {
		t.Error("embedding keys must include the model")
	}
}

func TestHTMLTTL(t *testing.T) {
	now := time.Date(2025, 6, 15, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		url  string
		want time.Duration
	}{
		{"https://example.com/docs/install", TTLHTMLStatic},
		{"https://example.com/blog/hello", TTLHTMLDynamic},
		{"https://news.example.com/", TTLHTMLDynamic},
		{"https://example.com/2024/review", TTLHTMLDynamic},
		{"https://example.com/archive/1999", TTLHTMLStatic},
		{"https://example.com/feed.xml", TTLHTMLDynamic},
	}
	for _, tc := range cases {
		if got := HTMLTTL(tc.url, now); got != tc.want {
			t.Errorf("HTMLTTL(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestQueryTTL(t *testing.T) {
	if QueryTTL(true) != TTLQueryFiltered {
		t.Error("filtered queries should use the short TTL")
	}
	if QueryTTL(false) != TTLQuery {
		t.Error("unfiltered queries should use the standard TTL")
	}
}
