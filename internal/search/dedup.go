package search

import (
	"strings"
	"unicode"
)

// normalizeAltText folds case, strips punctuation and collapses whitespace
// so captions differing only in decoration compare equal.
func normalizeAltText(altText string) string {
	lower := strings.ToLower(altText)
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// tokenSet splits a normalized alt text into its unique tokens.
func tokenSet(normalized string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, token := range strings.Fields(normalized) {
		set[token] = struct{}{}
	}
	return set
}

// jaccard is the token-overlap similarity of two sets: |A∩B| / |A∪B|.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for token := range a {
		if _, ok := b[token]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// deduplicate walks results in retrieval order and drops any whose
// normalized alt text exact-matches, or is near-duplicate (Jaccard token
// overlap >= threshold) to, an already-accepted result. Comparison is only
// against results accepted in this pass; results without alt text are kept
// unconditionally. Running it twice yields the same output.
func deduplicate(results []SearchResult, threshold float64) []SearchResult {
	seen := make(map[string]struct{})
	var acceptedSets []map[string]struct{}
	out := make([]SearchResult, 0, len(results))

	for _, r := range results {
		normalized := normalizeAltText(r.AltText)
		if normalized == "" {
			out = append(out, r)
			continue
		}

		if _, dup := seen[normalized]; dup {
			continue
		}

		set := tokenSet(normalized)
		nearDup := false
		for _, accepted := range acceptedSets {
			if jaccard(set, accepted) >= threshold {
				nearDup = true
				break
			}
		}
		if nearDup {
			continue
		}

		seen[normalized] = struct{}{}
		acceptedSets = append(acceptedSets, set)
		out = append(out, r)
	}
	return out
}
