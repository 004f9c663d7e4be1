package search

import (
	"sort"
	"strings"
)

const (
	boostQueryInAlt   = 2.0
	boostQueryInTitle = 1.0
	boostTokenInAlt   = 0.5
	boostTokenInTitle = 0.3
	minBoostTokenLen  = 3
)

// keywordBoost scores alt/title text against the lower-cased query. An exact
// query substring is a strong precision signal and must dominate; tokens
// shorter than three characters are stopword-like noise and never
// participate, even when the token is the entire query.
func keywordBoost(query, altText, title string) float64 {
	queryLower := strings.ToLower(strings.TrimSpace(query))
	if queryLower == "" {
		return 0
	}
	alt := strings.ToLower(altText)
	titleLower := strings.ToLower(title)

	var boost float64
	if alt != "" && strings.Contains(alt, queryLower) {
		boost += boostQueryInAlt
	}
	if titleLower != "" && strings.Contains(titleLower, queryLower) {
		boost += boostQueryInTitle
	}

	for _, token := range strings.Fields(queryLower) {
		if len(token) < minBoostTokenLen {
			continue
		}
		if strings.Contains(alt, token) {
			boost += boostTokenInAlt
		}
		if strings.Contains(titleLower, token) {
			boost += boostTokenInTitle
		}
	}
	return boost
}

// formatRank orders formats for sorting: common high-quality formats first,
// jpg ahead of png, everything else after.
func formatRank(format string) int {
	switch format {
	case "jpg":
		return 0
	case "png":
		return 1
	default:
		return 2
	}
}

// sortResults orders results by keyword boost descending, then format
// preference, then semantic score descending. Keyword boost wins outright:
// an exact textual match is allowed to overturn a purely semantic ranking.
func sortResults(results []SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.KeywordBoost != b.KeywordBoost {
			return a.KeywordBoost > b.KeywordBoost
		}
		if ra, rb := formatRank(a.Format), formatRank(b.Format); ra != rb {
			return ra < rb
		}
		return a.SemanticScore > b.SemanticScore
	})
}
