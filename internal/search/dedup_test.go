package search

import (
	"reflect"
	"testing"
)

func TestNormalizeAltText(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Red Bicycle!", "red bicycle"},
		{"  red,   bicycle  ", "red bicycle"},
		{"RED-BICYCLE", "red bicycle"},
		{"", ""},
		{"!!! ...", ""},
		{"photo #42", "photo 42"},
	}
	for _, tc := range cases {
		if got := normalizeAltText(tc.in); got != tc.want {
			t.Errorf("normalizeAltText(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestJaccard(t *testing.T) {
	a := tokenSet("red bicycle on grass")
	b := tokenSet("red bicycle on street")
	// 3 shared of 5 distinct.
	if got := jaccard(a, b); got != 0.6 {
		t.Errorf("jaccard = %v, want 0.6", got)
	}
	if got := jaccard(a, a); got != 1.0 {
		t.Errorf("self jaccard = %v, want 1.0", got)
	}
	if got := jaccard(a, tokenSet("")); got != 0 {
		t.Errorf("jaccard with empty = %v, want 0", got)
	}
}

func TestDeduplicate_ExactMatch(t *testing.T) {
	results := []SearchResult{
		{ImgURL: "1", AltText: "Red Bicycle"},
		{ImgURL: "2", AltText: "red bicycle!"},
		{ImgURL: "3", AltText: "blue car"},
	}
	out := deduplicate(results, 0.8)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[0].ImgURL != "1" || out[1].ImgURL != "3" {
		t.Errorf("kept %s,%s; want 1,3 (first occurrence wins)", out[0].ImgURL, out[1].ImgURL)
	}
}

func TestDeduplicate_NearDuplicate(t *testing.T) {
	results := []SearchResult{
		{ImgURL: "1", AltText: "red mountain bike on a trail near the lake"},
		{ImgURL: "2", AltText: "red mountain bike on a trail near the river"},
		{ImgURL: "3", AltText: "portrait of a cat"},
	}
	out := deduplicate(results, 0.8)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2 (overlap 8/10 >= 0.8 drops the second)", len(out))
	}
	if out[0].ImgURL != "1" || out[1].ImgURL != "3" {
		t.Errorf("kept %s,%s; want 1,3", out[0].ImgURL, out[1].ImgURL)
	}
}

func TestDeduplicate_BelowThresholdKept(t *testing.T) {
	results := []SearchResult{
		{ImgURL: "1", AltText: "red bicycle on grass field today"},
		{ImgURL: "2", AltText: "red bicycle in garage storage area"},
	}
	out := deduplicate(results, 0.8)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2 (overlap below threshold)", len(out))
	}
}

func TestDeduplicate_EmptyAltAlwaysKept(t *testing.T) {
	results := []SearchResult{
		{ImgURL: "1", AltText: ""},
		{ImgURL: "2", AltText: "   "},
		{ImgURL: "3", AltText: "!!!"},
	}
	out := deduplicate(results, 0.8)
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3 (empty normalized alt never counts as duplicate)", len(out))
	}
}

func TestDeduplicate_ComparesOnlyAgainstAccepted(t *testing.T) {
	// 2 is dropped as a near-duplicate of 1. 3 is similar to 2 but not to 1,
	// so it must survive: comparison runs against accepted results only.
	results := []SearchResult{
		{ImgURL: "1", AltText: "alpha beta gamma delta epsilon"},
		{ImgURL: "2", AltText: "alpha beta gamma delta zeta"},
		{ImgURL: "3", AltText: "zeta eta theta iota kappa"},
	}
	out := deduplicate(results, 0.6)
	if len(out) != 2 {
		t.Fatalf("len = %d, want 2", len(out))
	}
	if out[1].ImgURL != "3" {
		t.Errorf("second kept = %s, want 3", out[1].ImgURL)
	}
}

func TestDeduplicate_Idempotent(t *testing.T) {
	results := []SearchResult{
		{ImgURL: "1", AltText: "red bicycle on grass near the lake"},
		{ImgURL: "2", AltText: "red bicycle on grass near the pond"},
		{ImgURL: "3", AltText: "blue car"},
		{ImgURL: "4", AltText: ""},
	}
	once := deduplicate(results, 0.8)
	twice := deduplicate(once, 0.8)
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("deduplicate is not idempotent: %v vs %v", once, twice)
	}
}
