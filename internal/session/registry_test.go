package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestRegistry_CreateAndGet(t *testing.T) {
	r := NewRegistry(3, nil)

	s, err := r.Create("abc-123-def", "https://example.com", 10)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if s.Namespace != "session_abc-123-" {
		t.Errorf("namespace = %q, want session_ plus first 8 id chars", s.Namespace)
	}
	if got := r.Get("abc-123-def"); got != s {
		t.Error("Get did not return the created session")
	}
	if r.Get("missing") != nil {
		t.Error("Get for unknown id should be nil")
	}
}

func TestRegistry_CapacityCountsActiveOnly(t *testing.T) {
	r := NewRegistry(2, nil)

	a, _ := r.Create("a", "https://a.com", 1)
	b, _ := r.Create("b", "https://b.com", 1)
	a.SetStatus(StatusCrawling)
	b.SetStatus(StatusIndexing)

	if _, err := r.Create("c", "https://c.com", 1); !errors.Is(err, ErrCapacity) {
		t.Fatalf("err = %v, want ErrCapacity", err)
	}

	// A completed session frees its slot.
	a.SetStatus(StatusCompleted)
	if _, err := r.Create("c", "https://c.com", 1); err != nil {
		t.Fatalf("Create after completion failed: %v", err)
	}
}

func TestRegistry_QueuedDoesNotCountAgainstCap(t *testing.T) {
	r := NewRegistry(1, nil)

	// Still queued, so the slot is not consumed yet.
	if _, err := r.Create("a", "https://a.com", 1); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := r.Create("b", "https://b.com", 1); err != nil {
		t.Fatalf("Create with only queued sessions failed: %v", err)
	}
}

func TestRegistry_ConcurrentCreatesNeverExceedCap(t *testing.T) {
	const maxActive = 3
	r := NewRegistry(maxActive, nil)

	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := r.Create(fmt.Sprintf("id-%d", i), fmt.Sprintf("https://site%d.com", i), 1)
			if err != nil {
				return
			}
			// Activate immediately so later creates see the slot taken.
			s.SetStatus(StatusCrawling)
			mu.Lock()
			created++
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if created > maxActive {
		t.Errorf("%d sessions went active, cap is %d", created, maxActive)
	}
}

func TestRegistry_DomainLock(t *testing.T) {
	r := NewRegistry(3, nil)

	if err := r.LockDomain("https://www.example.com/page", "s1"); err != nil {
		t.Fatalf("first lock failed: %v", err)
	}
	// Same registrable domain, different session.
	if err := r.LockDomain("https://example.com/other", "s2"); !errors.Is(err, ErrDomainBusy) {
		t.Fatalf("err = %v, want ErrDomainBusy", err)
	}
	// Re-lock by the holder is fine.
	if err := r.LockDomain("https://example.com", "s1"); err != nil {
		t.Fatalf("holder re-lock failed: %v", err)
	}
	// Another domain is independent.
	if err := r.LockDomain("https://other.com", "s2"); err != nil {
		t.Fatalf("unrelated domain lock failed: %v", err)
	}

	r.UnlockDomain("https://example.com", "s1")
	if err := r.LockDomain("https://example.com", "s2"); err != nil {
		t.Fatalf("lock after unlock failed: %v", err)
	}
}

func TestRegistry_UnlockByNonHolderIsNoop(t *testing.T) {
	r := NewRegistry(3, nil)
	r.LockDomain("https://example.com", "s1")
	r.UnlockDomain("https://example.com", "s2")

	if err := r.LockDomain("https://example.com", "s3"); !errors.Is(err, ErrDomainBusy) {
		t.Error("non-holder unlock must not release the lock")
	}
}

func TestRegistry_DeleteDropsDomainLock(t *testing.T) {
	r := NewRegistry(3, nil)
	r.Create("s1", "https://example.com", 1)
	r.LockDomain("https://example.com", "s1")

	if !r.Delete("s1") {
		t.Fatal("Delete returned false for existing session")
	}
	if r.Delete("s1") {
		t.Error("second Delete should report false")
	}
	if err := r.LockDomain("https://example.com", "s2"); err != nil {
		t.Errorf("domain still locked after delete: %v", err)
	}
}

func TestRegistry_CleanupOlderThan(t *testing.T) {
	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	current := start
	r := NewRegistry(5, func() time.Time { return current })

	old, _ := r.Create("old", "https://a.com", 1)
	old.SetStatus(StatusCrawling)
	old.SetStatus(StatusCompleted)

	stale, _ := r.Create("stale-active", "https://b.com", 1)
	stale.SetStatus(StatusCrawling)

	current = start.Add(48 * time.Hour)
	fresh, _ := r.Create("fresh", "https://c.com", 1)
	fresh.SetStatus(StatusCrawling)
	fresh.SetStatus(StatusError)

	deleted := r.CleanupOlderThan(24 * time.Hour)
	if len(deleted) != 1 || deleted[0] != "old" {
		t.Fatalf("deleted = %v, want [old]", deleted)
	}
	if r.Get("stale-active") == nil {
		t.Error("active session swept despite age")
	}
	if r.Get("fresh") == nil {
		t.Error("fresh terminal session swept despite being newer than cutoff")
	}
}

func TestRegistrableDomain(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://www.Example.com/page", "example.com"},
		{"https://example.com", "example.com"},
		{"http://sub.example.com/x", "sub.example.com"},
		{"not a url", "not a url"},
	}
	for _, tc := range cases {
		if got := RegistrableDomain(tc.in); got != tc.want {
			t.Errorf("RegistrableDomain(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestRegistry_Namespace(t *testing.T) {
	r := NewRegistry(3, nil)
	r.Create("abcdefgh-rest", "https://a.com", 1)

	if got := r.Namespace("abcdefgh-rest"); got != "session_abcdefgh" {
		t.Errorf("Namespace = %q, want session_abcdefgh", got)
	}
	if got := r.Namespace("missing"); got != "" {
		t.Errorf("Namespace for unknown id = %q, want empty", got)
	}
}
