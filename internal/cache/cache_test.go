package cache

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"gomotion/internal/core"
)

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

// memStore is an in-memory Store that records the last saved snapshot.
type memStore struct {
	mu      sync.Mutex
	entries []PersistedEntry
	saves   int
	saveErr error
	loadErr error
}

func (m *memStore) Load(ctx context.Context) ([]PersistedEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.entries, nil
}

func (m *memStore) Save(ctx context.Context, entries []PersistedEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.entries = entries
	m.saves++
	return nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) saved() []PersistedEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PersistedEntry, len(m.entries))
	copy(out, m.entries)
	return out
}

func newTestCache(t *testing.T, maxSize int, clock *fakeClock) (*ResultCache, *memStore) {
	t.Helper()
	store := &memStore{}
	c, err := New(context.Background(), store, time.Hour, maxSize,
		WithClock(clock.Now),
		WithCleanupInterval(0),
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c, store
}

func result(provider, keys string) *core.MotionResult {
	return &core.MotionResult{
		Keys:       keys,
		Confidence: 0.9,
		ComputedAt: time.Date(2026, 8, 1, 11, 59, 0, 0, time.UTC),
		Provider:   provider,
	}
}

func TestResultCacheGetSet(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 10, clock)

		c.Set("k1", result("openai", "3j"))

		got, ok := c.Get("k1")
		if !ok {
			t.Fatal("expected hit")
		}
		if got.Keys != "3j" {
			t.Errorf("expected keys %q, got %q", "3j", got.Keys)
		}
	})

	t.Run("MissOnUnknownKey", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 10, clock)

		if _, ok := c.Get("nope"); ok {
			t.Fatal("expected miss")
		}
	})

	t.Run("ReturnedResultIsACopy", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 10, clock)

		c.Set("k1", &core.MotionResult{
			Keys:         "w",
			Provider:     "openai",
			Alternatives: []string{"e"},
		})

		first, _ := c.Get("k1")
		first.Keys = "mutated"
		first.Alternatives[0] = "mutated"

		second, _ := c.Get("k1")
		if second.Keys != "w" {
			t.Errorf("cached keys mutated through returned copy: %q", second.Keys)
		}
		if second.Alternatives[0] != "e" {
			t.Errorf("cached alternatives mutated through returned copy: %q", second.Alternatives[0])
		}
	})

	t.Run("OverwriteRefreshesEntry", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 10, clock)

		c.SetWithTTL("k1", result("openai", "old"), time.Second)
		clock.Advance(900 * time.Millisecond)
		c.SetWithTTL("k1", result("openai", "new"), time.Second)
		clock.Advance(500 * time.Millisecond)

		got, ok := c.Get("k1")
		if !ok {
			t.Fatal("expected refreshed entry to still be live")
		}
		if got.Keys != "new" {
			t.Errorf("expected keys %q, got %q", "new", got.Keys)
		}
	})
}

func TestResultCacheExpiry(t *testing.T) {
	t.Run("EntryExpiresAfterTTL", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 10, clock)

		c.SetWithTTL("k1", result("openai", "3j"), time.Second)

		clock.Advance(500 * time.Millisecond)
		if _, ok := c.Get("k1"); !ok {
			t.Fatal("expected hit at 500ms")
		}

		clock.Advance(time.Second)
		if _, ok := c.Get("k1"); ok {
			t.Fatal("expected miss at 1500ms")
		}
	})

	t.Run("LazyExpiryRemovesEntry", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 10, clock)

		c.SetWithTTL("k1", result("openai", "3j"), time.Second)
		clock.Advance(2 * time.Second)

		c.Get("k1")
		if c.Stats().Size != 0 {
			t.Errorf("expected expired entry to be removed, size=%d", c.Stats().Size)
		}
	})

	t.Run("ExpiredLookupCountsAsMiss", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 10, clock)

		c.SetWithTTL("k1", result("openai", "3j"), time.Second)
		clock.Advance(2 * time.Second)
		c.Get("k1")

		stats := c.Stats()
		if stats.Misses != 1 || stats.Hits != 0 {
			t.Errorf("expected 1 miss / 0 hits, got %d / %d", stats.Misses, stats.Hits)
		}
	})

	t.Run("SweepRemovesExpired", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 10, clock)

		c.SetWithTTL("k1", result("openai", "3j"), time.Second)
		c.SetWithTTL("k2", result("openai", "w"), time.Hour)
		clock.Advance(2 * time.Second)

		if removed := c.removeExpired(); removed != 1 {
			t.Fatalf("expected 1 removed, got %d", removed)
		}

		stats := c.Stats()
		if stats.Size != 1 {
			t.Errorf("expected size 1 after sweep, got %d", stats.Size)
		}
		if stats.Misses != 0 {
			t.Errorf("sweep must not touch the miss counter, got %d", stats.Misses)
		}
	})
}

func TestResultCacheHas(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestCache(t, 10, clock)

	c.SetWithTTL("k1", result("openai", "3j"), time.Second)

	if !c.Has("k1") {
		t.Fatal("expected Has to report live entry")
	}
	if c.Has("nope") {
		t.Fatal("expected Has to report missing entry")
	}

	clock.Advance(2 * time.Second)
	if c.Has("k1") {
		t.Fatal("expected Has to report expired entry as absent")
	}

	// Has is a pure predicate: no counters, no removals.
	stats := c.Stats()
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Errorf("Has must not touch counters, got hits=%d misses=%d", stats.Hits, stats.Misses)
	}
	if stats.Size != 1 {
		t.Errorf("Has must not remove entries, size=%d", stats.Size)
	}
}

func TestResultCacheEviction(t *testing.T) {
	t.Run("EvictsSoonestToExpire", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 4, clock)

		c.SetWithTTL("A", result("openai", "a"), 10*time.Second)
		c.SetWithTTL("B", result("openai", "b"), 5*time.Second)
		c.SetWithTTL("C", result("openai", "c"), 20*time.Second)
		c.SetWithTTL("D", result("openai", "d"), 1*time.Second)

		c.SetWithTTL("E", result("openai", "e"), 10*time.Second)

		for _, key := range []string{"A", "B", "C", "E"} {
			if !c.Has(key) {
				t.Errorf("expected %q to survive eviction", key)
			}
		}
		if c.Has("D") {
			t.Error("expected D (soonest expiry) to be evicted")
		}
	})

	t.Run("SizeNeverExceedsMax", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 8, clock)

		for i := 0; i < 50; i++ {
			c.Set(strings.Repeat("k", i+1), result("openai", "j"))
			if size := c.Stats().Size; size > 8 {
				t.Fatalf("size %d exceeds maximum 8 after insert %d", size, i)
			}
		}
	})

	t.Run("EvictionRemovesAtLeastAQuarter", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 100, clock)

		for i := 0; i < 100; i++ {
			c.SetWithTTL(strings.Repeat("x", i+1), result("openai", "j"), time.Duration(i+1)*time.Second)
		}

		// The 101st insert triggers eviction of at least a quarter.
		c.Set("final", result("openai", "j"))
		if size := c.Stats().Size; size > 76 {
			t.Errorf("expected at least 25 evicted, size=%d", size)
		}
	})
}

func TestResultCacheDelete(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestCache(t, 10, clock)

	c.Set("k1", result("openai", "3j"))

	if !c.Delete("k1") {
		t.Fatal("expected Delete to report removal")
	}
	if c.Delete("k1") {
		t.Fatal("expected second Delete to report no removal")
	}
	if c.Has("k1") {
		t.Fatal("expected entry gone after Delete")
	}
}

func TestResultCacheClear(t *testing.T) {
	t.Run("EmptiesAndResetsCounters", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 10, clock)

		c.Set("k1", result("openai", "3j"))
		c.Get("k1")
		c.Get("missing")

		c.Clear()

		stats := c.Stats()
		if stats.Size != 0 {
			t.Errorf("expected empty cache, size=%d", stats.Size)
		}
		if stats.Hits != 0 || stats.Misses != 0 {
			t.Errorf("expected counters reset, got hits=%d misses=%d", stats.Hits, stats.Misses)
		}
	})

	t.Run("ByProvider", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 10, clock)

		c.Set("k1", result("openai", "a"))
		c.Set("k2", result("anthropic", "b"))
		c.Set("k3", result("openai", "c"))

		if removed := c.ClearByProvider("openai"); removed != 2 {
			t.Fatalf("expected 2 removed, got %d", removed)
		}
		if !c.Has("k2") {
			t.Error("expected other provider's entry to survive")
		}
		if c.Has("k1") || c.Has("k3") {
			t.Error("expected openai entries removed")
		}
	})

	t.Run("ByProviderNoMatches", func(t *testing.T) {
		clock := newFakeClock()
		c, store := newTestCache(t, 10, clock)

		c.Set("k1", result("openai", "a"))
		waitForSaves(t, store, 1)
		before := store.saves

		if removed := c.ClearByProvider("ghost"); removed != 0 {
			t.Fatalf("expected 0 removed, got %d", removed)
		}

		// A no-op clear must not trigger a persistence write.
		time.Sleep(20 * time.Millisecond)
		store.mu.Lock()
		after := store.saves
		store.mu.Unlock()
		if after != before {
			t.Errorf("expected no save after no-op clear, saves %d -> %d", before, after)
		}
	})
}

func TestResultCacheStats(t *testing.T) {
	t.Run("CountersPartitionLookups", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 10, clock)

		c.Set("k1", result("openai", "3j"))

		lookups := 0
		for i := 0; i < 7; i++ {
			c.Get("k1")
			lookups++
		}
		for i := 0; i < 3; i++ {
			c.Get("missing")
			lookups++
		}

		stats := c.Stats()
		if int(stats.Hits+stats.Misses) != lookups {
			t.Errorf("hits+misses=%d, want %d", stats.Hits+stats.Misses, lookups)
		}
		if stats.Hits != 7 || stats.Misses != 3 {
			t.Errorf("got hits=%d misses=%d, want 7/3", stats.Hits, stats.Misses)
		}
		if stats.HitRate != 70 {
			t.Errorf("got hit rate %.2f, want 70", stats.HitRate)
		}
	})

	t.Run("ZeroLookupsZeroRate", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 10, clock)

		if rate := c.Stats().HitRate; rate != 0 {
			t.Errorf("expected 0 hit rate with no lookups, got %.2f", rate)
		}
	})

	t.Run("PerProviderCounts", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 10, clock)

		c.Set("k1", result("openai", "a"))
		c.Set("k2", result("openai", "b"))
		c.Set("k3", result("anthropic", "c"))

		stats := c.Stats()
		if stats.PerProvider["openai"] != 2 || stats.PerProvider["anthropic"] != 1 {
			t.Errorf("unexpected per-provider counts: %v", stats.PerProvider)
		}
	})

	t.Run("OldestAndNewest", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 10, clock)

		old := result("openai", "a")
		old.ComputedAt = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
		recent := result("openai", "b")
		recent.ComputedAt = time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)

		c.Set("k1", old)
		c.Set("k2", recent)

		stats := c.Stats()
		if !stats.OldestComputedAt.Equal(old.ComputedAt) {
			t.Errorf("oldest = %v, want %v", stats.OldestComputedAt, old.ComputedAt)
		}
		if !stats.NewestComputedAt.Equal(recent.ComputedAt) {
			t.Errorf("newest = %v, want %v", stats.NewestComputedAt, recent.ComputedAt)
		}
	})
}

func TestResultCacheReconfigure(t *testing.T) {
	t.Run("RejectsNegativeValues", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 10, clock)

		var cfgErr *core.ConfigurationError
		if err := c.Reconfigure(-time.Second, 0); !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigurationError, got %v", err)
		}
		if err := c.Reconfigure(0, -1); !errors.As(err, &cfgErr) {
			t.Fatalf("expected ConfigurationError, got %v", err)
		}
	})

	t.Run("ZeroLeavesSettingsUnchanged", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 3, clock)

		c.Set("k1", result("openai", "a"))
		c.Set("k2", result("openai", "b"))
		c.Set("k3", result("openai", "c"))

		if err := c.Reconfigure(0, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Stats().Size != 3 {
			t.Errorf("expected size unchanged, got %d", c.Stats().Size)
		}
	})

	t.Run("ShrinkEvictsImmediately", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 10, clock)

		for i, key := range []string{"a", "b", "c", "d", "e", "f"} {
			c.SetWithTTL(key, result("openai", key), time.Duration(i+1)*time.Minute)
		}

		if err := c.Reconfigure(0, 2); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if size := c.Stats().Size; size > 2 {
			t.Errorf("expected at most 2 entries after shrink, got %d", size)
		}
		// Longest-lived entries survive.
		if !c.Has("f") {
			t.Error("expected entry with the latest expiry to survive the shrink")
		}
	})

	t.Run("NewTTLAffectsOnlyFutureInserts", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 10, clock)

		c.Set("before", result("openai", "a")) // 1h default
		if err := c.Reconfigure(time.Second, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		c.Set("after", result("openai", "b"))

		clock.Advance(2 * time.Second)
		if !c.Has("before") {
			t.Error("expected pre-reconfigure entry to keep its original TTL")
		}
		if c.Has("after") {
			t.Error("expected post-reconfigure entry to use the new TTL")
		}
	})
}

func TestResultCacheExport(t *testing.T) {
	t.Run("OldestFirst", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 10, clock)

		c.Set("first", result("openai", "a"))
		clock.Advance(time.Second)
		c.Set("second", result("openai", "b"))
		clock.Advance(time.Second)
		c.Set("third", result("openai", "c"))

		rows := c.Export()
		if len(rows) != 3 {
			t.Fatalf("expected 3 rows, got %d", len(rows))
		}
		if rows[0].Key != "first" || rows[1].Key != "second" || rows[2].Key != "third" {
			t.Errorf("unexpected order: %q %q %q", rows[0].Key, rows[1].Key, rows[2].Key)
		}
		if rows[0].AgeMillis != 2000 {
			t.Errorf("expected oldest age 2000ms, got %d", rows[0].AgeMillis)
		}
	})

	t.Run("TruncatesLongKeys", func(t *testing.T) {
		clock := newFakeClock()
		c, _ := newTestCache(t, 10, clock)

		long := strings.Repeat("k", 80)
		c.Set(long, result("openai", "a"))

		rows := c.Export()
		if len(rows[0].Key) != exportKeyLimit {
			t.Errorf("expected truncated key of %d chars, got %d", exportKeyLimit, len(rows[0].Key))
		}
		if !strings.HasSuffix(rows[0].Key, "...") {
			t.Errorf("expected ellipsis suffix, got %q", rows[0].Key)
		}
	})
}

func TestResultCachePersistence(t *testing.T) {
	t.Run("MutationsReachTheStore", func(t *testing.T) {
		clock := newFakeClock()
		c, store := newTestCache(t, 10, clock)

		c.Set("k1", result("openai", "3j"))
		waitForSaves(t, store, 1)

		saved := store.saved()
		if len(saved) != 1 {
			t.Fatalf("expected 1 persisted entry, got %d", len(saved))
		}
		if saved[0].Key != "k1" || saved[0].Result.Keys != "3j" {
			t.Errorf("unexpected persisted entry: %+v", saved[0])
		}
	})

	t.Run("SaveFailureKeepsMemoryState", func(t *testing.T) {
		clock := newFakeClock()
		store := &memStore{saveErr: errors.New("disk full")}
		c, err := New(context.Background(), store, time.Hour, 10,
			WithClock(clock.Now), WithCleanupInterval(0))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer c.Close()

		c.Set("k1", result("openai", "3j"))
		if _, ok := c.Get("k1"); !ok {
			t.Fatal("expected entry to survive a failed save")
		}
	})

	t.Run("LoadFailureStartsEmpty", func(t *testing.T) {
		store := &memStore{loadErr: errors.New("corrupt")}
		c, err := New(context.Background(), store, time.Hour, 10, WithCleanupInterval(0))
		if err != nil {
			t.Fatalf("expected cache to start despite load failure, got %v", err)
		}
		defer c.Close()

		if c.Stats().Size != 0 {
			t.Errorf("expected empty cache, size=%d", c.Stats().Size)
		}
	})

	t.Run("RestartRoundTripViaFileStore", func(t *testing.T) {
		clock := newFakeClock()
		path := filepath.Join(t.TempDir(), "motions.json")
		ctx := context.Background()

		store := NewFileStore(path)
		c, err := New(ctx, store, time.Hour, 10, WithClock(clock.Now), WithCleanupInterval(0))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		c.SetWithTTL("live", result("openai", "3j"), time.Hour)
		c.SetWithTTL("dying", result("openai", "w"), time.Second)
		if err := c.Close(); err != nil {
			t.Fatalf("unexpected error on close: %v", err)
		}

		// Simulated restart after the short entry expired.
		clock.Advance(time.Minute)
		c2, err := New(ctx, NewFileStore(path), time.Hour, 10, WithClock(clock.Now), WithCleanupInterval(0))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer c2.Close()

		got, ok := c2.Get("live")
		if !ok {
			t.Fatal("expected live entry to survive restart")
		}
		if got.Keys != "3j" {
			t.Errorf("expected keys %q, got %q", "3j", got.Keys)
		}
		if c2.Has("dying") {
			t.Error("expected expired entry to be discarded on load")
		}
	})
}

func TestResultCacheValidation(t *testing.T) {
	store := &memStore{}
	ctx := context.Background()

	var cfgErr *core.ConfigurationError
	if _, err := New(ctx, store, 0, 10); !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigurationError for zero ttl, got %v", err)
	}
	if _, err := New(ctx, store, time.Hour, 0); !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigurationError for zero max size, got %v", err)
	}
}

func TestResultCacheConcurrentAccess(t *testing.T) {
	clock := newFakeClock()
	c, _ := newTestCache(t, 50, clock)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			key := strings.Repeat("k", n+1)
			for j := 0; j < 100; j++ {
				c.Set(key, result("openai", "j"))
				c.Get(key)
				c.Has(key)
				c.Stats()
			}
		}(i)
	}
	wg.Wait()

	stats := c.Stats()
	if stats.Size == 0 || stats.Size > 50 {
		t.Errorf("unexpected size after concurrent access: %d", stats.Size)
	}
}

// waitForSaves blocks until the store has seen at least n saves. The saver
// runs on its own goroutine, so tests poll rather than assume timing.
func waitForSaves(t *testing.T, store *memStore, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		store.mu.Lock()
		saves := store.saves
		store.mu.Unlock()
		if saves >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for persistence write")
}
