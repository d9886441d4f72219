package cache

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gomotion/internal/core"
)

const (
	// DefaultTTL is the entry lifetime used when the caller does not
	// supply one.
	DefaultTTL = time.Hour

	// DefaultMaxSize bounds the number of live entries.
	DefaultMaxSize = 100

	// DefaultCleanupInterval is how often the background sweep removes
	// expired entries.
	DefaultCleanupInterval = 5 * time.Minute

	// exportKeyLimit caps key length in diagnostic exports.
	exportKeyLimit = 50

	// saveTimeout bounds a single background persistence write.
	saveTimeout = 10 * time.Second

	// entryOverhead approximates the fixed per-entry memory cost beyond
	// string payloads, for the stats footprint estimate.
	entryOverhead = 160
)

// entry is a live cache entry. It is owned exclusively by the cache map and
// never mutated after creation; refresh is delete + reinsert.
type entry struct {
	result     *core.MotionResult
	provider   string
	insertedAt time.Time
	expiresAt  time.Time
}

// Stats is the derived view over the cache, computed in one pass.
// Hit and miss counters cover the process lifetime and reset only on Clear.
type Stats struct {
	Hits             uint64         `json:"hits"`
	Misses           uint64         `json:"misses"`
	HitRate          float64        `json:"hit_rate"` // percent, 0 when no lookups yet
	Size             int            `json:"size"`
	PerProvider      map[string]int `json:"per_provider"`
	OldestComputedAt time.Time      `json:"oldest_computed_at,omitzero"`
	NewestComputedAt time.Time      `json:"newest_computed_at,omitzero"`
	MemoryBytes      int64          `json:"memory_bytes"`
}

// ExportRow is a read-only diagnostic view of one entry. Keys longer than 50
// characters are truncated for display; rows are never used for lookups.
type ExportRow struct {
	Key             string  `json:"key"`
	Provider        string  `json:"provider"`
	Confidence      float64 `json:"confidence"`
	AgeMillis       int64   `json:"age_ms"`
	ExpiresInMillis int64   `json:"expires_in_ms"`
}

// Option configures a ResultCache.
type Option func(*ResultCache)

// WithClock overrides the cache's time source. Used by tests to control
// expiry without sleeping.
func WithClock(now func() time.Time) Option {
	return func(c *ResultCache) { c.now = now }
}

// WithCleanupInterval overrides the background sweep interval.
// A non-positive value disables the sweep.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *ResultCache) { c.cleanupInterval = d }
}

// ResultCache is a bounded, TTL-expiring mapping from request fingerprint to
// computed motion result. All operations are safe for concurrent use; the
// in-memory map is the source of truth and durable storage is best-effort.
type ResultCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	maxSize int
	hits    uint64
	misses  uint64

	store Store
	now   func() time.Time

	// Pending snapshot for the saver goroutine. Writes coalesce: only the
	// latest snapshot is persisted, so a failed save is retried implicitly
	// by the next mutation.
	pendingMu  sync.Mutex
	pending    []PersistedEntry
	hasPending bool
	saveCh     chan struct{}

	cleanupInterval time.Duration
	stopOnce        sync.Once
	stop            chan struct{}
	done            sync.WaitGroup
}

// New creates a ResultCache backed by store, loading any previously persisted
// entries. Entries already expired at load time are silently discarded. A
// load failure is logged and the cache starts empty; it never fails startup.
func New(ctx context.Context, store Store, ttl time.Duration, maxSize int, opts ...Option) (*ResultCache, error) {
	if ttl <= 0 {
		return nil, core.NewConfigurationError("ttl", "must be positive")
	}
	if maxSize <= 0 {
		return nil, core.NewConfigurationError("max_size", "must be positive")
	}

	c := &ResultCache{
		entries:         make(map[string]*entry),
		ttl:             ttl,
		maxSize:         maxSize,
		store:           store,
		now:             time.Now,
		saveCh:          make(chan struct{}, 1),
		cleanupInterval: DefaultCleanupInterval,
		stop:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.load(ctx)

	c.done.Add(1)
	go c.saveLoop()
	if c.cleanupInterval > 0 {
		c.done.Add(1)
		go c.sweepLoop()
	}
	return c, nil
}

// load restores persisted entries, dropping expired ones.
func (c *ResultCache) load(ctx context.Context) {
	persisted, err := c.store.Load(ctx)
	if err != nil {
		slog.Warn("failed to load motion cache, starting empty",
			"error", core.NewPersistenceError("load", err))
		return
	}

	now := c.now()
	var discarded int
	for _, p := range persisted {
		if !p.ExpiresAt.After(now) {
			discarded++
			continue
		}
		res := p.Result
		c.entries[p.Key] = &entry{
			result:     &res,
			provider:   p.Provider,
			insertedAt: p.InsertedAt,
			expiresAt:  p.ExpiresAt,
		}
	}
	slog.Info("motion cache loaded",
		"loaded", len(c.entries),
		"discarded_expired", discarded,
	)
}

// Get looks up key. Lookups always update the hit/miss counters. An entry
// whose expiry has passed is removed lazily, counted as a miss, and the
// updated state is persisted. Returned results are copies.
func (c *ResultCache) Get(key string) (*core.MotionResult, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if !ok {
		c.misses++
		c.mu.Unlock()
		return nil, false
	}
	if c.now().After(e.expiresAt) {
		delete(c.entries, key)
		c.misses++
		c.persistLocked()
		c.mu.Unlock()
		return nil, false
	}
	c.hits++
	res := e.result.Clone()
	c.mu.Unlock()
	return res, true
}

// Set inserts result under key using the cache's configured TTL.
func (c *ResultCache) Set(key string, result *core.MotionResult) {
	c.SetWithTTL(key, result, 0)
}

// SetWithTTL inserts or overwrites the entry under key with the given TTL
// (0 means the configured default). If the cache is at capacity, eviction
// runs first. Never fails for valid input.
func (c *ResultCache) SetWithTTL(key string, result *core.MotionResult, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = c.ttl
	}
	if len(c.entries) >= c.maxSize {
		c.evictLocked(c.maxSize - 1)
	}

	now := c.now()
	c.entries[key] = &entry{
		result:     result.Clone(),
		provider:   result.Provider,
		insertedAt: now,
		expiresAt:  now.Add(ttl),
	}
	c.persistLocked()
}

// Has reports whether key is present and not expired. Unlike Get it is a
// pure predicate: it touches neither the counters nor the stored state.
func (c *ResultCache) Has(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	return ok && !c.now().After(e.expiresAt)
}

// Delete removes key if present and reports whether a removal occurred.
// State is persisted only when something was removed.
func (c *ResultCache) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		return false
	}
	delete(c.entries, key)
	c.persistLocked()
	return true
}

// Clear empties the cache and resets the hit/miss counters.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.hits = 0
	c.misses = 0
	c.persistLocked()
}

// ClearByProvider removes every entry produced by the named provider and
// returns the number removed. A no-op (zero matches) skips persistence.
func (c *ResultCache) ClearByProvider(providerName string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var removed int
	for key, e := range c.entries {
		if e.provider == providerName {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		c.persistLocked()
	}
	return removed
}

// Stats computes the derived statistics view in a single pass.
func (c *ResultCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:        c.hits,
		Misses:      c.misses,
		Size:        len(c.entries),
		PerProvider: make(map[string]int),
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total) * 100
	}

	for key, e := range c.entries {
		s.PerProvider[e.provider]++

		at := e.result.ComputedAt
		if s.OldestComputedAt.IsZero() || at.Before(s.OldestComputedAt) {
			s.OldestComputedAt = at
		}
		if at.After(s.NewestComputedAt) {
			s.NewestComputedAt = at
		}

		size := int64(entryOverhead + len(key) + len(e.provider) +
			len(e.result.Keys) + len(e.result.Explanation))
		for _, alt := range e.result.Alternatives {
			size += int64(len(alt))
		}
		s.MemoryBytes += size
	}
	return s
}

// Reconfigure updates the TTL and/or maximum size. Zero values leave the
// current setting unchanged. A new TTL affects only future insertions. If
// the new maximum is below the current size, eviction runs immediately.
func (c *ResultCache) Reconfigure(ttl time.Duration, maxSize int) error {
	if ttl < 0 {
		return core.NewConfigurationError("ttl", "must be positive")
	}
	if maxSize < 0 {
		return core.NewConfigurationError("max_size", "must be positive")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl > 0 {
		c.ttl = ttl
	}
	if maxSize > 0 {
		c.maxSize = maxSize
		if len(c.entries) > maxSize {
			c.evictLocked(maxSize)
			c.persistLocked()
		}
	}
	return nil
}

// Export returns a diagnostic listing of all entries, oldest first.
func (c *ResultCache) Export() []ExportRow {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	type aged struct {
		row        ExportRow
		insertedAt time.Time
	}
	rows := make([]aged, 0, len(c.entries))
	for key, e := range c.entries {
		rows = append(rows, aged{
			row: ExportRow{
				Key:             truncateKey(key),
				Provider:        e.provider,
				Confidence:      e.result.Confidence,
				AgeMillis:       now.Sub(e.insertedAt).Milliseconds(),
				ExpiresInMillis: e.expiresAt.Sub(now).Milliseconds(),
			},
			insertedAt: e.insertedAt,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].insertedAt.Before(rows[j].insertedAt)
	})

	out := make([]ExportRow, len(rows))
	for i, r := range rows {
		out[i] = r.row
	}
	return out
}

// Close stops the background goroutines, flushes any pending persistence
// write, and closes the store.
func (c *ResultCache) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	c.done.Wait()
	return c.store.Close()
}

// evictLocked removes soonest-to-expire entries until at most target remain.
// It removes at least a quarter of the entries (and never fewer than one),
// trading LRU precision for simplicity at bounded cache sizes. Callers hold
// c.mu and are responsible for persisting afterwards when needed.
func (c *ResultCache) evictLocked(target int) int {
	if len(c.entries) == 0 {
		return 0
	}

	n := len(c.entries) / 4
	if need := len(c.entries) - target; n < need {
		n = need
	}
	if n < 1 {
		n = 1
	}

	type keyed struct {
		key       string
		expiresAt time.Time
	}
	all := make([]keyed, 0, len(c.entries))
	for key, e := range c.entries {
		all = append(all, keyed{key: key, expiresAt: e.expiresAt})
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].expiresAt.Before(all[j].expiresAt)
	})

	if n > len(all) {
		n = len(all)
	}
	for _, k := range all[:n] {
		delete(c.entries, k.key)
	}
	slog.Debug("cache eviction", "removed", n, "remaining", len(c.entries))
	return n
}

// persistLocked stages a snapshot of the current entries for the saver
// goroutine. The caller holds c.mu; the actual write happens off the
// caller's path and its failure never rolls back the in-memory mutation.
func (c *ResultCache) persistLocked() {
	snap := make([]PersistedEntry, 0, len(c.entries))
	for key, e := range c.entries {
		snap = append(snap, PersistedEntry{
			Key:        key,
			Result:     *e.result,
			Provider:   e.provider,
			InsertedAt: e.insertedAt,
			ExpiresAt:  e.expiresAt,
		})
	}

	c.pendingMu.Lock()
	c.pending = snap
	c.hasPending = true
	c.pendingMu.Unlock()

	select {
	case c.saveCh <- struct{}{}:
	default: // a save is already queued; it will pick up the new snapshot
	}
}

// saveLoop is the single writer against the store. Snapshots coalesce: only
// the most recent staged state is written.
func (c *ResultCache) saveLoop() {
	defer c.done.Done()
	for {
		select {
		case <-c.stop:
			c.flushPending()
			return
		case <-c.saveCh:
			c.flushPending()
		}
	}
}

func (c *ResultCache) flushPending() {
	c.pendingMu.Lock()
	snap, has := c.pending, c.hasPending
	c.pending = nil
	c.hasPending = false
	c.pendingMu.Unlock()

	if !has {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()
	if err := c.store.Save(ctx, snap); err != nil {
		slog.Warn("motion cache save failed, in-memory state retained",
			"error", core.NewPersistenceError("save", err),
			"entries", len(snap),
		)
	}
}

// sweepLoop periodically removes expired entries, reclaiming space between
// explicit accesses. The sweep does not touch the hit/miss counters and
// never holds the cache lock during the persistence write.
func (c *ResultCache) sweepLoop() {
	defer c.done.Done()

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			if removed := c.removeExpired(); removed > 0 {
				slog.Debug("cache sweep removed expired entries", "removed", removed)
			}
		}
	}
}

// removeExpired deletes every entry whose expiry has passed.
func (c *ResultCache) removeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	var removed int
	for key, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		c.persistLocked()
	}
	return removed
}

func truncateKey(key string) string {
	if len(key) <= exportKeyLimit {
		return key
	}
	return key[:exportKeyLimit-3] + "..."
}
