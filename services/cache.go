// backend/services/cache.go
package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/gewnthar/covid19/backend/metrics"
	"github.com/gewnthar/covid19/backend/models"
)

// CacheKey identifies the single cached slot: the pipeline has no inputs,
// so there is only ever one result.
const CacheKey = "covid19:datasets"

// CacheState is the lifecycle state of the cached slot.
type CacheState string

const (
	StateEmpty CacheState = "EMPTY"
	StateFresh CacheState = "FRESH"
	StateStale CacheState = "STALE"
)

// Snapshot is a stored pipeline result and the time it was stored.
type Snapshot struct {
	Bundle   *models.DatasetBundle
	StoredAt time.Time
}

// SnapshotStore holds the cached slot. Load returns (nil, nil) when the slot
// is empty.
type SnapshotStore interface {
	Load(ctx context.Context, key string) (*Snapshot, error)
	Save(ctx context.Context, key string, snap Snapshot) error
	Clear(ctx context.Context, key string) error
}

// Builder produces a fresh bundle. *DatasetService implements it.
type Builder interface {
	Build(ctx context.Context) (*models.DatasetBundle, error)
}

// ResultCache memoizes the pipeline result for a fixed TTL. Concurrent
// misses share one pipeline run. A failed run leaves the slot as it was.
type ResultCache struct {
	builder  Builder
	store    SnapshotStore
	ttl      time.Duration
	now      func() time.Time
	recorder *metrics.Recorder
	group    singleflight.Group
}

// NewResultCache builds a cache over store. now may be nil for time.Now.
func NewResultCache(builder Builder, store SnapshotStore, ttl time.Duration, now func() time.Time, recorder *metrics.Recorder) *ResultCache {
	if now == nil {
		now = time.Now
	}
	return &ResultCache{
		builder:  builder,
		store:    store,
		ttl:      ttl,
		now:      now,
		recorder: recorder,
	}
}

// Get returns the cached bundle while it is fresh and otherwise runs the
// pipeline, stores the result and returns it.
func (c *ResultCache) Get(ctx context.Context) (*models.DatasetBundle, error) {
	if snap := c.load(ctx); c.fresh(snap) {
		c.recorder.CacheRequest(metrics.CacheHit)
		return snap.Bundle, nil
	}

	// The run is detached from the first caller's cancellation because
	// every waiter shares it. Fetch timeouts still bound it.
	runCtx := context.WithoutCancel(ctx)
	v, err, shared := c.group.Do(CacheKey, func() (any, error) {
		// Another process, or a flight that just finished, may have
		// filled the slot since the check above.
		if snap := c.load(runCtx); c.fresh(snap) {
			return fill{bundle: snap.Bundle}, nil
		}
		bundle, err := c.refill(runCtx)
		return fill{bundle: bundle, built: true}, err
	})
	res, _ := v.(fill)
	switch {
	case err == nil && !res.built:
		c.recorder.CacheRequest(metrics.CacheHit)
	case shared:
		c.recorder.CacheRequest(metrics.CacheShared)
	default:
		c.recorder.CacheRequest(metrics.CacheMiss)
	}
	if err != nil {
		return nil, err
	}
	return res.bundle, nil
}

// fill is the outcome of one flight; built is false when the slot turned
// out to be fresh and the pipeline did not run.
type fill struct {
	bundle *models.DatasetBundle
	built  bool
}

func (c *ResultCache) refill(ctx context.Context) (*models.DatasetBundle, error) {
	bundle, err := c.builder.Build(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to refresh datasets: %w", err)
	}
	snap := Snapshot{Bundle: bundle, StoredAt: c.now()}
	if err := c.store.Save(ctx, CacheKey, snap); err != nil {
		slog.Error("cache: failed to store snapshot", "key", CacheKey, "error", err)
	}
	return bundle, nil
}

// Invalidate empties the slot so the next Get runs the pipeline.
func (c *ResultCache) Invalidate(ctx context.Context) error {
	if err := c.store.Clear(ctx, CacheKey); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	slog.Info("cache: invalidated", "key", CacheKey)
	return nil
}

// Refresh drops the current slot and rebuilds it.
func (c *ResultCache) Refresh(ctx context.Context) (*models.DatasetBundle, error) {
	if err := c.Invalidate(ctx); err != nil {
		return nil, err
	}
	return c.Get(ctx)
}

// State reports whether the slot is empty, fresh or stale.
func (c *ResultCache) State(ctx context.Context) CacheState {
	snap := c.load(ctx)
	switch {
	case snap == nil:
		return StateEmpty
	case c.fresh(snap):
		return StateFresh
	}
	return StateStale
}

// load treats a store read failure as an empty slot.
func (c *ResultCache) load(ctx context.Context) *Snapshot {
	snap, err := c.store.Load(ctx, CacheKey)
	if err != nil {
		slog.Warn("cache: failed to load snapshot, treating as miss", "key", CacheKey, "error", err)
		return nil
	}
	if snap == nil || snap.Bundle == nil {
		return nil
	}
	return snap
}

func (c *ResultCache) fresh(snap *Snapshot) bool {
	return snap != nil && c.now().Sub(snap.StoredAt) < c.ttl
}

// MemoryStore is the in-process SnapshotStore.
type MemoryStore struct {
	mu    sync.RWMutex
	slots map[string]Snapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{slots: make(map[string]Snapshot)}
}

func (s *MemoryStore) Load(_ context.Context, key string) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.slots[key]
	if !ok {
		return nil, nil
	}
	return &snap, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[key] = snap
	return nil
}

func (s *MemoryStore) Clear(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.slots, key)
	return nil
}
