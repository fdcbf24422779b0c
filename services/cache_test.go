package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gewnthar/covid19/backend/metrics"
	"github.com/gewnthar/covid19/backend/models"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// brokenStore fails every operation.
type brokenStore struct{}

func (brokenStore) Load(context.Context, string) (*Snapshot, error) { return nil, errors.New("db down") }
func (brokenStore) Save(context.Context, string, Snapshot) error { return errors.New("db down") }
func (brokenStore) Clear(context.Context, string) error { return errors.New("db down") }

// lateFillStore reports an empty slot on its first Load only, as when
// another process stores a snapshot right after the first check.
type lateFillStore struct {
	*MemoryStore
	loads atomic.Int64
}

func (s *lateFillStore) Load(ctx context.Context, key string) (*Snapshot, error) {
	if s.loads.Add(1) == 1 {
		return nil, nil
	}
	return s.MemoryStore.Load(ctx, key)
}

const testTTL = 360 * time.Second

// cacheRequests reads covid19_cache_requests_total for one result label.
func cacheRequests(t *testing.T, c *ResultCache, result string) float64 {
	t.Helper()
	families, err := c.recorder.Registry().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "covid19_cache_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "result" && lp.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func newTestCache(f *fakeFetcher, store SnapshotStore) (*ResultCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2023, 3, 10, 12, 0, 0, 0, time.UTC)}
	return NewResultCache(newTestService(f), store, testTTL, clock.Now, metrics.NewRecorder()), clock
}

func TestResultCache_FreshWithinTTL(t *testing.T) {
	f := newFakeFetcher()
	cache, clock := newTestCache(f, NewMemoryStore())
	ctx := context.Background()

	assert.Equal(t, StateEmpty, cache.State(ctx))

	first, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateFresh, cache.State(ctx))

	clock.Advance(testTTL - time.Second)
	second, err := cache.Get(ctx)
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, first.LastUpdate, second.LastUpdate)
	assert.EqualValues(t, 1, f.cycles())
	assert.EqualValues(t, 1, f.metaCalls.Load())
}

func TestResultCache_ExpiresAfterTTL(t *testing.T) {
	f := newFakeFetcher()
	cache, clock := newTestCache(f, NewMemoryStore())
	ctx := context.Background()

	first, err := cache.Get(ctx)
	require.NoError(t, err)

	clock.Advance(testTTL)
	assert.Equal(t, StateStale, cache.State(ctx))

	second, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.EqualValues(t, 2, f.cycles())

	_, err = cache.Get(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, f.cycles())
}

func TestResultCache_ConcurrentMissesShareOneRun(t *testing.T) {
	f := newFakeFetcher()
	f.delay = 50 * time.Millisecond
	cache, _ := newTestCache(f, NewMemoryStore())

	const callers = 8
	bundles := make([]*models.DatasetBundle, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b, err := cache.Get(context.Background())
			assert.NoError(t, err)
			bundles[i] = b
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, f.cycles())
	for _, b := range bundles {
		assert.Same(t, bundles[0], b)
	}
}

func TestResultCache_SlotFilledBeforeFlightCountsAsHit(t *testing.T) {
	f := newFakeFetcher()
	store := &lateFillStore{MemoryStore: NewMemoryStore()}
	cache, clock := newTestCache(f, store)
	ctx := context.Background()

	stored := models.NewDatasetBundle(nil, nil, nil, nil, testLastUpdate)
	require.NoError(t, store.Save(ctx, CacheKey, Snapshot{Bundle: stored, StoredAt: clock.Now()}))

	got, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.Same(t, stored, got)
	assert.Zero(t, f.cycles())
	assert.EqualValues(t, 1, cacheRequests(t, cache, metrics.CacheHit))
	assert.Zero(t, cacheRequests(t, cache, metrics.CacheMiss))
	assert.Zero(t, cacheRequests(t, cache, metrics.CacheShared))
}

func TestResultCache_CountsMissThenHit(t *testing.T) {
	f := newFakeFetcher()
	cache, _ := newTestCache(f, NewMemoryStore())
	ctx := context.Background()

	_, err := cache.Get(ctx)
	require.NoError(t, err)
	_, err = cache.Get(ctx)
	require.NoError(t, err)

	assert.EqualValues(t, 1, cacheRequests(t, cache, metrics.CacheMiss))
	assert.EqualValues(t, 1, cacheRequests(t, cache, metrics.CacheHit))
}

func TestResultCache_FailureLeavesSlotUnchanged(t *testing.T) {
	f := newFakeFetcher()
	cache, clock := newTestCache(f, NewMemoryStore())
	ctx := context.Background()

	f.failOn = models.MetricRecovered
	_, err := cache.Get(ctx)
	require.Error(t, err)
	assert.Equal(t, StateEmpty, cache.State(ctx))

	f.failOn = ""
	good, err := cache.Get(ctx)
	require.NoError(t, err)

	clock.Advance(testTTL + time.Minute)
	f.failOn = models.MetricConfirmed
	_, err = cache.Get(ctx)
	require.Error(t, err)
	assert.Equal(t, StateStale, cache.State(ctx))

	f.failOn = ""
	fresh, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.NotSame(t, good, fresh)
}

func TestResultCache_Refresh(t *testing.T) {
	f := newFakeFetcher()
	cache, _ := newTestCache(f, NewMemoryStore())
	ctx := context.Background()

	first, err := cache.Get(ctx)
	require.NoError(t, err)

	second, err := cache.Refresh(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first.RunID, second.RunID)
	assert.EqualValues(t, 2, f.cycles())
	assert.Equal(t, StateFresh, cache.State(ctx))
}

func TestResultCache_BrokenStoreStillServes(t *testing.T) {
	f := newFakeFetcher()
	cache, _ := newTestCache(f, brokenStore{})
	ctx := context.Background()

	bundle, err := cache.Get(ctx)
	require.NoError(t, err)
	assert.NotNil(t, bundle)
	assert.Equal(t, StateEmpty, cache.State(ctx))
	assert.Error(t, cache.Invalidate(ctx))
}

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	snap, err := store.Load(ctx, CacheKey)
	require.NoError(t, err)
	assert.Nil(t, snap)

	bundle := models.NewDatasetBundle(nil, nil, nil, nil, "x")
	at := time.Unix(1700000000, 0)
	require.NoError(t, store.Save(ctx, CacheKey, Snapshot{Bundle: bundle, StoredAt: at}))

	snap, err = store.Load(ctx, CacheKey)
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Same(t, bundle, snap.Bundle)
	assert.Equal(t, at, snap.StoredAt)

	require.NoError(t, store.Clear(ctx, CacheKey))
	snap, err = store.Load(ctx, CacheKey)
	require.NoError(t, err)
	assert.Nil(t, snap)
}
