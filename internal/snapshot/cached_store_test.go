package snapshot

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/optionsdash/internal/contracts"
	"github.com/wonny/optionsdash/pkg/logger"
	"github.com/wonny/optionsdash/pkg/redis"
)

// countingStore counts backend reads and can block them
type countingStore struct {
	*MemoryStore
	gets    int32
	latest  int32
	release chan struct{}
}

func (c *countingStore) GetSnapshot(ctx context.Context, symbol string, date time.Time) (*contracts.Snapshot, error) {
	atomic.AddInt32(&c.gets, 1)
	if c.release != nil {
		<-c.release
	}
	return c.MemoryStore.GetSnapshot(ctx, symbol, date)
}

func (c *countingStore) LatestSnapshot(ctx context.Context, symbol string) (*contracts.Snapshot, error) {
	atomic.AddInt32(&c.latest, 1)
	return c.MemoryStore.LatestSnapshot(ctx, symbol)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

func newCounting(t *testing.T, dates ...string) *countingStore {
	mem := NewMemoryStore()
	for _, d := range dates {
		require.NoError(t, mem.SaveSnapshot(context.Background(), testSnapshot("SPY", d)))
	}
	return &countingStore{MemoryStore: mem}
}

func TestCachedStore_HitsWithinTTL(t *testing.T) {
	ctx := context.Background()
	inner := newCounting(t, "2024-01-15")
	clock := &fakeClock{now: time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)}
	cached := NewCachedStore(inner, time.Minute, logger.Nop(), WithClock(clock.Now))

	for i := 0; i < 3; i++ {
		snap, err := cached.GetSnapshot(ctx, "SPY", day("2024-01-15"))
		require.NoError(t, err)
		assert.Equal(t, "SPY", snap.Symbol)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.gets))

	clock.Advance(59 * time.Second)
	_, err := cached.GetSnapshot(ctx, "SPY", day("2024-01-15"))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.gets))

	clock.Advance(2 * time.Second)
	_, err = cached.GetSnapshot(ctx, "SPY", day("2024-01-15"))
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.gets))
}

func TestCachedStore_ErrorsNotCached(t *testing.T) {
	ctx := context.Background()
	inner := newCounting(t)
	cached := NewCachedStore(inner, time.Minute, logger.Nop())

	_, err := cached.GetSnapshot(ctx, "SPY", day("2024-01-15"))
	assert.True(t, errors.Is(err, contracts.ErrSnapshotNotFound))

	require.NoError(t, inner.SaveSnapshot(ctx, testSnapshot("SPY", "2024-01-15")))

	snap, err := cached.GetSnapshot(ctx, "SPY", day("2024-01-15"))
	require.NoError(t, err)
	assert.NotNil(t, snap)
	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.gets))
}

func TestCachedStore_SingleLoadPerKey(t *testing.T) {
	ctx := context.Background()
	inner := newCounting(t, "2024-01-15")
	inner.release = make(chan struct{})
	cached := NewCachedStore(inner, time.Minute, logger.Nop())

	const callers = 20
	var wg sync.WaitGroup
	results := make(chan *contracts.Snapshot, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			snap, err := cached.GetSnapshot(ctx, "SPY", day("2024-01-15"))
			if err == nil {
				results <- snap
			}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	close(inner.release)
	wg.Wait()
	close(results)

	count := 0
	for snap := range results {
		assert.Equal(t, "SPY", snap.Symbol)
		count++
	}
	assert.Equal(t, callers, count)
	assert.Equal(t, int32(1), atomic.LoadInt32(&inner.gets))
}

func TestCachedStore_SaveInvalidatesLatest(t *testing.T) {
	ctx := context.Background()
	inner := newCounting(t, "2024-01-15")
	cached := NewCachedStore(inner, time.Hour, logger.Nop(), WithRedis(redis.NewCache(redis.Disabled(), "test")))

	latest, err := cached.LatestSnapshot(ctx, "SPY")
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-15"), latest.Date)

	require.NoError(t, cached.SaveSnapshot(ctx, testSnapshot("SPY", "2024-01-16")))

	latest, err = cached.LatestSnapshot(ctx, "SPY")
	require.NoError(t, err)
	assert.Equal(t, day("2024-01-16"), latest.Date)
	assert.Equal(t, int32(2), atomic.LoadInt32(&inner.latest))

	dates, err := cached.AvailableDates(ctx, "SPY")
	require.NoError(t, err)
	assert.Len(t, dates, 2)
}

func TestCachedStore_ReadOnlyInner(t *testing.T) {
	type readOnly struct{ Store }
	cached := NewCachedStore(readOnly{NewMemoryStore()}, time.Minute, logger.Nop())

	err := cached.SaveSnapshot(context.Background(), testSnapshot("SPY", "2024-01-15"))
	assert.Error(t, err)
}

func TestCachedStore_RangeAndUnusual(t *testing.T) {
	ctx := context.Background()
	inner := newCounting(t, "2024-01-12", "2024-01-15")
	cached := NewCachedStore(inner, time.Minute, logger.Nop())

	snaps, err := cached.Range(ctx, "SPY", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	assert.Len(t, snaps, 2)

	unusual, err := cached.UnusualActivity(ctx, "SPY", day("2024-01-15"))
	require.NoError(t, err)
	assert.Len(t, unusual, 1)
	assert.Equal(t, 2, cached.Len())
}

func TestCachedStore_SaveInvalidatesRange(t *testing.T) {
	ctx := context.Background()
	inner := newCounting(t, "2024-01-12")
	cached := NewCachedStore(inner, time.Hour, logger.Nop())

	snaps, err := cached.Range(ctx, "SPY", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	assert.Len(t, snaps, 1)

	require.NoError(t, cached.SaveSnapshot(ctx, testSnapshot("SPY", "2024-01-15")))

	snaps, err = cached.Range(ctx, "SPY", day("2024-01-01"), day("2024-01-31"))
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
}

func TestCachedStore_Prune(t *testing.T) {
	ctx := context.Background()
	inner := newCounting(t, "2024-01-12", "2024-01-15")
	clock := &fakeClock{now: time.Date(2024, 1, 16, 10, 0, 0, 0, time.UTC)}
	cached := NewCachedStore(inner, time.Minute, logger.Nop(), WithClock(clock.Now))

	_, err := cached.GetSnapshot(ctx, "SPY", day("2024-01-12"))
	require.NoError(t, err)
	clock.Advance(30 * time.Second)
	_, err = cached.GetSnapshot(ctx, "SPY", day("2024-01-15"))
	require.NoError(t, err)
	require.Equal(t, 2, cached.Len())

	assert.Equal(t, 0, cached.Prune())

	clock.Advance(45 * time.Second)
	assert.Equal(t, 1, cached.Prune())
	assert.Equal(t, 1, cached.Len())
}
