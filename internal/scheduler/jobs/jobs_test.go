package jobs

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/optionsdash/internal/collector"
	"github.com/wonny/optionsdash/internal/contracts"
	"github.com/wonny/optionsdash/internal/snapshot"
	"github.com/wonny/optionsdash/pkg/logger"
)

var fetchedAt = time.Date(2024, 1, 16, 21, 0, 0, 0, time.UTC)

func fetcher(available ...string) contracts.LiveFetcher {
	ok := make(map[string]bool)
	for _, s := range available {
		ok[s] = true
	}
	return contracts.LiveFetcherFunc(func(ctx context.Context, symbol string) (*contracts.RawChain, error) {
		if !ok[symbol] {
			return nil, fmt.Errorf("%w: %s", contracts.ErrSourceUnavailable, symbol)
		}
		exp := time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC)
		return &contracts.RawChain{
			Symbol:          symbol,
			UnderlyingPrice: 100,
			FetchedAt:       fetchedAt,
			Records: []contracts.ChainRecord{
				{Symbol: symbol, Strike: 100, Expiry: exp, Type: contracts.Call, Volume: 10, OpenInterest: 100},
				{Symbol: symbol, Strike: 100, Expiry: exp, Type: contracts.Put, Volume: 10, OpenInterest: 100},
			},
		}, nil
	})
}

func TestSnapshotCollectionJob(t *testing.T) {
	store := snapshot.NewMemoryStore()
	col := collector.New(fetcher("SPY", "QQQ"), store, collector.DefaultConfig(), logger.Nop())
	job := NewSnapshotCollectionJob(col, []string{"SPY", "QQQ"}, "0 30 16 * * 1-5", logger.Nop())

	assert.Equal(t, "snapshot_collection", job.Name())
	assert.Equal(t, "0 30 16 * * 1-5", job.Schedule())
	require.NoError(t, job.Run(context.Background()))

	// re-running the same session is a no-op
	require.NoError(t, job.Run(context.Background()))

	dates, err := store.AvailableDates(context.Background(), "QQQ")
	require.NoError(t, err)
	assert.Len(t, dates, 1)
}

func TestSnapshotCollectionJob_ReportsFailures(t *testing.T) {
	col := collector.New(fetcher("SPY"), snapshot.NewMemoryStore(), collector.DefaultConfig(), logger.Nop())
	job := NewSnapshotCollectionJob(col, []string{"SPY", "ZZZ"}, "@daily", logger.Nop())

	err := job.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZZZ")
	assert.NotContains(t, err.Error(), "SPY")
}

type countingPruner struct{ calls int }

func (p *countingPruner) Prune() int {
	p.calls++
	return 3
}

func TestCacheCleanupJob(t *testing.T) {
	p := &countingPruner{}
	job := NewCacheCleanupJob(p, logger.Nop())

	assert.Equal(t, "cache_cleanup", job.Name())
	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, p.calls)
}

func TestCacheCleanupJob_PrunesCachedStore(t *testing.T) {
	cached := snapshot.NewCachedStore(snapshot.NewMemoryStore(), time.Minute, logger.Nop())
	job := NewCacheCleanupJob(cached, logger.Nop())
	assert.NoError(t, job.Run(context.Background()))
}
