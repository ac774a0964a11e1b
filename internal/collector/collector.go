package collector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/optionsdash/internal/activity"
	"github.com/wonny/optionsdash/internal/contracts"
	"github.com/wonny/optionsdash/internal/snapshot"
	"github.com/wonny/optionsdash/pkg/config"
	"github.com/wonny/optionsdash/pkg/logger"
)

// Collector archives end-of-session chains as snapshots
// ⭐ SSOT: 스냅샷 생성과 저장은 이 패키지에서만
type Collector struct {
	live   contracts.LiveFetcher
	store  snapshot.ReadWriter
	config Config
	logger *logger.Logger
}

// Config holds collector configuration
type Config struct {
	Workers          int // Number of concurrent workers
	IVRankWindowDays int
	Activity         activity.Config
}

// DefaultConfig returns collector defaults
func DefaultConfig() Config {
	return Config{
		Workers:          3,
		IVRankWindowDays: 252,
		Activity:         activity.DefaultConfig(),
	}
}

// ConfigFrom builds a collector config from app config
func ConfigFrom(cfg config.CollectorConfig) Config {
	c := DefaultConfig()
	if cfg.Workers > 0 {
		c.Workers = cfg.Workers
	}
	return c
}

// New creates a new Collector instance
func New(live contracts.LiveFetcher, store snapshot.ReadWriter, cfg Config, log *logger.Logger) *Collector {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Collector{
		live:   live,
		store:  store,
		config: cfg,
		logger: log.Module("collector"),
	}
}

// CollectResult represents the result of one symbol's collection
type CollectResult struct {
	Symbol    string
	Date      time.Time
	Contracts int
	Unusual   int
	Skipped   bool // snapshot for the session already archived
	Error     error
}

// CollectAll collects every symbol with a bounded worker pool.
// Per-symbol failures are reported in results, never as the returned error.
func (c *Collector) CollectAll(ctx context.Context, symbols []string) ([]CollectResult, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols to collect")
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol_count": len(symbols),
		"workers":      c.config.Workers,
	}).Info("Starting snapshot collection")

	results := make([]CollectResult, 0, len(symbols))
	resultCh := make(chan CollectResult, len(symbols))
	symbolCh := make(chan string, len(symbols))

	var wg sync.WaitGroup
	for i := 0; i < c.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			c.worker(ctx, workerID, symbolCh, resultCh)
		}(i)
	}

	for _, s := range symbols {
		symbolCh <- s
	}
	close(symbolCh)

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	successCount, skipCount, failCount := 0, 0, 0
	for result := range resultCh {
		results = append(results, result)
		switch {
		case result.Error != nil:
			failCount++
		case result.Skipped:
			skipCount++
		default:
			successCount++
		}
	}

	c.logger.WithFields(map[string]interface{}{
		"success": successCount,
		"skipped": skipCount,
		"failed":  failCount,
		"total":   len(results),
	}).Info("Snapshot collection completed")

	return results, nil
}

func (c *Collector) worker(ctx context.Context, workerID int, symbolCh <-chan string, resultCh chan<- CollectResult) {
	for symbol := range symbolCh {
		select {
		case <-ctx.Done():
			resultCh <- CollectResult{Symbol: symbol, Error: ctx.Err()}
			continue
		default:
		}

		result := c.CollectSymbol(ctx, symbol)
		if result.Error != nil {
			c.logger.WithError(result.Error).WithFields(map[string]interface{}{
				"worker": workerID,
				"symbol": symbol,
			}).Error("Failed to collect snapshot")
		}
		resultCh <- result
	}
}

// CollectSymbol fetches, builds and archives one symbol's session snapshot
func (c *Collector) CollectSymbol(ctx context.Context, symbol string) CollectResult {
	sym, err := snapshot.NormalizeSymbol(symbol)
	if err != nil {
		return CollectResult{Symbol: symbol, Error: err}
	}
	result := CollectResult{Symbol: sym}

	if c.live == nil {
		result.Error = fmt.Errorf("%w: no live fetcher configured", contracts.ErrSourceUnavailable)
		return result
	}

	chain, err := c.live.FetchLiveChain(ctx, sym)
	if err != nil {
		result.Error = fmt.Errorf("fetch chain: %w", err)
		return result
	}
	if chain.Empty() {
		result.Error = fmt.Errorf("%w: empty chain for %s", contracts.ErrSourceUnavailable, sym)
		return result
	}

	snap, err := c.BuildSnapshot(ctx, sym, chain)
	if err != nil {
		result.Error = err
		return result
	}
	result.Date = snap.Date
	result.Contracts = len(snap.Chains)
	result.Unusual = len(snap.Unusual)

	if err := c.store.SaveSnapshot(ctx, snap); err != nil {
		if errors.Is(err, contracts.ErrSnapshotExists) {
			result.Skipped = true
			c.logger.WithFields(map[string]interface{}{
				"symbol": sym,
				"date":   snap.Date.Format(contracts.DateLayout),
			}).Info("Snapshot already archived")
			return result
		}
		result.Error = fmt.Errorf("save snapshot: %w", err)
		return result
	}

	c.logger.WithFields(map[string]interface{}{
		"symbol":    sym,
		"date":      snap.Date.Format(contracts.DateLayout),
		"contracts": result.Contracts,
		"unusual":   result.Unusual,
	}).Info("Snapshot archived")

	return result
}

// BuildSnapshot turns a live chain into a validated session snapshot.
// The previous archived session feeds OI change; the archive window feeds IV rank.
func (c *Collector) BuildSnapshot(ctx context.Context, symbol string, chain *contracts.RawChain) (*contracts.Snapshot, error) {
	fetchedAt := chain.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}
	date := contracts.Day(fetchedAt)

	records := make([]contracts.ChainRecord, len(chain.Records))
	copy(records, chain.Records)
	for i := range records {
		records[i].Symbol = symbol
		records[i].Expiry = contracts.Day(records[i].Expiry)
	}

	history, err := c.store.Range(ctx, symbol, date.AddDate(0, 0, -c.config.IVRankWindowDays), date.AddDate(0, 0, -1))
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}

	var prev *contracts.Snapshot
	if len(history) > 0 {
		prev = history[len(history)-1]
	}

	unusual := activity.Detect(c.config.Activity, symbol, date, records, prev)
	stats := activity.Stats(records, len(unusual))

	ivHistory := make([]float64, 0, len(history))
	for _, h := range history {
		ivHistory = append(ivHistory, h.Stats.AverageIV)
	}
	stats.IVRank = activity.IVRank(stats.AverageIV, ivHistory)

	snap := &contracts.Snapshot{
		Symbol:          symbol,
		Date:            date,
		UnderlyingPrice: chain.UnderlyingPrice,
		Timestamp:       fetchedAt,
		Chains:          records,
		Stats:           stats,
		Unusual:         unusual,
	}

	if err := snapshot.Validate(snap); err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}
	if err := snapshot.ValidateUnusual(unusual); err != nil {
		return nil, fmt.Errorf("build unusual activity: %w", err)
	}

	return snap, nil
}
