package historical

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wonny/optionsdash/internal/contracts"
	"github.com/wonny/optionsdash/internal/snapshot"
	"github.com/wonny/optionsdash/pkg/config"
	"github.com/wonny/optionsdash/pkg/logger"
)

// Config holds analyzer thresholds
type Config struct {
	MinRelativeChange float64 // 0.20: first vs last quartile mean OI
	PatternScore      float64 // 3.0: score must exceed this
	MinPatternDays    int     // 2 distinct days
	WhaleVolume       int64   // 5000: at or below this a whale tag is a sweep
	TopContracts      int     // evolutions attached to a context
}

// DefaultConfig returns the production thresholds
func DefaultConfig() Config {
	return Config{
		MinRelativeChange: 0.20,
		PatternScore:      3.0,
		MinPatternDays:    2,
		WhaleVolume:       5000,
		TopContracts:      5,
	}
}

// ConfigFrom maps app config onto analyzer thresholds
func ConfigFrom(cfg config.QualityConfig) Config {
	out := DefaultConfig()
	if cfg.MinRelativeChange > 0 {
		out.MinRelativeChange = cfg.MinRelativeChange
	}
	if cfg.PatternScore > 0 {
		out.PatternScore = cfg.PatternScore
	}
	if cfg.WhaleVolume > 0 {
		out.WhaleVolume = cfg.WhaleVolume
	}
	return out
}

// Analyzer derives time series from the snapshot archive. Read-only.
// ⭐ SSOT: 포지션 추이/패턴 분석은 여기서만
type Analyzer struct {
	store  snapshot.Store
	config Config
	now    func() time.Time
	logger *logger.Logger
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithClock injects the reference time used for windows
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// New creates a new analyzer
func New(store snapshot.Store, cfg Config, log *logger.Logger, opts ...Option) *Analyzer {
	a := &Analyzer{
		store:  store,
		config: cfg,
		now:    time.Now,
		logger: log.Module("historical"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Analyzer) window(windowDays int) (time.Time, time.Time) {
	if windowDays <= 0 {
		windowDays = 1
	}
	end := contracts.Day(a.now())
	return end.AddDate(0, 0, -windowDays), end
}

// Evolve tracks one contract's OI, volume and price across the window.
// Snapshots lacking the contract are skipped, never interpolated.
func (a *Analyzer) Evolve(ctx context.Context, symbol string, strike float64, expiry time.Time, optType contracts.OptionType, windowDays int) (*contracts.PositionEvolutionSeries, error) {
	start, end := a.window(windowDays)

	snaps, err := a.store.Range(ctx, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("load snapshot range: %w", err)
	}

	series := evolveFrom(snaps, symbol, strike, expiry, optType, a.config.MinRelativeChange)
	series.WindowDays = windowDays

	if len(snaps) == 0 {
		series.Warnings = append(series.Warnings, fmt.Sprintf("no snapshots for %s in the last %d days", series.Symbol, windowDays))
	} else if len(series.Points) == 0 {
		series.Warnings = append(series.Warnings, fmt.Sprintf("contract %s not found in %d snapshots",
			contracts.ContractKey(series.Symbol, expiry, optType, strike), len(snaps)))
	} else if missing := len(snaps) - len(series.Points); missing > 0 {
		series.Warnings = append(series.Warnings, fmt.Sprintf("contract missing from %d of %d snapshots", missing, len(snaps)))
	}

	a.logger.WithFields(map[string]interface{}{
		"symbol": series.Symbol,
		"strike": strike,
		"expiry": expiry.Format(contracts.DateLayout),
		"points": len(series.Points),
		"trend":  series.Trend,
	}).Debug("Position evolution built")

	return series, nil
}

func evolveFrom(snaps []*contracts.Snapshot, symbol string, strike float64, expiry time.Time, optType contracts.OptionType, threshold float64) *contracts.PositionEvolutionSeries {
	sym, err := snapshot.NormalizeSymbol(symbol)
	if err != nil {
		sym = symbol
	}

	series := &contracts.PositionEvolutionSeries{
		Symbol: sym,
		Strike: strike,
		Expiry: contracts.Day(expiry),
		Type:   optType,
		Points: []contracts.EvolutionPoint{},
		Trend:  contracts.TrendStable,
	}

	oi := make([]float64, 0, len(snaps))
	for _, snap := range snaps {
		rec, ok := snap.Find(strike, expiry, optType)
		if !ok {
			continue
		}
		if series.Type == "" {
			series.Type = rec.Type
		}
		series.Points = append(series.Points, contracts.EvolutionPoint{
			Date:         contracts.Day(snap.Date),
			OpenInterest: rec.OpenInterest,
			Volume:       rec.Volume,
			Price:        rec.Mid(),
		})
		oi = append(oi, float64(rec.OpenInterest))
	}

	series.Trend = ClassifyTrend(oi, threshold)
	return series
}

// ClassifyTrend compares the mean of the first quartile of values against the last.
// Fewer than two values is stable.
func ClassifyTrend(values []float64, threshold float64) contracts.Trend {
	n := len(values)
	if n < 2 {
		return contracts.TrendStable
	}

	q := n / 4
	if q < 1 {
		q = 1
	}
	first := mean(values[:q])
	last := mean(values[n-q:])

	if first == 0 {
		if last > 0 {
			return contracts.TrendIncreasing
		}
		return contracts.TrendStable
	}

	change := (last - first) / first
	switch {
	case change > threshold:
		return contracts.TrendIncreasing
	case change < -threshold:
		return contracts.TrendDecreasing
	}
	return contracts.TrendStable
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total / float64(len(values))
}

// Context summarises the window: counts, trends, net OI change, top evolving contracts and patterns
func (a *Analyzer) Context(ctx context.Context, symbol string, windowDays int) (*contracts.HistoricalContext, error) {
	start, end := a.window(windowDays)

	snaps, err := a.store.Range(ctx, symbol, start, end)
	if err != nil {
		return nil, fmt.Errorf("load snapshot range: %w", err)
	}

	sym, _ := snapshot.NormalizeSymbol(symbol)
	hc := &contracts.HistoricalContext{
		Symbol:        sym,
		WindowDays:    windowDays,
		SnapshotCount: len(snaps),
		VolumeTrend:   contracts.TrendStable,
		IVTrend:       contracts.TrendStable,
	}

	if len(snaps) == 0 {
		hc.Warnings = append(hc.Warnings, fmt.Sprintf("no snapshots for %s in the last %d days", sym, windowDays))
		return hc, nil
	}

	hc.From = contracts.Day(snaps[0].Date)
	hc.To = contracts.Day(snaps[len(snaps)-1].Date)

	volumes := make([]float64, 0, len(snaps))
	ivs := make([]float64, 0, len(snaps))
	for _, snap := range snaps {
		volumes = append(volumes, float64(snapshotVolume(snap)))
		ivs = append(ivs, averageIV(snap))
	}
	hc.VolumeTrend = ClassifyTrend(volumes, a.config.MinRelativeChange)
	hc.IVTrend = ClassifyTrend(ivs, a.config.MinRelativeChange)
	hc.NetOIChange = totalOI(snaps[len(snaps)-1]) - totalOI(snaps[0])

	for _, rec := range topContracts(snaps[len(snaps)-1], a.config.TopContracts) {
		series := evolveFrom(snaps, sym, rec.Strike, rec.Expiry, rec.Type, a.config.MinRelativeChange)
		series.WindowDays = windowDays
		hc.Evolutions = append(hc.Evolutions, *series)
	}

	patterns, warnings, err := a.DetectPatterns(ctx, sym, windowDays)
	if err != nil {
		hc.Warnings = append(hc.Warnings, fmt.Sprintf("pattern detection failed: %v", err))
	} else {
		hc.Patterns = patterns
		hc.Warnings = append(hc.Warnings, warnings...)
	}

	return hc, nil
}

func snapshotVolume(snap *contracts.Snapshot) int64 {
	if snap.Stats.TotalVolume > 0 {
		return snap.Stats.TotalVolume
	}
	return contracts.SumVolume(snap.Chains)
}

func totalOI(snap *contracts.Snapshot) int64 {
	if snap.Stats.TotalCallOI+snap.Stats.TotalPutOI > 0 {
		return snap.Stats.TotalCallOI + snap.Stats.TotalPutOI
	}
	var total int64
	for _, rec := range snap.Chains {
		total += rec.OpenInterest
	}
	return total
}

func averageIV(snap *contracts.Snapshot) float64 {
	if snap.Stats.AverageIV > 0 {
		return snap.Stats.AverageIV
	}
	var sum float64
	var n int
	for _, rec := range snap.Chains {
		if rec.IV > 0 {
			sum += rec.IV
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// topContracts returns the n contracts with the largest open interest
func topContracts(snap *contracts.Snapshot, n int) []contracts.ChainRecord {
	records := make([]contracts.ChainRecord, len(snap.Chains))
	copy(records, snap.Chains)
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].OpenInterest != records[j].OpenInterest {
			return records[i].OpenInterest > records[j].OpenInterest
		}
		return records[i].ContractKey() < records[j].ContractKey()
	})
	if len(records) > n {
		records = records[:n]
	}
	return records
}
