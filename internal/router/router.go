package router

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/wonny/optionsdash/internal/contracts"
	"github.com/wonny/optionsdash/internal/historical"
	"github.com/wonny/optionsdash/internal/quality"
	"github.com/wonny/optionsdash/internal/snapshot"
	"github.com/wonny/optionsdash/pkg/config"
	"github.com/wonny/optionsdash/pkg/logger"
)

// Config holds routing policy
type Config struct {
	LiveTimeout       time.Duration
	EnrichWindowDays  int
	AllowLiveFallback bool                   // default when a request leaves AllowFallback unset
	LiveFloor         contracts.QualityLevel // minimum live quality that ends the chain
	Policy            quality.Policy
}

// DefaultConfig returns the production policy
func DefaultConfig() Config {
	return Config{
		LiveTimeout:      8 * time.Second,
		EnrichWindowDays: 10,
		LiveFloor:        contracts.QualityFair,
	}
}

// ConfigFrom maps app config onto routing policy
func ConfigFrom(cfg config.RouterConfig) Config {
	out := DefaultConfig()
	if cfg.LiveTimeout > 0 {
		out.LiveTimeout = cfg.LiveTimeout
	}
	if cfg.EnrichWindowDays > 0 {
		out.EnrichWindowDays = cfg.EnrichWindowDays
	}
	out.AllowLiveFallback = cfg.AllowLiveFallback
	out.Policy = quality.Policy{PreferEnrichedOverFair: cfg.PreferEnrichedOverFair}
	return out
}

// RouteRequest is one routing query
type RouteRequest struct {
	Symbol        string
	AnalysisType  contracts.AnalysisType
	Mode          contracts.Mode
	TargetDate    *time.Time         // forces the historical stage for that session
	AllowFallback *bool              // live mode only; nil uses Config.AllowLiveFallback
	Requested     *quality.Requested // optional strike/expiry coverage requirement
}

// Router walks Live → Historical → Enriched → Demo and returns the first
// envelope that meets the quality bar. It never writes to the store.
// ⭐ SSOT: 데이터 소스 선택은 이 라우터에서만
type Router struct {
	live     contracts.LiveFetcher
	store    snapshot.Store
	analyzer *historical.Analyzer
	assessor *quality.Assessor
	config   Config
	now      func() time.Time
	newID    func() string
	group    singleflight.Group
	logger   *logger.Logger
}

// Option configures a Router
type Option func(*Router)

// WithClock injects the reference time
func WithClock(now func() time.Time) Option {
	return func(r *Router) { r.now = now }
}

// WithRequestIDs injects the request id generator
func WithRequestIDs(gen func() string) Option {
	return func(r *Router) { r.newID = gen }
}

// New creates a router. live may be nil, in which case the live stage is always unavailable.
func New(live contracts.LiveFetcher, store snapshot.Store, analyzer *historical.Analyzer, assessor *quality.Assessor, cfg Config, log *logger.Logger, opts ...Option) *Router {
	if cfg.LiveTimeout <= 0 {
		cfg.LiveTimeout = DefaultConfig().LiveTimeout
	}
	if cfg.EnrichWindowDays <= 0 {
		cfg.EnrichWindowDays = DefaultConfig().EnrichWindowDays
	}

	r := &Router{
		live:     live,
		store:    store,
		analyzer: analyzer,
		assessor: assessor,
		config:   cfg,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   log.Module("router"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// routeState is the per-call scratch space
type routeState struct {
	req      RouteRequest
	symbol   string
	now      time.Time
	prov     contracts.Provenance
	warnings []string
	log      *logger.Logger
}

func (s *routeState) warn(format string, args ...interface{}) {
	s.warnings = append(s.warnings, fmt.Sprintf(format, args...))
}

// Route always returns a usable envelope. Absence of data is expressed through
// Source, Quality and Warnings, never an error.
func (r *Router) Route(ctx context.Context, req RouteRequest) contracts.DataEnvelope {
	now := r.now()
	st := &routeState{
		req: req,
		now: now,
		prov: contracts.Provenance{
			AnalysisType: req.AnalysisType,
			RequestID:    r.newID(),
			GeneratedAt:  now,
		},
	}

	sym, err := snapshot.NormalizeSymbol(req.Symbol)
	if err != nil {
		st.symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
		st.prov.Symbol = st.symbol
		st.log = r.logger.WithField("request_id", st.prov.RequestID)
		st.warn("invalid symbol %q", req.Symbol)
		return r.demo(st)
	}
	st.symbol = sym
	st.prov.Symbol = sym
	st.log = r.logger.WithFields(map[string]interface{}{
		"request_id": st.prov.RequestID,
		"symbol":     sym,
		"mode":       req.Mode,
	})

	if req.TargetDate != nil && req.Mode != contracts.ModeLive {
		return r.routeHistorical(ctx, st)
	}

	switch req.Mode {
	case contracts.ModeLive:
		return r.routeLive(ctx, st)
	case contracts.ModeHistorical:
		return r.routeHistorical(ctx, st)
	default:
		return r.routeAuto(ctx, st)
	}
}

func (r *Router) routeAuto(ctx context.Context, st *routeState) contracts.DataEnvelope {
	liveEnv := r.liveStage(ctx, st)

	if liveEnv != nil && r.config.Policy.Meets(liveEnv.Quality, r.config.LiveFloor) {
		if !r.config.Policy.Better(contracts.QualityEnriched, liveEnv.Quality) {
			r.attachContext(ctx, st, liveEnv)
			return r.finish(st, liveEnv)
		}

		// enriched history is preferred over a Fair live chain
		if env := r.fallbackStages(ctx, st, false); env != nil && env.Quality == contracts.QualityEnriched {
			return r.finish(st, env)
		}
		return r.finish(st, liveEnv)
	}

	if liveEnv != nil {
		st.warn("live data rejected: quality %s", liveEnv.Quality)
	}

	if env := r.fallbackStages(ctx, st, true); env != nil {
		return r.finish(st, env)
	}
	return r.demo(st)
}

func (r *Router) routeLive(ctx context.Context, st *routeState) contracts.DataEnvelope {
	if env := r.liveStage(ctx, st); env != nil {
		if env.Quality == contracts.QualityExcellent || env.Quality == contracts.QualityGood {
			r.attachContext(ctx, st, env)
		}
		if env.Quality == contracts.QualityPoor {
			st.warn("live data quality is poor")
		}
		return r.finish(st, env)
	}

	allow := r.config.AllowLiveFallback
	if st.req.AllowFallback != nil {
		allow = *st.req.AllowFallback
	}
	if allow {
		return r.demo(st)
	}

	st.warn("live mode requested without fallback; no data returned")
	payload := &contracts.Payload{
		Kind:   contracts.KindLiveUnavailable,
		Symbol: st.symbol,
		Label:  "live data unavailable",
		Chains: []contracts.ChainRecord{},
	}
	st.prov.AsOfDate = contracts.Day(st.now)
	return r.finish(st, r.envelope(st, payload, contracts.SourceLive, contracts.QualityPoor))
}

func (r *Router) routeHistorical(ctx context.Context, st *routeState) contracts.DataEnvelope {
	if env := r.fallbackStages(ctx, st, true); env != nil {
		return r.finish(st, env)
	}
	return r.demo(st)
}

// fallbackStages runs Historical then Enriched. With acceptStale a stale snapshot is
// returned as Historical/Poor rather than dropping to Demo. A target date pins the
// result to that session, so the latest-based enriched stage is skipped.
func (r *Router) fallbackStages(ctx context.Context, st *routeState, acceptStale bool) *contracts.DataEnvelope {
	histEnv := r.historicalStage(ctx, st)
	if st.req.TargetDate != nil {
		return histEnv
	}
	if histEnv != nil && histEnv.Quality == contracts.QualityEnriched {
		return histEnv
	}

	if env := r.enrichedStage(ctx, st); env != nil {
		return env
	}

	if histEnv != nil && acceptStale {
		st.warn("historical data is stale")
		return histEnv
	}
	return nil
}

// liveStage fetches and assesses the live chain; nil means unavailable
func (r *Router) liveStage(ctx context.Context, st *routeState) *contracts.DataEnvelope {
	chain, err := r.fetchLive(ctx, st.symbol)
	if err != nil {
		st.warn("live data unavailable: %v", err)
		st.log.WithError(err).Info("Live stage unavailable")
		return nil
	}
	if chain.Empty() {
		st.warn("live data unavailable: empty chain")
		st.log.Info("Live stage returned empty chain")
		return nil
	}

	level, rule := r.assessor.Explain(quality.LiveCandidate(chain, st.req.Requested, st.now), contracts.SourceLive)

	asOf := chain.FetchedAt
	if asOf.IsZero() {
		asOf = st.now
	}
	st.prov.AsOfDate = contracts.Day(asOf)

	payload := &contracts.Payload{
		Kind:            contracts.KindLiveChain,
		Symbol:          st.symbol,
		UnderlyingPrice: chain.UnderlyingPrice,
		Chains:          chain.Records,
	}

	st.log.WithFields(map[string]interface{}{
		"quality":   level.String(),
		"rule":      rule,
		"contracts": len(chain.Records),
		"volume":    chain.TotalVolume(),
	}).Debug("Live stage assessed")

	return r.envelope(st, payload, contracts.SourceLive, level)
}

func (r *Router) fetchLive(ctx context.Context, symbol string) (*contracts.RawChain, error) {
	if r.live == nil {
		return nil, fmt.Errorf("%w: no live fetcher configured", contracts.ErrSourceUnavailable)
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.LiveTimeout)
	defer cancel()

	ch := r.group.DoChan(symbol, func() (val interface{}, err error) {
		// DoChan re-panics on its own goroutine, out of reach of any caller
		defer func() {
			if p := recover(); p != nil {
				val, err = nil, fmt.Errorf("%w: live fetch panicked: %v", contracts.ErrSourceUnavailable, p)
			}
		}()

		fetchCtx, fetchCancel := context.WithTimeout(context.WithoutCancel(ctx), r.config.LiveTimeout)
		defer fetchCancel()
		return r.live.FetchLiveChain(fetchCtx, symbol)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		chain, _ := res.Val.(*contracts.RawChain)
		return chain, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", contracts.ErrSourceUnavailable, ctx.Err())
	}
}

// historicalStage loads the latest (or requested) snapshot; nil means none usable
func (r *Router) historicalStage(ctx context.Context, st *routeState) *contracts.DataEnvelope {
	var snap *contracts.Snapshot
	var err error
	ref := st.now

	if st.req.TargetDate != nil {
		snap, err = r.store.GetSnapshot(ctx, st.symbol, *st.req.TargetDate)
		if err == nil {
			ref = snap.Timestamp
			if ref.IsZero() {
				ref = snap.Date
			}
		}
	} else {
		snap, err = r.store.LatestSnapshot(ctx, st.symbol)
	}

	if err != nil {
		switch {
		case errors.Is(err, contracts.ErrSnapshotNotFound) && st.req.TargetDate != nil:
			st.warn("no historical snapshot for %s on %s", st.symbol, st.req.TargetDate.Format(contracts.DateLayout))
		case errors.Is(err, contracts.ErrSnapshotNotFound):
			st.warn("no historical snapshot for %s", st.symbol)
		default:
			st.warn("historical snapshot unusable: %v", err)
		}
		st.log.WithError(err).Info("Historical stage unavailable")
		return nil
	}

	level := r.assessor.Assess(quality.SnapshotCandidate(snap, 0, 0, ref), contracts.SourceHistorical)

	unusual, err := r.store.UnusualActivity(ctx, st.symbol, snap.Date)
	if err != nil {
		st.warn("unusual activity unavailable: %v", err)
		unusual = nil
	}

	stats := snap.Stats
	payload := &contracts.Payload{
		Kind:            contracts.KindHistorical,
		Symbol:          st.symbol,
		UnderlyingPrice: snap.UnderlyingPrice,
		Chains:          snap.Chains,
		Stats:           &stats,
		Unusual:         unusual,
	}

	st.prov.AsOfDate = contracts.Day(snap.Date)
	env := r.envelope(st, payload, contracts.SourceHistorical, level)
	if env != nil && level == contracts.QualityEnriched {
		env.Warnings = append(env.Warnings, fmt.Sprintf("data as of %s (prior session)", snap.Date.Format(contracts.DateLayout)))
	}

	st.log.WithFields(map[string]interface{}{
		"quality": level.String(),
		"as_of":   snap.Date.Format(contracts.DateLayout),
	}).Debug("Historical stage assessed")

	return env
}

// enrichedStage builds statistical context over the window; nil when the window is empty
func (r *Router) enrichedStage(ctx context.Context, st *routeState) *contracts.DataEnvelope {
	if r.analyzer == nil {
		return nil
	}

	hc, err := r.analyzer.Context(ctx, st.symbol, r.config.EnrichWindowDays)
	if err != nil {
		st.warn("historical context unavailable: %v", err)
		st.log.WithError(err).Info("Enriched stage unavailable")
		return nil
	}
	if hc.SnapshotCount == 0 {
		return nil
	}

	latest, err := r.store.LatestSnapshot(ctx, st.symbol)
	if err != nil {
		latest = nil
	}

	candidate := quality.SnapshotCandidate(latest, hc.SnapshotCount, len(hc.Patterns), st.now)
	if r.assessor.Assess(candidate, contracts.SourceEnriched) != contracts.QualityEnriched {
		st.log.WithField("snapshots", hc.SnapshotCount).Info("Enriched stage lacks statistical context")
		return nil
	}

	payload := &contracts.Payload{
		Kind:    contracts.KindEnriched,
		Symbol:  st.symbol,
		Chains:  []contracts.ChainRecord{},
		Context: hc,
	}
	if latest != nil {
		stats := latest.Stats
		payload.UnderlyingPrice = latest.UnderlyingPrice
		payload.Chains = latest.Chains
		payload.Stats = &stats
	}

	st.prov.AsOfDate = hc.To
	env := r.envelope(st, payload, contracts.SourceEnriched, contracts.QualityEnriched)
	if env != nil {
		env.Warnings = append(env.Warnings, fmt.Sprintf("enriched from %d snapshots between %s and %s",
			hc.SnapshotCount, hc.From.Format(contracts.DateLayout), hc.To.Format(contracts.DateLayout)))
		env.Warnings = append(env.Warnings, hc.Warnings...)
	}
	return env
}

// attachContext adds historical context to strong live results; best effort only
func (r *Router) attachContext(ctx context.Context, st *routeState, env *contracts.DataEnvelope) {
	if r.analyzer == nil || env.Payload == nil {
		return
	}
	if env.Quality != contracts.QualityExcellent && env.Quality != contracts.QualityGood {
		return
	}

	hc, err := r.analyzer.Context(ctx, st.symbol, r.config.EnrichWindowDays)
	if err != nil || hc.SnapshotCount == 0 {
		return
	}
	env.Payload.Context = hc
}

func (r *Router) demo(st *routeState) contracts.DataEnvelope {
	st.warn("showing demo data for %s: no live or historical data available", st.symbol)
	st.prov.AsOfDate = contracts.Day(st.now)

	env, err := contracts.NewEnvelope(DemoPayload(st.symbol, st.now), contracts.SourceDemo, contracts.QualityPoor, st.prov, nil)
	if err != nil {
		st.log.WithError(err).Error("Demo envelope rejected")
	}
	return r.finish(st, &env)
}

// envelope builds a stage envelope; an invalid pair is a programming error and yields nil
func (r *Router) envelope(st *routeState, payload *contracts.Payload, source contracts.Source, level contracts.QualityLevel) *contracts.DataEnvelope {
	env, err := contracts.NewEnvelope(payload, source, level, st.prov, nil)
	if err != nil {
		st.log.WithError(err).Error("Stage produced invalid envelope")
		return nil
	}
	return &env
}

// finish merges accumulated warnings and logs the decision
func (r *Router) finish(st *routeState, env *contracts.DataEnvelope) contracts.DataEnvelope {
	env.Provenance.RequestID = st.prov.RequestID
	env.Provenance.GeneratedAt = st.prov.GeneratedAt
	env.Provenance.Symbol = st.symbol
	env.Provenance.AnalysisType = st.req.AnalysisType
	env.Warnings = append(append([]string{}, st.warnings...), env.Warnings...)

	st.log.WithFields(map[string]interface{}{
		"source":   env.Source.String(),
		"quality":  env.Quality.String(),
		"warnings": len(env.Warnings),
	}).Info("Route resolved")

	return *env
}
