package adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/wonny/optionsdash/internal/activity"
	"github.com/wonny/optionsdash/internal/contracts"
	"github.com/wonny/optionsdash/internal/router"
	"github.com/wonny/optionsdash/internal/snapshot"
	"github.com/wonny/optionsdash/pkg/logger"
)

// Router is the routing collaborator the adapter fronts
type Router interface {
	Route(ctx context.Context, req router.RouteRequest) contracts.DataEnvelope
}

// AnalysisResult is the module-ready view of one routed envelope.
// Source, Quality, Provenance and Warnings are copied from the envelope unchanged.
type AnalysisResult struct {
	Symbol       string                 `json:"symbol"`
	AnalysisType contracts.AnalysisType `json:"analysis_type"`
	Source       contracts.Source       `json:"source"`
	Quality      contracts.QualityLevel `json:"quality"`
	Provenance   contracts.Provenance   `json:"provenance"`
	Warnings     []string               `json:"warnings"`
	DataInfo     DataInfo               `json:"data_info"`
	Synthetic    bool                   `json:"synthetic"`
	Label        string                 `json:"label,omitempty"`

	Chain     *ChainView      `json:"options_chain,omitempty"`
	IVSurface *IVSurface      `json:"iv_surface,omitempty"`
	Heatmap   *Heatmap        `json:"heatmap,omitempty"`
	Flow      *FlowScan       `json:"flow_scanner,omitempty"`
	Strikes   *StrikeAnalysis `json:"strike_analysis,omitempty"`
	Intraday  *IntradayView   `json:"intraday,omitempty"`
	Dealer    *DealerSurface  `json:"dealer_surfaces,omitempty"`
	Ridgeline *Ridgeline      `json:"ridgeline,omitempty"`
	Summary   *Summary        `json:"summary,omitempty"`

	HistoricalContext *contracts.HistoricalContext `json:"historical_context,omitempty"`
}

// Adapter maps dashboard analysis requests onto the router
// ⭐ SSOT: 분석 모듈 입력 검증과 응답 형태는 여기서만
type Adapter struct {
	router   Router
	activity activity.Config
	now      func() time.Time
	logger   *logger.Logger
}

// Option configures the adapter
type Option func(*Adapter)

// WithClock overrides the reference clock used for date validation
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) { a.now = now }
}

// WithActivityConfig overrides the thresholds for flows detected on live chains
func WithActivityConfig(cfg activity.Config) Option {
	return func(a *Adapter) { a.activity = cfg }
}

// New creates a new module data adapter
func New(r Router, log *logger.Logger, opts ...Option) *Adapter {
	a := &Adapter{
		router:   r,
		activity: activity.DefaultConfig(),
		now:      time.Now,
		logger:   log.Module("adapter"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// GetAnalysis validates the request, routes it and shapes the payload for the module.
// Only validation failures return an error; missing data never does.
func (a *Adapter) GetAnalysis(ctx context.Context, symbol, analysisType, mode, targetDate string) (*AnalysisResult, error) {
	req, err := a.buildRequest(symbol, analysisType, mode, targetDate)
	if err != nil {
		a.logger.WithFields(map[string]interface{}{
			"symbol":        symbol,
			"analysis_type": analysisType,
			"mode":          mode,
			"date":          targetDate,
		}).WithError(err).Warn("Rejected analysis request")
		return nil, err
	}

	env := a.router.Route(ctx, req)
	result := a.shape(req, env)

	a.logger.WithFields(map[string]interface{}{
		"symbol":        req.Symbol,
		"analysis_type": string(req.AnalysisType),
		"source":        env.Source.String(),
		"quality":       env.Quality.String(),
	}).Debug("Analysis shaped")

	return result, nil
}

// buildRequest validates raw inputs into a route request
func (a *Adapter) buildRequest(symbol, analysisType, mode, targetDate string) (router.RouteRequest, error) {
	at, err := contracts.ParseAnalysisType(analysisType)
	if err != nil {
		return router.RouteRequest{}, err
	}

	m, err := contracts.ParseMode(mode)
	if err != nil {
		return router.RouteRequest{}, err
	}

	sym, err := snapshot.NormalizeSymbol(symbol)
	if err != nil {
		return router.RouteRequest{}, err
	}

	req := router.RouteRequest{
		Symbol:       sym,
		AnalysisType: at,
		Mode:         m,
	}

	if strings.TrimSpace(targetDate) != "" {
		date, err := a.parseTargetDate(targetDate)
		if err != nil {
			return router.RouteRequest{}, err
		}
		if m == contracts.ModeLive {
			return router.RouteRequest{}, fmt.Errorf("%w: a target date cannot be combined with live mode", contracts.ErrInvalidTargetDate)
		}
		req.TargetDate = &date
		req.Mode = contracts.ModeHistorical
	}

	return req, nil
}

func (a *Adapter) parseTargetDate(s string) (time.Time, error) {
	date, err := time.Parse(contracts.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not YYYY-MM-DD", contracts.ErrInvalidTargetDate, s)
	}
	if date.After(contracts.Day(a.now())) {
		return time.Time{}, fmt.Errorf("%w: %s is in the future", contracts.ErrInvalidTargetDate, s)
	}
	return date, nil
}

// shape builds the sections the analysis type needs
func (a *Adapter) shape(req router.RouteRequest, env contracts.DataEnvelope) *AnalysisResult {
	at := req.AnalysisType
	p := env.Payload
	if p == nil {
		p = &contracts.Payload{Kind: contracts.KindLiveUnavailable}
	}

	result := &AnalysisResult{
		Symbol:            req.Symbol,
		AnalysisType:      at,
		Source:            env.Source,
		Quality:           env.Quality,
		Provenance:        env.Provenance,
		Warnings:          env.Warnings,
		Synthetic:         p.Synthetic,
		Label:             p.Label,
		DataInfo:          NewDataInfo(env, a.now()),
		HistoricalContext: p.Context,
	}
	if result.Warnings == nil {
		result.Warnings = []string{}
	}

	switch at {
	case contracts.AnalysisOptionsChain:
		result.Chain = BuildChainView(p)
	case contracts.AnalysisIVSurface:
		result.IVSurface = BuildIVSurface(p, env.Provenance.AsOfDate)
	case contracts.AnalysisOptionsHeatmap:
		result.Heatmap = BuildHeatmap(p)
	case contracts.AnalysisFlowScanner:
		result.Flow = BuildFlowScan(a.activity, p, env.Provenance.AsOfDate)
	case contracts.AnalysisStrikeAnalysis:
		result.Strikes = BuildStrikeAnalysis(p)
	case contracts.AnalysisIntradayCharts:
		result.Intraday = BuildIntraday(p)
	case contracts.AnalysisDealerSurfaces:
		result.Dealer = BuildDealerSurface(p)
	case contracts.AnalysisRidgeline:
		result.Ridgeline = BuildRidgeline(p, env.Provenance.AsOfDate)
	case contracts.AnalysisComprehensive:
		result.Chain = BuildChainView(p)
		result.IVSurface = BuildIVSurface(p, env.Provenance.AsOfDate)
		result.Heatmap = BuildHeatmap(p)
		result.Flow = BuildFlowScan(a.activity, p, env.Provenance.AsOfDate)
		result.Strikes = BuildStrikeAnalysis(p)
		result.Intraday = BuildIntraday(p)
		result.Dealer = BuildDealerSurface(p)
		result.Ridgeline = BuildRidgeline(p, env.Provenance.AsOfDate)
	}
	result.Summary = BuildSummary(p)

	return result
}
