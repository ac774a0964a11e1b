package adapter

import (
	"math"
	"sort"
	"time"

	"github.com/wonny/optionsdash/internal/activity"
	"github.com/wonny/optionsdash/internal/contracts"
)

// contractMultiplier is shares per equity option contract
const contractMultiplier = 100

// ChainRow pairs the call and put at one strike and expiry
type ChainRow struct {
	Strike float64                `json:"strike"`
	Expiry string                 `json:"expiry"`
	Call   *contracts.ChainRecord `json:"call,omitempty"`
	Put    *contracts.ChainRecord `json:"put,omitempty"`
}

// ChainView is the options_chain module shape
type ChainView struct {
	UnderlyingPrice float64    `json:"underlying_price"`
	Expiries        []string   `json:"expiries"`
	Rows            []ChainRow `json:"rows"`
}

// BuildChainView groups records into call/put rows ordered by expiry then strike
func BuildChainView(p *contracts.Payload) *ChainView {
	type rowKey struct {
		expiry string
		strike float64
	}

	rows := make(map[rowKey]*ChainRow)
	for i := range p.Chains {
		rec := p.Chains[i]
		key := rowKey{expiry: rec.Expiry.Format(contracts.DateLayout), strike: rec.Strike}
		row, ok := rows[key]
		if !ok {
			row = &ChainRow{Strike: rec.Strike, Expiry: key.expiry}
			rows[key] = row
		}
		if rec.Type == contracts.Call {
			row.Call = &rec
		} else {
			row.Put = &rec
		}
	}

	view := &ChainView{
		UnderlyingPrice: p.UnderlyingPrice,
		Expiries:        expiries(p.Chains),
		Rows:            make([]ChainRow, 0, len(rows)),
	}
	for _, row := range rows {
		view.Rows = append(view.Rows, *row)
	}
	sort.Slice(view.Rows, func(i, j int) bool {
		if view.Rows[i].Expiry != view.Rows[j].Expiry {
			return view.Rows[i].Expiry < view.Rows[j].Expiry
		}
		return view.Rows[i].Strike < view.Rows[j].Strike
	})
	return view
}

// IVPoint is one contract on the volatility surface
type IVPoint struct {
	Strike       float64              `json:"strike"`
	Expiry       string               `json:"expiry"`
	DaysToExpiry int                  `json:"days_to_expiry"`
	Type         contracts.OptionType `json:"type"`
	IV           float64              `json:"iv"`
}

// TermPoint is the at-the-money IV for one expiry
type TermPoint struct {
	Expiry       string  `json:"expiry"`
	DaysToExpiry int     `json:"days_to_expiry"`
	ATMStrike    float64 `json:"atm_strike"`
	ATMIV        float64 `json:"atm_iv"`
}

// IVSurface is the iv_surface module shape
type IVSurface struct {
	Points        []IVPoint   `json:"iv_surface_data"`
	TermStructure []TermPoint `json:"term_structure"`
	ATMIV         float64     `json:"atm_iv"`
}

// BuildIVSurface lists contracts with observed IV and the ATM term structure.
// Days to expiry are counted from asOf.
func BuildIVSurface(p *contracts.Payload, asOf time.Time) *IVSurface {
	surface := &IVSurface{
		Points:        make([]IVPoint, 0),
		TermStructure: make([]TermPoint, 0),
	}

	byExpiry := make(map[string][]contracts.ChainRecord)
	for _, rec := range p.Chains {
		if rec.IV <= 0 {
			continue
		}
		exp := rec.Expiry.Format(contracts.DateLayout)
		surface.Points = append(surface.Points, IVPoint{
			Strike:       rec.Strike,
			Expiry:       exp,
			DaysToExpiry: daysBetween(asOf, rec.Expiry),
			Type:         rec.Type,
			IV:           rec.IV,
		})
		byExpiry[exp] = append(byExpiry[exp], rec)
	}
	sort.Slice(surface.Points, func(i, j int) bool {
		a, b := surface.Points[i], surface.Points[j]
		if a.Expiry != b.Expiry {
			return a.Expiry < b.Expiry
		}
		if a.Strike != b.Strike {
			return a.Strike < b.Strike
		}
		return a.Type < b.Type
	})

	for _, exp := range sortedKeys(byExpiry) {
		recs := byExpiry[exp]
		strike := nearestStrike(recs, p.UnderlyingPrice)

		var sum float64
		var n int
		for _, rec := range recs {
			if rec.Strike == strike {
				sum += rec.IV
				n++
			}
		}
		surface.TermStructure = append(surface.TermStructure, TermPoint{
			Expiry:       exp,
			DaysToExpiry: daysBetween(asOf, recs[0].Expiry),
			ATMStrike:    strike,
			ATMIV:        round(sum/float64(n), 4),
		})
	}
	if len(surface.TermStructure) > 0 {
		surface.ATMIV = surface.TermStructure[0].ATMIV
	}

	return surface
}

// Heatmap is the options_heatmap module shape; matrices are [expiry][strike]
type Heatmap struct {
	Strikes      []float64 `json:"strikes"`
	Expiries     []string  `json:"expiries"`
	Volume       [][]int64 `json:"volume"`
	OpenInterest [][]int64 `json:"open_interest"`
}

// BuildHeatmap aggregates call and put activity per expiry and strike
func BuildHeatmap(p *contracts.Payload) *Heatmap {
	hm := &Heatmap{
		Strikes:  strikes(p.Chains),
		Expiries: expiries(p.Chains),
	}

	strikeIdx := make(map[float64]int, len(hm.Strikes))
	for i, s := range hm.Strikes {
		strikeIdx[s] = i
	}
	expiryIdx := make(map[string]int, len(hm.Expiries))
	for i, e := range hm.Expiries {
		expiryIdx[e] = i
	}

	hm.Volume = make([][]int64, len(hm.Expiries))
	hm.OpenInterest = make([][]int64, len(hm.Expiries))
	for i := range hm.Expiries {
		hm.Volume[i] = make([]int64, len(hm.Strikes))
		hm.OpenInterest[i] = make([]int64, len(hm.Strikes))
	}

	for _, rec := range p.Chains {
		e := expiryIdx[rec.Expiry.Format(contracts.DateLayout)]
		s := strikeIdx[rec.Strike]
		hm.Volume[e][s] += rec.Volume
		hm.OpenInterest[e][s] += rec.OpenInterest
	}

	return hm
}

// Alert levels for the flow scanner
const (
	AlertNone   = "none"
	AlertLow    = "low"
	AlertMedium = "medium"
	AlertHigh   = "high"
)

// FlowSummary aggregates flagged flows
type FlowSummary struct {
	TotalFlows int     `json:"total_flows"`
	CallFlows  int     `json:"call_flows"`
	PutFlows   int     `json:"put_flows"`
	CallVolume int64   `json:"call_volume"`
	PutVolume  int64   `json:"put_volume"`
	TopScore   float64 `json:"top_score"`
	Bias       string  `json:"bias"`
}

// FlowScan is the flow_scanner module shape
type FlowScan struct {
	Flows      []contracts.UnusualActivityRecord `json:"unusual_flows"`
	Summary    FlowSummary                       `json:"flow_summary"`
	AlertLevel string                            `json:"alert_level"`
	Patterns   []contracts.Pattern               `json:"recurring_patterns,omitempty"`
}

// BuildFlowScan uses the archived unusual activity when present,
// otherwise detects it on the payload's chain.
func BuildFlowScan(cfg activity.Config, p *contracts.Payload, asOf time.Time) *FlowScan {
	flows := p.Unusual
	if len(flows) == 0 && !p.Synthetic {
		flows = activity.Detect(cfg, p.Symbol, asOf, p.Chains, nil)
	}
	if flows == nil {
		flows = []contracts.UnusualActivityRecord{}
	}

	scan := &FlowScan{Flows: flows}
	if p.Context != nil {
		scan.Patterns = p.Context.Patterns
	}

	s := &scan.Summary
	s.TotalFlows = len(flows)
	for _, f := range flows {
		if f.Type == contracts.Call {
			s.CallFlows++
			s.CallVolume += f.Volume
		} else {
			s.PutFlows++
			s.PutVolume += f.Volume
		}
		s.TopScore = math.Max(s.TopScore, f.Score)
	}

	switch {
	case s.CallVolume > s.PutVolume*3/2:
		s.Bias = "bullish"
	case s.PutVolume > s.CallVolume*3/2:
		s.Bias = "bearish"
	default:
		s.Bias = "neutral"
	}

	switch {
	case s.TopScore >= 7:
		scan.AlertLevel = AlertHigh
	case s.TopScore >= 5 || len(scan.Patterns) > 0:
		scan.AlertLevel = AlertMedium
	case s.TotalFlows > 0:
		scan.AlertLevel = AlertLow
	default:
		scan.AlertLevel = AlertNone
	}

	return scan
}

// StrikeLevel is per-strike activity across all expiries
type StrikeLevel struct {
	Strike     float64 `json:"strike"`
	CallVolume int64   `json:"call_volume"`
	PutVolume  int64   `json:"put_volume"`
	CallOI     int64   `json:"call_oi"`
	PutOI      int64   `json:"put_oi"`
}

// StrikeAnalysis is the strike_analysis module shape
type StrikeAnalysis struct {
	Levels     []StrikeLevel `json:"strikes"`
	MaxPain    float64       `json:"max_pain"`
	Support    float64       `json:"support"`
	Resistance float64       `json:"resistance"`
}

// BuildStrikeAnalysis aggregates by strike and derives max pain plus OI walls.
// Max pain is computed on the nearest expiry.
func BuildStrikeAnalysis(p *contracts.Payload) *StrikeAnalysis {
	levels := strikeLevels(p.Chains)
	sa := &StrikeAnalysis{Levels: levels}

	sa.MaxPain = maxPain(frontExpiry(p.Chains))

	var putWall, callWall int64
	for _, l := range levels {
		if l.Strike <= p.UnderlyingPrice && l.PutOI > putWall {
			putWall = l.PutOI
			sa.Support = l.Strike
		}
		if l.Strike >= p.UnderlyingPrice && l.CallOI > callWall {
			callWall = l.CallOI
			sa.Resistance = l.Strike
		}
	}

	return sa
}

// KeyLevel is a notable price for intraday charts
type KeyLevel struct {
	Price float64 `json:"price"`
	Kind  string  `json:"kind"`
}

// VolumeBucket is traded volume at one strike
type VolumeBucket struct {
	Strike float64 `json:"strike"`
	Volume int64   `json:"volume"`
}

// IntradayView is the intraday_charts module shape
type IntradayView struct {
	UnderlyingPrice float64        `json:"underlying_price"`
	KeyLevels       []KeyLevel     `json:"key_levels"`
	VolumeProfile   []VolumeBucket `json:"volume_profile"`
}

// BuildIntraday derives key levels and a per-strike volume profile
func BuildIntraday(p *contracts.Payload) *IntradayView {
	view := &IntradayView{
		UnderlyingPrice: p.UnderlyingPrice,
		KeyLevels:       make([]KeyLevel, 0, 3),
		VolumeProfile:   make([]VolumeBucket, 0),
	}

	for _, l := range strikeLevels(p.Chains) {
		view.VolumeProfile = append(view.VolumeProfile, VolumeBucket{Strike: l.Strike, Volume: l.CallVolume + l.PutVolume})
	}

	sa := BuildStrikeAnalysis(p)
	if sa.Support > 0 {
		view.KeyLevels = append(view.KeyLevels, KeyLevel{Price: sa.Support, Kind: "support"})
	}
	if sa.Resistance > 0 {
		view.KeyLevels = append(view.KeyLevels, KeyLevel{Price: sa.Resistance, Kind: "resistance"})
	}
	if sa.MaxPain > 0 {
		view.KeyLevels = append(view.KeyLevels, KeyLevel{Price: sa.MaxPain, Kind: "max_pain"})
	}

	return view
}

// Exposure is dealer exposure at one strike
type Exposure struct {
	Strike float64 `json:"strike"`
	Gamma  float64 `json:"gamma_exposure"`
	Delta  float64 `json:"delta_exposure"`
	Vega   float64 `json:"vega_exposure"`
}

// DealerSurface is the dealer_surfaces module shape
type DealerSurface struct {
	Exposures []Exposure `json:"exposures"`
	NetGamma  float64    `json:"net_gamma"`
	NetDelta  float64    `json:"net_delta"`
	NetVega   float64    `json:"net_vega"`
}

// BuildDealerSurface aggregates observed greeks weighted by open interest.
// Dealers are assumed long calls and short puts for gamma sign.
func BuildDealerSurface(p *contracts.Payload) *DealerSurface {
	spot := p.UnderlyingPrice
	byStrike := make(map[float64]*Exposure)

	for _, rec := range p.Chains {
		e, ok := byStrike[rec.Strike]
		if !ok {
			e = &Exposure{Strike: rec.Strike}
			byStrike[rec.Strike] = e
		}

		oi := float64(rec.OpenInterest * contractMultiplier)
		gex := rec.Greeks.Gamma * oi * spot * spot * 0.01
		if rec.Type == contracts.Put {
			gex = -gex
		}
		e.Gamma += gex
		e.Delta += rec.Greeks.Delta * oi
		e.Vega += rec.Greeks.Vega * oi
	}

	ds := &DealerSurface{Exposures: make([]Exposure, 0, len(byStrike))}
	for _, e := range byStrike {
		e.Gamma = round(e.Gamma, 2)
		e.Delta = round(e.Delta, 2)
		e.Vega = round(e.Vega, 2)
		ds.Exposures = append(ds.Exposures, *e)
		ds.NetGamma += e.Gamma
		ds.NetDelta += e.Delta
		ds.NetVega += e.Vega
	}
	sort.Slice(ds.Exposures, func(i, j int) bool { return ds.Exposures[i].Strike < ds.Exposures[j].Strike })

	ds.NetGamma = round(ds.NetGamma, 2)
	ds.NetDelta = round(ds.NetDelta, 2)
	ds.NetVega = round(ds.NetVega, 2)
	return ds
}

// RidgePoint is the IV at one strike
type RidgePoint struct {
	Strike float64 `json:"strike"`
	IV     float64 `json:"iv"`
}

// RidgeSeries is the IV distribution of one expiry
type RidgeSeries struct {
	Expiry       string       `json:"expiry"`
	DaysToExpiry int          `json:"days_to_expiry"`
	Points       []RidgePoint `json:"points"`
}

// Ridgeline is the ridgeline module shape
type Ridgeline struct {
	Series []RidgeSeries `json:"series"`
}

// BuildRidgeline averages call and put IV per strike for each expiry
func BuildRidgeline(p *contracts.Payload, asOf time.Time) *Ridgeline {
	type acc struct {
		sum float64
		n   int
	}

	byExpiry := make(map[string]map[float64]*acc)
	expiryDates := make(map[string]time.Time)
	for _, rec := range p.Chains {
		if rec.IV <= 0 {
			continue
		}
		exp := rec.Expiry.Format(contracts.DateLayout)
		if byExpiry[exp] == nil {
			byExpiry[exp] = make(map[float64]*acc)
			expiryDates[exp] = rec.Expiry
		}
		a, ok := byExpiry[exp][rec.Strike]
		if !ok {
			a = &acc{}
			byExpiry[exp][rec.Strike] = a
		}
		a.sum += rec.IV
		a.n++
	}

	rl := &Ridgeline{Series: make([]RidgeSeries, 0, len(byExpiry))}
	for _, exp := range sortedKeys(byExpiry) {
		series := RidgeSeries{Expiry: exp, Points: make([]RidgePoint, 0, len(byExpiry[exp]))}
		series.DaysToExpiry = daysBetween(asOf, expiryDates[exp])
		for strike, a := range byExpiry[exp] {
			series.Points = append(series.Points, RidgePoint{Strike: strike, IV: round(a.sum/float64(a.n), 4)})
		}
		sort.Slice(series.Points, func(i, j int) bool { return series.Points[i].Strike < series.Points[j].Strike })
		rl.Series = append(rl.Series, series)
	}
	return rl
}

// Summary is the overview attached to every analysis
type Summary struct {
	Contracts      int             `json:"contracts"`
	Expiries       int             `json:"expiries"`
	TotalVolume    int64           `json:"total_volume"`
	TotalOI        int64           `json:"total_open_interest"`
	PutCallRatio   float64         `json:"put_call_ratio"`
	PutCallOIRatio float64         `json:"put_call_oi_ratio"`
	AverageIV      float64         `json:"average_iv"`
	UnusualCount   int             `json:"unusual_activity_count"`
	VolumeTrend    contracts.Trend `json:"volume_trend,omitempty"`
	IVTrend        contracts.Trend `json:"iv_trend,omitempty"`
	Patterns       int             `json:"patterns"`
}

// BuildSummary prefers archived daily stats and recomputes from the chain otherwise
func BuildSummary(p *contracts.Payload) *Summary {
	stats := activity.Stats(p.Chains, len(p.Unusual))
	if p.Stats != nil {
		stats = *p.Stats
	}

	s := &Summary{
		Contracts:      len(p.Chains),
		Expiries:       len(expiries(p.Chains)),
		TotalVolume:    stats.TotalVolume,
		TotalOI:        stats.TotalCallOI + stats.TotalPutOI,
		PutCallRatio:   stats.PutCallRatio,
		PutCallOIRatio: stats.PutCallOIRatio,
		AverageIV:      stats.AverageIV,
		UnusualCount:   stats.UnusualActivityCount,
	}
	if p.Context != nil {
		s.VolumeTrend = p.Context.VolumeTrend
		s.IVTrend = p.Context.IVTrend
		s.Patterns = len(p.Context.Patterns)
	}
	return s
}

func strikeLevels(records []contracts.ChainRecord) []StrikeLevel {
	byStrike := make(map[float64]*StrikeLevel)
	for _, rec := range records {
		l, ok := byStrike[rec.Strike]
		if !ok {
			l = &StrikeLevel{Strike: rec.Strike}
			byStrike[rec.Strike] = l
		}
		if rec.Type == contracts.Call {
			l.CallVolume += rec.Volume
			l.CallOI += rec.OpenInterest
		} else {
			l.PutVolume += rec.Volume
			l.PutOI += rec.OpenInterest
		}
	}

	levels := make([]StrikeLevel, 0, len(byStrike))
	for _, l := range byStrike {
		levels = append(levels, *l)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Strike < levels[j].Strike })
	return levels
}

// maxPain is the settlement strike minimising total intrinsic value paid to holders
func maxPain(records []contracts.ChainRecord) float64 {
	candidates := strikes(records)
	if len(candidates) == 0 {
		return 0
	}

	best := candidates[0]
	bestPain := math.Inf(1)
	for _, settle := range candidates {
		var pain float64
		for _, rec := range records {
			oi := float64(rec.OpenInterest)
			if rec.Type == contracts.Call {
				pain += math.Max(0, settle-rec.Strike) * oi
			} else {
				pain += math.Max(0, rec.Strike-settle) * oi
			}
		}
		if pain < bestPain {
			best, bestPain = settle, pain
		}
	}
	return best
}

// frontExpiry returns the records of the nearest expiry
func frontExpiry(records []contracts.ChainRecord) []contracts.ChainRecord {
	exps := expiries(records)
	if len(exps) == 0 {
		return nil
	}
	out := make([]contracts.ChainRecord, 0)
	for _, rec := range records {
		if rec.Expiry.Format(contracts.DateLayout) == exps[0] {
			out = append(out, rec)
		}
	}
	return out
}

func nearestStrike(records []contracts.ChainRecord, spot float64) float64 {
	best := records[0].Strike
	for _, rec := range records[1:] {
		d, bd := math.Abs(rec.Strike-spot), math.Abs(best-spot)
		if d < bd || (d == bd && rec.Strike < best) {
			best = rec.Strike
		}
	}
	return best
}

func strikes(records []contracts.ChainRecord) []float64 {
	seen := make(map[float64]struct{})
	out := make([]float64, 0)
	for _, rec := range records {
		if _, ok := seen[rec.Strike]; ok {
			continue
		}
		seen[rec.Strike] = struct{}{}
		out = append(out, rec.Strike)
	}
	sort.Float64s(out)
	return out
}

func expiries(records []contracts.ChainRecord) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, rec := range records {
		exp := rec.Expiry.Format(contracts.DateLayout)
		if _, ok := seen[exp]; ok {
			continue
		}
		seen[exp] = struct{}{}
		out = append(out, exp)
	}
	sort.Strings(out)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func daysBetween(from, to time.Time) int {
	if from.IsZero() {
		return 0
	}
	return int(contracts.Day(to).Sub(contracts.Day(from)).Hours() / 24)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
