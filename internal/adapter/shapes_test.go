package adapter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/optionsdash/internal/activity"
	"github.com/wonny/optionsdash/internal/contracts"
)

var (
	front = time.Date(2024, 1, 19, 0, 0, 0, 0, time.UTC)
	back  = time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC)
)

func rec(strike float64, exp time.Time, typ contracts.OptionType, volume, oi int64, iv float64) contracts.ChainRecord {
	return contracts.ChainRecord{
		Symbol:       "SPY",
		Strike:       strike,
		Expiry:       exp,
		Type:         typ,
		Last:         1.5,
		Volume:       volume,
		OpenInterest: oi,
		IV:           iv,
	}
}

// sampleChain has spot 106 in mind: put wall at 100, call wall and max pain at 110
func sampleChain() []contracts.ChainRecord {
	return []contracts.ChainRecord{
		rec(100, front, contracts.Call, 200, 1000, 0.22),
		rec(100, front, contracts.Put, 300, 500, 0.26),
		rec(105, front, contracts.Call, 400, 0, 0.20),
		rec(110, front, contracts.Call, 100, 2000, 0.19),
		rec(110, front, contracts.Put, 150, 3000, 0.21),
		rec(105, back, contracts.Call, 50, 100, 0.24),
	}
}

func payload() *contracts.Payload {
	return &contracts.Payload{Kind: contracts.KindLiveChain, Symbol: "SPY", UnderlyingPrice: 106, Chains: sampleChain()}
}

func TestBuildChainView(t *testing.T) {
	view := BuildChainView(payload())

	assert.Equal(t, []string{"2024-01-19", "2024-02-16"}, view.Expiries)
	require.Len(t, view.Rows, 4)

	assert.Equal(t, 100.0, view.Rows[0].Strike)
	require.NotNil(t, view.Rows[0].Call)
	require.NotNil(t, view.Rows[0].Put)
	assert.Equal(t, int64(200), view.Rows[0].Call.Volume)
	assert.Equal(t, int64(300), view.Rows[0].Put.Volume)

	assert.Equal(t, 105.0, view.Rows[1].Strike)
	assert.Nil(t, view.Rows[1].Put)

	assert.Equal(t, "2024-02-16", view.Rows[3].Expiry)
}

func TestBuildIVSurface(t *testing.T) {
	asOf := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
	surface := BuildIVSurface(payload(), asOf)

	assert.Len(t, surface.Points, 6)
	require.Len(t, surface.TermStructure, 2)

	// 106 is nearest 105 on both expiries
	assert.Equal(t, 105.0, surface.TermStructure[0].ATMStrike)
	assert.Equal(t, 0.20, surface.TermStructure[0].ATMIV)
	assert.Equal(t, 3, surface.TermStructure[0].DaysToExpiry)
	assert.Equal(t, 0.24, surface.TermStructure[1].ATMIV)
	assert.Equal(t, 31, surface.TermStructure[1].DaysToExpiry)
	assert.Equal(t, 0.20, surface.ATMIV)
}

func TestBuildHeatmap(t *testing.T) {
	hm := BuildHeatmap(payload())

	assert.Equal(t, []float64{100, 105, 110}, hm.Strikes)
	require.Len(t, hm.Volume, 2)
	require.Len(t, hm.Volume[0], 3)

	assert.Equal(t, []int64{500, 400, 250}, hm.Volume[0])
	assert.Equal(t, []int64{0, 50, 0}, hm.Volume[1])
	assert.Equal(t, []int64{1500, 0, 5000}, hm.OpenInterest[0])
}

func TestBuildStrikeAnalysis(t *testing.T) {
	sa := BuildStrikeAnalysis(payload())

	assert.Equal(t, 110.0, sa.MaxPain)
	assert.Equal(t, 100.0, sa.Support)
	assert.Equal(t, 110.0, sa.Resistance)

	require.Len(t, sa.Levels, 3)
	assert.Equal(t, int64(450), sa.Levels[1].CallVolume)
	assert.Equal(t, int64(100), sa.Levels[1].CallOI)
}

func TestBuildStrikeAnalysis_Empty(t *testing.T) {
	sa := BuildStrikeAnalysis(&contracts.Payload{})
	assert.Zero(t, sa.MaxPain)
	assert.Empty(t, sa.Levels)
}

func TestBuildIntraday(t *testing.T) {
	view := BuildIntraday(payload())

	assert.Equal(t, 106.0, view.UnderlyingPrice)
	assert.Equal(t, []KeyLevel{
		{Price: 100, Kind: "support"},
		{Price: 110, Kind: "resistance"},
		{Price: 110, Kind: "max_pain"},
	}, view.KeyLevels)
	assert.Equal(t, []VolumeBucket{{100, 500}, {105, 450}, {110, 250}}, view.VolumeProfile)
}

func TestBuildDealerSurface(t *testing.T) {
	call := rec(100, front, contracts.Call, 0, 10, 0.2)
	call.Greeks = contracts.Greeks{Delta: 0.5, Gamma: 0.05, Vega: 0.1}
	put := rec(100, front, contracts.Put, 0, 4, 0.2)
	put.Greeks = contracts.Greeks{Delta: -0.4, Gamma: 0.05, Vega: 0.1}

	ds := BuildDealerSurface(&contracts.Payload{UnderlyingPrice: 100, Chains: []contracts.ChainRecord{call, put}})

	require.Len(t, ds.Exposures, 1)
	assert.InDelta(t, 3000.0, ds.NetGamma, 1e-6)
	assert.InDelta(t, 340.0, ds.NetDelta, 1e-6)
	assert.InDelta(t, 140.0, ds.NetVega, 1e-6)
}

func TestBuildFlowScan(t *testing.T) {
	cfg := activity.DefaultConfig()
	asOf := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)

	t.Run("archived activity wins", func(t *testing.T) {
		p := payload()
		p.Unusual = []contracts.UnusualActivityRecord{
			{Symbol: "SPY", Strike: 100, Expiry: front, Type: contracts.Put, Volume: 8000, Score: 7.5, Tag: contracts.TagWhale},
		}
		scan := BuildFlowScan(cfg, p, asOf)
		require.Len(t, scan.Flows, 1)
		assert.Equal(t, AlertHigh, scan.AlertLevel)
		assert.Equal(t, "bearish", scan.Summary.Bias)
		assert.Equal(t, 1, scan.Summary.PutFlows)
	})

	t.Run("detected on live chain", func(t *testing.T) {
		p := payload()
		p.Chains = append(p.Chains, rec(115, front, contracts.Call, 2000, 500, 0.2))
		scan := BuildFlowScan(cfg, p, asOf)
		require.Len(t, scan.Flows, 1)
		assert.Equal(t, 5.0, scan.Flows[0].Score)
		assert.Equal(t, AlertMedium, scan.AlertLevel)
		assert.Equal(t, "bullish", scan.Summary.Bias)
	})

	t.Run("nothing unusual", func(t *testing.T) {
		scan := BuildFlowScan(cfg, payload(), asOf)
		assert.NotNil(t, scan.Flows)
		assert.Empty(t, scan.Flows)
		assert.Equal(t, AlertNone, scan.AlertLevel)
		assert.Equal(t, "neutral", scan.Summary.Bias)
	})

	t.Run("synthetic chain is not scanned", func(t *testing.T) {
		p := payload()
		p.Synthetic = true
		p.Chains = append(p.Chains, rec(115, front, contracts.Call, 9000, 500, 0.2))
		scan := BuildFlowScan(cfg, p, asOf)
		assert.Empty(t, scan.Flows)
	})
}

func TestBuildRidgeline(t *testing.T) {
	rl := BuildRidgeline(payload(), time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC))

	require.Len(t, rl.Series, 2)
	assert.Equal(t, "2024-01-19", rl.Series[0].Expiry)
	assert.Equal(t, []RidgePoint{{100, 0.24}, {105, 0.20}, {110, 0.20}}, rl.Series[0].Points)
	assert.Equal(t, 31, rl.Series[1].DaysToExpiry)
}

func TestBuildSummary(t *testing.T) {
	t.Run("recomputed from chain", func(t *testing.T) {
		s := BuildSummary(payload())
		assert.Equal(t, 6, s.Contracts)
		assert.Equal(t, 2, s.Expiries)
		assert.Equal(t, int64(1200), s.TotalVolume)
		assert.Equal(t, int64(6600), s.TotalOI)
	})

	t.Run("archived stats and context", func(t *testing.T) {
		p := payload()
		p.Stats = &contracts.DailyStats{TotalVolume: 42, PutCallRatio: 0.8}
		p.Context = &contracts.HistoricalContext{
			VolumeTrend: contracts.TrendIncreasing,
			IVTrend:     contracts.TrendStable,
			Patterns:    []contracts.Pattern{{ContractKey: "x"}},
		}
		s := BuildSummary(p)
		assert.Equal(t, int64(42), s.TotalVolume)
		assert.Equal(t, 0.8, s.PutCallRatio)
		assert.Equal(t, contracts.TrendIncreasing, s.VolumeTrend)
		assert.Equal(t, 1, s.Patterns)
	})
}

func TestNewDataInfo(t *testing.T) {
	now := time.Date(2024, 1, 16, 15, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		source  contracts.Source
		quality contracts.QualityLevel
		asOf    time.Time
		message string
		age     string
	}{
		{"excellent", contracts.SourceLive, contracts.QualityExcellent, now, "Live data with high volume and complete coverage", "live"},
		{"fair", contracts.SourceLive, contracts.QualityFair, now, "Low volume data - historical context provided", "live"},
		{"live unavailable", contracts.SourceLive, contracts.QualityPoor, now, "Live data unavailable or incomplete", "live"},
		{"prior session", contracts.SourceHistorical, contracts.QualityEnriched, now.AddDate(0, 0, -1), "Historical analysis with comprehensive insights", "1 day old"},
		{"stale", contracts.SourceHistorical, contracts.QualityPoor, now.AddDate(0, 0, -9), "Limited data available - showing demo content", "9 days old"},
		{"demo", contracts.SourceDemo, contracts.QualityPoor, now, "Limited data available - showing demo content", "n/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := contracts.NewEnvelope(payload(), tt.source, tt.quality, contracts.Provenance{AsOfDate: contracts.Day(tt.asOf)}, nil)
			require.NoError(t, err)

			info := NewDataInfo(env, now)
			assert.Equal(t, tt.message, info.UserMessage)
			assert.Equal(t, tt.age, info.DataAge)
			assert.Equal(t, "6 contracts across 2 expiries", info.Coverage)
			assert.Equal(t, tt.source != contracts.SourceLive, info.IsFallback)
		})
	}
}
