package quality

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/wonny/optionsdash/internal/contracts"
	"github.com/wonny/optionsdash/pkg/config"
)

var (
	testNow    = time.Date(2024, 1, 15, 15, 0, 0, 0, time.UTC)
	testExpiry = time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC)
)

func chain(volume int64) []contracts.ChainRecord {
	return []contracts.ChainRecord{
		{Symbol: "SPY", Strike: 470, Expiry: testExpiry, Type: contracts.Call, Volume: volume / 2},
		{Symbol: "SPY", Strike: 470, Expiry: testExpiry, Type: contracts.Put, Volume: volume - volume/2},
	}
}

func TestAssess_Table(t *testing.T) {
	a := New(DefaultConfig())

	tests := []struct {
		name      string
		candidate Candidate
		source    contracts.Source
		want      contracts.QualityLevel
	}{
		{
			name:      "live high volume complete",
			candidate: Candidate{Records: chain(25000), TotalVolume: 25000, Complete: true, AsOf: testNow, Now: testNow},
			source:    contracts.SourceLive,
			want:      contracts.QualityExcellent,
		},
		{
			name:      "live moderate volume",
			candidate: Candidate{Records: chain(500), TotalVolume: 500, Complete: true, AsOf: testNow, Now: testNow},
			source:    contracts.SourceLive,
			want:      contracts.QualityGood,
		},
		{
			name:      "live zero volume same session",
			candidate: Candidate{Records: chain(0), TotalVolume: 0, Complete: true, AsOf: testNow, Now: testNow},
			source:    contracts.SourceLive,
			want:      contracts.QualityFair,
		},
		{
			name:      "live high volume incomplete",
			candidate: Candidate{Records: chain(25000), TotalVolume: 25000, Complete: false, AsOf: testNow, Now: testNow},
			source:    contracts.SourceLive,
			want:      contracts.QualityFair,
		},
		{
			name:      "live zero volume stale",
			candidate: Candidate{Records: chain(0), Complete: true, AsOf: testNow.Add(-48 * time.Hour), Now: testNow},
			source:    contracts.SourceLive,
			want:      contracts.QualityPoor,
		},
		{
			name:      "live empty",
			candidate: Candidate{Now: testNow},
			source:    contracts.SourceLive,
			want:      contracts.QualityPoor,
		},
		{
			name:      "historical fresh snapshot",
			candidate: Candidate{Records: chain(3000), AsOf: testNow.Add(-24 * time.Hour), Now: testNow},
			source:    contracts.SourceHistorical,
			want:      contracts.QualityEnriched,
		},
		{
			name:      "historical stale snapshot",
			candidate: Candidate{Records: chain(3000), AsOf: testNow.Add(-10 * 24 * time.Hour), Now: testNow},
			source:    contracts.SourceHistorical,
			want:      contracts.QualityPoor,
		},
		{
			name:      "historical stale but with series",
			candidate: Candidate{Records: chain(3000), AsOf: testNow.Add(-10 * 24 * time.Hour), Now: testNow, SeriesDays: 5},
			source:    contracts.SourceHistorical,
			want:      contracts.QualityEnriched,
		},
		{
			name:      "enriched with patterns only",
			candidate: Candidate{Now: testNow, PatternCount: 2},
			source:    contracts.SourceEnriched,
			want:      contracts.QualityEnriched,
		},
		{
			name:      "high volume historical is never excellent",
			candidate: Candidate{Records: chain(50000), TotalVolume: 50000, Complete: true, AsOf: testNow, Now: testNow},
			source:    contracts.SourceHistorical,
			want:      contracts.QualityEnriched,
		},
		{
			name:      "demo always poor",
			candidate: Candidate{Records: chain(50000), TotalVolume: 50000, Complete: true, AsOf: testNow, Now: testNow},
			source:    contracts.SourceDemo,
			want:      contracts.QualityPoor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := a.Assess(tt.candidate, tt.source)
			assert.Equal(t, tt.want, got)
			assert.True(t, contracts.AllowedQuality(tt.source, got), "assessed level must be valid for source")
		})
	}
}

func TestAssess_Deterministic(t *testing.T) {
	a := New(DefaultConfig())
	c := Candidate{Records: chain(500), TotalVolume: 500, Complete: true, AsOf: testNow, Now: testNow}

	first := a.Assess(c, contracts.SourceLive)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, a.Assess(c, contracts.SourceLive))
	}
}

func TestExplain_RuleNames(t *testing.T) {
	a := New(DefaultConfig())

	_, name := a.Explain(Candidate{Records: chain(0), Complete: true, AsOf: testNow, Now: testNow}, contracts.SourceLive)
	assert.Equal(t, "live_same_session", name)

	_, name = a.Explain(Candidate{Now: testNow}, contracts.SourceHistorical)
	assert.Equal(t, "fallthrough", name)
}

func TestDefaultRules_Order(t *testing.T) {
	levels := make([]contracts.QualityLevel, 0, len(DefaultRules))
	for _, r := range DefaultRules {
		levels = append(levels, r.Level)
	}
	assert.Equal(t, []contracts.QualityLevel{
		contracts.QualityExcellent,
		contracts.QualityGood,
		contracts.QualityFair,
		contracts.QualityEnriched,
	}, levels)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.QualityConfig{HighVolume: 500, MinSeriesDays: 0})
	assert.Equal(t, int64(500), cfg.HighVolume)
	assert.Equal(t, 3, cfg.MinSeriesDays)
	assert.Equal(t, 18*time.Hour, cfg.SessionWindow)

	a := New(cfg)
	got := a.Assess(Candidate{Records: chain(600), TotalVolume: 600, Complete: true, AsOf: testNow, Now: testNow}, contracts.SourceLive)
	assert.Equal(t, contracts.QualityExcellent, got)
}
