package contracts

import (
	"math"
	"time"
)

// DailyStats summarises one end-of-session snapshot
type DailyStats struct {
	TotalVolume          int64   `json:"total_volume" validate:"gte=0"`
	TotalCallVolume      int64   `json:"total_call_volume" validate:"gte=0"`
	TotalPutVolume       int64   `json:"total_put_volume" validate:"gte=0"`
	TotalCallOI          int64   `json:"total_call_oi" validate:"gte=0"`
	TotalPutOI           int64   `json:"total_put_oi" validate:"gte=0"`
	PutCallRatio         float64 `json:"put_call_ratio" validate:"gte=0"`
	PutCallOIRatio       float64 `json:"put_call_oi_ratio" validate:"gte=0"`
	IVRank               float64 `json:"iv_rank" validate:"gte=0,lte=100"`
	AverageIV            float64 `json:"average_iv" validate:"gte=0"`
	UnusualActivityCount int     `json:"unusual_activity_count" validate:"gte=0"`
}

// Snapshot is the symbol+date keyed archive of a session's chain.
// Created once per trading day by the collector and never mutated afterwards.
type Snapshot struct {
	Symbol          string        `json:"symbol" validate:"required"`
	Date            time.Time     `json:"date" validate:"required"`
	UnderlyingPrice float64       `json:"underlying_price" validate:"gte=0"`
	Timestamp       time.Time     `json:"timestamp"`
	Chains          []ChainRecord `json:"chains" validate:"dive"`
	Stats           DailyStats    `json:"daily_stats"`

	// Unusual is persisted in its own partition; readers use UnusualActivity on the store
	Unusual []UnusualActivityRecord `json:"-"`
}

// Find returns the contract matching (strike, expiry, type).
// An empty type matches CALL first, then PUT.
func (s *Snapshot) Find(strike float64, expiry time.Time, typ OptionType) (ChainRecord, bool) {
	expiryDay := Day(expiry)
	var putMatch *ChainRecord

	for i := range s.Chains {
		rec := s.Chains[i]
		if math.Abs(rec.Strike-strike) > 1e-6 || !Day(rec.Expiry).Equal(expiryDay) {
			continue
		}
		if typ != "" && rec.Type != typ {
			continue
		}
		if typ == "" && rec.Type == Put {
			if putMatch == nil {
				putMatch = &s.Chains[i]
			}
			continue
		}
		return rec, true
	}

	if putMatch != nil {
		return *putMatch, true
	}
	return ChainRecord{}, false
}

// Age returns how old the snapshot's session is relative to now
func (s *Snapshot) Age(now time.Time) time.Duration {
	return Day(now).Sub(Day(s.Date))
}

// ActivityTag classifies unusual activity
type ActivityTag string

const (
	TagSweep ActivityTag = "sweep"
	TagWhale ActivityTag = "whale"
	TagBuild ActivityTag = "build"
	TagBlock ActivityTag = "block"
)

// UnusualActivityRecord is derived from a Snapshot; recomputed, never hand-edited
type UnusualActivityRecord struct {
	Symbol       string      `json:"symbol" validate:"required"`
	Date         time.Time   `json:"date" validate:"required"`
	Strike       float64     `json:"strike" validate:"gt=0"`
	Expiry       time.Time   `json:"expiry" validate:"required"`
	Type         OptionType  `json:"type" validate:"oneof=CALL PUT"`
	Volume       int64       `json:"volume" validate:"gte=0"`
	OpenInterest int64       `json:"open_interest" validate:"gte=0"`
	OIChange     int64       `json:"oi_change"`
	LastPrice    float64     `json:"last_price" validate:"gte=0"`
	Score        float64     `json:"score" validate:"gte=0"`
	Tag          ActivityTag `json:"tag" validate:"oneof=sweep whale build block"`
}

// ContractKey identifies the contract the activity belongs to
func (u UnusualActivityRecord) ContractKey() string {
	return ContractKey(u.Symbol, u.Expiry, u.Type, u.Strike)
}

// Trend is the direction of a derived series
type Trend string

const (
	TrendIncreasing Trend = "increasing"
	TrendDecreasing Trend = "decreasing"
	TrendStable     Trend = "stable"
)

// EvolutionPoint is one session's observation of a contract
type EvolutionPoint struct {
	Date         time.Time `json:"date"`
	OpenInterest int64     `json:"open_interest"`
	Volume       int64     `json:"volume"`
	Price        float64   `json:"price"`
}

// PositionEvolutionSeries is a read-only view over several snapshots.
// It references snapshots by key and is never persisted.
type PositionEvolutionSeries struct {
	Symbol     string           `json:"symbol"`
	Strike     float64          `json:"strike"`
	Expiry     time.Time        `json:"expiry"`
	Type       OptionType       `json:"type,omitempty"`
	WindowDays int              `json:"window_days"`
	Points     []EvolutionPoint `json:"points"`
	Trend      Trend            `json:"trend"`
	Warnings   []string         `json:"warnings,omitempty"`
}

// Pattern is a contract with recurring unusual activity inside a window
type Pattern struct {
	ContractKey string                  `json:"contract_key"`
	Symbol      string                  `json:"symbol"`
	Strike      float64                 `json:"strike"`
	Expiry      time.Time               `json:"expiry"`
	Type        OptionType              `json:"type"`
	Days        int                     `json:"days"`
	BestScore   float64                 `json:"best_score"`
	LastSeen    time.Time               `json:"last_seen"`
	Tag         ActivityTag             `json:"tag"`
	Records     []UnusualActivityRecord `json:"records"`
}

// HistoricalContext is the enriched view the analyzer builds over a window
type HistoricalContext struct {
	Symbol        string                    `json:"symbol"`
	WindowDays    int                       `json:"window_days"`
	SnapshotCount int                       `json:"snapshot_count"`
	From          time.Time                 `json:"from"`
	To            time.Time                 `json:"to"`
	VolumeTrend   Trend                     `json:"volume_trend"`
	IVTrend       Trend                     `json:"iv_trend"`
	NetOIChange   int64                     `json:"net_oi_change"`
	Evolutions    []PositionEvolutionSeries `json:"position_evolution,omitempty"`
	Patterns      []Pattern                 `json:"patterns,omitempty"`
	Warnings      []string                  `json:"warnings,omitempty"`
}
