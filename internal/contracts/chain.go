package contracts

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the on-disk and API date format for session dates
const DateLayout = "2006-01-02"

// OptionType is CALL or PUT
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// ParseOptionType accepts call/put/c/p in any case
func ParseOptionType(s string) (OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL", "C":
		return Call, nil
	case "PUT", "P":
		return Put, nil
	}
	return "", fmt.Errorf("unknown option type %q", s)
}

// Greeks as observed from the brokerage, never computed here
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// ChainRecord is one option contract observation at a point in time.
// Volume, OI and IV are observed-at-Timestamp values; records are never edited.
type ChainRecord struct {
	Symbol       string     `json:"symbol" validate:"required"`
	Strike       float64    `json:"strike" validate:"gt=0"`
	Expiry       time.Time  `json:"expiry" validate:"required"`
	Type         OptionType `json:"type" validate:"oneof=CALL PUT"`
	Bid          float64    `json:"bid" validate:"gte=0"`
	Ask          float64    `json:"ask" validate:"gte=0"`
	Last         float64    `json:"last" validate:"gte=0"`
	Volume       int64      `json:"volume" validate:"gte=0"`
	OpenInterest int64      `json:"open_interest" validate:"gte=0"`
	IV           float64    `json:"iv" validate:"gte=0"`
	Greeks       Greeks     `json:"greeks"`
	Timestamp    time.Time  `json:"timestamp"`
}

// ContractKey identifies a contract across snapshots
func (c ChainRecord) ContractKey() string {
	return ContractKey(c.Symbol, c.Expiry, c.Type, c.Strike)
}

// Mid returns the bid/ask midpoint, falling back to last
func (c ChainRecord) Mid() float64 {
	if c.Bid > 0 && c.Ask > 0 {
		return (c.Bid + c.Ask) / 2
	}
	return c.Last
}

// ContractKey formats SYMBOL|YYYY-MM-DD|TYPE|STRIKE
func ContractKey(symbol string, expiry time.Time, typ OptionType, strike float64) string {
	return fmt.Sprintf("%s|%s|%s|%.2f", symbol, expiry.Format(DateLayout), typ, strike)
}

// Day truncates t to a UTC calendar date
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RawChain is what the live-fetch collaborator hands back, already normalized
// into chain records. An empty Records slice counts as unavailable.
type RawChain struct {
	Symbol          string        `json:"symbol"`
	UnderlyingPrice float64       `json:"underlying_price"`
	FetchedAt       time.Time     `json:"fetched_at"`
	Records         []ChainRecord `json:"records"`
}

// Empty reports whether the chain carries no contracts
func (r *RawChain) Empty() bool {
	return r == nil || len(r.Records) == 0
}

// TotalVolume sums contract volume
func (r *RawChain) TotalVolume() int64 {
	if r == nil {
		return 0
	}
	return SumVolume(r.Records)
}

// SumVolume sums contract volume over records
func SumVolume(records []ChainRecord) int64 {
	var total int64
	for _, rec := range records {
		total += rec.Volume
	}
	return total
}
