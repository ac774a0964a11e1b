package activity

import (
	"math"
	"sort"
	"time"

	"github.com/wonny/optionsdash/internal/contracts"
)

// Config holds unusual-activity thresholds
type Config struct {
	MinVolume   int64   // contracts below this volume are never flagged
	MinScore    float64 // flagged when score >= MinScore
	MaxRecords  int     // keep the top N by score
	WhaleVolume int64
	BlockRatio  float64 // volume/OI at or above this is a block print
}

// DefaultConfig returns the collector's historical thresholds
func DefaultConfig() Config {
	return Config{
		MinVolume:   1000,
		MinScore:    3.0,
		MaxRecords:  50,
		WhaleVolume: 5000,
		BlockRatio:  2.0,
	}
}

// Score rates how unusual a contract's volume is.
// Volume component caps at 5, volume/OI component caps at 3.
func Score(volume, openInterest int64) float64 {
	if volume <= 0 {
		return 0
	}

	score := math.Min(float64(volume)/1000, 5)
	if openInterest > 0 {
		score += math.Min(float64(volume)/float64(openInterest), 3)
	}
	return round(score, 2)
}

// Classify tags a flagged contract
// ⭐ SSOT: whale > build > block > sweep 순서
func Classify(cfg Config, volume, openInterest, oiChange int64) contracts.ActivityTag {
	switch {
	case volume > cfg.WhaleVolume:
		return contracts.TagWhale
	case oiChange > 0 && oiChange*2 >= volume:
		return contracts.TagBuild
	case openInterest > 0 && float64(volume)/float64(openInterest) >= cfg.BlockRatio:
		return contracts.TagBlock
	}
	return contracts.TagSweep
}

// Detect flags unusual contracts in a chain.
// prev, when non-nil, is the previous session's snapshot and feeds OI change.
// Results are sorted by score descending, ties by volume, then contract key.
func Detect(cfg Config, symbol string, date time.Time, records []contracts.ChainRecord, prev *contracts.Snapshot) []contracts.UnusualActivityRecord {
	out := make([]contracts.UnusualActivityRecord, 0)

	for _, rec := range records {
		if rec.Volume < cfg.MinVolume {
			continue
		}
		score := Score(rec.Volume, rec.OpenInterest)
		if score < cfg.MinScore {
			continue
		}

		var oiChange int64
		if prev != nil {
			if before, ok := prev.Find(rec.Strike, rec.Expiry, rec.Type); ok {
				oiChange = rec.OpenInterest - before.OpenInterest
			}
		}

		out = append(out, contracts.UnusualActivityRecord{
			Symbol:       symbol,
			Date:         contracts.Day(date),
			Strike:       rec.Strike,
			Expiry:       contracts.Day(rec.Expiry),
			Type:         rec.Type,
			Volume:       rec.Volume,
			OpenInterest: rec.OpenInterest,
			OIChange:     oiChange,
			LastPrice:    rec.Last,
			Score:        score,
			Tag:          Classify(cfg, rec.Volume, rec.OpenInterest, oiChange),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Volume != out[j].Volume {
			return out[i].Volume > out[j].Volume
		}
		return out[i].ContractKey() < out[j].ContractKey()
	})

	if cfg.MaxRecords > 0 && len(out) > cfg.MaxRecords {
		out = out[:cfg.MaxRecords]
	}
	return out
}

// Stats computes session totals and put/call ratios.
// IVRank is left at zero; callers with history use IVRank.
func Stats(records []contracts.ChainRecord, unusualCount int) contracts.DailyStats {
	var stats contracts.DailyStats

	var ivSum float64
	var ivCount int
	for _, rec := range records {
		switch rec.Type {
		case contracts.Call:
			stats.TotalCallVolume += rec.Volume
			stats.TotalCallOI += rec.OpenInterest
		case contracts.Put:
			stats.TotalPutVolume += rec.Volume
			stats.TotalPutOI += rec.OpenInterest
		}
		if rec.IV > 0 {
			ivSum += rec.IV
			ivCount++
		}
	}

	stats.TotalVolume = stats.TotalCallVolume + stats.TotalPutVolume
	if stats.TotalCallVolume > 0 {
		stats.PutCallRatio = round(float64(stats.TotalPutVolume)/float64(stats.TotalCallVolume), 3)
	}
	if stats.TotalCallOI > 0 {
		stats.PutCallOIRatio = round(float64(stats.TotalPutOI)/float64(stats.TotalCallOI), 3)
	}
	if ivCount > 0 {
		stats.AverageIV = round(ivSum/float64(ivCount), 4)
	}
	stats.UnusualActivityCount = unusualCount

	return stats
}

// IVRank places current within the min/max of history on a 0-100 scale.
// Returns 0 when history has no range.
func IVRank(current float64, history []float64) float64 {
	lo, hi := current, current
	for _, v := range history {
		if v <= 0 {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if hi-lo <= 0 {
		return 0
	}
	return round((current-lo)/(hi-lo)*100, 1)
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
