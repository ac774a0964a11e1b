package quality

import (
	"time"

	"github.com/wonny/optionsdash/internal/contracts"
)

// Requested is an optional strike/expiry range the caller needs covered
type Requested struct {
	MinStrike float64
	MaxStrike float64
	Expiries  []time.Time
}

// Covers reports whether records cover the request.
// With no request every listed expiry must carry both calls and puts.
func Covers(records []contracts.ChainRecord, req *Requested) bool {
	if len(records) == 0 {
		return false
	}

	sides := make(map[time.Time]uint8)
	minStrike, maxStrike := records[0].Strike, records[0].Strike
	for _, rec := range records {
		day := contracts.Day(rec.Expiry)
		if rec.Type == contracts.Call {
			sides[day] |= 1
		} else {
			sides[day] |= 2
		}
		if rec.Strike < minStrike {
			minStrike = rec.Strike
		}
		if rec.Strike > maxStrike {
			maxStrike = rec.Strike
		}
	}

	for _, mask := range sides {
		if mask != 3 {
			return false
		}
	}

	if req == nil {
		return true
	}

	if req.MinStrike > 0 && minStrike > req.MinStrike {
		return false
	}
	if req.MaxStrike > 0 && maxStrike < req.MaxStrike {
		return false
	}
	for _, exp := range req.Expiries {
		if _, ok := sides[contracts.Day(exp)]; !ok {
			return false
		}
	}
	return true
}

// LiveCandidate builds a candidate from a fetched chain
func LiveCandidate(chain *contracts.RawChain, req *Requested, now time.Time) Candidate {
	if chain.Empty() {
		return Candidate{Now: now}
	}
	asOf := chain.FetchedAt
	if asOf.IsZero() {
		asOf = now
	}
	return Candidate{
		Records:     chain.Records,
		TotalVolume: chain.TotalVolume(),
		Complete:    Covers(chain.Records, req),
		AsOf:        asOf,
		Now:         now,
	}
}

// SnapshotCandidate builds a candidate from an archived snapshot.
// seriesDays and patterns describe any statistical context already gathered.
func SnapshotCandidate(snap *contracts.Snapshot, seriesDays, patterns int, now time.Time) Candidate {
	if snap == nil {
		return Candidate{Now: now, SeriesDays: seriesDays, PatternCount: patterns}
	}
	asOf := snap.Timestamp
	if asOf.IsZero() {
		asOf = snap.Date
	}
	return Candidate{
		Records:      snap.Chains,
		TotalVolume:  snap.Stats.TotalVolume,
		Complete:     Covers(snap.Chains, nil),
		AsOf:         asOf,
		Now:          now,
		SeriesDays:   seriesDays,
		PatternCount: patterns,
	}
}
