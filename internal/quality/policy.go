package quality

import "github.com/wonny/optionsdash/internal/contracts"

// Policy decides how levels compare when choosing between sources.
// The default is recency first: a same-session Fair live chain outranks Enriched history.
type Policy struct {
	PreferEnrichedOverFair bool
}

// Rank returns the default ordinal of a level (higher is better)
func Rank(level contracts.QualityLevel) int {
	return int(level)
}

// Rank returns the ordinal of a level under this policy
func (p Policy) Rank(level contracts.QualityLevel) int {
	if !p.PreferEnrichedOverFair {
		return Rank(level)
	}
	switch level {
	case contracts.QualityFair:
		return Rank(contracts.QualityEnriched)
	case contracts.QualityEnriched:
		return Rank(contracts.QualityFair)
	}
	return Rank(level)
}

// Better reports whether a strictly outranks b
func (p Policy) Better(a, b contracts.QualityLevel) bool {
	return p.Rank(a) > p.Rank(b)
}

// Meets reports whether level is at or above floor
func (p Policy) Meets(level, floor contracts.QualityLevel) bool {
	return p.Rank(level) >= p.Rank(floor)
}
