package quality

import (
	"time"

	"github.com/wonny/optionsdash/internal/contracts"
	"github.com/wonny/optionsdash/pkg/config"
)

// Config holds assessor thresholds
type Config struct {
	HighVolume    int64         // 10000 contracts
	SessionWindow time.Duration // 18h: as-of within this of now counts as the current session
	StaleAfter    time.Duration // 96h: historical snapshots older than this lose Enriched
	MinSeriesDays int           // 3 snapshots of history count as statistical context
}

// DefaultConfig returns the production thresholds
func DefaultConfig() Config {
	return Config{
		HighVolume:    10000,
		SessionWindow: 18 * time.Hour,
		StaleAfter:    96 * time.Hour,
		MinSeriesDays: 3,
	}
}

// ConfigFrom maps app config onto assessor thresholds
func ConfigFrom(cfg config.QualityConfig) Config {
	out := DefaultConfig()
	if cfg.HighVolume > 0 {
		out.HighVolume = cfg.HighVolume
	}
	if cfg.SessionWindow > 0 {
		out.SessionWindow = cfg.SessionWindow
	}
	if cfg.StaleAfter > 0 {
		out.StaleAfter = cfg.StaleAfter
	}
	if cfg.MinSeriesDays > 0 {
		out.MinSeriesDays = cfg.MinSeriesDays
	}
	return out
}

// Candidate is everything the assessor looks at
type Candidate struct {
	Records      []contracts.ChainRecord
	TotalVolume  int64
	Complete     bool      // requested strike/expiry range fully covered
	AsOf         time.Time // when the data was observed
	Now          time.Time
	SeriesDays   int // snapshots backing the candidate's context
	PatternCount int
}

// Rule is one row of the assessment table
type Rule struct {
	Name  string
	Level contracts.QualityLevel
	Match func(cfg Config, c Candidate, src contracts.Source) bool
}

// DefaultRules is evaluated top-down; first match wins, Poor is the fallthrough
var DefaultRules = []Rule{
	{
		Name:  "live_high_volume_complete",
		Level: contracts.QualityExcellent,
		Match: func(cfg Config, c Candidate, src contracts.Source) bool {
			return src == contracts.SourceLive && len(c.Records) > 0 &&
				c.Complete && c.TotalVolume >= cfg.HighVolume
		},
	},
	{
		Name:  "live_volume_complete",
		Level: contracts.QualityGood,
		Match: func(cfg Config, c Candidate, src contracts.Source) bool {
			return src == contracts.SourceLive && len(c.Records) > 0 &&
				c.Complete && c.TotalVolume > 0
		},
	},
	{
		Name:  "live_same_session",
		Level: contracts.QualityFair,
		Match: func(cfg Config, c Candidate, src contracts.Source) bool {
			return src == contracts.SourceLive && len(c.Records) > 0 &&
				withinSession(c.AsOf, c.Now, cfg.SessionWindow)
		},
	},
	{
		Name:  "historical_with_context",
		Level: contracts.QualityEnriched,
		Match: func(cfg Config, c Candidate, src contracts.Source) bool {
			if src != contracts.SourceHistorical && src != contracts.SourceEnriched {
				return false
			}
			if c.SeriesDays >= cfg.MinSeriesDays || c.PatternCount > 0 {
				return true
			}
			return len(c.Records) > 0 && !c.AsOf.IsZero() && c.Now.Sub(c.AsOf) <= cfg.StaleAfter
		},
	},
}

// Assessor scores candidates against a rule table. Pure and deterministic.
type Assessor struct {
	config Config
	rules  []Rule
}

// New creates an assessor using DefaultRules
func New(cfg Config) *Assessor {
	return &Assessor{config: cfg, rules: DefaultRules}
}

// Assess returns the level of the first matching rule
func (a *Assessor) Assess(c Candidate, src contracts.Source) contracts.QualityLevel {
	level, _ := a.Explain(c, src)
	return level
}

// Explain returns the level and the name of the rule that produced it
func (a *Assessor) Explain(c Candidate, src contracts.Source) (contracts.QualityLevel, string) {
	if src == contracts.SourceDemo {
		return contracts.QualityPoor, "demo"
	}
	for _, rule := range a.rules {
		if rule.Match(a.config, c, src) {
			return rule.Level, rule.Name
		}
	}
	return contracts.QualityPoor, "fallthrough"
}

// Config returns the thresholds in use
func (a *Assessor) Config() Config {
	return a.config
}

func withinSession(asOf, now time.Time, window time.Duration) bool {
	if asOf.IsZero() {
		return false
	}
	age := now.Sub(asOf)
	return age >= -window && age <= window
}
