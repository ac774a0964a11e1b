package contracts

import (
	"fmt"
	"strings"
	"time"
)

// Source identifies where an envelope's payload came from
// ⭐ SSOT: 데이터 출처는 이 enum으로만 표현
type Source int

const (
	SourceDemo Source = iota
	SourceEnriched
	SourceHistorical
	SourceLive
)

var sourceNames = map[Source]string{
	SourceDemo:       "demo",
	SourceEnriched:   "enriched",
	SourceHistorical: "historical",
	SourceLive:       "live",
}

// String returns the lower-case source name
func (s Source) String() string {
	if name, ok := sourceNames[s]; ok {
		return name
	}
	return fmt.Sprintf("source(%d)", int(s))
}

// MarshalText implements encoding.TextMarshaler
func (s Source) MarshalText() ([]byte, error) {
	if _, ok := sourceNames[s]; !ok {
		return nil, fmt.Errorf("invalid source %d", int(s))
	}
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (s *Source) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for src, n := range sourceNames {
		if n == name {
			*s = src
			return nil
		}
	}
	return fmt.Errorf("unknown source %q", string(text))
}

// QualityLevel is the five-level ordinal scale.
// Numeric order is the default (recency-first) ranking: Excellent > Good > Fair > Enriched > Poor.
type QualityLevel int

const (
	QualityPoor QualityLevel = iota
	QualityEnriched
	QualityFair
	QualityGood
	QualityExcellent
)

var qualityNames = map[QualityLevel]string{
	QualityPoor:      "poor",
	QualityEnriched:  "enriched",
	QualityFair:      "fair",
	QualityGood:      "good",
	QualityExcellent: "excellent",
}

// String returns the lower-case level name
func (q QualityLevel) String() string {
	if name, ok := qualityNames[q]; ok {
		return name
	}
	return fmt.Sprintf("quality(%d)", int(q))
}

// MarshalText implements encoding.TextMarshaler
func (q QualityLevel) MarshalText() ([]byte, error) {
	if _, ok := qualityNames[q]; !ok {
		return nil, fmt.Errorf("invalid quality level %d", int(q))
	}
	return []byte(q.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (q *QualityLevel) UnmarshalText(text []byte) error {
	name := strings.ToLower(string(text))
	for level, n := range qualityNames {
		if n == name {
			*q = level
			return nil
		}
	}
	return fmt.Errorf("unknown quality level %q", string(text))
}

// AllowedQuality reports whether a source may carry the given quality
func AllowedQuality(source Source, quality QualityLevel) bool {
	switch source {
	case SourceDemo:
		return quality == QualityPoor
	case SourceEnriched:
		return quality == QualityEnriched
	case SourceHistorical:
		return quality == QualityEnriched || quality == QualityPoor
	case SourceLive:
		return quality == QualityExcellent || quality == QualityGood ||
			quality == QualityFair || quality == QualityPoor
	}
	return false
}

// Mode selects which stages the router may use
type Mode string

const (
	ModeAuto       Mode = "auto"
	ModeLive       Mode = "live"
	ModeHistorical Mode = "historical"
)

// ParseMode parses auto|live|historical; empty means auto
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeAuto:
		return ModeAuto, nil
	case ModeLive:
		return ModeLive, nil
	case ModeHistorical:
		return ModeHistorical, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// AnalysisType names a dashboard analysis module
type AnalysisType string

const (
	AnalysisOptionsChain   AnalysisType = "options_chain"
	AnalysisIVSurface      AnalysisType = "iv_surface"
	AnalysisOptionsHeatmap AnalysisType = "options_heatmap"
	AnalysisFlowScanner    AnalysisType = "flow_scanner"
	AnalysisStrikeAnalysis AnalysisType = "strike_analysis"
	AnalysisIntradayCharts AnalysisType = "intraday_charts"
	AnalysisDealerSurfaces AnalysisType = "dealer_surfaces"
	AnalysisRidgeline      AnalysisType = "ridgeline"
	AnalysisComprehensive  AnalysisType = "comprehensive"
)

// AllAnalysisTypes returns the fixed set in display order
func AllAnalysisTypes() []AnalysisType {
	return []AnalysisType{
		AnalysisOptionsChain,
		AnalysisIVSurface,
		AnalysisOptionsHeatmap,
		AnalysisFlowScanner,
		AnalysisStrikeAnalysis,
		AnalysisIntradayCharts,
		AnalysisDealerSurfaces,
		AnalysisRidgeline,
		AnalysisComprehensive,
	}
}

// ParseAnalysisType validates s against the fixed set
func ParseAnalysisType(s string) (AnalysisType, error) {
	name := AnalysisType(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range AllAnalysisTypes() {
		if t == name {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAnalysisType, s)
}

// Payload kinds
const (
	KindLiveChain       = "live_chain"
	KindHistorical      = "historical_snapshot"
	KindEnriched        = "enriched_context"
	KindDemo            = "demo"
	KindLiveUnavailable = "live_unavailable"
)

// Payload is the analysis-ready content of an envelope
type Payload struct {
	Kind            string                  `json:"kind"`
	Symbol          string                  `json:"symbol"`
	Synthetic       bool                    `json:"synthetic"`
	Label           string                  `json:"label,omitempty"`
	UnderlyingPrice float64                 `json:"underlying_price"`
	Chains          []ChainRecord           `json:"chains"`
	Stats           *DailyStats             `json:"daily_stats,omitempty"`
	Unusual         []UnusualActivityRecord `json:"unusual_activity,omitempty"`
	Context         *HistoricalContext      `json:"historical_context,omitempty"`
}

// Provenance records what an envelope answers and when it was produced
type Provenance struct {
	AsOfDate     time.Time    `json:"as_of_date"`
	Symbol       string       `json:"symbol"`
	AnalysisType AnalysisType `json:"analysis_type"`
	RequestID    string       `json:"request_id"`
	GeneratedAt  time.Time    `json:"generated_at"`
}

// DataEnvelope is the single shape every router result takes.
// Payload is never nil and Demo always carries Poor.
type DataEnvelope struct {
	Payload    *Payload     `json:"payload"`
	Source     Source       `json:"source"`
	Quality    QualityLevel `json:"quality"`
	Provenance Provenance   `json:"provenance"`
	Warnings   []string     `json:"warnings"`
}

// NewEnvelope builds an envelope, rejecting invalid (source, quality) pairs and nil payloads
func NewEnvelope(payload *Payload, source Source, quality QualityLevel, prov Provenance, warnings []string) (DataEnvelope, error) {
	if payload == nil {
		return DataEnvelope{}, fmt.Errorf("%w: nil payload", ErrInvalidEnvelope)
	}
	if !AllowedQuality(source, quality) {
		return DataEnvelope{}, fmt.Errorf("%w: source %s cannot carry quality %s", ErrInvalidEnvelope, source, quality)
	}
	if warnings == nil {
		warnings = []string{}
	}

	return DataEnvelope{
		Payload:    payload,
		Source:     source,
		Quality:    quality,
		Provenance: prov,
		Warnings:   warnings,
	}, nil
}

// IsFallback reports whether the envelope came from anything other than live data
func (e *DataEnvelope) IsFallback() bool {
	return e.Source != SourceLive
}
