package adapter

import (
	"fmt"
	"time"

	"github.com/wonny/optionsdash/internal/contracts"
)

// DataInfo tells the dashboard what it is looking at
type DataInfo struct {
	UserMessage       string `json:"user_message"`
	SourceDescription string `json:"source_description"`
	DataAge           string `json:"data_age"`
	Coverage          string `json:"coverage"`
	IsFallback        bool   `json:"is_fallback"`
}

var userMessages = map[contracts.QualityLevel]string{
	contracts.QualityExcellent: "Live data with high volume and complete coverage",
	contracts.QualityGood:      "Live data with moderate activity",
	contracts.QualityFair:      "Low volume data - historical context provided",
	contracts.QualityEnriched:  "Historical analysis with comprehensive insights",
	contracts.QualityPoor:      "Limited data available - showing demo content",
}

// UserMessage returns the banner text for a quality level
func UserMessage(q contracts.QualityLevel) string {
	if msg, ok := userMessages[q]; ok {
		return msg
	}
	return userMessages[contracts.QualityPoor]
}

// NewDataInfo describes an envelope relative to now
func NewDataInfo(env contracts.DataEnvelope, now time.Time) DataInfo {
	info := DataInfo{
		UserMessage:       UserMessage(env.Quality),
		SourceDescription: describeSource(env),
		DataAge:           dataAge(env, now),
		Coverage:          "none",
		IsFallback:        env.IsFallback(),
	}

	// live Poor never carries demo content
	if env.Source == contracts.SourceLive && env.Quality == contracts.QualityPoor {
		info.UserMessage = "Live data unavailable or incomplete"
	}

	if env.Payload != nil && len(env.Payload.Chains) > 0 {
		info.Coverage = fmt.Sprintf("%d contracts across %d expiries", len(env.Payload.Chains), len(expiries(env.Payload.Chains)))
	}
	return info
}

func describeSource(env contracts.DataEnvelope) string {
	switch env.Source {
	case contracts.SourceLive:
		return "Real-time market data"
	case contracts.SourceHistorical:
		return fmt.Sprintf("Session snapshot from %s", env.Provenance.AsOfDate.Format(contracts.DateLayout))
	case contracts.SourceEnriched:
		if env.Payload != nil && env.Payload.Context != nil {
			return fmt.Sprintf("Historical analysis across %d sessions", env.Payload.Context.SnapshotCount)
		}
		return "Historical analysis"
	}
	return "Synthetic demonstration data"
}

func dataAge(env contracts.DataEnvelope, now time.Time) string {
	if env.Source == contracts.SourceDemo {
		return "n/a"
	}
	if env.Source == contracts.SourceLive {
		return "live"
	}

	days := daysBetween(env.Provenance.AsOfDate, now)
	switch {
	case days <= 0:
		return "today"
	case days == 1:
		return "1 day old"
	}
	return fmt.Sprintf("%d days old", days)
}
