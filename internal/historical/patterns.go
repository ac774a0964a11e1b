package historical

import (
	"context"
	"fmt"
	"sort"

	"github.com/wonny/optionsdash/internal/contracts"
)

// DetectPatterns finds contracts whose unusual activity scored above the threshold
// on at least MinPatternDays distinct days inside the window.
// Unreadable days are skipped and reported as warnings.
func (a *Analyzer) DetectPatterns(ctx context.Context, symbol string, windowDays int) ([]contracts.Pattern, []string, error) {
	start, end := a.window(windowDays)

	dates, err := a.store.AvailableDates(ctx, symbol)
	if err != nil {
		return nil, nil, fmt.Errorf("list snapshot dates: %w", err)
	}

	var warnings []string
	groups := make(map[string][]contracts.UnusualActivityRecord)

	for _, date := range dates {
		d := contracts.Day(date)
		if d.Before(start) || d.After(end) {
			continue
		}

		records, err := a.store.UnusualActivity(ctx, symbol, d)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, ctx.Err()
			}
			warnings = append(warnings, fmt.Sprintf("unusual activity for %s unavailable: %v", d.Format(contracts.DateLayout), err))
			a.logger.WithError(err).WithField("date", d.Format(contracts.DateLayout)).Warn("Skipping unusual activity")
			continue
		}

		for _, rec := range records {
			if rec.Score <= a.config.PatternScore {
				continue
			}
			rec.Tag = a.normalizeTag(rec)
			groups[rec.ContractKey()] = append(groups[rec.ContractKey()], rec)
		}
	}

	patterns := make([]contracts.Pattern, 0)
	for key, recs := range groups {
		days := make(map[string]struct{})
		for _, r := range recs {
			days[contracts.Day(r.Date).Format(contracts.DateLayout)] = struct{}{}
		}
		if len(days) < a.config.MinPatternDays {
			continue
		}

		sort.SliceStable(recs, func(i, j int) bool {
			if recs[i].Score != recs[j].Score {
				return recs[i].Score > recs[j].Score
			}
			return recs[i].Date.After(recs[j].Date)
		})

		best := recs[0]
		lastSeen := best.Date
		for _, r := range recs {
			if r.Date.After(lastSeen) {
				lastSeen = r.Date
			}
		}

		patterns = append(patterns, contracts.Pattern{
			ContractKey: key,
			Symbol:      best.Symbol,
			Strike:      best.Strike,
			Expiry:      best.Expiry,
			Type:        best.Type,
			Days:        len(days),
			BestScore:   best.Score,
			LastSeen:    contracts.Day(lastSeen),
			Tag:         best.Tag,
			Records:     recs,
		})
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		if patterns[i].BestScore != patterns[j].BestScore {
			return patterns[i].BestScore > patterns[j].BestScore
		}
		bi, bj := patterns[i].Records[0].Date, patterns[j].Records[0].Date
		if !bi.Equal(bj) {
			return bi.After(bj)
		}
		if !patterns[i].LastSeen.Equal(patterns[j].LastSeen) {
			return patterns[i].LastSeen.After(patterns[j].LastSeen)
		}
		return patterns[i].ContractKey < patterns[j].ContractKey
	})

	a.logger.WithFields(map[string]interface{}{
		"symbol":   symbol,
		"window":   windowDays,
		"patterns": len(patterns),
	}).Debug("Pattern detection complete")

	return patterns, warnings, nil
}

// normalizeTag keeps "whale" only for genuinely large prints
func (a *Analyzer) normalizeTag(rec contracts.UnusualActivityRecord) contracts.ActivityTag {
	if rec.Tag == contracts.TagWhale && rec.Volume <= a.config.WhaleVolume {
		return contracts.TagSweep
	}
	if rec.Tag == "" {
		return contracts.TagSweep
	}
	return rec.Tag
}
