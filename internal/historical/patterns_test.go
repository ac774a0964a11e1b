package historical

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/optionsdash/internal/contracts"
)

func activity(daysAgo int, strike float64, score float64, volume int64, tag contracts.ActivityTag) contracts.UnusualActivityRecord {
	return contracts.UnusualActivityRecord{
		Symbol:       "SPY",
		Date:         sessionDate(daysAgo),
		Strike:       strike,
		Expiry:       expiry,
		Type:         contracts.Call,
		Volume:       volume,
		OpenInterest: 1000,
		Score:        score,
		Tag:          tag,
	}
}

func TestDetectPatterns_RequiresTwoDays(t *testing.T) {
	a, _ := newAnalyzer(t,
		snap(3, 1000, activity(3, 450, 4.0, 6000, contracts.TagSweep)),
		snap(2, 1000, activity(2, 460, 4.8, 6000, contracts.TagSweep)),
		snap(1, 1000, activity(1, 450, 3.5, 6000, contracts.TagSweep)),
	)

	patterns, warnings, err := a.DetectPatterns(context.Background(), "SPY", 10)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	require.Len(t, patterns, 1)
	assert.Equal(t, 450.0, patterns[0].Strike)
	assert.Equal(t, 2, patterns[0].Days)
	assert.Equal(t, 4.0, patterns[0].BestScore)
	assert.Equal(t, sessionDate(1), patterns[0].LastSeen)
}

func TestDetectPatterns_ThresholdIsStrict(t *testing.T) {
	a, _ := newAnalyzer(t,
		snap(2, 1000, activity(2, 450, 3.0, 6000, contracts.TagSweep)),
		snap(1, 1000, activity(1, 450, 3.0, 6000, contracts.TagSweep)),
	)

	patterns, _, err := a.DetectPatterns(context.Background(), "SPY", 10)
	require.NoError(t, err)
	assert.Empty(t, patterns)
}

func TestDetectPatterns_Ordering(t *testing.T) {
	a, _ := newAnalyzer(t,
		snap(4, 1000,
			activity(4, 450, 5.0, 6000, contracts.TagBlock),
			activity(4, 470, 4.0, 6000, contracts.TagBuild),
		),
		snap(3, 1000,
			activity(3, 450, 3.5, 6000, contracts.TagBlock),
			activity(3, 470, 5.0, 6000, contracts.TagBuild),
		),
		snap(2, 1000,
			activity(2, 480, 4.2, 6000, contracts.TagSweep),
		),
		snap(1, 1000,
			activity(1, 480, 4.2, 6000, contracts.TagSweep),
		),
	)

	patterns, _, err := a.DetectPatterns(context.Background(), "SPY", 10)
	require.NoError(t, err)
	require.Len(t, patterns, 3)

	// 450 and 470 both peak at 5.0; 470 peaked more recently
	assert.Equal(t, 470.0, patterns[0].Strike)
	assert.Equal(t, 450.0, patterns[1].Strike)
	assert.Equal(t, 480.0, patterns[2].Strike)

	// records within a group: score desc, ties most recent first
	recs := patterns[2].Records
	require.Len(t, recs, 2)
	assert.Equal(t, sessionDate(1), recs[0].Date)
	assert.Equal(t, sessionDate(2), recs[1].Date)
}

func TestDetectPatterns_WhaleNeedsVolume(t *testing.T) {
	a, _ := newAnalyzer(t,
		snap(2, 1000, activity(2, 450, 4.0, 1200, contracts.TagWhale)),
		snap(1, 1000, activity(1, 450, 4.5, 1500, contracts.TagWhale)),
	)

	patterns, _, err := a.DetectPatterns(context.Background(), "SPY", 10)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, contracts.TagSweep, patterns[0].Tag)
	for _, r := range patterns[0].Records {
		assert.Equal(t, contracts.TagSweep, r.Tag)
	}

	// the bound itself is not enough
	a, _ = newAnalyzer(t,
		snap(2, 1000, activity(2, 450, 4.0, 5000, contracts.TagWhale)),
		snap(1, 1000, activity(1, 450, 4.5, 5000, contracts.TagWhale)),
	)
	patterns, _, err = a.DetectPatterns(context.Background(), "SPY", 10)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, contracts.TagSweep, patterns[0].Tag)

	a, _ = newAnalyzer(t,
		snap(2, 1000, activity(2, 450, 4.0, 5001, contracts.TagWhale)),
		snap(1, 1000, activity(1, 450, 4.5, 5001, contracts.TagWhale)),
	)
	patterns, _, err = a.DetectPatterns(context.Background(), "SPY", 10)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, contracts.TagWhale, patterns[0].Tag)
}

func TestDetectPatterns_WindowFilters(t *testing.T) {
	a, _ := newAnalyzer(t,
		snap(20, 1000, activity(20, 450, 4.0, 6000, contracts.TagSweep)),
		snap(1, 1000, activity(1, 450, 4.0, 6000, contracts.TagSweep)),
	)

	patterns, _, err := a.DetectPatterns(context.Background(), "SPY", 10)
	require.NoError(t, err)
	assert.Empty(t, patterns)

	patterns, _, err = a.DetectPatterns(context.Background(), "SPY", 30)
	require.NoError(t, err)
	assert.Len(t, patterns, 1)
}

func TestDetectPatterns_NoData(t *testing.T) {
	a, _ := newAnalyzer(t)

	patterns, warnings, err := a.DetectPatterns(context.Background(), "ZZZ", 10)
	require.NoError(t, err)
	assert.NotNil(t, patterns)
	assert.Empty(t, patterns)
	assert.Empty(t, warnings)
}
