package jobs

import (
	"context"
	"fmt"
	"strings"

	"github.com/wonny/optionsdash/internal/collector"
	"github.com/wonny/optionsdash/pkg/logger"
)

// SnapshotCollectionJob archives end-of-session chains
// ⭐ SSOT: 스냅샷 수집 스케줄은 이 Job에서만
type SnapshotCollectionJob struct {
	collector *collector.Collector
	symbols   []string
	schedule  string
	logger    *logger.Logger
}

// NewSnapshotCollectionJob creates a new snapshot collection job
func NewSnapshotCollectionJob(col *collector.Collector, symbols []string, schedule string, log *logger.Logger) *SnapshotCollectionJob {
	return &SnapshotCollectionJob{
		collector: col,
		symbols:   symbols,
		schedule:  schedule,
		logger:    log.Module("snapshot_job"),
	}
}

// Name returns the job name
func (j *SnapshotCollectionJob) Name() string {
	return "snapshot_collection"
}

// Schedule returns the cron schedule (after the US close by default)
func (j *SnapshotCollectionJob) Schedule() string {
	return j.schedule
}

// Run collects every configured symbol. Already-archived sessions are skipped,
// so a retry only redoes the symbols that failed.
func (j *SnapshotCollectionJob) Run(ctx context.Context) error {
	j.logger.WithField("symbols", len(j.symbols)).Info("Starting scheduled snapshot collection")

	results, err := j.collector.CollectAll(ctx, j.symbols)
	if err != nil {
		return fmt.Errorf("collect snapshots: %w", err)
	}

	var failed []string
	for _, r := range results {
		if r.Error != nil {
			failed = append(failed, r.Symbol)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("snapshot collection failed for %s", strings.Join(failed, ", "))
	}

	j.logger.Info("Scheduled snapshot collection completed successfully")
	return nil
}
