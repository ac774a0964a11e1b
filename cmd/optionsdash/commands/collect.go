package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/optionsdash/internal/collector"
	"github.com/wonny/optionsdash/internal/contracts"
	"github.com/wonny/optionsdash/internal/snapshot"
)

// collectCmd represents the collect command
var collectCmd = &cobra.Command{
	Use:   "collect [symbols...]",
	Short: "Collect end-of-session snapshots now",
	Long: `Fetches the live chain for each symbol and archives it as today's snapshot.
Symbols already archived for the session are skipped.

Without arguments the configured COLLECT_SYMBOLS list is used.

Example:
  go run ./cmd/optionsdash collect
  go run ./cmd/optionsdash collect SPY QQQ
  go run ./cmd/optionsdash collect SPY --dry-run`,
	RunE: runCollect,
}

var (
	collectDryRun bool
)

func init() {
	rootCmd.AddCommand(collectCmd)

	collectCmd.Flags().BoolVar(&collectDryRun, "dry-run", false, "build snapshots against the archive without saving them")
}

// dryRunStore reads history from the archive but keeps writes in memory
type dryRunStore struct {
	snapshot.Store
	saved *snapshot.MemoryStore
}

func (d *dryRunStore) SaveSnapshot(ctx context.Context, snap *contracts.Snapshot) error {
	return d.saved.SaveSnapshot(ctx, snap)
}

func runCollect(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	symbols := args
	if len(symbols) == 0 {
		symbols = a.cfg.Collector.Symbols
	}

	col := a.collector
	if collectDryRun {
		store := &dryRunStore{Store: a.store, saved: snapshot.NewMemoryStore()}
		col = collector.New(a.live, store, collector.ConfigFrom(a.cfg.Collector), a.log)
	}

	PrintJobHeader(JobMetadata{
		JobType:   "Snapshot Collection",
		Tag:       "Collect",
		Timestamp: time.Now().Format("2006-01-02 15:04:05"),
		Symbols:   symbols,
	})

	start := time.Now()
	results, err := col.CollectAll(cmd.Context(), symbols)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}

	fmt.Println()
	widths := []int{8, 12, 10, 8, 40}
	PrintTableHeader([]string{"Symbol", "Date", "Contracts", "Unusual", "Status"}, widths)

	failed := 0
	for _, r := range results {
		date := "-"
		if !r.Date.IsZero() {
			date = r.Date.Format(contracts.DateLayout)
		}
		status := "saved"
		switch {
		case r.Error != nil:
			status = r.Error.Error()
			failed++
		case r.Skipped:
			status = "already archived"
		case collectDryRun:
			status = "dry run"
		}
		PrintTableRow([]string{r.Symbol, date, fmt.Sprintf("%d", r.Contracts), fmt.Sprintf("%d", r.Unusual), status}, widths)
	}

	PrintJobCompletion("Snapshot collection", time.Since(start))

	if failed > 0 {
		return fmt.Errorf("%d of %d symbols failed", failed, len(results))
	}
	return nil
}
