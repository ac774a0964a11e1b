package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/optionsdash/internal/contracts"
)

// snapshotCheckCmd represents the snapshot-check command
var snapshotCheckCmd = &cobra.Command{
	Use:   "snapshot-check [symbols...]",
	Short: "Inspect the snapshot archive",
	Long: `Reports, per symbol, how many sessions are archived, the latest session,
its age, contract and unusual-activity counts, and whether it passes schema validation.

Without arguments the configured COLLECT_SYMBOLS list is checked.

Example:
  go run ./cmd/optionsdash snapshot-check
  go run ./cmd/optionsdash snapshot-check SPY --all`,
	RunE: runSnapshotCheck,
}

var (
	checkAll bool
)

func init() {
	rootCmd.AddCommand(snapshotCheckCmd)

	snapshotCheckCmd.Flags().BoolVar(&checkAll, "all", false, "validate every archived session, not just the latest")
}

func runSnapshotCheck(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	symbols := args
	if len(symbols) == 0 {
		symbols = a.cfg.Collector.Symbols
	}
	now := time.Now()

	fmt.Println()
	widths := []int{8, 9, 12, 7, 10, 8, 24}
	PrintTableHeader([]string{"Symbol", "Sessions", "Latest", "Age", "Contracts", "Unusual", "Status"}, widths)

	problems := 0
	for _, symbol := range symbols {
		dates, err := a.backend.AvailableDates(ctx, symbol)
		if err != nil {
			PrintTableRow([]string{symbol, "-", "-", "-", "-", "-", err.Error()}, widths)
			problems++
			continue
		}
		if len(dates) == 0 {
			PrintTableRow([]string{symbol, "0", "-", "-", "-", "-", "no snapshots"}, widths)
			problems++
			continue
		}

		check := dates[:1]
		if checkAll {
			check = dates
		}

		corrupt := 0
		for _, d := range check {
			if _, err := a.backend.GetSnapshot(ctx, symbol, d); errors.Is(err, contracts.ErrStoreCorrupt) {
				corrupt++
			}
		}

		latest := dates[0]
		contractsCol, unusualCol := "-", "-"
		if snap, err := a.backend.GetSnapshot(ctx, symbol, latest); err == nil {
			contractsCol = fmt.Sprintf("%d", len(snap.Chains))
			if records, err := a.backend.UnusualActivity(ctx, symbol, latest); err == nil {
				unusualCol = fmt.Sprintf("%d", len(records))
			}
		}

		status := "ok"
		if corrupt > 0 {
			status = fmt.Sprintf("%d corrupt of %d checked", corrupt, len(check))
			problems++
		}

		age := contracts.Day(now).Sub(contracts.Day(latest))
		PrintTableRow([]string{
			symbol,
			fmt.Sprintf("%d", len(dates)),
			latest.Format(contracts.DateLayout),
			fmt.Sprintf("%dd", int(age.Hours()/24)),
			contractsCol,
			unusualCol,
			status,
		}, widths)
	}

	fmt.Println()
	if problems > 0 {
		PrintWarning(fmt.Sprintf("%d of %d symbols need attention", problems, len(symbols)))
	}
	return nil
}
