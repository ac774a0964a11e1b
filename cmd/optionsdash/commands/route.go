package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wonny/optionsdash/internal/adapter"
)

// routeCmd represents the route command
var routeCmd = &cobra.Command{
	Use:   "route [symbol]",
	Short: "Route one analysis request and print the result",
	Long: `Runs one analysis request through the data router without the HTTP layer.

Example:
  go run ./cmd/optionsdash route SPY
  go run ./cmd/optionsdash route QQQ --type flow_scanner --mode historical
  go run ./cmd/optionsdash route SPY --type iv_surface --date 2024-01-12 --json`,
	Args: cobra.ExactArgs(1),
	RunE: runRoute,
}

var (
	routeType string
	routeMode string
	routeDate string
	routeJSON bool
)

func init() {
	rootCmd.AddCommand(routeCmd)

	routeCmd.Flags().StringVar(&routeType, "type", "options_chain", "analysis type")
	routeCmd.Flags().StringVar(&routeMode, "mode", "auto", "auto|live|historical")
	routeCmd.Flags().StringVar(&routeDate, "date", "", "historical session date (YYYY-MM-DD)")
	routeCmd.Flags().BoolVar(&routeJSON, "json", false, "print the full result as JSON")
}

func runRoute(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := a.adapter.GetAnalysis(cmd.Context(), args[0], routeType, routeMode, routeDate)
	if err != nil {
		return fmt.Errorf("route %s: %w", args[0], err)
	}

	if routeJSON {
		out, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		fmt.Println(string(out))
		return nil
	}

	printRouteSummary(result)
	return nil
}

func printRouteSummary(r *adapter.AnalysisResult) {
	PrintDoubleSeparator()
	fmt.Printf("  %s  %s\n", r.Symbol, r.AnalysisType)
	PrintSeparator()
	PrintKeyValue("Source", r.Source.String(), 10)
	PrintKeyValue("Quality", r.Quality.String(), 10)
	PrintKeyValue("As of", r.Provenance.AsOfDate.Format("2006-01-02"), 10)
	PrintKeyValue("Request", r.Provenance.RequestID, 10)
	PrintKeyValue("Message", r.DataInfo.UserMessage, 10)
	if r.Label != "" {
		PrintKeyValue("Label", r.Label, 10)
	}
	if r.Summary != nil {
		PrintKeyValue("Contracts", fmt.Sprintf("%d", r.Summary.Contracts), 10)
		PrintKeyValue("P/C ratio", fmt.Sprintf("%.3f", r.Summary.PutCallRatio), 10)
	}
	if len(r.Warnings) > 0 {
		PrintWarning(strings.Join(r.Warnings, "; "))
	}
	PrintDoubleSeparator()
}
