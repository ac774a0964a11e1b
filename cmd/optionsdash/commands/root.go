package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	env     string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "optionsdash",
	Short: "Options dashboard data router",
	Long: `Options Dashboard CLI

Serves options analysis modules from the best available data source:
live brokerage chain, archived end-of-session snapshots, or demo data.

Usage:
  go run ./cmd/optionsdash [command]

Examples:
  go run ./cmd/optionsdash api
  go run ./cmd/optionsdash route SPY --type iv_surface
  go run ./cmd/optionsdash collect SPY QQQ
  go run ./cmd/optionsdash scheduler start
  go run ./cmd/optionsdash snapshot-check`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&env, "env", "", "environment override (development|staging|production)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}
