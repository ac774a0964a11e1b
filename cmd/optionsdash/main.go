package main

import (
	"os"

	"github.com/wonny/optionsdash/cmd/optionsdash/commands"
)

// main is the entry point for the options dashboard CLI
// ⭐ 통합 CLI 진입점: go run ./cmd/optionsdash [command]
func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
