package config_test

import (
	"fmt"

	"github.com/wonny/optionsdash/pkg/config"
)

// Example demonstrates how to use the config package
func Example() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		return
	}

	fmt.Printf("Server running on port: %s\n", cfg.Port)
	fmt.Printf("Snapshot backend: %s (%s)\n", cfg.Snapshot.Backend, cfg.Snapshot.Dir)
	fmt.Printf("Collecting: %v at %q\n", cfg.Collector.Symbols, cfg.Collector.Schedule)
	fmt.Printf("Prefer enriched over fair live: %v\n", cfg.Router.PreferEnrichedOverFair)
}
