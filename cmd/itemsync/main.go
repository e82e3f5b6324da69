// Package main is the itemsync command line client.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/BobSilent/aggregator-cli/internal/cmd"
)

func main() {
	// ITEMSYNC_* settings may come from a local .env
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
