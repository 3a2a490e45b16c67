// Package main is the entry point for the subsidy CLI.
package main

import (
	"os"

	"subsidy-recon/cmd/cli/cmd"
	"subsidy-recon/internal/logging"
)

func main() {
	err := cmd.Execute()
	logging.Sync()
	if err != nil {
		os.Exit(1)
	}
}
