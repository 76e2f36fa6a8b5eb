// Package main provides the entry point for the inspectbridge CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/inspectbridge/inspectbridge/cmd/inspectbridge/commands"
)

func main() {
	// Local .env files hold per-project overrides (INSPECTBRIDGE_*,
	// VIRTUAL_ENV); missing files are fine.
	_ = godotenv.Load()

	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
