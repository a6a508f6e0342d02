// Package main is the entry point for the logoann server CLI.
//
// Usage:
//
//	logoann [flags] <command> [args]
//
// Commands:
//
//	serve    - Run the nearest-neighbor HTTP server
//	export   - Export the embedding store to a compressed archive
//	stored   - List the identifiers in the embedding store
package main

import (
	"fmt"
	"os"

	"github.com/hupe1980/logoann/cmd/logoann/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
