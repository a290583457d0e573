// Package main is the entry point for the postpilot CLI.
// The CLI is the operator tool for interacting with the postpilot API.
package main

import (
	"os"

	"postpilot/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
