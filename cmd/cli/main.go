// Package main is the entry point for the reviewplane CLI.
// The CLI is the developer terminal tool for interacting with the reviewplane API.
package main

import (
	"os"

	"reviewplane/cmd/cli/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
