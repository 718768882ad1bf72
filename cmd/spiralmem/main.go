// Package main provides the entry point for the spiralmem CLI.
package main

import (
	"os"

	"github.com/spiralmem/spiralmem/cmd/spiralmem/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
