// Package main is the entry point for the ksiemgowyd CLI.
package main

import (
	"os"

	"github.com/hakierspejs/ksiemgowy/cmd/ksiemgowyd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
