// Package main provides the entry point for the filesense CLI.
package main

import (
	"os"

	"github.com/filesense/filesense/cmd/filesense/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
