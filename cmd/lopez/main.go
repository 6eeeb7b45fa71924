// Package main is the entry point for the lopez CLI.
package main

import (
	"os"

	"github.com/lopezcrawl/lopez/cmd/lopez/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
