// Package main provides the entry point for the codegate engine.
package main

import (
	"os"

	"github.com/codegate-ai/codegate/cmd/codegate/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
