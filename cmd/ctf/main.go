// Package main implements the c-testforge CLI (ctf).
// It analyzes C sources and synthesizes unit tests for their functions.
package main

import (
	"os"

	"github.com/l3aro/c-testforge/cmd/ctf/commands"
)

var (
	version   = "dev"
	buildTime = ""
)

func main() {
	commands.RootCmd.Version = version
	if buildTime != "" {
		commands.RootCmd.Version = version + " (" + buildTime + ")"
	}
	commands.RootCmd.SetVersionTemplate(`ctf version {{.Version}}
`)

	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
