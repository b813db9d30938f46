// Package main is the entry point for the enhanced-word-mcp-server launcher.
//
// MCP clients run this binary as a stdio server. It delegates everything to
// the internal/cli package; run without arguments it starts the Word
// document server.
//
// Build-time variables (version, commit, date) are injected via ldflags by
// GoReleaser during the release process. During development they default
// to "dev", "none" and "unknown".
package main

import (
	"github.com/shinji-kodama/enhanced-word-mcp/internal/cli"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	cli.Version = version
	cli.Commit = commit
	cli.Date = date

	rootCmd := cli.NewRootCommand()
	cli.Execute(rootCmd)
}
