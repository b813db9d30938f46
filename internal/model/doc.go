// Package model defines the domain types and value objects for the
// enhanced-word-mcp-server launcher.
//
// This package contains pure data structures with no external dependencies:
// interpreter candidates, probe results, and the exit code / CLIError pair
// that the CLI layer turns into an OS exit status. Nothing here outlives a
// single launcher invocation.
package model
