// Package config assembles the launcher configuration once at startup.
//
// Inputs, highest priority first: command-line flags (applied by the cli
// package), environment variables, the YAML config file, built-in defaults.
// Deeper packages never read the environment themselves; they receive a
// Config or an explicit candidate list, which keeps discovery testable
// without touching the process environment.
//
// Example config.yaml:
//
//	interpreters:
//	  - /opt/venvs/word/bin/python
//	probe_timeout: 10s
//	package_dir: /opt/enhanced-word-mcp
//	log_level: info
//	env:
//	  EW_MAX_DOC_BYTES_PER_OPERATION: "20000000"
package config
