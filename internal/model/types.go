// Package model defines the domain types for the enhanced-word-mcp-server launcher.
//
// The launcher keeps no persistent state: every value in this package lives
// for a single invocation. Candidates are assembled once from the environment
// and config file, probed in order, and at most one of them is selected.
package model

import (
	"fmt"
	"strings"
	"time"
)

// CandidateSource records where an interpreter candidate came from.
// It is reported by the discover command so users can see which override
// (or fallback) was responsible for a selection.
type CandidateSource string

const (
	// SourcePythonPath is the PYTHON_PATH environment variable (highest priority).
	SourcePythonPath CandidateSource = "PYTHON_PATH"

	// SourceProductOverride is the ENHANCED_WORD_PYTHON environment variable.
	SourceProductOverride CandidateSource = "ENHANCED_WORD_PYTHON"

	// SourceConfigFile is an entry from the interpreters list in config.yaml.
	SourceConfigFile CandidateSource = "config"

	// SourceFallback is one of the fixed well-known interpreter names/paths.
	SourceFallback CandidateSource = "fallback"

	// SourceExplicit is a candidate injected directly by an embedding caller.
	SourceExplicit CandidateSource = "explicit"
)

// String returns the string representation of CandidateSource.
func (s CandidateSource) String() string {
	return string(s)
}

// Candidate is a single interpreter path (or bare command name resolved via
// PATH) that discovery may probe.
type Candidate struct {
	// Path is passed unchanged to exec, so it may be "python3" or "/usr/bin/python3".
	Path string `json:"path"`

	// Source is the configuration layer that contributed this candidate.
	Source CandidateSource `json:"source"`
}

// String returns "path (source)" for log and text output.
func (c Candidate) String() string {
	return fmt.Sprintf("%s (%s)", c.Path, c.Source)
}

// DedupeCandidates drops empty paths and later duplicates while preserving
// the order of first occurrence. Order is significant: the first candidate
// that passes its probe wins.
func DedupeCandidates(candidates []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(candidates))
	result := make([]Candidate, 0, len(candidates))

	for _, c := range candidates {
		path := strings.TrimSpace(c.Path)
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		c.Path = path
		result = append(result, c)
	}
	return result
}

// ProbeStatus is the outcome of probing one candidate.
type ProbeStatus string

const (
	// ProbeOK means the candidate imported every required module and exited 0.
	ProbeOK ProbeStatus = "ok"

	// ProbeFailed means the candidate ran but exited non-zero (missing modules,
	// wrong Python version, broken install).
	ProbeFailed ProbeStatus = "failed"

	// ProbeTimeout means the candidate did not finish within the probe timeout.
	ProbeTimeout ProbeStatus = "timeout"

	// ProbeNotFound means the candidate could not be executed at all.
	ProbeNotFound ProbeStatus = "not-found"

	// ProbeSkipped means the candidate was never probed because an earlier
	// one already qualified.
	ProbeSkipped ProbeStatus = "skipped"
)

// String returns the string representation of ProbeStatus.
func (s ProbeStatus) String() string {
	return string(s)
}

// IsValid checks whether the ProbeStatus value is one of the predefined values.
func (s ProbeStatus) IsValid() bool {
	switch s {
	case ProbeOK, ProbeFailed, ProbeTimeout, ProbeNotFound, ProbeSkipped:
		return true
	default:
		return false
	}
}

// ProbeResult records a single probe attempt.
type ProbeResult struct {
	Candidate Candidate     `json:"candidate"`
	Status    ProbeStatus   `json:"status"`
	Duration  time.Duration `json:"duration"`

	// Detail is the trimmed stderr of a failed probe, or the spawn error text.
	// It is empty for successful and skipped probes.
	Detail string `json:"detail,omitempty"`
}

// OK reports whether the probe qualified the candidate.
func (r ProbeResult) OK() bool {
	return r.Status == ProbeOK
}

// ExitCode defines the launcher's own process exit codes.
//
// Codes 0-255 may also be the child's exit status passed through verbatim,
// so the launcher-specific codes stay at 1 (the convention the original
// launcher scripts used for every startup failure).
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitNoCompatibleRuntime indicates no candidate interpreter passed its probe.
	ExitNoCompatibleRuntime ExitCode = 1

	// ExitSpawnFailure indicates the selected interpreter could not be started.
	ExitSpawnFailure ExitCode = 1

	// ExitHealthCheckFailed indicates the server started but the MCP handshake failed.
	ExitHealthCheckFailed ExitCode = 2

	// ExitSignalBase is added to a signal number when the child was killed by
	// a signal, following the shell convention (SIGTERM → 143).
	ExitSignalBase ExitCode = 128
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Hint is remediation text printed after the message (what to install,
	// which variable to set). Empty when there is nothing actionable.
	Hint string

	// Silent suppresses printing. It is used when the child process already
	// reported its own failure and the launcher only passes the code through.
	Silent bool

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}

// WithHint attaches remediation text and returns the same error for chaining.
func (e *CLIError) WithHint(hint string) *CLIError {
	e.Hint = hint
	return e
}

// PassthroughExit creates a silent CLIError carrying the child's exit code.
func PassthroughExit(code int) *CLIError {
	return &CLIError{
		Code:    ExitCode(code),
		Message: fmt.Sprintf("server exited with code %d", code),
		Silent:  true,
	}
}
