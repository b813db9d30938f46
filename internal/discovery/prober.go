package discovery

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/shinji-kodama/enhanced-word-mcp/internal/model"
)

// ProbeScript imports the MCP server framework and the python-docx module.
// Both are required by the document server; checking only one of them lets
// an interpreter through that will crash on startup.
const ProbeScript = "from mcp.server.fastmcp import FastMCP; import docx; print('OK')"

// maxDetailLen caps the stderr excerpt kept in a ProbeError.
const maxDetailLen = 240

// probeWaitDelay bounds how long Wait keeps draining the probe's output
// pipes after the process was killed. A grandchild that inherited the pipes
// would otherwise hold discovery open past the probe timeout.
const probeWaitDelay = 500 * time.Millisecond

// Prober checks whether a single interpreter candidate is usable.
// A nil error means the candidate qualifies.
type Prober interface {
	Probe(ctx context.Context, interpreter string) error
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, interpreter string) error

// Probe calls f(ctx, interpreter).
func (f ProberFunc) Probe(ctx context.Context, interpreter string) error {
	return f(ctx, interpreter)
}

// ProbeError describes why a candidate did not qualify.
type ProbeError struct {
	Status model.ProbeStatus
	Detail string
	Err    error
}

// Error satisfies the error interface.
func (e *ProbeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("probe %s: %s", e.Status, e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("probe %s: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("probe %s", e.Status)
}

// Unwrap returns the underlying exec error.
func (e *ProbeError) Unwrap() error {
	return e.Err
}

// ExecProber runs the candidate with `-c ProbeScript` and treats exit
// status 0 as success.
//
// Stdout and stderr are captured into buffers and never forwarded: the
// probe's output is diagnostic noise and must not leak onto the launcher's
// stdout, which belongs to the MCP stream. Stdin is the null device so an
// interpreter that drops into interactive mode cannot block on it.
type ExecProber struct {
	// Args are passed to the interpreter. Defaults to -c ProbeScript.
	Args []string
}

// NewExecProber creates a prober running the standard import check.
func NewExecProber() *ExecProber {
	return &ExecProber{Args: []string{"-c", ProbeScript}}
}

// Probe runs one candidate. The caller's context carries the timeout.
func (p *ExecProber) Probe(ctx context.Context, interpreter string) error {
	args := p.Args
	if len(args) == 0 {
		args = []string{"-c", ProbeScript}
	}

	// #nosec G204 — the interpreter comes from the user's own environment/config.
	cmd := exec.CommandContext(ctx, interpreter, args...)
	cmd.WaitDelay = probeWaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ProbeError{
			Status: model.ProbeFailed,
			Detail: lastLine(stderr.String()),
			Err:    err,
		}
	}

	// Start failed: missing binary, not executable, bad interpreter line.
	return &ProbeError{
		Status: model.ProbeNotFound,
		Detail: err.Error(),
		Err:    err,
	}
}

// lastLine returns the last non-empty line of s, truncated. For a Python
// import failure that is the "ModuleNotFoundError: ..." line.
func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		if len(line) > maxDetailLen {
			line = line[:maxDetailLen] + "..."
		}
		return line
	}
	return ""
}
