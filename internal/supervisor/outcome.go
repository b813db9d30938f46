package supervisor

import (
	"errors"
	"fmt"
	"os/exec"
	"syscall"

	"github.com/shinji-kodama/enhanced-word-mcp/internal/model"
)

// OutcomeKind distinguishes how a supervised child ended.
type OutcomeKind int

const (
	// OutcomeExited means the child ran and exited with a status code.
	OutcomeExited OutcomeKind = iota
	// OutcomeSignaled means the child was killed by a signal.
	OutcomeSignaled
	// OutcomeFailedToStart means the child never ran.
	OutcomeFailedToStart
)

// String returns the string representation of an OutcomeKind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeExited:
		return "exited"
	case OutcomeSignaled:
		return "signaled"
	case OutcomeFailedToStart:
		return "failed-to-start"
	default:
		return "unknown"
	}
}

// Outcome is the terminal result of a child process. Exactly one of Code,
// Signal or Err is meaningful, selected by Kind.
type Outcome struct {
	Kind   OutcomeKind
	Code   int
	Signal syscall.Signal

	// Err is the start error for OutcomeFailedToStart. For the other kinds
	// it may carry an I/O copy error reported by Wait.
	Err error
}

// Exited builds an OutcomeExited.
func Exited(code int) Outcome {
	return Outcome{Kind: OutcomeExited, Code: code}
}

// Signaled builds an OutcomeSignaled.
func Signaled(sig syscall.Signal) Outcome {
	return Outcome{Kind: OutcomeSignaled, Signal: sig}
}

// FailedToStart builds an OutcomeFailedToStart.
func FailedToStart(err error) Outcome {
	return Outcome{Kind: OutcomeFailedToStart, Err: err}
}

// ExitCode maps the outcome onto the launcher's own exit status:
// the child's code verbatim, 128+signal for a signal death, 1 when the
// child never started.
func (o Outcome) ExitCode() int {
	switch o.Kind {
	case OutcomeExited:
		return o.Code
	case OutcomeSignaled:
		return int(model.ExitSignalBase) + int(o.Signal)
	default:
		return int(model.ExitSpawnFailure)
	}
}

// String returns a short human-readable description.
func (o Outcome) String() string {
	switch o.Kind {
	case OutcomeExited:
		return fmt.Sprintf("exited with code %d", o.Code)
	case OutcomeSignaled:
		return fmt.Sprintf("killed by signal %s", o.Signal)
	default:
		return fmt.Sprintf("failed to start: %v", o.Err)
	}
}

// outcomeFromWait converts the result of exec.Cmd.Wait into an Outcome.
func outcomeFromWait(cmd *exec.Cmd, err error) Outcome {
	if err == nil {
		return Exited(0)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return Signaled(ws.Signal())
		}
		return Exited(exitErr.ExitCode())
	}

	// The process ran but Wait reported something else (a stdio copy
	// failure). The exit status is still authoritative.
	if cmd.ProcessState != nil {
		o := Exited(cmd.ProcessState.ExitCode())
		o.Err = err
		return o
	}
	return Outcome{Kind: OutcomeExited, Code: int(model.ExitGeneralError), Err: err}
}
