package supervisor

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"
)

// SpawnHint is the remediation text shown when the server cannot be started.
const SpawnHint = "Make sure Python 3.10+ is installed and requirements are met."

// StdioMode selects how the child's standard streams are wired.
type StdioMode string

const (
	// StdioInherit hands the launcher's own streams (or the writers set on
	// Spec) to the child. This is the serve-mode default.
	StdioInherit StdioMode = "inherit"

	// StdioPipe creates pipes; the caller reads and writes them through
	// Process.Stdin/Stdout/Stderr.
	StdioPipe StdioMode = "pipe"

	// StdioIgnore connects every stream to the null device.
	StdioIgnore StdioMode = "ignore"
)

// IsValid checks whether the mode is one of the predefined values.
func (m StdioMode) IsValid() bool {
	switch m {
	case StdioInherit, StdioPipe, StdioIgnore:
		return true
	default:
		return false
	}
}

// DefaultForwardSignals are relayed from the launcher to the child so the
// server is not orphaned when the launcher is asked to stop.
var DefaultForwardSignals = []os.Signal{os.Interrupt, syscall.SIGTERM, syscall.SIGHUP}

// Spec describes the child process to start.
type Spec struct {
	// Interpreter is the executable selected by discovery.
	Interpreter string

	// Args follow the interpreter, e.g. ModuleArgs("word_document_server.main").
	Args []string

	// Dir is the child's working directory.
	Dir string

	// BaseEnv is the environment the overrides are applied to.
	// Nil means os.Environ().
	BaseEnv []string

	// Env overrides win over BaseEnv on key collision.
	Env map[string]string

	// Stdio selects the stream wiring. Empty means StdioInherit.
	Stdio StdioMode

	// Stdin, Stdout and Stderr replace the launcher's own streams in
	// StdioInherit mode. In StdioPipe mode a non-nil Stderr is used instead
	// of a stderr pipe.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// ModuleArgs returns the arguments for `python -m module extra...`.
func ModuleArgs(module string, extra ...string) []string {
	return append([]string{"-m", module}, extra...)
}

// SpawnError reports that the child could not be started at all.
type SpawnError struct {
	Interpreter string
	Err         error
}

// Error satisfies the error interface.
func (e *SpawnError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Interpreter, e.Err)
}

// Unwrap returns the underlying exec error.
func (e *SpawnError) Unwrap() error {
	return e.Err
}

// Hint returns the remediation text.
func (e *SpawnError) Hint() string {
	return SpawnHint
}

// Process is a handle on a running child. It is reaped exactly once by an
// internal goroutine; Wait and Done observe that result.
type Process struct {
	cmd     *exec.Cmd
	started time.Time

	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr io.ReadCloser

	done    chan struct{}
	outcome Outcome
}

// Spawn starts the child described by spec and returns without waiting
// for it. A start failure is returned as *SpawnError.
func Spawn(spec Spec) (*Process, error) {
	mode := spec.Stdio
	if mode == "" {
		mode = StdioInherit
	}
	if !mode.IsValid() {
		return nil, fmt.Errorf("unknown stdio mode %q (valid: inherit, pipe, ignore)", mode)
	}

	base := spec.BaseEnv
	if base == nil {
		base = os.Environ()
	}

	// #nosec G204 — the interpreter was certified by discovery.
	cmd := exec.Command(spec.Interpreter, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = MergeEnv(base, spec.Env)

	p := &Process{
		cmd:  cmd,
		done: make(chan struct{}),
	}

	// childEnds are closed in the parent once the child holds its own copies.
	var childEnds []*os.File
	closeAll := func(files []*os.File) {
		for _, f := range files {
			_ = f.Close()
		}
	}

	switch mode {
	case StdioInherit:
		cmd.Stdin = firstReader(spec.Stdin, os.Stdin)
		cmd.Stdout = firstWriter(spec.Stdout, os.Stdout)
		cmd.Stderr = firstWriter(spec.Stderr, os.Stderr)

	case StdioIgnore:
		// Nil streams are connected to the null device by os/exec.

	case StdioPipe:
		// os.Pipe rather than cmd.StdoutPipe: the reaper goroutine calls
		// Wait right away, and Wait closes pipes created by exec.Cmd.
		inR, inW, err := os.Pipe()
		if err != nil {
			return nil, &SpawnError{Interpreter: spec.Interpreter, Err: err}
		}
		outR, outW, err := os.Pipe()
		if err != nil {
			closeAll([]*os.File{inR, inW})
			return nil, &SpawnError{Interpreter: spec.Interpreter, Err: err}
		}
		cmd.Stdin, cmd.Stdout = inR, outW
		p.stdin, p.stdout = inW, outR
		childEnds = append(childEnds, inR, outW)

		if spec.Stderr != nil {
			cmd.Stderr = spec.Stderr
		} else {
			errR, errW, err := os.Pipe()
			if err != nil {
				closeAll([]*os.File{inR, inW, outR, outW})
				return nil, &SpawnError{Interpreter: spec.Interpreter, Err: err}
			}
			cmd.Stderr = errW
			p.stderr = errR
			childEnds = append(childEnds, errW)
		}
	}

	if err := cmd.Start(); err != nil {
		closeAll(childEnds)
		p.closeParentEnds()
		return nil, &SpawnError{Interpreter: spec.Interpreter, Err: err}
	}
	closeAll(childEnds)

	p.started = time.Now()
	go p.reap()
	return p, nil
}

// reap waits for the child and publishes its outcome.
func (p *Process) reap() {
	err := p.cmd.Wait()
	p.outcome = outcomeFromWait(p.cmd, err)
	close(p.done)
}

func (p *Process) closeParentEnds() {
	if p.stdin != nil {
		_ = p.stdin.Close()
	}
	if p.stdout != nil {
		_ = p.stdout.Close()
	}
	if p.stderr != nil {
		_ = p.stderr.Close()
	}
}

// PID returns the child's process id.
func (p *Process) PID() int {
	return p.cmd.Process.Pid
}

// CommandLine returns the interpreter and arguments the child was started
// with, space separated.
func (p *Process) CommandLine() string {
	return strings.Join(p.cmd.Args, " ")
}

// Dir returns the child's working directory; empty means the launcher's.
func (p *Process) Dir() string {
	return p.cmd.Dir
}

// StartedAt returns when the child was started.
func (p *Process) StartedAt() time.Time {
	return p.started
}

// Stdin is the write end of the child's stdin in StdioPipe mode, else nil.
func (p *Process) Stdin() io.WriteCloser {
	return p.stdin
}

// Stdout is the read end of the child's stdout in StdioPipe mode, else nil.
func (p *Process) Stdout() io.ReadCloser {
	return p.stdout
}

// Stderr is the read end of the child's stderr in StdioPipe mode when no
// Stderr writer was given, else nil.
func (p *Process) Stderr() io.ReadCloser {
	return p.stderr
}

// Done is closed once the child has been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the child has exited and returns its outcome. It may be
// called any number of times from any goroutine.
func (p *Process) Wait() Outcome {
	<-p.done
	return p.outcome
}

// Signal sends sig to the child. After the child has exited it returns
// os.ErrProcessDone.
func (p *Process) Signal(sig os.Signal) error {
	return p.cmd.Process.Signal(sig)
}

// Kill forcibly stops the child.
func (p *Process) Kill() error {
	return p.cmd.Process.Kill()
}

// Terminate asks the child to stop with SIGTERM and kills it if it is still
// running after grace. Where SIGTERM is unsupported (Windows) it kills
// immediately. It returns once the child has been reaped.
func (p *Process) Terminate(grace time.Duration) Outcome {
	select {
	case <-p.done:
		return p.outcome
	default:
	}

	if err := p.Signal(syscall.SIGTERM); err != nil {
		_ = p.Kill()
		return p.Wait()
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-p.done:
	case <-timer.C:
		_ = p.Kill()
	}
	return p.Wait()
}

// ForwardSignals relays the given signals (DefaultForwardSignals when none
// are given) from the launcher to the child until the returned stop
// function is called or the child exits.
func (p *Process) ForwardSignals(sigs ...os.Signal) (stop func()) {
	if len(sigs) == 0 {
		sigs = DefaultForwardSignals
	}

	ch := make(chan os.Signal, len(sigs))
	signal.Notify(ch, sigs...)

	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case sig := <-ch:
				_ = p.Signal(sig)
			case <-p.done:
				return
			case <-quit:
				return
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(quit)
			wg.Wait()
		})
	}
}

func firstReader(r io.Reader, fallback io.Reader) io.Reader {
	if r != nil {
		return r
	}
	return fallback
}

func firstWriter(w io.Writer, fallback io.Writer) io.Writer {
	if w != nil {
		return w
	}
	return fallback
}
