package launcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shinji-kodama/enhanced-word-mcp/internal/config"
	"github.com/shinji-kodama/enhanced-word-mcp/internal/discovery"
	"github.com/shinji-kodama/enhanced-word-mcp/internal/logging"
	"github.com/shinji-kodama/enhanced-word-mcp/internal/model"
	"github.com/shinji-kodama/enhanced-word-mcp/internal/supervisor"
)

// Process is the handle on a started server.
type Process = supervisor.Process

// StdioMode selects how the server's standard streams are wired.
type StdioMode = supervisor.StdioMode

// Stdio modes accepted by Options.Stdio.
const (
	StdioInherit = supervisor.StdioInherit
	StdioPipe    = supervisor.StdioPipe
	StdioIgnore  = supervisor.StdioIgnore
)

// envUnbuffered keeps Python from block-buffering the protocol stream when
// stdout is a pipe.
const envUnbuffered = "PYTHONUNBUFFERED"

// Options configures StartServer. The zero value starts the server with
// inherited stdio using the configuration from the environment and the
// default config file.
type Options struct {
	// Stdio is inherit (default), pipe or ignore.
	Stdio StdioMode

	// Env is merged on top of the process environment and the config-file
	// env. These values win on collision.
	Env map[string]string

	// Stdin, Stdout and Stderr replace the process streams in inherit mode.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// PackageDir overrides the server's working directory.
	PackageDir string

	// ProbeTimeout overrides the per-candidate probe timeout.
	ProbeTimeout time.Duration

	// Candidates replaces the configured candidate list.
	Candidates []model.Candidate

	// Prober replaces the exec-based interpreter probe.
	Prober discovery.Prober

	// Config is used instead of loading one. Nil means config.Load("").
	Config *config.Config

	// Logger receives diagnostics. Nil means discard.
	Logger *logging.AppLogger
}

// StartServer discovers an interpreter and starts the server with it.
//
// Errors are *model.CLIError values with a remediation hint. The typed
// cause stays reachable through errors.As: *discovery.NoCompatibleRuntimeError
// when no candidate qualified, *supervisor.SpawnError when the selected
// interpreter could not be started. A spawn failure is not retried with the
// next candidate.
func StartServer(ctx context.Context, opts Options) (*Process, error) {
	spec, logger, err := prepare(ctx, opts)
	if err != nil {
		return nil, err
	}

	p, err := supervisor.Spawn(spec)
	if err != nil {
		return nil, spawnFailure(err)
	}

	logger.Info("Server started", "pid", p.PID(), "interpreter", spec.Interpreter)
	return p, nil
}

// prepare selects the interpreter and builds the child's spec: module
// arguments, working directory and merged environment.
func prepare(ctx context.Context, opts Options) (supervisor.Spec, *logging.AppLogger, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load("")
		if err != nil {
			return supervisor.Spec{}, logger, err
		}
		cfg = loaded
	}

	interpreter, err := selectInterpreter(ctx, cfg, opts, logger)
	if err != nil {
		return supervisor.Spec{}, logger, err
	}

	dir := opts.PackageDir
	if dir == "" {
		dir, err = cfg.ResolvePackageDir()
		if err != nil {
			return supervisor.Spec{}, logger, model.WrapCLIError(model.ExitSpawnFailure,
				"failed to locate the server package", err)
		}
	}

	env := cfg.MergedEnv(opts.Env)
	if _, ok := env[envUnbuffered]; !ok {
		if _, inherited := supervisor.LookupEnv(os.Environ(), envUnbuffered); !inherited {
			env[envUnbuffered] = "1"
		}
	}

	logger.Debug("Starting server",
		"interpreter", interpreter.String(),
		"module", config.ServerModule,
		"dir", dir,
		"stdio", opts.Stdio,
	)

	return supervisor.Spec{
		Interpreter: interpreter.Path,
		Args:        supervisor.ModuleArgs(config.ServerModule),
		Dir:         dir,
		Env:         env,
		Stdio:       opts.Stdio,
		Stdin:       opts.Stdin,
		Stdout:      opts.Stdout,
		Stderr:      opts.Stderr,
	}, logger, nil
}

// spawnFailure reports a selected interpreter that could not be started.
func spawnFailure(err error) *model.CLIError {
	return model.WrapCLIError(model.ExitSpawnFailure,
		"failed to start document server", err).WithHint(supervisor.SpawnHint)
}

// selectInterpreter runs discovery over the effective candidate list.
func selectInterpreter(ctx context.Context, cfg *config.Config, opts Options, logger *logging.AppLogger) (model.Candidate, error) {
	candidates := opts.Candidates
	if candidates == nil {
		candidates = cfg.Candidates()
	}

	timeout := opts.ProbeTimeout
	if timeout <= 0 {
		timeout = cfg.ProbeTimeout
	}

	discoverOpts := []discovery.Option{
		discovery.WithTimeout(timeout),
		discovery.WithLogger(logger),
	}
	if opts.Prober != nil {
		discoverOpts = append(discoverOpts, discovery.WithProber(opts.Prober))
	}

	start := time.Now()
	chosen, err := discovery.New(discoverOpts...).Discover(ctx, candidates)
	logger.LogPerformance("discovery", start)
	if err != nil {
		var nc *discovery.NoCompatibleRuntimeError
		if errors.As(err, &nc) {
			return model.Candidate{}, model.WrapCLIError(model.ExitNoCompatibleRuntime,
				"no compatible Python interpreter found", nc).WithHint(nc.Hint())
		}
		return model.Candidate{}, model.WrapCLIError(model.ExitGeneralError,
			"interpreter discovery interrupted", err)
	}

	logger.Debug("Selected interpreter", "path", chosen.Path, "source", chosen.Source)
	return chosen, nil
}

// Launcher runs the server in the foreground.
type Launcher struct {
	opts Options
}

// New creates a Launcher. Stdio is always inherited in the foreground.
func New(opts Options) *Launcher {
	opts.Stdio = StdioInherit
	return &Launcher{opts: opts}
}

// Run starts the server and blocks until it exits.
//
// SIGINT, SIGTERM and SIGHUP received meanwhile are forwarded to the child,
// and Run keeps waiting for its real exit. Cancelling ctx terminates the
// child. A zero exit returns nil; any other outcome returns a silent
// *model.CLIError whose Code is the child's exit code (128+signal for a
// signal death). A child that fails to start is reported like StartServer
// reports it.
func (l *Launcher) Run(ctx context.Context) error {
	spec, logger, err := prepare(ctx, l.opts)
	if err != nil {
		return err
	}

	outcome := supervisor.Run(ctx, spec)
	logger.Debug("Server finished", "outcome", outcome.String())

	if outcome.Kind == supervisor.OutcomeFailedToStart {
		return spawnFailure(outcome.Err)
	}
	if code := outcome.ExitCode(); code != int(model.ExitSuccess) {
		exit := model.PassthroughExit(code)
		exit.Message = fmt.Sprintf("server %s", outcome)
		return exit
	}
	return nil
}
