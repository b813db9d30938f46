//go:build !windows

package launcher

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/enhanced-word-mcp/internal/config"
	"github.com/shinji-kodama/enhanced-word-mcp/internal/discovery"
	"github.com/shinji-kodama/enhanced-word-mcp/internal/model"
	"github.com/shinji-kodama/enhanced-word-mcp/internal/supervisor"
)

// fakePython answers the import probe with success and, when started as the
// server, records what it saw into $FAKE_OUT before exiting with $FAKE_EXIT.
const fakePython = `#!/bin/sh
if [ "$1" = "-c" ]; then
  echo OK
  exit 0
fi
if [ -n "$FAKE_OUT" ]; then
  pwd -P > "$FAKE_OUT/cwd"
  printf '%s' "$*" > "$FAKE_OUT/args"
  printf '%s' "$FAKE_VAR" > "$FAKE_OUT/var"
  printf '%s' "$PYTHONUNBUFFERED" > "$FAKE_OUT/unbuffered"
fi
exit "${FAKE_EXIT:-0}"
`

// brokenPython fails the import probe the way an interpreter without the
// server's dependencies does.
const brokenPython = `#!/bin/sh
echo "ModuleNotFoundError: No module named 'docx'" >&2
exit 1
`

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func readRecorded(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	require.NoError(t, err)
	return string(data)
}

// testConfig is an empty configuration so tests never read the user's
// config file.
func testConfig() *config.Config {
	return &config.Config{
		ProbeTimeout: 2 * time.Second,
		Env:          map[string]string{},
	}
}

func explicit(paths ...string) []model.Candidate {
	out := make([]model.Candidate, 0, len(paths))
	for _, p := range paths {
		out = append(out, model.Candidate{Path: p, Source: model.SourceExplicit})
	}
	return out
}

// TestLauncher_ExitCodePassthrough checks the child's exit code is the
// launcher's result for N in {0, 1, 2, 127}.
func TestLauncher_ExitCodePassthrough(t *testing.T) {
	bin := t.TempDir()
	python := writeScript(t, bin, "python3", fakePython)

	for _, code := range []int{0, 1, 2, 127} {
		t.Run(strconv.Itoa(code), func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			l := New(Options{
				Env:        map[string]string{"FAKE_EXIT": strconv.Itoa(code)},
				Stdin:      strings.NewReader(""),
				Stdout:     &stdout,
				Stderr:     &stderr,
				PackageDir: t.TempDir(),
				Candidates: explicit(python),
				Config:     testConfig(),
			})

			err := l.Run(context.Background())
			if code == 0 {
				require.NoError(t, err)
				return
			}

			var cliErr *model.CLIError
			require.True(t, errors.As(err, &cliErr))
			assert.Equal(t, model.ExitCode(code), cliErr.Code)
			assert.True(t, cliErr.Silent)
		})
	}
}

// TestStartServer_WorkingDirectoryIsPackageDir runs the launcher from an
// unrelated directory and checks the server still starts in the package
// root.
func TestStartServer_WorkingDirectoryIsPackageDir(t *testing.T) {
	python := writeScript(t, t.TempDir(), "python3", fakePython)
	pkgDir := t.TempDir()
	out := t.TempDir()
	t.Chdir(t.TempDir())

	p, err := StartServer(context.Background(), Options{
		Stdio:      StdioIgnore,
		Env:        map[string]string{"FAKE_OUT": out},
		PackageDir: pkgDir,
		Candidates: explicit(python),
		Config:     testConfig(),
	})
	require.NoError(t, err)
	require.Equal(t, 0, p.Wait().ExitCode())

	want, err := filepath.EvalSymlinks(pkgDir)
	require.NoError(t, err)
	assert.Equal(t, want, strings.TrimSpace(readRecorded(t, out, "cwd")))
	assert.Equal(t, "-m "+config.ServerModule, readRecorded(t, out, "args"))
}

// TestStartServer_EnvOverridesWin checks that overrides reach the child and
// beat both the process environment and the config-file env.
func TestStartServer_EnvOverridesWin(t *testing.T) {
	python := writeScript(t, t.TempDir(), "python3", fakePython)
	out := t.TempDir()
	t.Setenv("FAKE_VAR", "from-process")

	cfg := testConfig()
	cfg.Env["FAKE_VAR"] = "from-config"

	p, err := StartServer(context.Background(), Options{
		Stdio:      StdioIgnore,
		Env:        map[string]string{"FAKE_OUT": out, "FAKE_VAR": "from-options"},
		PackageDir: t.TempDir(),
		Candidates: explicit(python),
		Config:     cfg,
	})
	require.NoError(t, err)
	require.Equal(t, 0, p.Wait().ExitCode())

	assert.Equal(t, "from-options", readRecorded(t, out, "var"))
}

func TestStartServer_ConfigEnvBeatsProcessEnv(t *testing.T) {
	python := writeScript(t, t.TempDir(), "python3", fakePython)
	out := t.TempDir()
	t.Setenv("FAKE_VAR", "from-process")

	cfg := testConfig()
	cfg.Env["FAKE_VAR"] = "from-config"

	p, err := StartServer(context.Background(), Options{
		Stdio:      StdioIgnore,
		Env:        map[string]string{"FAKE_OUT": out},
		PackageDir: t.TempDir(),
		Candidates: explicit(python),
		Config:     cfg,
	})
	require.NoError(t, err)
	require.Equal(t, 0, p.Wait().ExitCode())

	assert.Equal(t, "from-config", readRecorded(t, out, "var"))
}

func TestStartServer_PythonUnbuffered(t *testing.T) {
	python := writeScript(t, t.TempDir(), "python3", fakePython)

	t.Run("defaults to 1", func(t *testing.T) {
		out := t.TempDir()
		t.Setenv("PYTHONUNBUFFERED", "")
		require.NoError(t, os.Unsetenv("PYTHONUNBUFFERED"))
		p, err := StartServer(context.Background(), Options{
			Stdio:      StdioIgnore,
			Env:        map[string]string{"FAKE_OUT": out},
			PackageDir: t.TempDir(),
			Candidates: explicit(python),
			Config:     testConfig(),
		})
		require.NoError(t, err)
		p.Wait()
		assert.Equal(t, "1", readRecorded(t, out, "unbuffered"))
	})

	t.Run("explicit value kept", func(t *testing.T) {
		out := t.TempDir()
		p, err := StartServer(context.Background(), Options{
			Stdio:      StdioIgnore,
			Env:        map[string]string{"FAKE_OUT": out, "PYTHONUNBUFFERED": "0"},
			PackageDir: t.TempDir(),
			Candidates: explicit(python),
			Config:     testConfig(),
		})
		require.NoError(t, err)
		p.Wait()
		assert.Equal(t, "0", readRecorded(t, out, "unbuffered"))
	})
}

// TestStartServer_NoCompatibleRuntime checks the error carries every
// attempt and the remediation hint.
func TestStartServer_NoCompatibleRuntime(t *testing.T) {
	bin := t.TempDir()
	broken := writeScript(t, bin, "python3", brokenPython)

	p, err := StartServer(context.Background(), Options{
		Stdio:      StdioIgnore,
		PackageDir: t.TempDir(),
		Candidates: explicit(broken, filepath.Join(bin, "missing-python")),
		Config:     testConfig(),
	})
	require.Error(t, err)
	assert.Nil(t, p)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitNoCompatibleRuntime, cliErr.Code)
	assert.Equal(t, discovery.RemediationHint, cliErr.Hint)
	assert.True(t, errors.Is(err, discovery.ErrNoCompatibleRuntime))

	var nc *discovery.NoCompatibleRuntimeError
	require.True(t, errors.As(err, &nc))
	require.Len(t, nc.Attempts, 2)
	assert.Equal(t, model.ProbeFailed, nc.Attempts[0].Status)
	assert.Contains(t, nc.Attempts[0].Detail, "No module named 'docx'")
	assert.Equal(t, model.ProbeNotFound, nc.Attempts[1].Status)
}

// TestStartServer_NoSpawnWithoutQualifyingCandidate rejects a runnable
// interpreter at the probe and checks it is never started as the server.
func TestStartServer_NoSpawnWithoutQualifyingCandidate(t *testing.T) {
	python := writeScript(t, t.TempDir(), "python3", fakePython)
	out := t.TempDir()

	_, err := StartServer(context.Background(), Options{
		Stdio:      StdioIgnore,
		Env:        map[string]string{"FAKE_OUT": out},
		PackageDir: t.TempDir(),
		Candidates: explicit(python),
		Prober: discovery.ProberFunc(func(ctx context.Context, interpreter string) error {
			return &discovery.ProbeError{Status: model.ProbeFailed, Detail: "Python 3.8 is too old"}
		}),
		Config: testConfig(),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, discovery.ErrNoCompatibleRuntime))

	_, statErr := os.Stat(filepath.Join(out, "cwd"))
	assert.True(t, os.IsNotExist(statErr))
}

// TestStartServer_BadOverrideFallsThrough sets PYTHON_PATH to a path that
// does not exist and checks the first working fallback is started.
func TestStartServer_BadOverrideFallsThrough(t *testing.T) {
	bin := t.TempDir()
	python := writeScript(t, bin, "python3", fakePython)
	out := t.TempDir()

	cfg := testConfig()
	cfg.PythonPath = "/bad/path"
	candidates := []model.Candidate{
		{Path: cfg.PythonPath, Source: model.SourcePythonPath},
		{Path: filepath.Join(bin, "python"), Source: model.SourceFallback},
		{Path: python, Source: model.SourceFallback},
	}

	p, err := StartServer(context.Background(), Options{
		Stdio:      StdioIgnore,
		Env:        map[string]string{"FAKE_OUT": out},
		PackageDir: t.TempDir(),
		Candidates: candidates,
		Config:     cfg,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, p.Wait().ExitCode())
	assert.Equal(t, "-m "+config.ServerModule, readRecorded(t, out, "args"))
}

// TestLauncher_SpawnFailure makes discovery approve a path that cannot be
// executed: the result is exit 1 with the remediation hint, no retry with
// another candidate, and nothing written to stdout.
func TestLauncher_SpawnFailure(t *testing.T) {
	good := writeScript(t, t.TempDir(), "python3", fakePython)
	out := t.TempDir()
	vanished := filepath.Join(t.TempDir(), "vanished-python")

	var stdout, stderr bytes.Buffer
	l := New(Options{
		Env:        map[string]string{"FAKE_OUT": out},
		Stdin:      strings.NewReader(""),
		Stdout:     &stdout,
		Stderr:     &stderr,
		PackageDir: t.TempDir(),
		Candidates: explicit(vanished, good),
		Prober: discovery.ProberFunc(func(ctx context.Context, interpreter string) error {
			return nil
		}),
		Config: testConfig(),
	})

	err := l.Run(context.Background())
	require.Error(t, err)

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitSpawnFailure, cliErr.Code)
	assert.False(t, cliErr.Silent)
	assert.Equal(t, supervisor.SpawnHint, cliErr.Hint)

	var spawnErr *supervisor.SpawnError
	require.True(t, errors.As(err, &spawnErr))
	assert.Equal(t, vanished, spawnErr.Interpreter)

	assert.Empty(t, stdout.String())
	_, statErr := os.Stat(filepath.Join(out, "args"))
	assert.True(t, os.IsNotExist(statErr), "second candidate must not be started")
}

// TestLauncher_StdoutBelongsToChild checks the only bytes on stdout are the
// child's own.
func TestLauncher_StdoutBelongsToChild(t *testing.T) {
	python := writeScript(t, t.TempDir(), "python3", `#!/bin/sh
if [ "$1" = "-c" ]; then echo OK; exit 0; fi
cat
`)

	var stdout, stderr bytes.Buffer
	l := New(Options{
		Stdin:      strings.NewReader("{\"jsonrpc\":\"2.0\",\"id\":1}\n"),
		Stdout:     &stdout,
		Stderr:     &stderr,
		PackageDir: t.TempDir(),
		Candidates: explicit(python),
		Config:     testConfig(),
	})

	require.NoError(t, l.Run(context.Background()))
	assert.Equal(t, "{\"jsonrpc\":\"2.0\",\"id\":1}\n", stdout.String())
}

func TestLauncher_ContextCancelTerminates(t *testing.T) {
	python := writeScript(t, t.TempDir(), "python3", `#!/bin/sh
if [ "$1" = "-c" ]; then exit 0; fi
exec sleep 30
`)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	l := New(Options{
		Stdin:      strings.NewReader(""),
		Stdout:     &bytes.Buffer{},
		Stderr:     &bytes.Buffer{},
		PackageDir: t.TempDir(),
		Candidates: explicit(python),
		Config:     testConfig(),
	})

	err := l.Run(ctx)
	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr))
	assert.Equal(t, model.ExitCode(143), cliErr.Code)
	assert.True(t, cliErr.Silent)
}

// TestLauncher_ForwardsSignals checks that a SIGHUP received by the
// launcher reaches the running server and that the server's own exit code
// is reported.
func TestLauncher_ForwardsSignals(t *testing.T) {
	out := t.TempDir()
	python := writeScript(t, t.TempDir(), "python3", `#!/bin/sh
if [ "$1" = "-c" ]; then exit 0; fi
trap "exit 42" HUP
touch "$FAKE_OUT/ready"
while :; do sleep 0.05; done
`)

	// Keeps SIGHUP from killing the test binary before the launcher
	// registers its own handler.
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)

	l := New(Options{
		Env:        map[string]string{"FAKE_OUT": out},
		Stdin:      strings.NewReader(""),
		Stdout:     &bytes.Buffer{},
		Stderr:     &bytes.Buffer{},
		PackageDir: t.TempDir(),
		Candidates: explicit(python),
		Config:     testConfig(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result := make(chan error, 1)
	go func() { result <- l.Run(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(filepath.Join(out, "ready"))
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)

	var err error
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
wait:
	for {
		require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGHUP))
		select {
		case err = <-result:
			break wait
		case <-ticker.C:
		}
	}

	var cliErr *model.CLIError
	require.True(t, errors.As(err, &cliErr), "got %v", err)
	assert.Equal(t, model.ExitCode(42), cliErr.Code)
	assert.True(t, cliErr.Silent)
}

func TestStartServer_PipeMode(t *testing.T) {
	python := writeScript(t, t.TempDir(), "python3", `#!/bin/sh
if [ "$1" = "-c" ]; then exit 0; fi
read line
echo "echo:$line"
`)

	p, err := StartServer(context.Background(), Options{
		Stdio:      StdioPipe,
		PackageDir: t.TempDir(),
		Candidates: explicit(python),
		Config:     testConfig(),
	})
	require.NoError(t, err)

	_, err = p.Stdin().Write([]byte("hello\n"))
	require.NoError(t, err)
	require.NoError(t, p.Stdin().Close())

	got, err := io.ReadAll(p.Stdout())
	require.NoError(t, err)
	assert.Equal(t, "echo:hello\n", string(got))
	assert.Equal(t, 0, p.Wait().ExitCode())
}
