//go:build !windows

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/enhanced-word-mcp/internal/config"
	"github.com/shinji-kodama/enhanced-word-mcp/internal/discovery"
	"github.com/shinji-kodama/enhanced-word-mcp/internal/supervisor"
)

// fakePython passes the import probe and, started as the server, records
// its working directory and exits with $FAKE_EXIT.
const fakePython = `#!/bin/sh
if [ "$1" = "-c" ]; then
  exit 0
fi
if [ -n "$FAKE_OUT" ]; then
  pwd -P > "$FAKE_OUT/cwd"
fi
if [ -n "$FAKE_SAY" ]; then
  echo "$FAKE_SAY"
fi
exit "${FAKE_EXIT:-0}"
`

// brokenPython fails the import probe.
const brokenPython = `#!/bin/sh
echo "ModuleNotFoundError: No module named 'mcp'" >&2
exit 1
`

func writeInterpreter(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func TestServe_ExitCodePassthrough(t *testing.T) {
	isolateEnv(t)
	python := writeInterpreter(t, "python3", fakePython)
	cfg := writeConfigFile(t, python)

	for _, code := range []int{0, 1, 2, 127} {
		t.Run(strconv.Itoa(code), func(t *testing.T) {
			got, stdout, stderr := executeCLI(t,
				"--config", cfg,
				"--package-dir", t.TempDir(),
				"--env", "FAKE_EXIT="+strconv.Itoa(code),
			)
			assert.Equal(t, code, got)
			assert.Empty(t, stdout)
			assert.Empty(t, stderr, "a child exit is passed through silently")
		})
	}
}

func TestServe_StdoutIsTheServers(t *testing.T) {
	isolateEnv(t)
	python := writeInterpreter(t, "python3", fakePython)

	code, stdout, _ := executeCLI(t,
		"--config", writeConfigFile(t, python),
		"--package-dir", t.TempDir(),
		"--env", `FAKE_SAY={"jsonrpc":"2.0"}`,
		"--verbose",
	)
	require.Equal(t, 0, code)
	assert.Equal(t, "{\"jsonrpc\":\"2.0\"}\n", stdout, "debug logging must stay on stderr")
}

func TestServe_WorkingDirectory(t *testing.T) {
	isolateEnv(t)
	python := writeInterpreter(t, "python3", fakePython)
	pkgDir := t.TempDir()
	out := t.TempDir()
	t.Chdir(t.TempDir())

	code, _, stderr := executeCLI(t,
		"--config", writeConfigFile(t, python),
		"--package-dir", pkgDir,
		"--env", "FAKE_OUT="+out,
	)
	require.Equal(t, 0, code, stderr)

	want, err := filepath.EvalSymlinks(pkgDir)
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(out, "cwd"))
	require.NoError(t, err)
	assert.Equal(t, want, strings.TrimSpace(string(got)))
}

// TestServe_PackageDirFromEnv checks ENHANCED_WORD_HOME sets the working
// directory when no flag is given.
func TestServe_PackageDirFromEnv(t *testing.T) {
	isolateEnv(t)
	python := writeInterpreter(t, "python3", fakePython)
	pkgDir := t.TempDir()
	out := t.TempDir()
	t.Setenv(config.EnvHome, pkgDir)

	code, _, stderr := executeCLI(t,
		"--config", writeConfigFile(t, python),
		"--env", "FAKE_OUT="+out,
	)
	require.Equal(t, 0, code, stderr)

	want, err := filepath.EvalSymlinks(pkgDir)
	require.NoError(t, err)
	got, err := os.ReadFile(filepath.Join(out, "cwd"))
	require.NoError(t, err)
	assert.Equal(t, want, strings.TrimSpace(string(got)))
}

func TestServe_NoCompatibleRuntime(t *testing.T) {
	isolateEnv(t)
	broken := writeInterpreter(t, "python3", brokenPython)

	code, stdout, stderr := executeCLI(t, "--config", writeConfigFile(t, broken), "--package-dir", t.TempDir())
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "no compatible Python interpreter found")
	assert.Contains(t, stderr, "pip install -r requirements.txt")
}

func TestServe_NoCompatibleRuntimeJSON(t *testing.T) {
	isolateEnv(t)
	broken := writeInterpreter(t, "python3", brokenPython)

	code, stdout, stderr := executeCLI(t, "--json", "--config", writeConfigFile(t, broken), "--package-dir", t.TempDir())
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)

	var got map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(stderr), &got), stderr)
	assert.Equal(t, discovery.RemediationHint, got["error"]["hint"])
}

// TestServe_SpawnFailure makes the start itself fail after a successful
// discovery: the package directory does not exist.
func TestServe_SpawnFailure(t *testing.T) {
	isolateEnv(t)
	python := writeInterpreter(t, "python3", fakePython)

	code, stdout, stderr := executeCLI(t,
		"--config", writeConfigFile(t, python),
		"--package-dir", filepath.Join(t.TempDir(), "gone"),
	)
	assert.Equal(t, 1, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "failed to start document server")
	assert.Contains(t, stderr, supervisor.SpawnHint)
}

// TestServe_BadPythonPathFallsThrough sets PYTHON_PATH to a missing path;
// the first working fallback must be started instead.
func TestServe_BadPythonPathFallsThrough(t *testing.T) {
	isolateEnv(t)
	python := writeInterpreter(t, "python3", fakePython)
	out := t.TempDir()

	t.Setenv(config.EnvPythonPath, "/bad/path")
	config.FallbackInterpreters = []string{filepath.Join(t.TempDir(), "python"), python}

	code, _, stderr := executeCLI(t,
		"--config", writeConfigFile(t),
		"--package-dir", t.TempDir(),
		"--env", "FAKE_OUT="+out,
	)
	require.Equal(t, 0, code, stderr)
	_, err := os.Stat(filepath.Join(out, "cwd"))
	assert.NoError(t, err, "the fallback interpreter should have started the server")
}

func TestServe_InvalidEnvFlag(t *testing.T) {
	isolateEnv(t)
	python := writeInterpreter(t, "python3", fakePython)

	code, _, stderr := executeCLI(t, "--config", writeConfigFile(t, python), "--env", "NOEQUALS")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "expected KEY=VALUE")
}

func TestDiscover_StopsAtFirstSuccess(t *testing.T) {
	isolateEnv(t)
	missing := filepath.Join(t.TempDir(), "python3.12")
	broken := writeInterpreter(t, "python3.11", brokenPython)
	good := writeInterpreter(t, "python3", fakePython)
	later := writeInterpreter(t, "python", fakePython)

	code, stdout, stderr := executeCLI(t, "discover", "--config", writeConfigFile(t, missing, broken, good, later))
	require.Equal(t, 0, code, stderr)

	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[0], "PATH")
	assert.Contains(t, lines[1], "not-found")
	assert.Contains(t, lines[2], "failed")
	assert.Contains(t, lines[2], "No module named 'mcp'")
	assert.True(t, strings.HasPrefix(lines[3], "* "+good), lines[3])
	assert.Contains(t, lines[4], "skipped")
}

func TestDiscover_All(t *testing.T) {
	isolateEnv(t)
	good := writeInterpreter(t, "python3", fakePython)
	later := writeInterpreter(t, "python", fakePython)

	code, stdout, stderr := executeCLI(t, "--json", "discover", "--all", "--config", writeConfigFile(t, good, later))
	require.Equal(t, 0, code, stderr)

	var got struct {
		Selected   *discoverCandidateJSON  `json:"selected"`
		Candidates []discoverCandidateJSON `json:"candidates"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	require.NotNil(t, got.Selected)
	assert.Equal(t, good, got.Selected.Path)
	assert.Equal(t, "config", got.Selected.Source)
	require.Len(t, got.Candidates, 2)
	assert.Equal(t, "ok", got.Candidates[0].Status)
	assert.Equal(t, "ok", got.Candidates[1].Status, "--all probes past the first success")
}

func TestDiscover_EnvOverridesComeFirst(t *testing.T) {
	isolateEnv(t)
	fromEnv := writeInterpreter(t, "python3", fakePython)
	fromFile := writeInterpreter(t, "python", fakePython)
	t.Setenv(config.EnvProductPython, fromEnv)

	code, stdout, stderr := executeCLI(t, "--json", "discover", "--config", writeConfigFile(t, fromFile))
	require.Equal(t, 0, code, stderr)

	var got struct {
		Selected *discoverCandidateJSON `json:"selected"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	require.NotNil(t, got.Selected)
	assert.Equal(t, fromEnv, got.Selected.Path)
	assert.Equal(t, config.EnvProductPython, got.Selected.Source)
}

func TestDiscover_NoneQualify(t *testing.T) {
	isolateEnv(t)
	broken := writeInterpreter(t, "python3", brokenPython)

	code, stdout, stderr := executeCLI(t, "discover", "--config", writeConfigFile(t, broken))
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "failed")
	assert.Contains(t, stderr, "no compatible Python interpreter found")
	assert.Contains(t, stderr, "Hint:")
}

func TestDiscover_NoCandidates(t *testing.T) {
	isolateEnv(t)

	code, stdout, _ := executeCLI(t, "discover", "--config", writeConfigFile(t))
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout, "No interpreter candidates configured.")
}

// fakeServerInterpreter returns an interpreter whose server mode runs this
// test binary as an MCP server.
func fakeServerInterpreter(t *testing.T) string {
	t.Helper()
	exe, err := os.Executable()
	require.NoError(t, err)

	return writeInterpreter(t, "python3", fmt.Sprintf(`#!/bin/sh
if [ "$1" = "-c" ]; then
  exit 0
fi
exec '%s'
`, exe))
}

func TestCheck_Handshake(t *testing.T) {
	isolateEnv(t)
	python := fakeServerInterpreter(t)

	code, stdout, stderr := executeCLI(t, "check",
		"--config", writeConfigFile(t, python),
		"--package-dir", t.TempDir(),
		"--env", fakeServerEnv+"=1",
		"--timeout", "20s",
	)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Word Document Server 1.4.0")
	assert.Contains(t, stdout, "Tools:    3")
	assert.Contains(t, stdout, "create_document")
}

func TestCheck_HandshakeJSON(t *testing.T) {
	isolateEnv(t)
	python := fakeServerInterpreter(t)

	code, stdout, stderr := executeCLI(t, "--json", "check",
		"--config", writeConfigFile(t, python),
		"--package-dir", t.TempDir(),
		"--env", fakeServerEnv+"=1",
	)
	require.Equal(t, 0, code, stderr)

	var got struct {
		Server string   `json:"server"`
		Tools  []string `json:"tools"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))
	assert.Equal(t, "Word Document Server", got.Server)
	assert.Equal(t, []string{"add_paragraph", "add_table", "create_document"}, got.Tools)
}

func TestCheck_ServerExitsEarly(t *testing.T) {
	isolateEnv(t)
	python := writeInterpreter(t, "python3", fakePython)

	code, stdout, stderr := executeCLI(t, "check",
		"--config", writeConfigFile(t, python),
		"--package-dir", t.TempDir(),
		"--env", "FAKE_EXIT=3",
		"--timeout", "10s",
	)
	assert.Equal(t, 2, code)
	assert.Empty(t, stdout)
	assert.Contains(t, stderr, "MCP health check failed")
	assert.Contains(t, stderr, "Hint: Run the server manually to see its error: "+python+" -m word_document_server.main")
	assert.NotContains(t, stderr, supervisor.SpawnHint)
}

func TestCheck_NoCompatibleRuntime(t *testing.T) {
	isolateEnv(t)
	broken := writeInterpreter(t, "python3", brokenPython)

	code, _, stderr := executeCLI(t, "check", "--config", writeConfigFile(t, broken))
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "no compatible Python interpreter found")
}

func TestCheck_InvalidTimeout(t *testing.T) {
	code, _, stderr := executeCLI(t, "check", "--timeout", "0s")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "--timeout must be positive")
}
