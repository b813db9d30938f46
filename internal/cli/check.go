// Package cli — check.go implements the "enhanced-word-mcp-server check"
// command.
//
// check is an end-to-end smoke test: it starts the server the same way the
// launcher does, but with piped stdio, completes the MCP initialize
// handshake, lists the server's tools and then stops the server. A pass
// means an MCP client configured with this launcher will work.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/enhanced-word-mcp/internal/healthcheck"
	"github.com/shinji-kodama/enhanced-word-mcp/internal/model"
	"github.com/shinji-kodama/enhanced-word-mcp/pkg/launcher"
)

// defaultCheckTimeout bounds discovery, startup and the handshake together.
// Importing python-docx and the MCP framework on a cold cache is slow.
const defaultCheckTimeout = 30 * time.Second

// checkStopGrace is how long the server gets to exit after the check.
const checkStopGrace = 2 * time.Second

type checkFlags struct {
	launchFlags

	timeout time.Duration
}

// NewCheckCommand creates the "check" cobra command.
func NewCheckCommand() *cobra.Command {
	flags := &checkFlags{}

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Start the server and verify it answers the MCP handshake",
		Long: `Start the server with piped stdio, perform the MCP initialize handshake
and list its tools, then stop it. The server's own stderr is shown as-is.

Exits with code 1 when no interpreter qualifies or the server cannot be
started, and with code 2 when the server starts but the handshake fails.

Examples:
  enhanced-word-mcp-server check
  enhanced-word-mcp-server check --timeout 1m --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context(), cmd, flags)
		},
	}

	bindLaunchFlags(cmd, &flags.launchFlags, true)
	cmd.Flags().DurationVar(&flags.timeout, "timeout", defaultCheckTimeout,
		"Overall time limit for startup and handshake")

	return cmd
}

func runCheck(ctx context.Context, cmd *cobra.Command, flags *checkFlags) error {
	if flags.timeout <= 0 {
		return model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("--timeout must be positive, got %s", flags.timeout))
	}

	cfg, err := loadConfig(&flags.launchFlags)
	if err != nil {
		return err
	}
	env, err := parseEnvAssignments(flags.env)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	ctx, cancel := context.WithTimeout(ctx, flags.timeout)
	defer cancel()

	p, err := launcher.StartServer(ctx, launcher.Options{
		Stdio:  launcher.StdioPipe,
		Env:    env,
		Stderr: cmd.ErrOrStderr(),
		Config: cfg,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	report, checkErr := healthcheck.NewChecker(Version).CheckProcess(ctx, p)
	outcome := p.Terminate(checkStopGrace)
	logger.Debug("Server stopped after check", "outcome", outcome.String())

	if checkErr != nil {
		return model.WrapCLIError(model.ExitHealthCheckFailed, "MCP health check failed", checkErr).
			WithHint(serverFailureHint(p))
	}

	printCheckResult(cmd.OutOrStdout(), report)
	return nil
}

// serverFailureHint points at running the server by hand: the interpreter
// already passed discovery, so the server's own output holds the cause.
func serverFailureHint(p *launcher.Process) string {
	hint := fmt.Sprintf("Run the server manually to see its error: %s", p.CommandLine())
	if dir := p.Dir(); dir != "" {
		hint += fmt.Sprintf(" (in %s)", dir)
	}
	return hint
}

func printCheckResult(w io.Writer, report *healthcheck.Report) {
	if IsJSONOutput() {
		type resultJSON struct {
			Server          string   `json:"server"`
			Version         string   `json:"version"`
			ProtocolVersion string   `json:"protocolVersion"`
			Tools           []string `json:"tools"`
			ElapsedMs       int64    `json:"elapsedMs"`
		}
		tools := report.Tools
		if tools == nil {
			tools = []string{}
		}
		data, _ := json.MarshalIndent(resultJSON{
			Server:          report.ServerName,
			Version:         report.ServerVersion,
			ProtocolVersion: report.ProtocolVersion,
			Tools:           tools,
			ElapsedMs:       report.Elapsed.Milliseconds(),
		}, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	fmt.Fprintf(w, "Server:   %s %s\n", report.ServerName, report.ServerVersion)
	fmt.Fprintf(w, "Protocol: %s\n", report.ProtocolVersion)
	fmt.Fprintf(w, "Tools:    %d\n", len(report.Tools))
	if len(report.Tools) > 0 {
		fmt.Fprintf(w, "  %s\n", strings.Join(report.Tools, "\n  "))
	}
	fmt.Fprintf(w, "OK (%s)\n", report.Elapsed.Round(time.Millisecond))
}
