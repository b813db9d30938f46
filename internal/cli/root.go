// Package cli implements the cobra-based CLI of enhanced-word-mcp-server.
//
// The root command is the launcher itself: run with no subcommand it finds
// a qualifying Python interpreter and starts the Word document MCP server
// in the foreground, handing it the process's standard streams. The
// diagnostic subcommands (discover, check, register) are defined in their
// own files within this package.
//
// Stdout belongs to the server in the root command. Everything the launcher
// itself reports goes to stderr.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/enhanced-word-mcp/internal/config"
	"github.com/shinji-kodama/enhanced-word-mcp/internal/logging"
	"github.com/shinji-kodama/enhanced-word-mcp/internal/model"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command,
// which makes them available to every subcommand automatically.
var (
	// jsonOutput switches command results and errors to JSON.
	jsonOutput bool

	// verbose lowers the log level to debug.
	verbose bool

	// configPath is an explicit config file; it must exist when set.
	configPath string
)

// version, commit, and date are set at build time via ldflags.
// They are injected from the main package to display version information.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// launchFlags are the flags shared by every command that selects an
// interpreter or starts the server.
type launchFlags struct {
	packageDir   string
	probeTimeout time.Duration
	env          []string
}

// bindLaunchFlags registers launchFlags on cmd. startsServer is false for
// commands that only probe interpreters.
func bindLaunchFlags(cmd *cobra.Command, f *launchFlags, startsServer bool) {
	cmd.Flags().DurationVar(&f.probeTimeout, "probe-timeout", 0,
		"Timeout for each interpreter probe (default 5s)")
	if startsServer {
		cmd.Flags().StringVar(&f.packageDir, "package-dir", "",
			"Server installation root, used as its working directory")
		cmd.Flags().StringArrayVar(&f.env, "env", nil,
			"Extra environment variable for the server as KEY=VALUE (repeatable)")
	}
}

// NewRootCommand creates and configures the root cobra command.
func NewRootCommand() *cobra.Command {
	serve := &launchFlags{}

	rootCmd := &cobra.Command{
		Use:   "enhanced-word-mcp-server",
		Short: "Launcher for the Enhanced Word Document MCP server",
		Long: `enhanced-word-mcp-server finds a Python interpreter that can run the
Word document MCP server and starts the server with it over stdio.

Interpreters are tried in this order, and the first one that can import
both the MCP server framework and python-docx is used:

  1. $PYTHON_PATH
  2. $ENHANCED_WORD_PYTHON
  3. interpreters listed in the config file
  4. python3, python, /usr/bin/python3, /usr/local/bin/python3

The server's exit code becomes the launcher's exit code.

Examples:
  enhanced-word-mcp-server
  PYTHON_PATH=/opt/venv/bin/python enhanced-word-mcp-server
  enhanced-word-mcp-server discover --all
  enhanced-word-mcp-server check`,

		Args: cobra.NoArgs,

		// SilenceUsage prevents cobra from printing usage on every error.
		// We handle error output ourselves for cleaner UX.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// We format errors ourselves (text or JSON based on --json flag).
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, serve)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default $XDG_CONFIG_HOME/enhanced-word-mcp/config.yaml)")

	bindLaunchFlags(rootCmd, serve, true)

	rootCmd.AddCommand(NewDiscoverCommand())
	rootCmd.AddCommand(NewCheckCommand())
	rootCmd.AddCommand(NewRegisterCommand())

	return rootCmd
}

// Execute runs the root command and exits with the resulting code.
// This is the only place in the program that terminates the process.
func Execute(rootCmd *cobra.Command) {
	if code := run(rootCmd); code != int(model.ExitSuccess) {
		os.Exit(code)
	}
}

// run executes rootCmd, reports any error on its stderr and returns the
// process exit code.
func run(rootCmd *cobra.Command) int {
	err := rootCmd.Execute()
	if err == nil {
		return int(model.ExitSuccess)
	}

	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		if !cliErr.Silent {
			printError(rootCmd.ErrOrStderr(), cliErr.Message, cliErr.Err, cliErr.Hint)
		}
		return int(cliErr.Code)
	}

	// Generic error (including cobra's own flag and argument errors).
	printError(rootCmd.ErrOrStderr(), err.Error(), nil, "")
	return int(model.ExitGeneralError)
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(w io.Writer, message string, underlying error, hint string) {
	if jsonOutput {
		errMap := map[string]interface{}{
			"message": message,
		}
		if underlying != nil {
			errMap["detail"] = underlying.Error()
		}
		if hint != "" {
			errMap["hint"] = hint
		}
		data, _ := json.MarshalIndent(map[string]interface{}{"error": errMap}, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
	if hint != "" {
		fmt.Fprintf(w, "Hint: %s\n", hint)
	}
}

// IsJSONOutput returns whether the --json flag is set.
// Subcommands use this to decide their output format.
func IsJSONOutput() bool {
	return jsonOutput
}

// loadConfig reads the configuration and applies the command-line flags on
// top of it: flags beat the environment, which beats the file.
func loadConfig(f *launchFlags) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if f.probeTimeout < 0 {
		return nil, model.NewCLIError(model.ExitGeneralError,
			fmt.Sprintf("--probe-timeout must be positive, got %s", f.probeTimeout))
	}
	if f.probeTimeout > 0 {
		cfg.ProbeTimeout = f.probeTimeout
	}
	if f.packageDir != "" {
		cfg.PackageDir = f.packageDir
	}
	return cfg, nil
}

// newLogger builds the stderr logger for a command.
func newLogger(cmd *cobra.Command, cfg *config.Config) *logging.AppLogger {
	return logging.New(cmd.ErrOrStderr(), logging.Options{
		Level:   cfg.LogLevel,
		Verbose: verbose,
	})
}

// parseEnvAssignments turns repeated KEY=VALUE flags into a map. Later
// assignments of the same key win.
func parseEnvAssignments(assignments []string) (map[string]string, error) {
	env := make(map[string]string, len(assignments))
	for _, a := range assignments {
		key, value, ok := strings.Cut(a, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, model.NewCLIError(model.ExitGeneralError,
				fmt.Sprintf("invalid --env value %q: expected KEY=VALUE", a))
		}
		env[key] = value
	}
	return env, nil
}
