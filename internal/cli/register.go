// Package cli — register.go implements the "enhanced-word-mcp-server
// register" command.
//
// register adds the launcher to an MCP client's configuration file
// (Claude Desktop's by default) so the client starts it over stdio. The
// entry points at the launcher's absolute path with no arguments; server
// environment goes into the entry's env block.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/enhanced-word-mcp/internal/mcpconfig"
	"github.com/shinji-kodama/enhanced-word-mcp/internal/model"
)

type registerFlags struct {
	file    string
	name    string
	command string
	env     []string
	dryRun  bool
}

// NewRegisterCommand creates the "register" cobra command.
func NewRegisterCommand() *cobra.Command {
	flags := &registerFlags{}

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Add the server to an MCP client configuration file",
		Long: `Add or update an "mcpServers" entry that starts this launcher.

The file may contain comments and trailing commas; other entries and
settings are preserved. Comments are not kept in the rewritten file.

Examples:
  enhanced-word-mcp-server register
  enhanced-word-mcp-server register --env PYTHON_PATH=/opt/venv/bin/python
  enhanced-word-mcp-server register --file ~/.cursor/mcp.json --name word
  enhanced-word-mcp-server register --dry-run`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.file, "file", "",
		"MCP client config file (default: Claude Desktop's config)")
	cmd.Flags().StringVar(&flags.name, "name", mcpconfig.DefaultServerName,
		"Entry name under mcpServers")
	cmd.Flags().StringVar(&flags.command, "command", "",
		"Launcher path to register (default: this executable)")
	cmd.Flags().StringArrayVar(&flags.env, "env", nil,
		"Environment variable for the server as KEY=VALUE (repeatable)")
	cmd.Flags().BoolVar(&flags.dryRun, "dry-run", false,
		"Print the resulting file instead of writing it")

	return cmd
}

func runRegister(cmd *cobra.Command, flags *registerFlags) error {
	env, err := parseEnvAssignments(flags.env)
	if err != nil {
		return err
	}

	command, err := launcherPath(flags.command)
	if err != nil {
		return err
	}

	path := flags.file
	if path == "" {
		path, err = mcpconfig.DefaultClientConfigPath()
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError,
				"cannot determine the MCP client config location; pass --file", err)
		}
	}

	raw, err := mcpconfig.ReadFile(path)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to read MCP client config", err)
	}

	previous, existed, err := mcpconfig.Lookup(raw, flags.name)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("cannot update %s", path), err)
	}

	updated, err := mcpconfig.Upsert(raw, flags.name, mcpconfig.NewServerEntry(command, env))
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("cannot update %s", path), err)
	}

	if flags.dryRun {
		_, err := cmd.OutOrStdout().Write(updated)
		return err
	}

	if err := mcpconfig.WriteFile(path, updated); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to write MCP client config", err)
	}

	result := registerResult{Name: flags.name, File: path, Command: command}
	if existed {
		result.Replaced = true
		result.PreviousCommand = previous.Command
	}
	printRegisterResult(cmd.OutOrStdout(), result)
	return nil
}

// launcherPath returns the absolute, symlink-resolved launcher path.
func launcherPath(explicit string) (string, error) {
	path := explicit
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return "", model.WrapCLIError(model.ExitGeneralError,
				"cannot locate the launcher executable; pass --command", err)
		}
		path = exe
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("invalid launcher path %q", path), err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	return abs, nil
}

// registerResult is what register reports after writing the file.
type registerResult struct {
	Name            string `json:"name"`
	File            string `json:"file"`
	Command         string `json:"command"`
	Replaced        bool   `json:"replaced"`
	PreviousCommand string `json:"previousCommand,omitempty"`
}

func printRegisterResult(w io.Writer, result registerResult) {
	if IsJSONOutput() {
		data, _ := json.MarshalIndent(result, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	verb := "Registered"
	if result.Replaced {
		verb = "Updated"
	}
	fmt.Fprintf(w, "%s %q in %s\n", verb, result.Name, result.File)
	fmt.Fprintf(w, "  command: %s\n", result.Command)
	if result.Replaced && result.PreviousCommand != result.Command {
		fmt.Fprintf(w, "  previous command: %s\n", result.PreviousCommand)
	}
	fmt.Fprintln(w, "Restart the MCP client to pick up the change.")
}
