package cli

import (
	"github.com/spf13/cobra"

	"github.com/shinji-kodama/enhanced-word-mcp/pkg/launcher"
)

// runServe starts the server in the foreground and blocks until it exits.
//
// The server gets the command's own streams, which are the process's
// standard streams outside of tests. A non-zero server exit comes back as
// a silent CLIError, so Execute exits with the same code without adding
// anything to the server's own output.
func runServe(cmd *cobra.Command, flags *launchFlags) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	env, err := parseEnvAssignments(flags.env)
	if err != nil {
		return err
	}

	logger := newLogger(cmd, cfg)
	if cfg.Path != "" {
		logger.Debug("Loaded config", "path", cfg.Path)
	}

	l := launcher.New(launcher.Options{
		Env:    env,
		Stdin:  cmd.InOrStdin(),
		Stdout: cmd.OutOrStdout(),
		Stderr: cmd.ErrOrStderr(),
		Config: cfg,
		Logger: logger,
	})
	return l.Run(cmd.Context())
}
