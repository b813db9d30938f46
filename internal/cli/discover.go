// Package cli — discover.go implements the "enhanced-word-mcp-server discover"
// command.
//
// discover shows which interpreter the launcher would use and why: every
// candidate in priority order with its source and probe result. By default
// it stops at the first success exactly like the launcher does; --all
// probes every candidate, which helps when fixing a broken environment.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/enhanced-word-mcp/internal/discovery"
	"github.com/shinji-kodama/enhanced-word-mcp/internal/model"
)

type discoverFlags struct {
	launchFlags

	// all probes every candidate instead of stopping at the first success.
	all bool
}

// NewDiscoverCommand creates the "discover" cobra command.
func NewDiscoverCommand() *cobra.Command {
	flags := &discoverFlags{}

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Show which Python interpreter would run the server",
		Long: `Probe the candidate interpreters in priority order and show the result
for each one. The first candidate marked "ok" is the one the launcher uses.

Exits with code 1 when no candidate qualifies.

Examples:
  enhanced-word-mcp-server discover
  enhanced-word-mcp-server discover --all
  enhanced-word-mcp-server discover --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(cmd.Context(), cmd, flags)
		},
	}

	bindLaunchFlags(cmd, &flags.launchFlags, false)
	cmd.Flags().BoolVar(&flags.all, "all", false, "Probe every candidate, not just up to the first success")

	return cmd
}

func runDiscover(ctx context.Context, cmd *cobra.Command, flags *discoverFlags) error {
	cfg, err := loadConfig(&flags.launchFlags)
	if err != nil {
		return err
	}
	logger := newLogger(cmd, cfg)

	d := discovery.New(
		discovery.WithTimeout(cfg.ProbeTimeout),
		discovery.WithLogger(logger),
	)

	start := time.Now()
	results, err := d.Report(ctx, cfg.Candidates(), flags.all)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "interpreter discovery interrupted", err)
	}
	logger.LogPerformance("discover", start)

	selected := -1
	for i, r := range results {
		if r.OK() {
			selected = i
			break
		}
	}

	printDiscoverResult(cmd.OutOrStdout(), results, selected)

	if selected < 0 {
		return model.NewCLIError(model.ExitNoCompatibleRuntime, "no compatible Python interpreter found").
			WithHint(discovery.RemediationHint)
	}
	return nil
}

// printDiscoverResult outputs the probe results in text or JSON format,
// depending on the global --json flag.
func printDiscoverResult(w io.Writer, results []model.ProbeResult, selected int) {
	if IsJSONOutput() {
		printDiscoverResultJSON(w, results, selected)
	} else {
		printDiscoverResultText(w, results, selected)
	}
}

type discoverCandidateJSON struct {
	Path       string `json:"path"`
	Source     string `json:"source"`
	Status     string `json:"status"`
	DurationMs int64  `json:"durationMs"`
	Detail     string `json:"detail,omitempty"`
}

func printDiscoverResultJSON(w io.Writer, results []model.ProbeResult, selected int) {
	type resultJSON struct {
		Selected   *discoverCandidateJSON  `json:"selected"`
		Candidates []discoverCandidateJSON `json:"candidates"`
	}

	result := resultJSON{
		Candidates: make([]discoverCandidateJSON, 0, len(results)),
	}
	for _, r := range results {
		result.Candidates = append(result.Candidates, discoverCandidateJSON{
			Path:       r.Candidate.Path,
			Source:     r.Candidate.Source.String(),
			Status:     r.Status.String(),
			DurationMs: r.Duration.Milliseconds(),
			Detail:     r.Detail,
		})
	}
	if selected >= 0 {
		result.Selected = &result.Candidates[selected]
	}

	data, _ := json.MarshalIndent(result, "", "  ")
	fmt.Fprintln(w, string(data))
}

// printDiscoverResultText prints one row per candidate:
//
//	  PATH                      SOURCE          STATUS     TIME    DETAIL
//	  /bad/path                 PYTHON_PATH     not-found  0s      fork/exec /bad/path: no such file or directory
//	* python3                   fallback        ok         412ms
//	  python                    fallback        skipped    -
func printDiscoverResultText(w io.Writer, results []model.ProbeResult, selected int) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No interpreter candidates configured.")
		return
	}

	fmt.Fprintf(w, "  %-40s %-22s %-10s %-8s %s\n", "PATH", "SOURCE", "STATUS", "TIME", "DETAIL")
	for i, r := range results {
		marker := " "
		if i == selected {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %-40s %-22s %-10s %-8s %s\n",
			marker,
			r.Candidate.Path,
			r.Candidate.Source,
			r.Status,
			formatDuration(r),
			r.Detail,
		)
	}
}

// formatDuration renders a probe's duration, or "-" for a skipped probe.
func formatDuration(r model.ProbeResult) string {
	if r.Status == model.ProbeSkipped {
		return "-"
	}
	return r.Duration.Round(time.Millisecond).String()
}
