package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shinji-kodama/enhanced-word-mcp/internal/logging"
	"github.com/shinji-kodama/enhanced-word-mcp/internal/model"
)

// RemediationHint tells the user how to get a qualifying interpreter.
const RemediationHint = "Need Python 3.10+ with the mcp and python-docx packages. " +
	"Install with: pip install -r requirements.txt, " +
	"or set PYTHON_PATH (or ENHANCED_WORD_PYTHON) to an interpreter that has them."

// ErrNoCompatibleRuntime matches any *NoCompatibleRuntimeError via errors.Is.
var ErrNoCompatibleRuntime = errors.New("no compatible Python found")

// NoCompatibleRuntimeError is returned when no candidate passed its probe.
// It carries every attempt so the caller can show what was tried.
type NoCompatibleRuntimeError struct {
	Attempts []model.ProbeResult
}

// Error satisfies the error interface.
func (e *NoCompatibleRuntimeError) Error() string {
	if len(e.Attempts) == 0 {
		return ErrNoCompatibleRuntime.Error() + " (no candidates configured)"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Candidate.Path, a.Status))
	}
	return fmt.Sprintf("%s (tried %s)", ErrNoCompatibleRuntime.Error(), strings.Join(parts, ", "))
}

// Is makes errors.Is(err, ErrNoCompatibleRuntime) work.
func (e *NoCompatibleRuntimeError) Is(target error) bool {
	return target == ErrNoCompatibleRuntime
}

// Hint returns the remediation text.
func (e *NoCompatibleRuntimeError) Hint() string {
	return RemediationHint
}

// Discoverer selects the first candidate interpreter whose probe succeeds.
//
// Probes run strictly one at a time in candidate order, each bounded by the
// probe timeout, so the worst case is len(candidates) × timeout.
type Discoverer struct {
	prober  Prober
	timeout time.Duration
	logger  *logging.AppLogger
}

// Option configures a Discoverer.
type Option func(*Discoverer)

// WithProber replaces the exec-based prober (tests inject fakes here).
func WithProber(p Prober) Option {
	return func(d *Discoverer) {
		d.prober = p
	}
}

// WithTimeout sets the per-probe timeout. Non-positive values are ignored.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Discoverer) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// WithLogger sets the diagnostic logger.
func WithLogger(logger *logging.AppLogger) Option {
	return func(d *Discoverer) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// New creates a Discoverer with the exec prober and a 5s probe timeout.
func New(opts ...Option) *Discoverer {
	d := &Discoverer{
		prober:  NewExecProber(),
		timeout: 5 * time.Second,
		logger:  logging.Discard(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Timeout returns the per-probe timeout in effect.
func (d *Discoverer) Timeout() time.Duration {
	return d.timeout
}

// Discover returns the first qualifying candidate.
//
// Every probe failure is absorbed here and advances to the next candidate.
// When none qualifies the result is a *NoCompatibleRuntimeError. The only
// other error is cancellation of ctx itself.
func (d *Discoverer) Discover(ctx context.Context, candidates []model.Candidate) (model.Candidate, error) {
	results, err := d.Report(ctx, candidates, false)
	if err != nil {
		return model.Candidate{}, err
	}
	for _, r := range results {
		if r.OK() {
			return r.Candidate, nil
		}
	}
	return model.Candidate{}, &NoCompatibleRuntimeError{Attempts: results}
}

// Report probes candidates in order and returns one result per candidate.
//
// With all=false it stops at the first success and marks the remaining
// candidates as skipped, which is exactly what Discover does. With all=true
// every candidate is probed; the discover command uses that for diagnostics.
func (d *Discoverer) Report(ctx context.Context, candidates []model.Candidate, all bool) ([]model.ProbeResult, error) {
	results := make([]model.ProbeResult, 0, len(candidates))
	found := false

	for _, c := range candidates {
		if found && !all {
			results = append(results, model.ProbeResult{Candidate: c, Status: model.ProbeSkipped})
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("interpreter discovery cancelled: %w", err)
		}

		r := d.probe(ctx, c)
		results = append(results, r)
		if r.OK() {
			found = true
		}
	}

	return results, nil
}

// probe runs a single candidate under its own timeout and classifies the
// outcome.
func (d *Discoverer) probe(ctx context.Context, c model.Candidate) model.ProbeResult {
	probeCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := time.Now()
	d.logger.Debug("Probing interpreter", "path", c.Path, "source", c.Source, "timeout", d.timeout)

	err := d.prober.Probe(probeCtx, c.Path)
	result := model.ProbeResult{
		Candidate: c,
		Duration:  time.Since(start),
	}

	switch {
	case err == nil:
		result.Status = model.ProbeOK
	case errors.Is(probeCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		// The probe's own deadline fired, not the caller's.
		result.Status = model.ProbeTimeout
		result.Detail = fmt.Sprintf("no answer within %s", d.timeout)
	default:
		var probeErr *ProbeError
		if errors.As(err, &probeErr) {
			result.Status = probeErr.Status
			result.Detail = probeErr.Detail
		} else {
			result.Status = model.ProbeFailed
			result.Detail = err.Error()
		}
	}

	d.logger.Debug("Probe finished",
		"path", c.Path,
		"status", result.Status,
		"duration", result.Duration.Round(time.Millisecond),
		"detail", result.Detail,
	)
	return result
}
