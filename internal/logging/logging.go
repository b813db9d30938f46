// Package logging provides the launcher's diagnostic logger.
//
// Every log line goes to stderr (or an explicit writer). Stdout is never
// touched: in serve mode it carries the MCP protocol stream of the child
// process, and a stray log line there would corrupt the session.
package logging

import (
	"bytes"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Prefix is shown on every log line so launcher output can be told apart
// from the server's own stderr output, which shares the same stream.
const Prefix = "launcher"

// AppLogger wraps a charmbracelet logger with the launcher's conventions.
type AppLogger struct {
	logger *log.Logger
	debug  bool
}

// Options controls how New builds a logger.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means warn.
	Level string

	// Verbose forces debug level regardless of Level.
	Verbose bool
}

// New creates a logger writing to w.
//
// DEBUG in the environment behaves like Verbose, matching the switch the
// other tools in this family use.
func New(w io.Writer, opts Options) *AppLogger {
	level := log.WarnLevel
	if opts.Level != "" {
		if parsed, err := log.ParseLevel(strings.ToLower(opts.Level)); err == nil {
			level = parsed
		}
	}

	debug := opts.Verbose || os.Getenv("DEBUG") != ""
	if debug {
		level = log.DebugLevel
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: debug,
		TimeFormat:      time.Kitchen,
		Prefix:          Prefix,
	})
	logger.SetLevel(level)

	return &AppLogger{
		logger: logger,
		debug:  level == log.DebugLevel,
	}
}

// Discard returns a logger that drops everything. Library callers that do
// not pass a logger get this one.
func Discard() *AppLogger {
	logger := log.NewWithOptions(io.Discard, log.Options{})
	logger.SetLevel(log.FatalLevel)
	return &AppLogger{logger: logger}
}

func (al *AppLogger) Info(msg string, keyvals ...interface{}) {
	al.logger.Info(msg, keyvals...)
}

func (al *AppLogger) Warn(msg string, keyvals ...interface{}) {
	al.logger.Warn(msg, keyvals...)
}

func (al *AppLogger) Error(msg string, keyvals ...interface{}) {
	al.logger.Error(msg, keyvals...)
}

func (al *AppLogger) Debug(msg string, keyvals ...interface{}) {
	if al.debug {
		al.logger.Debug(msg, keyvals...)
	}
}

// IsDebug reports whether debug output is enabled.
func (al *AppLogger) IsDebug() bool {
	return al.debug
}

// LogPerformance logs how long an operation took (debug only).
func (al *AppLogger) LogPerformance(operation string, start time.Time) {
	if al.debug {
		al.logger.Debug("Performance",
			"operation", operation,
			"duration", time.Since(start),
		)
	}
}

// NewTestLogger creates a debug logger that writes to a buffer for testing.
func NewTestLogger() (*AppLogger, *bytes.Buffer) {
	var buf bytes.Buffer

	logger := log.NewWithOptions(&buf, log.Options{
		ReportTimestamp: false, // Easier to test without timestamps
		ReportCaller:    false,
		Prefix:          "Test",
	})
	logger.SetLevel(log.DebugLevel)

	return &AppLogger{
		logger: logger,
		debug:  true,
	}, &buf
}
