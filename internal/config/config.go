package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/enhanced-word-mcp/internal/model"
)

// AppName is the directory name used under the XDG config home.
const AppName = "enhanced-word-mcp"

// Environment variables read by Load. PYTHON_PATH has the highest priority
// among interpreter overrides.
const (
	EnvPythonPath    = "PYTHON_PATH"
	EnvProductPython = "ENHANCED_WORD_PYTHON"
	EnvHome          = "ENHANCED_WORD_HOME"
	EnvConfig        = "ENHANCED_WORD_CONFIG"
)

// ServerModule is the module entry point started with `python -m`.
const ServerModule = "word_document_server.main"

// DefaultProbeTimeout bounds a single interpreter probe.
const DefaultProbeTimeout = 5 * time.Second

// FallbackInterpreters are tried after every override, in this order.
var FallbackInterpreters = []string{
	"python3",
	"python",
	"/usr/bin/python3",
	"/usr/local/bin/python3",
}

// LookupEnv matches os.LookupEnv so tests can inject an environment
// instead of mutating the process one.
type LookupEnv func(key string) (string, bool)

// Config is the launcher configuration, assembled once at startup.
type Config struct {
	// PythonPath and ProductPython are the two interpreter overrides from
	// the environment. Empty when unset.
	PythonPath    string
	ProductPython string

	// Interpreters are extra candidates from the config file, probed after
	// the environment overrides and before the fallbacks.
	Interpreters []string

	// ProbeTimeout bounds each interpreter probe.
	ProbeTimeout time.Duration

	// PackageDir is the server's installation root. Empty means "derive it
	// from the executable location" (see ResolvePackageDir).
	PackageDir string

	// Env holds overrides merged on top of the process environment for the child.
	Env map[string]string

	// LogLevel is the configured log level (debug, info, warn, error).
	LogLevel string

	// Path is the config file that was read, or "" when none was found.
	Path string
}

// fileConfig is the on-disk YAML layout.
type fileConfig struct {
	Interpreters []string          `yaml:"interpreters"`
	ProbeTimeout string            `yaml:"probe_timeout"`
	PackageDir   string            `yaml:"package_dir"`
	Env          map[string]string `yaml:"env"`
	LogLevel     string            `yaml:"log_level"`
}

// DefaultPath returns the standard config file path for the current platform.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, AppName, "config.yaml")
}

// Load builds the configuration from the process environment and the
// config file. explicitPath, when non-empty, must exist.
func Load(explicitPath string) (*Config, error) {
	return LoadWith(os.LookupEnv, explicitPath)
}

// LoadWith is Load with an injectable environment.
//
// File lookup order: explicitPath, then $ENHANCED_WORD_CONFIG, then the XDG
// default. Only the XDG default may be absent without an error.
func LoadWith(lookup LookupEnv, explicitPath string) (*Config, error) {
	cfg := &Config{
		ProbeTimeout: DefaultProbeTimeout,
		Env:          map[string]string{},
	}

	path, required := explicitPath, explicitPath != ""
	if !required {
		if v, ok := lookup(EnvConfig); ok && v != "" {
			path, required = v, true
		} else {
			path = DefaultPath()
		}
	}

	if err := cfg.mergeFile(path, required); err != nil {
		return nil, err
	}

	// Environment beats the file.
	cfg.PythonPath = lookupTrimmed(lookup, EnvPythonPath)
	cfg.ProductPython = lookupTrimmed(lookup, EnvProductPython)
	if home := lookupTrimmed(lookup, EnvHome); home != "" {
		cfg.PackageDir = home
	}

	return cfg, nil
}

// mergeFile reads the YAML file at path into cfg.
func (c *Config) mergeFile(path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !required {
			return nil
		}
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to read config file %s", path), err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("failed to parse config file %s", path), err)
	}

	c.Path = path
	c.Interpreters = fc.Interpreters
	c.PackageDir = fc.PackageDir
	c.LogLevel = fc.LogLevel
	for k, v := range fc.Env {
		c.Env[k] = v
	}

	if fc.ProbeTimeout != "" {
		d, err := time.ParseDuration(fc.ProbeTimeout)
		if err != nil {
			return model.WrapCLIError(model.ExitGeneralError,
				fmt.Sprintf("invalid probe_timeout %q in %s", fc.ProbeTimeout, path), err)
		}
		if d <= 0 {
			return model.NewCLIError(model.ExitGeneralError,
				fmt.Sprintf("probe_timeout must be positive, got %s", fc.ProbeTimeout))
		}
		c.ProbeTimeout = d
	}

	return nil
}

// Candidates returns the ordered, de-duplicated candidate list:
// PYTHON_PATH, ENHANCED_WORD_PYTHON, config-file interpreters, fallbacks.
func (c *Config) Candidates() []model.Candidate {
	candidates := []model.Candidate{
		{Path: c.PythonPath, Source: model.SourcePythonPath},
		{Path: c.ProductPython, Source: model.SourceProductOverride},
	}
	for _, p := range c.Interpreters {
		candidates = append(candidates, model.Candidate{Path: p, Source: model.SourceConfigFile})
	}
	for _, p := range FallbackInterpreters {
		candidates = append(candidates, model.Candidate{Path: p, Source: model.SourceFallback})
	}
	return model.DedupeCandidates(candidates)
}

// ResolvePackageDir returns the absolute installation root of the server
// package.
//
// With no explicit PackageDir it is derived from the running executable:
// the executable's directory, or its parent when that directory is named
// "bin" (the layout of an npm-style or `go install` prefix).
func (c *Config) ResolvePackageDir() (string, error) {
	if c.PackageDir != "" {
		abs, err := filepath.Abs(c.PackageDir)
		if err != nil {
			return "", fmt.Errorf("failed to resolve package dir %q: %w", c.PackageDir, err)
		}
		return abs, nil
	}

	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to locate launcher executable: %w", err)
	}
	return PackageDirFor(exe), nil
}

// PackageDirFor derives the package root from an executable path.
func PackageDirFor(executable string) string {
	if resolved, err := filepath.EvalSymlinks(executable); err == nil {
		executable = resolved
	}
	dir := filepath.Dir(executable)
	if filepath.Base(dir) == "bin" {
		return filepath.Dir(dir)
	}
	return dir
}

// MergedEnv returns the config-file env with extra on top.
func (c *Config) MergedEnv(extra map[string]string) map[string]string {
	out := make(map[string]string, len(c.Env)+len(extra))
	for k, v := range c.Env {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

func lookupTrimmed(lookup LookupEnv, key string) string {
	v, _ := lookup(key)
	return strings.TrimSpace(v)
}
