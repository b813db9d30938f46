// Package mcpconfig registers the launcher in an MCP client configuration
// file (Claude Desktop, Cursor and similar clients).
//
// Those files are JSON in the "mcpServers" layout, but users edit them by
// hand and often leave comments or trailing commas behind. They are read
// through github.com/tidwall/jsonc so such files are accepted. The rewritten
// file is plain JSON: comments do not survive a rewrite, every other field
// does.
package mcpconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/adrg/xdg"
	"github.com/tidwall/jsonc"
)

// ServersKey is the top-level object holding one entry per server.
const ServersKey = "mcpServers"

// DefaultServerName is the entry name used when none is given.
const DefaultServerName = "enhanced-word"

// claudeConfigFile is Claude Desktop's config file name.
const claudeConfigFile = "claude_desktop_config.json"

// DefaultClientConfigPath returns Claude Desktop's config file location:
// the Claude directory under the platform config home (Application Support
// on macOS, $XDG_CONFIG_HOME on Linux) or under %APPDATA% on Windows.
func DefaultClientConfigPath() (string, error) {
	if runtime.GOOS == "windows" {
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA is not set")
		}
		return filepath.Join(appData, "Claude", claudeConfigFile), nil
	}
	return filepath.Join(xdg.ConfigHome, "Claude", claudeConfigFile), nil
}

// ServerEntry is the part of an mcpServers entry the launcher owns.
type ServerEntry struct {
	Command string
	Args    []string
	Env     map[string]string
}

// NewServerEntry builds the entry that starts launcherPath with no
// arguments.
func NewServerEntry(launcherPath string, env map[string]string) ServerEntry {
	return ServerEntry{
		Command: launcherPath,
		Args:    []string{},
		Env:     env,
	}
}

// Upsert adds or replaces the named server entry in raw and returns the
// re-serialized document.
//
// raw may be empty (a new file). Fields of an existing entry other than
// command, args and env are kept, so client-specific settings such as
// "disabled" or "autoApprove" survive re-registration. Env is omitted when
// empty.
func Upsert(raw []byte, name string, entry ServerEntry) ([]byte, error) {
	if name == "" {
		return nil, errors.New("server name must not be empty")
	}
	if entry.Command == "" {
		return nil, errors.New("server command must not be empty")
	}

	doc, err := parse(raw)
	if err != nil {
		return nil, err
	}

	servers := map[string]interface{}{}
	if existing, ok := doc[ServersKey]; ok && existing != nil {
		m, ok := existing.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("%q must be an object, found %T", ServersKey, existing)
		}
		servers = m
	}

	server := map[string]interface{}{}
	if existing, ok := servers[name].(map[string]interface{}); ok {
		server = existing
	}

	args := entry.Args
	if args == nil {
		args = []string{}
	}
	server["command"] = entry.Command
	server["args"] = args
	if len(entry.Env) > 0 {
		server["env"] = entry.Env
	} else {
		delete(server, "env")
	}

	servers[name] = server
	doc[ServersKey] = servers

	return encode(doc)
}

// Lookup returns the named entry from raw, or false when it is absent.
func Lookup(raw []byte, name string) (ServerEntry, bool, error) {
	doc, err := parse(raw)
	if err != nil {
		return ServerEntry{}, false, err
	}

	servers, _ := doc[ServersKey].(map[string]interface{})
	server, ok := servers[name].(map[string]interface{})
	if !ok {
		return ServerEntry{}, false, nil
	}

	// Round-trip through JSON to get typed fields out of the generic map.
	data, err := json.Marshal(server)
	if err != nil {
		return ServerEntry{}, false, err
	}
	var typed struct {
		Command string            `json:"command"`
		Args    []string          `json:"args"`
		Env     map[string]string `json:"env"`
	}
	if err := json.Unmarshal(data, &typed); err != nil {
		return ServerEntry{}, false, fmt.Errorf("entry %q is malformed: %w", name, err)
	}
	return ServerEntry{Command: typed.Command, Args: typed.Args, Env: typed.Env}, true, nil
}

// ReadFile returns the contents of path, or nil when it does not exist yet.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

// WriteFile writes data to path, creating parent directories as needed.
// An existing file keeps its permissions.
func WriteFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	mode := os.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	if err := os.WriteFile(path, data, mode); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// parse strips JSONC comments and trailing commas and decodes the document
// into a generic map so unknown fields are preserved.
func parse(raw []byte) (map[string]interface{}, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]interface{}{}, nil
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(jsonc.ToJSON(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse MCP client config: %w", err)
	}
	if doc == nil {
		// The file held a literal null.
		doc = map[string]interface{}{}
	}
	return doc, nil
}

// encode writes doc with two-space indentation and a trailing newline.
// HTML escaping is off so paths and commands stay readable.
func encode(doc map[string]interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to serialize MCP client config: %w", err)
	}
	// Encode already ends the document with a newline.
	return buf.Bytes(), nil
}
