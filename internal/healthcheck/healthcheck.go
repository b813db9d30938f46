// Package healthcheck verifies that a started document server answers the
// MCP handshake.
//
// It drives the server through the mcp-go client over the child's piped
// stdio: initialize, then tools/list. Nothing here implements the protocol;
// a server that passes is one a real MCP client can talk to.
package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/shinji-kodama/enhanced-word-mcp/internal/supervisor"
)

// DefaultClientName identifies the check in the server's logs.
const DefaultClientName = "enhanced-word-mcp-check"

// exitSettle is how long a failed handshake waits to see whether the child
// has exited, so a dead server is reported as such and not as a broken pipe.
const exitSettle = 250 * time.Millisecond

// ErrServerExited is returned when the child ends before the handshake
// completes.
var ErrServerExited = errors.New("server exited before completing the MCP handshake")

// Report is what a successful check learned about the server.
type Report struct {
	ServerName      string        `json:"server_name"`
	ServerVersion   string        `json:"server_version"`
	ProtocolVersion string        `json:"protocol_version"`
	Tools           []string      `json:"tools"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Checker runs the handshake.
type Checker struct {
	// ClientName and ClientVersion are sent in the initialize request.
	ClientName    string
	ClientVersion string
}

// NewChecker creates a Checker announcing itself with the given version.
func NewChecker(version string) *Checker {
	return &Checker{
		ClientName:    DefaultClientName,
		ClientVersion: version,
	}
}

// Check performs initialize and tools/list against a server whose stdout is
// serverOut and whose stdin is serverIn. serverIn is closed when Check
// returns.
func (c *Checker) Check(ctx context.Context, serverOut io.Reader, serverIn io.WriteCloser) (*Report, error) {
	start := time.Now()

	// The client does not start a stdio transport on its own; only the
	// command-spawning constructor does. Close always closes the logging
	// stream, so it must be non-nil even though the server's stderr is
	// handled elsewhere.
	stdio := transport.NewIO(serverOut, serverIn, io.NopCloser(strings.NewReader("")))
	if err := stdio.Start(ctx); err != nil {
		_ = serverIn.Close()
		return nil, fmt.Errorf("failed to start MCP transport: %w", err)
	}

	mcpClient := client.NewClient(stdio)
	defer mcpClient.Close()

	if err := mcpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start MCP client: %w", err)
	}

	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcp.Implementation{
		Name:    c.ClientName,
		Version: c.ClientVersion,
	}

	initResult, err := mcpClient.Initialize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("initialize failed: %w", err)
	}

	tools, err := mcpClient.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("tools/list failed: %w", err)
	}

	names := make([]string, 0, len(tools.Tools))
	for _, t := range tools.Tools {
		names = append(names, t.Name)
	}
	sort.Strings(names)

	return &Report{
		ServerName:      initResult.ServerInfo.Name,
		ServerVersion:   initResult.ServerInfo.Version,
		ProtocolVersion: initResult.ProtocolVersion,
		Tools:           names,
		Elapsed:         time.Since(start),
	}, nil
}

// CheckProcess runs Check against a child started in pipe mode. If the
// child exits first, the error wraps ErrServerExited and names its outcome.
// The child is left running on success; stopping it is the caller's job.
func (c *Checker) CheckProcess(ctx context.Context, p *supervisor.Process) (*Report, error) {
	if p.Stdin() == nil || p.Stdout() == nil {
		return nil, errors.New("server was not started with piped stdio")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type result struct {
		report *Report
		err    error
	}
	results := make(chan result, 1)
	go func() {
		r, err := c.Check(ctx, p.Stdout(), p.Stdin())
		results <- result{r, err}
	}()

	select {
	case r := <-results:
		if r.err == nil {
			return r.report, nil
		}
		select {
		case <-p.Done():
			return nil, fmt.Errorf("%w (%s): %v", ErrServerExited, p.Wait(), r.err)
		case <-time.After(exitSettle):
			return nil, r.err
		}
	case <-p.Done():
		// A handshake that already finished still counts.
		select {
		case r := <-results:
			if r.err == nil {
				return r.report, nil
			}
		default:
		}
		return nil, fmt.Errorf("%w (%s)", ErrServerExited, p.Wait())
	case <-ctx.Done():
		return nil, fmt.Errorf("MCP handshake did not complete: %w", ctx.Err())
	}
}
