// Package launcher is the embeddable entry point of enhanced-word-mcp-server.
//
// StartServer picks a qualifying Python interpreter and starts the Word
// document MCP server with it, returning a live handle without waiting.
// It never terminates the calling process; the caller decides what the
// child's outcome means.
//
//	p, err := launcher.StartServer(ctx, launcher.Options{Stdio: launcher.StdioPipe})
//	if err != nil {
//		return err
//	}
//	defer p.Terminate(5 * time.Second)
//
// Launcher.Run is the blocking variant used by the standalone command: it
// inherits the standard streams, forwards termination signals and reports
// a non-zero child exit as a silent *model.CLIError carrying the code.
package launcher
