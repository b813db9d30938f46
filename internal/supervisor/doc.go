// Package supervisor starts and watches the document server process.
//
// The child inherits the launcher's standard streams untouched: the MCP
// protocol flows through them and the launcher must not buffer, rewrite or
// inspect it. The child's end is modelled as an explicit Outcome value
// (exited, signaled, failed to start) delivered by a blocking Wait, instead
// of exit/error callbacks.
//
// Supervision is 1:1 and non-restarting. A crash of the child is terminal
// for whoever is supervising it.
package supervisor
