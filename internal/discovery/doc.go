// Package discovery finds a Python interpreter that can run the document
// server.
//
// Each candidate is probed by actually importing the required modules
// rather than checking that the binary exists: a machine often has several
// interpreters and only one of them has the packages installed. Probes are
// sequential and individually time-bounded, and the first success wins.
package discovery
