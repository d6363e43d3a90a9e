// Package logs tails daemon log files for the CLI when the daemon's
// in-memory event stream is not reachable, for example after a crash.
//
// A negative offset reads the last Limit lines; a non-negative offset reads
// everything written after it. Follow mode polls until new lines arrive or
// Wait elapses, and the returned Offset feeds the next call.
package logs
