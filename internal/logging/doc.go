// Package logging assembles the slog loggers used by the daqbridge daemon and
// CLI.
//
// It owns the console and JSON handlers, level plumbing through a shared
// slog.LevelVar, and context helpers that tag log lines with capture session
// ids, table names and request ids. StreamHub keeps recent events in memory
// so the CLI can tail daemon logs over IPC. A no-op logger is provided for
// tests and wiring code that cannot fail.
package logging
