// Package services defines shared utilities consumed by the capture, table and
// device packages.
//
// Key responsibilities:
//   - Context helpers that stamp capture session IDs, table names, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified (validation vs transport vs device) after they cross package
//     boundaries.
//
// Use these helpers when wiring new device-facing logic so operational
// behaviour (error handling, observability) stays uniform across the daemon.
package services
