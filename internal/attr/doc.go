// Package attr implements the in-process attribute layer.
//
// An Attribute is a named value with an alarm severity that external clients
// read and write through the daemon's IPC and HTTP surfaces. External writes
// go through Put, which validates, converts and clamps the value before
// running the attribute's on-update hook. Internal writes use Set, which can
// be made quiet so the hook does not fire.
//
// Registry groups attributes under case-insensitive names so the CLI and API
// can resolve them.
package attr
