// Package ipc exposes the daemon over JSON-RPC Unix sockets and ships the
// matching client used by the CLI.
//
// The server owns the socket lifecycle and maps each RPC onto a daemon
// operation: status, capture start and stop, attribute reads and writes,
// table contents, session history and the in-memory log buffer. Requests
// run under a bounded context derived from the server's context so a stuck
// device cannot hold a CLI call forever.
package ipc
