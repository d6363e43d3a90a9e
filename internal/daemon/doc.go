// Package daemon coordinates the long-running daqbridge process.
//
// It wires the device client, the capture controller, the table editors and
// the session history into a single lifecycle with flock-based locking to
// prevent multiple instances. Background work is limited to the table poller,
// which keeps table attributes in step with the device, and the link monitor,
// which resets the control connection when the network link flaps. The HTTP
// API and the IPC server both call into Daemon; neither owns any state.
package daemon
