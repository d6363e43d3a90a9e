// Package preflight provides readiness checks for the filesystem paths,
// the device connection and the table catalog that daqbridge depends on.
//
// These checks run in two contexts:
//   - The daemon calls RunAll at startup and logs every failed check. A failed
//     check does not stop the daemon; capture refuses to start later if the
//     file cannot be created.
//   - The CLI "daqbridge status" command renders the results next to the
//     daemon state.
package preflight
