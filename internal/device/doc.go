// Package device talks to the acquisition hardware.
//
// Client speaks the line based control protocol on the control port: one
// command per request, answered by a single "OK" line, a multiline block
// terminated by ".", or an "ERR" line. DataSource opens the data port and
// decodes the newline delimited JSON record stream consumed by capture
// sessions.
package device
