// Package record defines the typed records emitted by the device data stream.
//
// A stream is an unbounded sequence of Ready, Start, Frame and End values.
// Record is a closed sum type: only the four variants in this package satisfy
// it, so consumers can switch over the concrete types exhaustively.
package record
