// Package pipeline carries capture records from a session to its output file.
//
// A Pipeline is an ordered chain of stages. Each stage owns an unbounded FIFO
// so Enqueue never blocks the session loop, and a goroutine that feeds queued
// records to the stage Handler and forwards the handler output downstream.
// Stop pushes a stop marker through every stage in order, waits for the
// goroutines to drain, and closes the handlers.
//
// DefaultFactory builds the standard two stage chain: a convert stage that
// applies field scale and offset to raw streams, and a CSV writer that
// flushes on the configured period and appends a trailer naming the end
// reason.
package pipeline
