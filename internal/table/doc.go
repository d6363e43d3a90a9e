// Package table converts device tables between their packed word form and
// per-field value columns, and drives the edit lifecycle of each table.
//
// A table row is a fixed number of 32-bit words. Each field occupies an
// inclusive bit range within the row and may straddle a word boundary. The
// device exchanges tables as a row-major list of words rendered as unsigned
// decimal text.
//
// Editor layers the View/Edit/Submit/Discard state machine on top of the
// codec and publishes the columns as attributes.
package table
