// Package sessions records capture session history in SQLite.
//
// Each capture session gets one row: Begin stores the filename, target and
// flush period when the pipeline opens, and Finish fills in the rows written,
// end reason and final status. List feeds the `daqbridge sessions` command
// and the HTTP API; PruneBefore enforces capture.history_days.
package sessions
