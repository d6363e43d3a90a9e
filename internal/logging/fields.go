package logging

// Standard structured logging keys.
const (
	FieldComponent     = "component"
	FieldSessionID     = "session_id"
	FieldTable         = "table"
	FieldMode          = "mode"
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	FieldErrorHint     = "error_hint"
	FieldImpact        = "impact"
	FieldAlert         = "alert"
	FieldEndReason     = "end_reason"
	FieldRowsWritten   = "rows_written"
	FieldFilename      = "filename"
	FieldCommand       = "command"
	FieldStatus        = "status"
	FieldProgress      = "progress_percent"
)
