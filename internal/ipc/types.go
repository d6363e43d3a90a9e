package ipc

import (
	"daqbridge/internal/attr"
	"daqbridge/internal/capture"
	"daqbridge/internal/daemon"
	"daqbridge/internal/logging"
	"daqbridge/internal/sessions"
	"daqbridge/internal/table"
)

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse wraps the daemon status.
type StatusResponse struct {
	Status daemon.Status `json:"status"`
}

// CaptureRequest starts or stops capturing.
type CaptureRequest struct{}

// CaptureResponse reports the capture state after the request.
type CaptureResponse struct {
	State capture.State `json:"state"`
}

// AttrListRequest lists attributes by name prefix.
type AttrListRequest struct {
	Prefix string `json:"prefix"`
}

// AttrListResponse contains matching attributes.
type AttrListResponse struct {
	Attributes []attr.Snapshot `json:"attributes"`
}

// AttrGetRequest reads one attribute by name or alias.
type AttrGetRequest struct {
	Name string `json:"name"`
}

// AttrPutRequest writes one attribute. Value is converted to the
// attribute's kind by the daemon.
type AttrPutRequest struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

// AttrResponse contains one attribute.
type AttrResponse struct {
	Attribute attr.Snapshot `json:"attribute"`
}

// TableListRequest lists configured tables.
type TableListRequest struct{}

// TableListResponse contains table names.
type TableListResponse struct {
	Names []string `json:"names"`
}

// TableShowRequest fetches one table.
type TableShowRequest struct {
	Name string `json:"name"`
}

// TableShowResponse contains the table contents.
type TableShowResponse struct {
	Table table.Snapshot `json:"table"`
}

// SessionsRequest lists recent capture sessions.
type SessionsRequest struct {
	Limit int `json:"limit"`
}

// SessionsResponse contains sessions, newest first.
type SessionsResponse struct {
	Sessions []sessions.Session `json:"sessions"`
}

// LogsRequest fetches log events after Since. Tail returns the most recent
// events instead; Follow waits up to WaitMillis for new events.
type LogsRequest struct {
	Since      uint64 `json:"since"`
	Limit      int    `json:"limit"`
	Tail       bool   `json:"tail"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
	Component  string `json:"component,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
}

// LogsResponse returns events and the cursor for the next request.
type LogsResponse struct {
	Events []logging.LogEvent `json:"events"`
	Next   uint64             `json:"next"`
}
