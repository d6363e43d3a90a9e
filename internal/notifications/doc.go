// Package notifications delivers capture session results via ntfy.
//
// NewService returns a no-op implementation when no topic is configured, so
// callers never need to check. SessionRecorder wraps the session history
// and publishes a message each time a capture session finishes, without
// holding up the capture pipeline.
package notifications
