package notifications

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"daqbridge/internal/logging"
	"daqbridge/internal/sessions"
)

const sendTimeout = 30 * time.Second

// Recorder is the session history the capture controller writes to.
type Recorder interface {
	Begin(ctx context.Context, sess sessions.Session) (string, error)
	Finish(ctx context.Context, id string, out sessions.Outcome) error
}

// SessionRecorder forwards to another Recorder and sends a notification
// after each successful Finish.
type SessionRecorder struct {
	next       Recorder
	service    Service
	onlyErrors bool
	logger     *slog.Logger

	mu      sync.Mutex
	started map[string]sessions.Session
	pending sync.WaitGroup
}

// NewSessionRecorder wraps next. With onlyErrors set, sessions that ended
// normally are not announced.
func NewSessionRecorder(next Recorder, service Service, onlyErrors bool, logger *slog.Logger) *SessionRecorder {
	if service == nil {
		service = noopService{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SessionRecorder{
		next:       next,
		service:    service,
		onlyErrors: onlyErrors,
		logger:     logger,
		started:    make(map[string]sessions.Session),
	}
}

// Begin records the session start.
func (r *SessionRecorder) Begin(ctx context.Context, sess sessions.Session) (string, error) {
	id, err := r.next.Begin(ctx, sess)
	if err != nil {
		return "", err
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	sess.ID = id
	r.mu.Lock()
	r.started[id] = sess
	r.mu.Unlock()
	return id, nil
}

// Finish records the outcome and queues the notification.
func (r *SessionRecorder) Finish(ctx context.Context, id string, out sessions.Outcome) error {
	err := r.next.Finish(ctx, id, out)

	r.mu.Lock()
	sess, ok := r.started[id]
	delete(r.started, id)
	r.mu.Unlock()

	if err != nil || !ok {
		return err
	}
	if r.onlyErrors && !out.EndReason.IsError() {
		return nil
	}

	ended := out.EndedAt
	if ended.IsZero() {
		ended = time.Now()
	}
	summary := Summary{
		Filename: sess.Filename,
		Rows:     out.RowsWritten,
		Target:   sess.Target,
		Reason:   out.EndReason,
		Status:   out.Status,
		Duration: ended.Sub(sess.StartedAt),
	}
	r.pending.Add(1)
	go func() {
		defer r.pending.Done()
		sendCtx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := r.service.NotifySessionFinished(sendCtx, summary); err != nil {
			logging.WarnWithContext(r.logger, "capture notification failed", "notification_failed",
				logging.String(logging.FieldSessionID, id),
				logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic and network access"),
				logging.Error(err),
			)
		}
	}()
	return nil
}

// Wait blocks until queued notifications have been sent.
func (r *SessionRecorder) Wait() {
	r.pending.Wait()
}
