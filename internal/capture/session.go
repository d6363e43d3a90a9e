package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"daqbridge/internal/attr"
	"daqbridge/internal/logging"
	"daqbridge/internal/pipeline"
	"daqbridge/internal/record"
	"daqbridge/internal/services"
	"daqbridge/internal/sessions"
)

// session is the state of one RunSession call.
type session struct {
	c          *Controller
	id         string
	logger     *slog.Logger
	filenameFn func() (string, error)
	target     int
	flush      time.Duration

	pipeline *pipeline.Pipeline
	filename string
	active   string
	rows     int
	acqRows  int
	recorded bool
	progress *logging.ProgressSampler

	// terminal is enqueued by finalize when set; forwarded upstream Ends
	// are enqueued by the loop instead.
	terminal *record.End
	reason   record.EndReason
	status   string
	severity attr.Severity
	alarm    attr.Alarm
}

// RunSession consumes the record stream until the target is reached, the
// device ends the acquisition, the stream fails, or ctx is cancelled. Errors
// never escape; the outcome is published on the Status attribute.
func (c *Controller) RunSession(ctx context.Context, filenameFn func() (string, error), target int, flush time.Duration) {
	s := &session{
		c:          c,
		id:         uuid.NewString(),
		filenameFn: filenameFn,
		target:     target,
		flush:      flush,
		progress:   logging.NewProgressSampler(10),
		reason:     record.EndOK,
		status:     StatusDisabled,
	}
	ctx = services.WithSessionID(ctx, s.id)
	s.logger = logging.WithContext(ctx, c.logger)
	c.setLastSession(s.id)

	// A replaced session clears Capture on its way out.
	c.publish(ctx, c.capture, true, attr.Quiet())
	c.publish(ctx, c.capturing, true)
	c.publish(ctx, c.numCaptured, int64(0))
	c.publish(ctx, c.status, StatusOK)
	c.metrics.SetCaptureActive(true)
	s.logger.Info("capture session started",
		logging.String(logging.FieldEventType, "capture_session_started"),
		logging.Int("target_rows", target),
		logging.Duration("flush_period", flush),
	)

	defer s.finalize(context.WithoutCancel(ctx))
	s.run(ctx)
}

func (s *session) run(ctx context.Context) {
	stream, err := s.c.source.Open(ctx, s.c.scaled, s.flush)
	if err != nil {
		s.fail(ctx, err)
		return
	}
	defer stream.Close()

	for {
		rec, err := stream.Next(ctx)
		if err != nil {
			s.fail(ctx, err)
			return
		}
		switch r := rec.(type) {
		case record.Ready:
			s.acqRows = 0
			s.progress.Reset()
		case record.Start:
			if done := s.onStart(ctx, r); done {
				return
			}
		case record.Frame:
			if done := s.onFrame(ctx, r); done {
				return
			}
		case record.End:
			s.onEnd(r)
			return
		}
	}
}

func (s *session) onStart(ctx context.Context, start record.Start) bool {
	identity := start.Identity()
	if s.pipeline == nil {
		filename, err := s.filenameFn()
		if err == nil {
			s.pipeline, err = s.c.factory.Create(ctx, filename, s.flush)
		}
		if err != nil {
			s.logger.Error("capture file could not be created",
				logging.String(logging.FieldEventType, "capture_file_failed"),
				logging.String(logging.FieldErrorHint, "check FilePath exists and is writable"),
				logging.Error(err),
			)
			s.setOutcome(record.EndUnknownException, StatusFileError, attr.Major, attr.AlarmState)
			return true
		}
		s.filename = filename
		s.active = identity
		s.record(ctx, identity)
		s.pipeline.Enqueue(start)
		return false
	}
	if identity != s.active {
		s.logger.Warn("schema changed mid session",
			logging.String(logging.FieldEventType, "capture_start_mismatch"),
			logging.String(logging.FieldErrorHint, "start a new capture file for the new field layout"),
			logging.String("active_schema", s.active),
			logging.String("new_schema", identity),
		)
		s.terminate(record.End{RowsWritten: s.rows, Reason: record.EndStartMismatch},
			StatusStartMismatch, attr.Major, attr.AlarmState)
		return true
	}
	// Re-arm with the same layout continues the file; the writer already
	// has the header.
	return false
}

func (s *session) onFrame(ctx context.Context, frame record.Frame) bool {
	if s.pipeline == nil {
		s.logger.Debug("dropping frame before start", logging.Int("rows", frame.RowCount()))
		return false
	}
	if s.target > 0 && s.rows+frame.RowCount() > s.target {
		frame = record.Frame{Rows: frame.Rows[:s.target-s.rows]}
	}
	s.pipeline.Enqueue(frame)
	n := frame.RowCount()
	s.rows += n
	s.acqRows += n
	s.c.metrics.RecordRows(n)
	s.c.publish(ctx, s.c.numCaptured, int64(s.rows))

	if s.target > 0 {
		percent := float64(s.rows) * 100 / float64(s.target)
		if s.progress.ShouldLog(percent) {
			s.logger.Info("capture progress",
				logging.Float64(logging.FieldProgress, min(percent, 100)),
				logging.Int(logging.FieldRowsWritten, s.rows),
			)
		}
		if s.rows >= s.target {
			s.terminate(record.End{RowsWritten: s.target, Reason: record.EndOK},
				StatusTargetReached, attr.NoAlarm, attr.AlarmNone)
			return true
		}
	}
	return false
}

func (s *session) onEnd(end record.End) {
	if s.pipeline != nil {
		s.pipeline.Enqueue(end)
	}
	sev, alarm := attr.NoAlarm, attr.AlarmNone
	if end.Reason.IsError() {
		sev, alarm = attr.Major, attr.AlarmState
	}
	s.setOutcome(end.Reason, finishedByDevice(end.Reason), sev, alarm)
	if end.RowsWritten > s.rows {
		s.rows = end.RowsWritten
	}
}

func (s *session) fail(ctx context.Context, err error) {
	switch {
	case ctx.Err() != nil:
		s.terminate(record.End{RowsWritten: s.rows, Reason: record.EndOK},
			StatusDisabled, attr.NoAlarm, attr.AlarmNone)
	case errors.Is(err, io.EOF):
		logging.WarnWithContext(s.logger, "device closed the data stream",
			"capture_disconnected",
			logging.String(logging.FieldErrorHint, "check the device is powered and reachable"),
			logging.Int(logging.FieldRowsWritten, s.rows),
		)
		s.terminate(record.End{RowsWritten: s.rows, Reason: record.EndEarlyDisconnect},
			StatusDisconnected, attr.Major, attr.AlarmComm)
	default:
		logging.ErrorWithContext(s.logger, "capture stream failed",
			"capture_stream_failed",
			logging.String(logging.FieldErrorHint, "see the error for the failing component; capture must be re-enabled"),
			logging.String(logging.FieldImpact, "the capture file ends at the last received frame"),
			logging.Error(err),
		)
		alarm := attr.AlarmState
		if errors.Is(err, services.ErrTransport) {
			alarm = attr.AlarmComm
		}
		s.terminate(record.End{RowsWritten: s.rows, Reason: record.EndUnknownException},
			StatusUnexpected, attr.Major, alarm)
	}
}

func (s *session) terminate(end record.End, status string, sev attr.Severity, alarm attr.Alarm) {
	s.terminal = &end
	s.setOutcome(end.Reason, status, sev, alarm)
}

func (s *session) setOutcome(reason record.EndReason, status string, sev attr.Severity, alarm attr.Alarm) {
	s.reason = reason
	s.status = status
	s.severity = sev
	s.alarm = alarm
}

func (s *session) record(ctx context.Context, identity string) {
	if s.c.recorder == nil {
		return
	}
	_, err := s.c.recorder.Begin(ctx, sessions.Session{
		ID:             s.id,
		Filename:       s.filename,
		Target:         s.target,
		FlushPeriod:    s.flush,
		SchemaIdentity: identity,
	})
	if err != nil {
		s.logger.Warn("session history unavailable",
			logging.String(logging.FieldEventType, "session_record_failed"),
			logging.String(logging.FieldErrorHint, "check the state directory is writable"),
			logging.Error(err),
		)
		return
	}
	s.recorded = true
}

// finalize runs on every exit path. ctx is detached from the session
// cancellation so the drain always completes.
func (s *session) finalize(ctx context.Context) {
	c := s.c
	if s.pipeline != nil {
		if s.terminal != nil {
			s.pipeline.Enqueue(*s.terminal)
		}
		if err := s.pipeline.Stop(ctx); err != nil {
			s.logger.Error("capture pipeline did not stop cleanly",
				logging.String(logging.FieldEventType, "capture_pipeline_stop_failed"),
				logging.String(logging.FieldErrorHint, "the capture file may be incomplete"),
				logging.Error(err),
			)
		}
	}

	c.publish(ctx, c.numCaptured, int64(s.rows))
	c.publish(ctx, c.status, s.status, attr.WithSeverity(s.severity, s.alarm))
	c.publish(ctx, c.lastEndReason, string(s.reason))
	c.metrics.RecordSessionEnd(string(s.reason))
	c.metrics.SetCaptureActive(false)

	if s.recorded {
		err := c.recorder.Finish(ctx, s.id, sessions.Outcome{
			RowsWritten: s.rows,
			EndReason:   s.reason,
			Status:      s.status,
		})
		if err != nil {
			s.logger.Warn("session outcome not recorded",
				logging.String(logging.FieldEventType, "session_record_failed"),
				logging.String(logging.FieldErrorHint, "check the state directory is writable"),
				logging.Error(err),
			)
		}
	}

	s.logger.Info("capture session finished",
		logging.String(logging.FieldEventType, "capture_session_finished"),
		logging.String(logging.FieldEndReason, string(s.reason)),
		logging.Int(logging.FieldRowsWritten, s.rows),
		logging.String(logging.FieldStatus, s.status),
		logging.String(logging.FieldFilename, s.filename),
	)

	c.publish(ctx, c.capture, false, attr.Quiet())
	c.publish(ctx, c.capturing, false)
}
