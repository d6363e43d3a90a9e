package sessions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"daqbridge/internal/record"
	"daqbridge/internal/services"
)

// Session is one capture session.
type Session struct {
	ID             string           `json:"id"`
	Filename       string           `json:"filename"`
	Target         int              `json:"target"`
	FlushPeriod    time.Duration    `json:"flush_period"`
	SchemaIdentity string           `json:"schema_identity,omitempty"`
	StartedAt      time.Time        `json:"started_at"`
	EndedAt        *time.Time       `json:"ended_at,omitempty"`
	RowsWritten    int              `json:"rows_written"`
	EndReason      record.EndReason `json:"end_reason,omitempty"`
	Status         string           `json:"status,omitempty"`
}

// Active reports whether the session has not finished.
func (s Session) Active() bool { return s.EndedAt == nil }

// Duration returns the session length, or the time since start when active.
func (s Session) Duration(now time.Time) time.Duration {
	if s.EndedAt != nil {
		return s.EndedAt.Sub(s.StartedAt)
	}
	return now.Sub(s.StartedAt)
}

// Outcome is what Finish records.
type Outcome struct {
	RowsWritten int
	EndReason   record.EndReason
	Status      string
	EndedAt     time.Time
}

const sessionColumns = "id, filename, target, flush_period_ms, schema_identity, started_at, ended_at, rows_written, end_reason, status"

// Begin inserts a new session and returns its id. An empty ID is replaced by
// a random UUID and a zero StartedAt by the current time.
func (s *Store) Begin(ctx context.Context, sess Session) (string, error) {
	if strings.TrimSpace(sess.Filename) == "" {
		return "", services.Wrap(services.ErrValidation, "sessions", "begin", "filename required", nil)
	}
	if sess.ID == "" {
		sess.ID = uuid.NewString()
	}
	if sess.StartedAt.IsZero() {
		sess.StartedAt = time.Now()
	}
	_, err := s.execWithRetry(ctx,
		`INSERT INTO sessions (id, filename, target, flush_period_ms, schema_identity, started_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Filename, sess.Target, sess.FlushPeriod.Milliseconds(), sess.SchemaIdentity, formatTime(sess.StartedAt),
	)
	if err != nil {
		return "", fmt.Errorf("insert session: %w", err)
	}
	return sess.ID, nil
}

// Finish records the outcome of a session.
func (s *Store) Finish(ctx context.Context, id string, out Outcome) error {
	if out.EndedAt.IsZero() {
		out.EndedAt = time.Now()
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE sessions SET ended_at = ?, rows_written = ?, end_reason = ?, status = ? WHERE id = ?`,
		formatTime(out.EndedAt), out.RowsWritten, string(out.EndReason), out.Status, id,
	)
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return services.Wrap(services.ErrNotFound, "sessions", "update", "session "+id, nil)
	}
	return nil
}

// Get returns one session.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = ?", id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "sessions", "get", "session "+id, nil)
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// List returns the most recent sessions first. A limit of zero or less
// returns every session.
func (s *Store) List(ctx context.Context, limit int) ([]Session, error) {
	query := "SELECT " + sessionColumns + " FROM sessions ORDER BY started_at DESC, id"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

// PruneBefore deletes finished sessions that started before cutoff and
// returns how many were removed.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.execWithRetry(ctx,
		"DELETE FROM sessions WHERE ended_at IS NOT NULL AND started_at < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	return res.RowsAffected()
}

// CloseAbandoned finishes sessions left open by a crashed daemon.
func (s *Store) CloseAbandoned(ctx context.Context, status string) (int64, error) {
	res, err := s.execWithRetry(ctx,
		"UPDATE sessions SET ended_at = ?, end_reason = ?, status = ? WHERE ended_at IS NULL",
		formatTime(time.Now()), string(record.EndUnknownException), status)
	if err != nil {
		return 0, fmt.Errorf("close abandoned sessions: %w", err)
	}
	return res.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (*Session, error) {
	var (
		sess      Session
		flushMS   int64
		startedAt string
		endedAt   sql.NullString
		reason    string
	)
	if err := row.Scan(&sess.ID, &sess.Filename, &sess.Target, &flushMS, &sess.SchemaIdentity,
		&startedAt, &endedAt, &sess.RowsWritten, &reason, &sess.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.FlushPeriod = time.Duration(flushMS) * time.Millisecond
	sess.EndReason = record.EndReason(reason)
	var err error
	if sess.StartedAt, err = parseTime(startedAt); err != nil {
		return nil, err
	}
	if endedAt.Valid && endedAt.String != "" {
		t, err := parseTime(endedAt.String)
		if err != nil {
			return nil, err
		}
		sess.EndedAt = &t
	}
	return &sess, nil
}

// Timestamps are stored as fixed width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(timeLayout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse session time %q: %w", value, err)
	}
	return t, nil
}
