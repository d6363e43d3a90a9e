package testsupport

import (
	"context"
	"testing"
	"time"

	"daqbridge/internal/config"
	"daqbridge/internal/record"
	"daqbridge/internal/sessions"
)

// MustOpenStore opens the session store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *sessions.Store {
	t.Helper()

	store, err := sessions.Open(cfg.SessionsPath())
	if err != nil {
		t.Fatalf("sessions.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// FinishedSession records a completed session and returns its id.
func FinishedSession(t testing.TB, store *sessions.Store, filename string, rows int, reason record.EndReason) string {
	t.Helper()

	ctx := context.Background()
	id, err := store.Begin(ctx, sessions.Session{Filename: filename, FlushPeriod: time.Second})
	if err != nil {
		t.Fatalf("store.Begin: %v", err)
	}
	if err := store.Finish(ctx, id, sessions.Outcome{RowsWritten: rows, EndReason: reason, Status: "OK"}); err != nil {
		t.Fatalf("store.Finish: %v", err)
	}
	return id
}
