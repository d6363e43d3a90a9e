package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daqbridge/internal/config"
	"daqbridge/internal/notifications"
	"daqbridge/internal/record"
	"daqbridge/internal/sessions"
)

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newNtfyServer(t *testing.T, status int) (*httptest.Server, func() []captured) {
	t.Helper()
	var (
		mu   sync.Mutex
		seen []captured
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		seen = append(seen, captured{
			title:    r.Header.Get("Title"),
			tags:     r.Header.Get("Tags"),
			priority: r.Header.Get("Priority"),
			body:     string(body),
		})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), seen...)
	}
}

func configFor(topic string) *config.Config {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = topic
	return &cfg
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	svc := notifications.NewService(configFor(""))
	require.NoError(t, svc.NotifySessionFinished(context.Background(), notifications.Summary{Filename: "a.csv"}))
	require.NoError(t, svc.TestNotification(context.Background()))
	require.NoError(t, notifications.NewService(nil).TestNotification(context.Background()))
}

func TestNotifySessionFinishedFormatsPayloads(t *testing.T) {
	srv, seen := newNtfyServer(t, http.StatusOK)
	svc := notifications.NewService(configFor(srv.URL))

	require.NoError(t, svc.NotifySessionFinished(context.Background(), notifications.Summary{
		Filename: "/data/run1.csv",
		Rows:     10,
		Target:   10,
		Reason:   record.EndOK,
		Duration: 90 * time.Second,
	}))
	require.NoError(t, svc.NotifySessionFinished(context.Background(), notifications.Summary{
		Filename: "/data/run2.csv",
		Rows:     4,
		Reason:   record.EndDataOverrun,
		Status:   "Capturing disabled, data overrun",
	}))

	got := seen()
	require.Len(t, got, 2)
	assert.Equal(t, "daqbridge - Capture Complete", got[0].title)
	assert.Equal(t, "run1.csv: 10/10 rows in 1m30s", got[0].body)
	assert.Equal(t, "daqbridge,capture,completed", got[0].tags)
	assert.Empty(t, got[0].priority)

	assert.Equal(t, "daqbridge - Capture Failed", got[1].title)
	assert.Contains(t, got[1].body, "run2.csv: 4 rows (DATA_OVERRUN)")
	assert.Contains(t, got[1].body, "data overrun")
	assert.Equal(t, "high", got[1].priority)
}

func TestNotifyReportsHTTPErrors(t *testing.T) {
	srv, _ := newNtfyServer(t, http.StatusForbidden)
	err := notifications.NewService(configFor(srv.URL)).TestNotification(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

type fakeRecorder struct {
	finishErr error
	finished  []string
}

func (f *fakeRecorder) Begin(_ context.Context, sess sessions.Session) (string, error) {
	return sess.ID, nil
}

func (f *fakeRecorder) Finish(_ context.Context, id string, _ sessions.Outcome) error {
	f.finished = append(f.finished, id)
	return f.finishErr
}

type recordingService struct {
	mu        sync.Mutex
	summaries []notifications.Summary
	err       error
}

func (r *recordingService) NotifySessionFinished(_ context.Context, s notifications.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.summaries = append(r.summaries, s)
	return r.err
}

func (r *recordingService) TestNotification(context.Context) error { return nil }

func (r *recordingService) all() []notifications.Summary {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notifications.Summary(nil), r.summaries...)
}

func TestSessionRecorderNotifiesOnFinish(t *testing.T) {
	next := &fakeRecorder{}
	svc := &recordingService{}
	rec := notifications.NewSessionRecorder(next, svc, false, nil)
	ctx := context.Background()

	start := time.Now().Add(-time.Minute)
	id, err := rec.Begin(ctx, sessions.Session{ID: "s1", Filename: "/data/a.csv", Target: 5, StartedAt: start})
	require.NoError(t, err)
	require.NoError(t, rec.Finish(ctx, id, sessions.Outcome{RowsWritten: 5, EndReason: record.EndOK, EndedAt: start.Add(30 * time.Second)}))
	rec.Wait()

	assert.Equal(t, []string{"s1"}, next.finished)
	got := svc.all()
	require.Len(t, got, 1)
	assert.Equal(t, "/data/a.csv", got[0].Filename)
	assert.Equal(t, 5, got[0].Target)
	assert.Equal(t, 30*time.Second, got[0].Duration)
}

func TestSessionRecorderOnlyErrors(t *testing.T) {
	svc := &recordingService{}
	rec := notifications.NewSessionRecorder(&fakeRecorder{}, svc, true, nil)
	ctx := context.Background()

	_, err := rec.Begin(ctx, sessions.Session{ID: "ok", Filename: "a.csv"})
	require.NoError(t, err)
	require.NoError(t, rec.Finish(ctx, "ok", sessions.Outcome{EndReason: record.EndManuallyStopped}))
	_, err = rec.Begin(ctx, sessions.Session{ID: "bad", Filename: "b.csv"})
	require.NoError(t, err)
	require.NoError(t, rec.Finish(ctx, "bad", sessions.Outcome{EndReason: record.EndEarlyDisconnect}))
	rec.Wait()

	got := svc.all()
	require.Len(t, got, 1)
	assert.Equal(t, record.EndEarlyDisconnect, got[0].Reason)
}

func TestSessionRecorderSkipsWhenHistoryFails(t *testing.T) {
	next := &fakeRecorder{finishErr: errors.New("disk full")}
	svc := &recordingService{err: errors.New("unreachable")}
	rec := notifications.NewSessionRecorder(next, svc, false, nil)
	ctx := context.Background()

	_, err := rec.Begin(ctx, sessions.Session{ID: "s", Filename: "a.csv"})
	require.NoError(t, err)
	err = rec.Finish(ctx, "s", sessions.Outcome{EndReason: record.EndOK})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "disk full"))
	rec.Wait()
	assert.Empty(t, svc.all())

	// unknown ids are forwarded without a notification
	next.finishErr = nil
	require.NoError(t, rec.Finish(ctx, "never-begun", sessions.Outcome{}))
	rec.Wait()
	assert.Empty(t, svc.all())
}
