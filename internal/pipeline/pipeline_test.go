package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daqbridge/internal/record"
)

type recordingHandler struct {
	mu      sync.Mutex
	seen    []record.Record
	closed  int
	gate    chan struct{}
	failOn  string
	closeFn func() error
}

func (h *recordingHandler) Handle(_ context.Context, rec record.Record) ([]record.Record, error) {
	if h.gate != nil {
		<-h.gate
	}
	if h.failOn != "" && rec.Kind() == h.failOn {
		return nil, errors.New("boom")
	}
	h.mu.Lock()
	h.seen = append(h.seen, rec)
	h.mu.Unlock()
	return []record.Record{rec}, nil
}

func (h *recordingHandler) Close() error {
	h.mu.Lock()
	h.closed++
	h.mu.Unlock()
	if h.closeFn != nil {
		return h.closeFn()
	}
	return nil
}

func (h *recordingHandler) kinds() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.seen))
	for i, r := range h.seen {
		out[i] = r.Kind()
	}
	return out
}

func TestPipelineForwardsInOrderAndStopsOnce(t *testing.T) {
	first := &recordingHandler{}
	second := &recordingHandler{}
	p, err := New(context.Background(), nil,
		NamedHandler{Name: "first", Handler: first},
		NamedHandler{Name: "second", Handler: second},
	)
	require.NoError(t, err)

	p.Enqueue(record.Ready{})
	p.Enqueue(record.Start{})
	p.Enqueue(record.Frame{Rows: [][]float64{{1}}})
	p.Enqueue(record.End{RowsWritten: 1, Reason: record.EndOK})

	require.NoError(t, p.Stop(context.Background()))
	require.NoError(t, p.Stop(context.Background()))
	assert.True(t, p.Stopped())

	want := []string{"ready", "start", "frame", "end"}
	assert.Equal(t, want, first.kinds())
	assert.Equal(t, want, second.kinds())
	assert.Equal(t, 1, first.closed)
	assert.Equal(t, 1, second.closed)
}

func TestEnqueueDoesNotBlockOnSlowStage(t *testing.T) {
	gate := make(chan struct{})
	slow := &recordingHandler{gate: gate}
	p, err := New(context.Background(), nil, NamedHandler{Name: "slow", Handler: slow})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		for range 1000 {
			p.Enqueue(record.Frame{})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Enqueue blocked behind a stalled stage")
	}

	close(gate)
	require.NoError(t, p.Stop(context.Background()))
	assert.Len(t, slow.kinds(), 1000)
}

func TestStopReturnsFirstHandlerError(t *testing.T) {
	failing := &recordingHandler{failOn: "frame"}
	after := &recordingHandler{}
	p, err := New(context.Background(), nil,
		NamedHandler{Name: "failing", Handler: failing},
		NamedHandler{Name: "after", Handler: after},
	)
	require.NoError(t, err)

	p.Enqueue(record.Start{})
	p.Enqueue(record.Frame{})
	p.Enqueue(record.End{})
	err = p.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stage failing")
	assert.Equal(t, []string{"start"}, failing.kinds(), "records after a failure are dropped")
	assert.Equal(t, 1, after.closed, "downstream stages still close")
}

func TestStopReportsCloseError(t *testing.T) {
	h := &recordingHandler{closeFn: func() error { return errors.New("disk full") }}
	p, err := New(context.Background(), nil, NamedHandler{Name: "only", Handler: h})
	require.NoError(t, err)
	err = p.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}

func TestStopWaitHonoursContext(t *testing.T) {
	gate := make(chan struct{})
	h := &recordingHandler{gate: gate}
	p, err := New(context.Background(), nil, NamedHandler{Name: "stuck", Handler: h})
	require.NoError(t, err)
	p.Enqueue(record.Frame{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Stop(ctx), context.DeadlineExceeded)
	assert.False(t, p.Stopped())

	close(gate)
	require.NoError(t, p.Stop(context.Background()))
	assert.Equal(t, 1, h.closed)
}

func TestNewRequiresStages(t *testing.T) {
	_, err := New(context.Background(), nil)
	assert.Error(t, err)
}

func TestConvertScalesRawFrames(t *testing.T) {
	h := &convertHandler{}
	ctx := context.Background()
	start := record.Start{
		Process: record.ProcessRaw,
		Fields: []record.FieldCapture{
			{Name: "A", Scale: 2, Offset: 1},
			{Name: "B", Scale: 0.5},
		},
	}
	_, err := h.Handle(ctx, start)
	require.NoError(t, err)
	out, err := h.Handle(ctx, record.Frame{Rows: [][]float64{{1, 4}, {2, 8}}})
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, [][]float64{{3, 2}, {5, 4}}, out[0].(record.Frame).Rows)
	assert.Equal(t, 2, h.rows)

	_, err = h.Handle(ctx, record.Start{Process: record.ProcessScaled, Fields: start.Fields})
	require.NoError(t, err)
	out, err = h.Handle(ctx, record.Frame{Rows: [][]float64{{1, 4}}})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 4}}, out[0].(record.Frame).Rows, "scaled streams pass through")
}

func readCapture(t *testing.T, path string) (comments []string, rows [][]string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if strings.HasPrefix(line, "#") {
			comments = append(comments, line)
		}
	}
	r := csv.NewReader(strings.NewReader(string(data)))
	r.Comment = '#'
	r.FieldsPerRecord = -1
	rows, err = r.ReadAll()
	require.NoError(t, err)
	return comments, rows
}

func TestDefaultFactoryWritesCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "run.csv")
	p, err := DefaultFactory{}.Create(context.Background(), path, time.Hour)
	require.NoError(t, err)

	start := record.Start{
		Process: record.ProcessRaw,
		Format:  "Framed",
		Fields: []record.FieldCapture{
			{Name: "COUNTER1.OUT", Capture: "Value", Scale: 10},
			{Name: "PCAP.TS_TRIG", Capture: "Value", Scale: 1},
		},
	}
	p.Enqueue(record.Ready{})
	p.Enqueue(start)
	p.Enqueue(record.Frame{Rows: [][]float64{{1, 0.5}, {2, 1.5}}})
	p.Enqueue(start)
	p.Enqueue(record.Frame{Rows: [][]float64{{3, 2.5}}})
	p.Enqueue(record.End{RowsWritten: 3, Reason: record.EndOK})
	require.NoError(t, p.Stop(context.Background()))

	comments, rows := readCapture(t, path)
	assert.Equal(t, [][]string{
		{"COUNTER1.OUT.Value", "PCAP.TS_TRIG.Value"},
		{"10", "0.5"},
		{"20", "1.5"},
		{"30", "2.5"},
	}, rows)
	assert.Equal(t, []string{
		"# process=Raw format=Framed missed=0",
		"# end reason=OK rows=3",
	}, comments)
}

func TestCSVWriterFlushesOnPeriod(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.csv")
	clock := time.Unix(0, 0)
	w, err := newCSVWriter(path, time.Second, func() time.Time { return clock })
	require.NoError(t, err)
	ctx := context.Background()

	_, err = w.Handle(ctx, record.Start{Fields: []record.FieldCapture{{Name: "A"}}})
	require.NoError(t, err)
	_, err = w.Handle(ctx, record.Frame{Rows: [][]float64{{1}}})
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "\n1\n", "rows stay buffered inside the flush period")

	clock = clock.Add(2 * time.Second)
	_, err = w.Handle(ctx, record.Frame{Rows: [][]float64{{2}}})
	require.NoError(t, err)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "A\n1\n2\n")

	require.NoError(t, w.Close())
	comments, _ := readCapture(t, path)
	assert.Contains(t, comments, "# end reason=UNKNOWN_EXCEPTION rows=2")
}

func TestDefaultFactoryRejectsUnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))
	_, err := DefaultFactory{}.Create(context.Background(), filepath.Join(blocker, "run.csv"), time.Second)
	assert.Error(t, err)
}
