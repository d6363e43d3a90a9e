package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"daqbridge/internal/logging"
	"daqbridge/internal/pipeline"
	"daqbridge/internal/record"
	"daqbridge/internal/sessions"
)

type step struct {
	rec record.Record
	err error
}

// fakeStream replays steps, then blocks until the context ends.
type fakeStream struct {
	steps   []step
	pos     int
	drained chan struct{}
	once    sync.Once
	closed  int
}

func (s *fakeStream) Next(ctx context.Context) (record.Record, error) {
	if s.pos < len(s.steps) {
		st := s.steps[s.pos]
		s.pos++
		return st.rec, st.err
	}
	s.once.Do(func() { close(s.drained) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *fakeStream) Close() error {
	s.closed++
	return nil
}

type fakeSource struct {
	mu      sync.Mutex
	steps   []step
	err     error
	streams []*fakeStream
}

func (f *fakeSource) Open(_ context.Context, _ bool, _ time.Duration) (record.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	st := &fakeStream{steps: append([]step(nil), f.steps...), drained: make(chan struct{})}
	f.streams = append(f.streams, st)
	return st, nil
}

func (f *fakeSource) stream(t *testing.T, i int) *fakeStream {
	t.Helper()
	var st *fakeStream
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		if len(f.streams) <= i {
			return false
		}
		st = f.streams[i]
		return true
	}, 2*time.Second, 5*time.Millisecond)
	return st
}

type recordingHandler struct {
	mu     sync.Mutex
	seen   []record.Record
	closed int
}

func (h *recordingHandler) Handle(_ context.Context, rec record.Record) ([]record.Record, error) {
	h.mu.Lock()
	h.seen = append(h.seen, rec)
	h.mu.Unlock()
	return nil, nil
}

func (h *recordingHandler) Close() error {
	h.mu.Lock()
	h.closed++
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) records() []record.Record {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]record.Record(nil), h.seen...)
}

func (h *recordingHandler) closes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

type fakeFactory struct {
	mu        sync.Mutex
	err       error
	filenames []string
	handlers  []*recordingHandler
}

func (f *fakeFactory) Create(ctx context.Context, filename string, _ time.Duration) (*pipeline.Pipeline, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	h := &recordingHandler{}
	f.handlers = append(f.handlers, h)
	f.filenames = append(f.filenames, filename)
	return pipeline.New(ctx, logging.NewNop(), pipeline.NamedHandler{Name: "record", Handler: h})
}

func (f *fakeFactory) handler(t *testing.T, i int) *recordingHandler {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Greater(t, len(f.handlers), i, "pipeline %d was never created", i)
	return f.handlers[i]
}

func (f *fakeFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

type fakeRecorder struct {
	mu       sync.Mutex
	begun    []sessions.Session
	outcomes map[string]sessions.Outcome
}

func (r *fakeRecorder) Begin(_ context.Context, sess sessions.Session) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.begun = append(r.begun, sess)
	return sess.ID, nil
}

func (r *fakeRecorder) Finish(_ context.Context, id string, out sessions.Outcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = make(map[string]sessions.Outcome)
	}
	r.outcomes[id] = out
	return nil
}

func field(name string) record.FieldCapture {
	return record.FieldCapture{Name: name, Type: "uint32", Capture: "Value", Scale: 1}
}

func startOf(names ...string) record.Start {
	fields := make([]record.FieldCapture, len(names))
	for i, n := range names {
		fields[i] = field(n)
	}
	return record.Start{Fields: fields, Process: record.ProcessScaled, Format: "Framed", SampleBytes: 52}
}

func frameOf(rows int) record.Frame {
	f := record.Frame{Rows: make([][]float64, rows)}
	for i := range rows {
		f.Rows[i] = []float64{float64(i)}
	}
	return f
}

func recs(items ...record.Record) []step {
	steps := make([]step, len(items))
	for i, it := range items {
		steps[i] = step{rec: it}
	}
	return steps
}

type fixture struct {
	ctrl     *Controller
	source   *fakeSource
	factory  *fakeFactory
	recorder *fakeRecorder
}

func newFixture(t *testing.T, steps []step) *fixture {
	t.Helper()
	f := &fixture{
		source:   &fakeSource{steps: steps},
		factory:  &fakeFactory{},
		recorder: &fakeRecorder{},
	}
	ctrl, err := NewController(Options{
		Prefix:   "DAQ",
		FilePath: t.TempDir(),
		FileName: "run.csv",
		Source:   f.source,
		Factory:  f.factory,
		Recorder: f.recorder,
		Logger:   logging.NewNop(),
	})
	require.NoError(t, err)
	f.ctrl = ctrl
	return f
}
