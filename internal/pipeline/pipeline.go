package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"daqbridge/internal/logging"
	"daqbridge/internal/record"
)

// Handler processes the records reaching one stage. Handle returns the
// records to forward to the next stage; Close runs once after the stop
// marker has passed.
type Handler interface {
	Handle(ctx context.Context, rec record.Record) ([]record.Record, error)
	Close() error
}

// Factory creates the pipeline for one capture session.
type Factory interface {
	Create(ctx context.Context, filename string, flush time.Duration) (*Pipeline, error)
}

type item struct {
	rec  record.Record
	stop bool
}

// Stage is one step of a pipeline.
type Stage struct {
	name    string
	handler Handler
	logger  *slog.Logger
	next    *Stage

	mu     sync.Mutex
	queue  []item
	signal chan struct{}
	done   chan struct{}
	err    error
}

func newStage(name string, handler Handler, logger *slog.Logger) *Stage {
	return &Stage{
		name:    name,
		handler: handler,
		logger:  logger.With(logging.String("stage", name)),
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

// Name returns the stage name.
func (s *Stage) Name() string { return s.name }

// Enqueue appends a record to the stage queue without blocking.
func (s *Stage) Enqueue(rec record.Record) {
	s.push(item{rec: rec})
}

func (s *Stage) push(it item) {
	s.mu.Lock()
	s.queue = append(s.queue, it)
	s.mu.Unlock()
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *Stage) take() []item {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := s.queue
	s.queue = nil
	return batch
}

// Pending returns the number of queued records.
func (s *Stage) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

func (s *Stage) run(ctx context.Context) {
	defer close(s.done)
	for range s.signal {
		for _, it := range s.take() {
			if it.stop {
				s.finish()
				return
			}
			s.handle(ctx, it.rec)
		}
	}
}

func (s *Stage) handle(ctx context.Context, rec record.Record) {
	if s.err != nil {
		return
	}
	out, err := s.handler.Handle(ctx, rec)
	if err != nil {
		s.err = fmt.Errorf("stage %s: %w", s.name, err)
		s.logger.Error("pipeline stage failed; dropping later records",
			logging.String(logging.FieldEventType, "pipeline_stage_failed"),
			logging.String(logging.FieldErrorHint, "check the capture directory is writable"),
			logging.Error(err),
		)
		return
	}
	if s.next == nil {
		return
	}
	for _, r := range out {
		s.next.Enqueue(r)
	}
}

func (s *Stage) finish() {
	if err := s.handler.Close(); err != nil && s.err == nil {
		s.err = fmt.Errorf("stage %s close: %w", s.name, err)
	}
	if s.next != nil {
		s.next.push(item{stop: true})
	}
}

// Pipeline is an ordered chain of running stages.
type Pipeline struct {
	Stages []*Stage

	stopOnce sync.Once
	stopErr  error
	stopped  chan struct{}
}

// NamedHandler pairs a handler with the stage name used in logs.
type NamedHandler struct {
	Name    string
	Handler Handler
}

// New starts one goroutine per handler. The pipeline context is detached
// from ctx cancellation so a cancelled session can still drain.
func New(ctx context.Context, logger *slog.Logger, handlers ...NamedHandler) (*Pipeline, error) {
	if len(handlers) == 0 {
		return nil, errors.New("pipeline needs at least one stage")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	runCtx := context.WithoutCancel(ctx)
	p := &Pipeline{stopped: make(chan struct{})}
	for _, h := range handlers {
		p.Stages = append(p.Stages, newStage(h.Name, h.Handler, logger))
	}
	for i := range len(p.Stages) - 1 {
		p.Stages[i].next = p.Stages[i+1]
	}
	for _, s := range p.Stages {
		go s.run(runCtx)
	}
	return p, nil
}

// Enqueue hands a record to the first stage. It never blocks.
func (p *Pipeline) Enqueue(rec record.Record) {
	p.Stages[0].Enqueue(rec)
}

// Stop drains every stage in order and closes the handlers. Later calls
// return the result of the first. Cancelling ctx abandons the wait but not
// the drain.
func (p *Pipeline) Stop(ctx context.Context) error {
	p.stopOnce.Do(func() {
		p.Stages[0].push(item{stop: true})
		go func() {
			for _, s := range p.Stages {
				<-s.done
			}
			for _, s := range p.Stages {
				if s.err != nil {
					p.stopErr = s.err
					break
				}
			}
			close(p.stopped)
		}()
	})
	select {
	case <-p.stopped:
		return p.stopErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stopped reports whether Stop has completed.
func (p *Pipeline) Stopped() bool {
	select {
	case <-p.stopped:
		return true
	default:
		return false
	}
}
