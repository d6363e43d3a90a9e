package capture

import (
	"context"
	"sync"
)

// Supervisor runs at most one session task at a time.
type Supervisor struct {
	base context.Context

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSupervisor creates a supervisor whose tasks derive from base, so they
// outlive the request that enabled them.
func NewSupervisor(base context.Context) *Supervisor {
	if base == nil {
		base = context.Background()
	}
	return &Supervisor{base: base}
}

// Enable cancels and awaits a running task, then starts run. It returns
// ctx.Err() if ctx ends while waiting for the previous task; no new task is
// started in that case.
func (s *Supervisor) Enable(ctx context.Context, run func(context.Context)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.stopLocked(ctx); err != nil {
		return err
	}
	taskCtx, cancel := context.WithCancel(s.base)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done
	go func() {
		defer close(done)
		defer cancel()
		run(taskCtx)
	}()
	return nil
}

// Disable cancels the running task, if any, and waits for it to return.
func (s *Supervisor) Disable(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopLocked(ctx)
}

func (s *Supervisor) stopLocked(ctx context.Context) error {
	if s.done == nil {
		return nil
	}
	s.cancel()
	select {
	case <-s.done:
		s.cancel, s.done = nil, nil
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether a task has been started and not yet returned.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Wait blocks until the current task, if any, returns.
func (s *Supervisor) Wait(ctx context.Context) error {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
