// Package supervisor owns the background goroutines of a set of signals and
// joins them at shutdown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/anggasct/phasesignal"
)

// Supervisor starts signals and helper goroutines under one cancellable
// context and keeps a join handle for each of them.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	handles []handle
	errs    []error
	wg      sync.WaitGroup
}

type handle struct {
	name string
	done <-chan struct{}
}

// New creates a supervisor whose context is derived from parent
func New(parent context.Context) *Supervisor {
	ctx, cancel := context.WithCancel(parent)
	return &Supervisor{ctx: ctx, cancel: cancel}
}

// Context returns the context handed to every supervised unit
func (s *Supervisor) Context() context.Context {
	return s.ctx
}

// StartSignal starts sig under the supervisor's context and tracks its loop.
// It panics if sig was already started.
func (s *Supervisor) StartSignal(sig *phasesignal.PhaseSignal) {
	sig.Start(s.ctx)

	s.track("signal/"+sig.Name(), sig.Done())
}

// Go runs fn in a new goroutine and tracks it. A non-nil error is reported by
// Wait and Shutdown unless it is the supervisor's own context ending, by
// cancellation or by a parent deadline.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	done := make(chan struct{})
	s.track(name, done)

	go func() {
		defer close(done)
		if err := fn(s.ctx); err != nil && !s.stoppedBy(err) {
			s.mu.Lock()
			s.errs = append(s.errs, fmt.Errorf("%s: %w", name, err))
			s.mu.Unlock()
		}
	}()
}

// stoppedBy reports whether err is the supervisor's context ending
func (s *Supervisor) stoppedBy(err error) bool {
	ctxErr := s.ctx.Err()
	return ctxErr != nil && errors.Is(err, ctxErr)
}

func (s *Supervisor) track(name string, done <-chan struct{}) {
	s.mu.Lock()
	s.handles = append(s.handles, handle{name: name, done: done})
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		<-done
	}()
}

// Handles returns the names of every tracked unit in start order
func (s *Supervisor) Handles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, len(s.handles))
	for i, h := range s.handles {
		names[i] = h.name
	}
	return names
}

// Running returns the names of the units that have not finished yet
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var names []string
	for _, h := range s.handles {
		select {
		case <-h.done:
		default:
			names = append(names, h.name)
		}
	}
	return names
}

// Wait blocks until every tracked unit has finished and returns their joined
// errors. Signals only finish once the context is cancelled.
func (s *Supervisor) Wait() error {
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Join(s.errs...)
}

// Shutdown cancels every unit and waits for them to finish. If ctx ends
// first it returns ctx.Err() while units are still running.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan error, 1)
	go func() { done <- s.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("shutdown with %d units running: %w", len(s.Running()), ctx.Err())
	}
}
