package phasesignal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/anggasct/phasesignal/pkg/queue"
)

// PhaseSignal is a two-phase traffic signal. After Start, a background loop
// toggles the phase every drawn interval and publishes each new phase into a
// transcript queue. Any number of goroutines may wait for a phase with
// WaitFor; each waiter has its own notification slot.
type PhaseSignal struct {
	id   string
	name string

	state atomic.Int32
	seq   atomic.Uint64

	transcript *queue.HandoffQueue[Phase]
	observers  *ObserverManager
	clock      Clock
	nextPhase  DurationFunc

	// mu orders state publication against waiter registration
	mu           sync.Mutex
	waiters      map[uint64]*waiter
	nextWaiterID uint64

	started atomic.Bool
	done    chan struct{}
}

type waiter struct {
	phase Phase
	ready chan struct{}
}

// Option configures a PhaseSignal
type Option func(*PhaseSignal)

// WithName sets the name used in transitions, errors and logs
func WithName(name string) Option {
	return func(s *PhaseSignal) {
		if name != "" {
			s.name = name
		}
	}
}

// WithDurationFunc sets the source of phase durations
func WithDurationFunc(fn DurationFunc) Option {
	return func(s *PhaseSignal) {
		if fn != nil {
			s.nextPhase = fn
		}
	}
}

// WithClock sets the clock the cycling loop measures time with
func WithClock(c Clock) Option {
	return func(s *PhaseSignal) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithObserver registers an observer before the signal starts
func WithObserver(o Observer) Option {
	return func(s *PhaseSignal) {
		s.observers.AddObserver(o)
	}
}

// New creates a signal in the Red phase. It does not start cycling.
func New(opts ...Option) *PhaseSignal {
	s := &PhaseSignal{
		id:         uuid.New().String(),
		name:       "signal",
		transcript: queue.New[Phase](),
		observers:  NewObserverManager(),
		clock:      SystemClock(),
		nextPhase:  DefaultDurationFunc,
		waiters:    make(map[uint64]*waiter),
		done:       make(chan struct{}),
	}
	s.state.Store(int32(Red))

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ID returns the unique identifier of the signal
func (s *PhaseSignal) ID() string {
	return s.id
}

// Name returns the signal name
func (s *PhaseSignal) Name() string {
	return s.name
}

// Start launches the cycling loop and returns immediately. The loop runs
// until ctx is cancelled; pass context.Background() to cycle for the life of
// the process.
//
// Start must be called at most once. A second call panics with a
// *SignalError whose code is ErrCodeAlreadyStarted.
func (s *PhaseSignal) Start(ctx context.Context) {
	if !s.started.CompareAndSwap(false, true) {
		panic(NewAlreadyStartedError(s.name))
	}
	go s.cycle(ctx)
}

// Started reports whether Start has been called
func (s *PhaseSignal) Started() bool {
	return s.started.Load()
}

// Done returns a channel closed once the cycling loop has exited
func (s *PhaseSignal) Done() <-chan struct{} {
	return s.done
}

// CurrentState returns the live phase without blocking
func (s *PhaseSignal) CurrentState() Phase {
	return Phase(s.state.Load())
}

// TransitionCount returns how many toggles have happened so far
func (s *PhaseSignal) TransitionCount() uint64 {
	return s.seq.Load()
}

// Transitions returns the transcript queue. Every toggle appends its new
// phase. The queue is meant for a single consumer: values taken by one
// goroutine are gone for every other one.
func (s *PhaseSignal) Transitions() *queue.HandoffQueue[Phase] {
	return s.transcript
}

// NextTransition takes the oldest unread phase from the transcript
func (s *PhaseSignal) NextTransition(ctx context.Context) (Phase, error) {
	return s.transcript.TakeContext(ctx)
}

// Waiters returns the number of goroutines blocked in WaitFor
func (s *PhaseSignal) Waiters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}

// AddObserver adds an observer
func (s *PhaseSignal) AddObserver(o Observer) {
	s.observers.AddObserver(o)
}

// RemoveObserver removes an observer
func (s *PhaseSignal) RemoveObserver(o Observer) {
	s.observers.RemoveObserver(o)
}

// WaitForGreen blocks until the signal is green
func (s *PhaseSignal) WaitForGreen(ctx context.Context) error {
	return s.WaitFor(ctx, Green)
}

// WaitFor blocks until the signal is in phase. It returns at once if the
// signal already is, otherwise on the next transition into phase. The wait
// does not touch the transcript queue, so concurrent waiters never take a
// transition away from each other. It returns ctx.Err() if ctx ends first.
func (s *PhaseSignal) WaitFor(ctx context.Context, phase Phase) error {
	s.mu.Lock()
	if s.CurrentState() == phase {
		s.mu.Unlock()
		return nil
	}
	id := s.nextWaiterID
	s.nextWaiterID++
	w := &waiter{phase: phase, ready: make(chan struct{})}
	s.waiters[id] = w
	s.mu.Unlock()

	s.observers.NotifyWaiterRegistered(s.name, phase)

	var err error
	select {
	case <-w.ready:
	case <-ctx.Done():
		s.mu.Lock()
		delete(s.waiters, id)
		s.mu.Unlock()

		// a transition may have released us while we were giving up
		select {
		case <-w.ready:
		default:
			err = ctx.Err()
		}
	}

	s.observers.NotifyWaiterReleased(s.name, phase, err)
	return err
}

func (s *PhaseSignal) cycle(ctx context.Context) {
	defer close(s.done)

	s.observers.NotifySignalStarted(s.name)

	last := s.clock.Now()
	target := s.drawTarget()

	for {
		if err := ctx.Err(); err != nil {
			s.observers.NotifySignalStopped(s.name, err)
			return
		}

		elapsed := s.clock.Now().Sub(last)
		if elapsed < target {
			select {
			case <-ctx.Done():
				s.observers.NotifySignalStopped(s.name, ctx.Err())
				return
			case <-s.clock.After(target - elapsed):
			}
			continue
		}

		now := s.clock.Now()
		t := s.toggle(now, now.Sub(last), target)
		s.observers.NotifyTransition(t)

		last = now
		target = s.drawTarget()
	}
}

// drawTarget draws the next phase duration, clamped to MinPhaseDuration
func (s *PhaseSignal) drawTarget() time.Duration {
	if d := s.nextPhase(); d >= MinPhaseDuration {
		return d
	}
	return MinPhaseDuration
}

// toggle flips the phase, appends it to the transcript and releases the
// waiters registered for it. Only the cycling loop calls toggle.
func (s *PhaseSignal) toggle(at time.Time, held, target time.Duration) Transition {
	from := s.CurrentState()
	t := newTransition(s.name, s.seq.Add(1), from, at, held, target)

	s.mu.Lock()
	s.state.Store(int32(t.To))
	s.transcript.Put(t.To)
	for id, w := range s.waiters {
		if w.phase == t.To {
			close(w.ready)
			delete(s.waiters, id)
		}
	}
	s.mu.Unlock()

	return t
}
