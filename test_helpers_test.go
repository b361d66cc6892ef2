package phasesignal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced Clock. Timers fire only from Advance.
type fakeClock struct {
	mutex  sync.Mutex
	cond   *sync.Cond
	now    time.Time
	timers []fakeTimer
}

type fakeTimer struct {
	deadline time.Time
	ch       chan time.Time
}

func newFakeClock() *fakeClock {
	c := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	c.cond = sync.NewCond(&c.mutex)
	return c
}

func (c *fakeClock) Now() time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	ch := make(chan time.Time, 1)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.timers = append(c.timers, fakeTimer{deadline: c.now.Add(d), ch: ch})
	c.cond.Broadcast()
	return ch
}

// Advance moves the clock forward and fires every expired timer
func (c *fakeClock) Advance(d time.Duration) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.now = c.now.Add(d)
	pending := c.timers[:0]
	for _, t := range c.timers {
		if !t.deadline.After(c.now) {
			t.ch <- c.now
			continue
		}
		pending = append(pending, t)
	}
	c.timers = pending
}

// BlockUntilTimers waits until at least n timers are pending
func (c *fakeClock) BlockUntilTimers(t *testing.T, n int) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		c.mutex.Lock()
		for len(c.timers) < n {
			c.cond.Wait()
		}
		c.mutex.Unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %d pending timers", n)
	}
}

// PendingTimers returns the number of timers not fired yet
func (c *fakeClock) PendingTimers() int {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return len(c.timers)
}

// sequenceDurations yields the given durations in order, repeating the last
func sequenceDurations(ds ...time.Duration) DurationFunc {
	var mutex sync.Mutex
	i := 0
	return func() time.Duration {
		mutex.Lock()
		defer mutex.Unlock()
		d := ds[i]
		if i < len(ds)-1 {
			i++
		}
		return d
	}
}

// recordingObserver captures every callback for assertions
type recordingObserver struct {
	mutex       sync.Mutex
	transitions []Transition
	started     []string
	stopped     []error
	registered  []Phase
	released    []error
	errors      []error
	seen        chan Transition
}

func newRecordingObserver() *recordingObserver {
	return &recordingObserver{seen: make(chan Transition, 64)}
}

func (o *recordingObserver) OnTransition(t Transition) {
	o.mutex.Lock()
	o.transitions = append(o.transitions, t)
	o.mutex.Unlock()
	o.seen <- t
}

func (o *recordingObserver) OnSignalStarted(signal string) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.started = append(o.started, signal)
}

func (o *recordingObserver) OnSignalStopped(signal string, reason error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.stopped = append(o.stopped, reason)
}

func (o *recordingObserver) OnWaiterRegistered(signal string, phase Phase) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.registered = append(o.registered, phase)
}

func (o *recordingObserver) OnWaiterReleased(signal string, phase Phase, err error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.released = append(o.released, err)
}

func (o *recordingObserver) OnError(err error) {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.errors = append(o.errors, err)
}

func (o *recordingObserver) Transitions() []Transition {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return append([]Transition(nil), o.transitions...)
}

func (o *recordingObserver) Errors() []error {
	o.mutex.Lock()
	defer o.mutex.Unlock()
	return append([]error(nil), o.errors...)
}

// next waits for the next transition the observer sees
func (o *recordingObserver) next(t *testing.T) Transition {
	t.Helper()
	select {
	case tr := <-o.seen:
		return tr
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a transition")
		return Transition{}
	}
}

// startFakeSignal builds a started signal driven by a fake clock
func startFakeSignal(t *testing.T, durations DurationFunc) (*PhaseSignal, *fakeClock, *recordingObserver) {
	t.Helper()

	clock := newFakeClock()
	obs := newRecordingObserver()
	sig := New(WithName("test"), WithClock(clock), WithDurationFunc(durations), WithObserver(obs))

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		<-sig.Done()
	})
	sig.Start(ctx)

	return sig, clock, obs
}

// waitForWaiters blocks until sig has n registered waiters
func waitForWaiters(t *testing.T, sig *PhaseSignal, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return sig.Waiters() == n }, 5*time.Second, time.Millisecond)
}
