package phasesignal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPhaseSignal_New(t *testing.T) {
	a := New(WithName("north"))
	b := New()

	assert.Equal(t, "north", a.Name())
	assert.Equal(t, "signal", b.Name())
	assert.NotEmpty(t, a.ID())
	assert.NotEqual(t, a.ID(), b.ID())
	assert.Equal(t, Red, a.CurrentState())
	assert.False(t, a.Started())
	assert.Zero(t, a.TransitionCount())
	assert.Zero(t, a.Transitions().Len())
}

func TestPhaseSignal_TogglesOnlyAfterTarget(t *testing.T) {
	sig, clock, obs := startFakeSignal(t, FixedDuration(4500*time.Millisecond))

	clock.BlockUntilTimers(t, 1)
	clock.Advance(4499 * time.Millisecond)
	assert.Equal(t, 1, clock.PendingTimers())
	assert.Equal(t, Red, sig.CurrentState())
	assert.Zero(t, sig.Transitions().Len())

	clock.Advance(time.Millisecond)
	tr := obs.next(t)

	assert.Equal(t, Red, tr.From)
	assert.Equal(t, Green, tr.To)
	assert.Equal(t, uint64(1), tr.Seq)
	assert.Equal(t, "test", tr.Signal)
	assert.Equal(t, 4500*time.Millisecond, tr.Held)
	assert.Equal(t, 4500*time.Millisecond, tr.Target)
	assert.NotEmpty(t, tr.ID)
	assert.Equal(t, Green, sig.CurrentState())

	v, ok := sig.Transitions().TryTake()
	require.True(t, ok)
	assert.Equal(t, Green, v)
}

func TestPhaseSignal_StateParity(t *testing.T) {
	sig, clock, obs := startFakeSignal(t, FixedDuration(4000*time.Millisecond))

	for k := 1; k <= 7; k++ {
		clock.BlockUntilTimers(t, 1)
		clock.Advance(4000 * time.Millisecond)
		tr := obs.next(t)

		want := Green
		if k%2 == 0 {
			want = Red
		}
		assert.Equal(t, uint64(k), tr.Seq)
		assert.Equal(t, want, tr.To, "after %d transitions", k)
		assert.Equal(t, want, sig.CurrentState(), "after %d transitions", k)
	}
	assert.Equal(t, uint64(7), sig.TransitionCount())
}

func TestPhaseSignal_TimingBound(t *testing.T) {
	targets := []time.Duration{
		4000 * time.Millisecond,
		5999 * time.Millisecond,
		4321 * time.Millisecond,
		5000 * time.Millisecond,
	}
	sig, clock, obs := startFakeSignal(t, sequenceDurations(targets...))

	overshoot := 700 * time.Microsecond
	for _, target := range targets {
		clock.BlockUntilTimers(t, 1)
		clock.Advance(target + overshoot)
		obs.next(t)
	}

	transitions := obs.Transitions()
	require.Len(t, transitions, len(targets))
	for i, tr := range transitions {
		assert.Equal(t, targets[i], tr.Target)
		assert.GreaterOrEqual(t, tr.Held, 4000*time.Millisecond)
		assert.Less(t, tr.Held, 6001*time.Millisecond)
		assert.Equal(t, overshoot, tr.Overshoot())
		if i > 0 {
			assert.Equal(t, tr.Held, tr.At.Sub(transitions[i-1].At))
		}
	}
	assert.Equal(t, Red, sig.CurrentState())
}

func TestPhaseSignal_TranscriptKeepsTransitionOrder(t *testing.T) {
	sig, clock, obs := startFakeSignal(t, FixedDuration(5*time.Second))

	for i := 0; i < 4; i++ {
		clock.BlockUntilTimers(t, 1)
		clock.Advance(5 * time.Second)
		obs.next(t)
	}

	q := sig.Transitions()
	require.Equal(t, 4, q.Len())
	for _, want := range []Phase{Green, Red, Green, Red} {
		got, err := sig.NextTransition(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestPhaseSignal_WaitForGreen(t *testing.T) {
	t.Run("released by the next green transition", func(t *testing.T) {
		sig, clock, obs := startFakeSignal(t, FixedDuration(4*time.Second))

		errCh := make(chan error, 1)
		go func() { errCh <- sig.WaitForGreen(context.Background()) }()
		waitForWaiters(t, sig, 1)
		clock.BlockUntilTimers(t, 1)

		select {
		case err := <-errCh:
			t.Fatalf("WaitForGreen returned early: %v", err)
		default:
		}

		clock.Advance(4 * time.Second)
		obs.next(t)

		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("waiter not released")
		}
		assert.Equal(t, Green, sig.CurrentState())
		assert.Zero(t, sig.Waiters())
	})

	t.Run("returns at once while green", func(t *testing.T) {
		sig, clock, obs := startFakeSignal(t, FixedDuration(4*time.Second))
		clock.BlockUntilTimers(t, 1)
		clock.Advance(4 * time.Second)
		obs.next(t)

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		require.NoError(t, sig.WaitForGreen(ctx))
		assert.Zero(t, sig.Waiters())
	})

	t.Run("does not consume the transcript", func(t *testing.T) {
		sig, clock, obs := startFakeSignal(t, FixedDuration(4*time.Second))

		errCh := make(chan error, 1)
		go func() { errCh <- sig.WaitForGreen(context.Background()) }()
		waitForWaiters(t, sig, 1)
		clock.BlockUntilTimers(t, 1)
		clock.Advance(4 * time.Second)
		obs.next(t)
		require.NoError(t, <-errCh)

		assert.Equal(t, 1, sig.Transitions().Len())
	})

	t.Run("cancelled wait deregisters", func(t *testing.T) {
		sig, _, _ := startFakeSignal(t, FixedDuration(4*time.Second))
		ctx, cancel := context.WithCancel(context.Background())

		errCh := make(chan error, 1)
		go func() { errCh <- sig.WaitForGreen(ctx) }()
		waitForWaiters(t, sig, 1)

		cancel()
		assert.ErrorIs(t, <-errCh, context.Canceled)
		assert.Zero(t, sig.Waiters())
		assert.Equal(t, Red, sig.CurrentState())
	})
}

func TestPhaseSignal_WaitForRed(t *testing.T) {
	sig, clock, obs := startFakeSignal(t, FixedDuration(4*time.Second))

	// red at start
	require.NoError(t, sig.WaitFor(context.Background(), Red))

	clock.BlockUntilTimers(t, 1)
	clock.Advance(4 * time.Second)
	obs.next(t)

	errCh := make(chan error, 1)
	go func() { errCh <- sig.WaitFor(context.Background(), Red) }()
	waitForWaiters(t, sig, 1)

	clock.BlockUntilTimers(t, 1)
	clock.Advance(4 * time.Second)
	obs.next(t)

	require.NoError(t, <-errCh)
	assert.Equal(t, Red, sig.CurrentState())
}

func TestPhaseSignal_ConcurrentWaitersAllReleased(t *testing.T) {
	sig, clock, obs := startFakeSignal(t, FixedDuration(4*time.Second))

	const waiters = 16
	var wg sync.WaitGroup
	errs := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- sig.WaitForGreen(context.Background())
		}()
	}
	waitForWaiters(t, sig, waiters)

	clock.BlockUntilTimers(t, 1)
	clock.Advance(4 * time.Second)
	obs.next(t)

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("only %d of %d waiters released", len(errs), waiters)
	}

	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Zero(t, sig.Waiters())
}

// drainUntilGreen takes from q until it sees Green, the way a waiter sharing
// the transcript would
func drainUntilGreen(q *HandoffQueue[Phase]) {
	for q.Take() != Green {
	}
}

func TestPhaseSignal_SharedTranscriptSplitsTransitions(t *testing.T) {
	t.Run("a green taken by one consumer is missed by the other", func(t *testing.T) {
		q := NewHandoffQueue[Phase]()

		// history as the loop would publish it: red, then green
		q.Put(Red)
		q.Put(Green)

		// consumer A takes the red first
		assert.Equal(t, Red, q.Take())

		// consumer B drains until green and takes the green A was waiting for
		drainUntilGreen(q)

		assert.Zero(t, q.Len(), "nothing left for A: it would block until the next green")
	})

	t.Run("concurrent consumers split a live transcript", func(t *testing.T) {
		sig, clock, obs := startFakeSignal(t, FixedDuration(4*time.Second))

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		var mutex sync.Mutex
		received := map[string][]Phase{}
		var wg sync.WaitGroup
		for _, name := range []string{"a", "b"} {
			wg.Add(1)
			go func(name string) {
				defer wg.Done()
				for {
					p, err := sig.NextTransition(ctx)
					if err != nil {
						return
					}
					mutex.Lock()
					received[name] = append(received[name], p)
					mutex.Unlock()
				}
			}(name)
		}

		for i := 0; i < 6; i++ {
			clock.BlockUntilTimers(t, 1)
			clock.Advance(4 * time.Second)
			obs.next(t)
		}

		require.Eventually(t, func() bool {
			mutex.Lock()
			defer mutex.Unlock()
			return len(received["a"])+len(received["b"]) == 6
		}, 5*time.Second, time.Millisecond)
		cancel()
		wg.Wait()

		// every transition went to exactly one consumer, so unless one of
		// them got nothing, neither saw the whole history
		greens := 0
		for _, ps := range received {
			for _, p := range ps {
				if p == Green {
					greens++
				}
			}
		}
		assert.Equal(t, 3, greens)
		assert.Equal(t, 6, len(received["a"])+len(received["b"]))
		assert.Zero(t, sig.Transitions().Len())
	})
}

func TestPhaseSignal_StartTwicePanics(t *testing.T) {
	sig, _, _ := startFakeSignal(t, FixedDuration(4*time.Second))

	defer func() {
		r := recover()
		require.NotNil(t, r, "second Start must panic")
		err, ok := r.(error)
		require.True(t, ok)
		assert.True(t, IsSignalError(err))
		assert.Equal(t, ErrCodeAlreadyStarted, GetErrorCode(err))
	}()
	sig.Start(context.Background())
}

func TestPhaseSignal_CancelStopsLoop(t *testing.T) {
	clock := newFakeClock()
	obs := newRecordingObserver()
	sig := New(WithClock(clock), WithDurationFunc(FixedDuration(4*time.Second)), WithObserver(obs))

	ctx, cancel := context.WithCancel(context.Background())
	sig.Start(ctx)
	assert.True(t, sig.Started())

	clock.BlockUntilTimers(t, 1)
	cancel()

	select {
	case <-sig.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("cycling loop did not stop")
	}

	obs.mutex.Lock()
	defer obs.mutex.Unlock()
	assert.Equal(t, []string{"signal"}, obs.started)
	require.Len(t, obs.stopped, 1)
	assert.ErrorIs(t, obs.stopped[0], context.Canceled)
	assert.Empty(t, obs.transitions)
}

func TestPhaseSignal_NonPositiveDurationsRunAsMinimum(t *testing.T) {
	tests := map[string]DurationFunc{
		"zero":     FixedDuration(0),
		"negative": FixedDuration(-time.Second),
	}

	for name, durations := range tests {
		t.Run(name, func(t *testing.T) {
			sig, clock, obs := startFakeSignal(t, durations)

			clock.BlockUntilTimers(t, 1)
			assert.Zero(t, sig.TransitionCount(), "no toggle before the minimum phase elapsed")

			clock.Advance(MinPhaseDuration)
			tr := obs.next(t)
			assert.Equal(t, Green, tr.To)
			assert.Equal(t, MinPhaseDuration, tr.Target)
			assert.Equal(t, MinPhaseDuration, tr.Held)
		})
	}
}

func TestPhaseSignal_ZeroDurationHonoursCancel(t *testing.T) {
	sig := New(WithDurationFunc(FixedDuration(0)))
	ctx, cancel := context.WithCancel(context.Background())

	start := time.Now()
	sig.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-sig.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("cycling loop ignored cancellation")
	}

	elapsed := time.Since(start)
	assert.LessOrEqual(t, sig.TransitionCount(), uint64(elapsed/MinPhaseDuration)+1)
	assert.LessOrEqual(t, uint64(sig.Transitions().Len()), sig.TransitionCount())
}

type panickingObserver struct{ BaseObserver }

func (o *panickingObserver) OnTransition(Transition) { panic("boom") }

func TestPhaseSignal_PanickingObserverDoesNotStopLoop(t *testing.T) {
	sig, clock, obs := startFakeSignal(t, FixedDuration(4*time.Second))
	bad := &panickingObserver{}
	sig.AddObserver(bad)

	for i := 0; i < 2; i++ {
		clock.BlockUntilTimers(t, 1)
		clock.Advance(4 * time.Second)
		obs.next(t)
	}
	assert.Equal(t, uint64(2), sig.TransitionCount())

	sig.RemoveObserver(bad)
	clock.BlockUntilTimers(t, 1)
	clock.Advance(4 * time.Second)
	assert.Equal(t, uint64(3), obs.next(t).Seq)
}

func TestPhaseSignal_WaiterNotifications(t *testing.T) {
	sig, _, obs := startFakeSignal(t, FixedDuration(4*time.Second))
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- sig.WaitForGreen(ctx) }()
	waitForWaiters(t, sig, 1)
	cancel()
	require.Error(t, <-errCh)

	obs.mutex.Lock()
	defer obs.mutex.Unlock()
	assert.Equal(t, []Phase{Green}, obs.registered)
	require.Len(t, obs.released, 1)
	assert.True(t, errors.Is(obs.released[0], context.Canceled))
}

func TestPhaseSignal_EndToEndRealClock(t *testing.T) {
	if testing.Short() {
		t.Skip("runs a full default red phase")
	}

	sig := New(WithName("e2e"))
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		<-sig.Done()
	}()

	started := time.Now()
	sig.Start(ctx)

	waitCtx, waitCancel := context.WithTimeout(ctx, 7*time.Second)
	defer waitCancel()
	require.NoError(t, sig.WaitForGreen(waitCtx))

	assert.Less(t, time.Since(started), 6*time.Second+250*time.Millisecond)
	assert.Equal(t, Green, sig.CurrentState())
}
