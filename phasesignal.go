// Package phasesignal provides a periodic two-phase traffic signal built on a
// blocking handoff queue.
//
// A PhaseSignal starts Red and, once started, toggles between Red and Green
// after a duration drawn per phase (uniform over [4s, 6s) by default). Every
// toggle is appended to the signal's transcript queue and releases the
// goroutines waiting for the new phase.
//
// Two ways to follow a signal exist and they are not interchangeable:
//
//   - WaitFor / WaitForGreen give every caller a private notification slot.
//     Any number of goroutines may wait concurrently and all of them are
//     released by the transition they wait for.
//   - Transitions / NextTransition consume the transcript queue. A single
//     consumer sees every transition in order; several consumers sharing the
//     queue split the transitions between them and each may miss a Green
//     another one took.
package phasesignal

import (
	"time"

	"github.com/anggasct/phasesignal/pkg/queue"
)

// HandoffQueue is the blocking FIFO the signal publishes its transcript into
type HandoffQueue[T any] = queue.HandoffQueue[T]

// NewHandoffQueue creates an empty handoff queue
func NewHandoffQueue[T any]() *HandoffQueue[T] {
	return queue.New[T]()
}

// Duration converts an integer number of milliseconds to a time.Duration
func Duration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}
