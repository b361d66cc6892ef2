package phasesignal

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Transition records a single toggle of a signal
type Transition struct {
	ID     string
	Signal string
	Seq    uint64
	From   Phase
	To     Phase
	// At is the clock reading taken when the toggle happened
	At time.Time
	// Held is the time spent in From, measured on the signal's clock
	Held time.Duration
	// Target is the duration drawn for From
	Target time.Duration
}

func newTransition(signal string, seq uint64, from Phase, at time.Time, held, target time.Duration) Transition {
	return Transition{
		ID:     uuid.New().String(),
		Signal: signal,
		Seq:    seq,
		From:   from,
		To:     from.Next(),
		At:     at,
		Held:   held,
		Target: target,
	}
}

// Key returns the "from->to" form used by metrics and logs
func (t Transition) Key() string {
	return t.From.String() + "->" + t.To.String()
}

// Overshoot is how far past its target the phase ran
func (t Transition) Overshoot() time.Duration {
	return t.Held - t.Target
}

func (t Transition) String() string {
	return fmt.Sprintf("%s #%d %s after %s", t.Signal, t.Seq, t.Key(), t.Held.Round(time.Millisecond))
}
