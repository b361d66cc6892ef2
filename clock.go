package phasesignal

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const (
	// DefaultMinPhase is the shortest default phase duration
	DefaultMinPhase = 4000 * time.Millisecond
	// DefaultMaxPhase is the exclusive upper bound of the default phase duration
	DefaultMaxPhase = 6000 * time.Millisecond
	// MinPhaseDuration is the shortest phase a signal runs, whatever its
	// DurationFunc returns
	MinPhaseDuration = time.Millisecond
)

// Clock is the time source of the cycling loop. Now must be monotonic and
// After must deliver once d has elapsed on that same clock.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time                         { return time.Now() }
func (systemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// SystemClock returns a Clock backed by the time package
func SystemClock() Clock {
	return systemClock{}
}

// DurationFunc draws the duration of the next phase
type DurationFunc func() time.Duration

// UniformDuration returns a DurationFunc drawing uniformly from [lo, hi)
func UniformDuration(lo, hi time.Duration) (DurationFunc, error) {
	if lo <= 0 {
		return nil, NewConfigurationError("DurationFunc", fmt.Sprintf("minimum phase duration must be positive, got %s", lo))
	}
	if hi <= lo {
		return nil, NewConfigurationError("DurationFunc", fmt.Sprintf("maximum phase duration %s must exceed minimum %s", hi, lo))
	}

	span := int64(hi - lo)
	return func() time.Duration {
		return lo + time.Duration(rand.Int64N(span))
	}, nil
}

// FixedDuration returns a DurationFunc that always yields d. A signal runs
// values below MinPhaseDuration as MinPhaseDuration.
func FixedDuration(d time.Duration) DurationFunc {
	return func() time.Duration { return d }
}

// DefaultDurationFunc draws uniformly from [4000ms, 6000ms)
func DefaultDurationFunc() time.Duration {
	return defaultDuration()
}

var defaultDuration = mustUniform(DefaultMinPhase, DefaultMaxPhase)

func mustUniform(lo, hi time.Duration) DurationFunc {
	fn, err := UniformDuration(lo, hi)
	if err != nil {
		panic(err)
	}
	return fn
}
