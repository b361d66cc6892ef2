package phasesignal

import (
	"fmt"
	"strings"
)

// Phase is one of the two states of a signal
type Phase int32

const (
	// Red is the initial phase of every signal
	Red Phase = iota
	// Green lets waiters through
	Green
)

// Phases returns every phase in declaration order
func Phases() []Phase {
	return []Phase{Red, Green}
}

// String returns the lower-case phase name
func (p Phase) String() string {
	switch p {
	case Red:
		return "red"
	case Green:
		return "green"
	default:
		return fmt.Sprintf("phase(%d)", int32(p))
	}
}

// Next returns the phase a transition from p leads to
func (p Phase) Next() Phase {
	if p == Green {
		return Red
	}
	return Green
}

// IsValid reports whether p is Red or Green
func (p Phase) IsValid() bool {
	return p == Red || p == Green
}

// ParsePhase converts a phase name into a Phase, ignoring case
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "red":
		return Red, nil
	case "green":
		return Green, nil
	default:
		return Red, NewConfigurationError("Phase", fmt.Sprintf("unknown phase '%s'", s))
	}
}

// MarshalText implements encoding.TextMarshaler
func (p Phase) MarshalText() ([]byte, error) {
	if !p.IsValid() {
		return nil, NewConfigurationError("Phase", fmt.Sprintf("invalid phase value %d", int32(p)))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := ParsePhase(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
