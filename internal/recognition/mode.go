package recognition

import (
	"fmt"
	"strings"
)

// Mode is the attendance direction selected by the operator.
type Mode string

// Modes
const (
	ModeCheckIn  Mode = "checkin"
	ModeCheckOut Mode = "checkout"
)

// ParseMode parses "checkin" or "checkout" (case insensitive, "check-in" and "in" accepted).
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "checkin", "check-in", "in":
		return ModeCheckIn, nil
	case "checkout", "check-out", "out":
		return ModeCheckOut, nil
	}
	return "", fmt.Errorf("invalid mode %q: expected checkin or checkout", s)
}

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	return m == ModeCheckIn || m == ModeCheckOut
}

// Toggle returns the other mode.
func (m Mode) Toggle() Mode {
	if m == ModeCheckIn {
		return ModeCheckOut
	}
	return ModeCheckIn
}

// FlushPolicy decides what happens to queued events when a session stops.
type FlushPolicy int

const (
	// FlushDrain delivers every queued event before the session finishes stopping.
	FlushDrain FlushPolicy = iota
	// FlushDiscard drops queued events that were not delivered yet.
	FlushDiscard
)

// ParseFlushPolicy parses "drain" or "discard".
func ParseFlushPolicy(s string) (FlushPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drain":
		return FlushDrain, nil
	case "discard":
		return FlushDiscard, nil
	}
	return FlushDrain, fmt.Errorf("invalid stop policy %q: expected drain or discard", s)
}

func (p FlushPolicy) String() string {
	if p == FlushDiscard {
		return "discard"
	}
	return "drain"
}
