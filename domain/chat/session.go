package chat

import "fmt"

// SessionState tracks the lifecycle of a subscription session.
// Created -> Active -> Closed, Closed is terminal.
type SessionState int32

const (
	SessionCreated SessionState = iota
	SessionActive
	SessionClosed
)

func (s SessionState) String() string {
	switch s {
	case SessionCreated:
		return "created"
	case SessionActive:
		return "active"
	case SessionClosed:
		return "closed"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// OverflowPolicy decides what happens when a bounded session queue is full.
type OverflowPolicy string

const (
	// Unbounded never rejects a message, the backlog grows with the slowest reader.
	Unbounded  OverflowPolicy = "unbounded"
	DropOldest OverflowPolicy = "drop-oldest"
	Disconnect OverflowPolicy = "disconnect"
)

func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch p := OverflowPolicy(s); p {
	case "", Unbounded:
		return Unbounded, nil
	case DropOldest, Disconnect:
		return p, nil
	default:
		return "", fmt.Errorf("unknown overflow policy %q", s)
	}
}

// Backpressure bounds a session queue. A zero Capacity means unbounded.
type Backpressure struct {
	Capacity int
	Policy   OverflowPolicy
}

func (b Backpressure) Bounded() bool {
	return b.Capacity > 0 && b.Policy != Unbounded
}
