package conn

import (
	"fmt"
	"strings"
)

// Status is the state of one I/O direction of a Connection.
//
// Transitions:
//
//	Unknown ──Begin──▶ InProgress ──ok/other error──▶ Complete ──Begin──▶ InProgress …
//	   any ──reset/abort/close──▶ Closed (terminal)
//	   InProgress ──other error (Halt policy)──▶ Failed (terminal)
type Status int32

const (
	// StatusUnknown means no operation has been issued yet.
	StatusUnknown Status = iota

	// StatusInProgress means an operation is in flight.
	StatusInProgress

	// StatusComplete means the last operation finished and the direction may be re-armed.
	StatusComplete

	// StatusClosed means the peer reset, aborted or closed the socket.
	StatusClosed

	// StatusFailed means a non-reset transport error occurred under the Halt policy.
	StatusFailed
)

// String returns the lowercase name of the status.
func (s Status) String() string {
	switch s {
	case StatusUnknown:
		return "unknown"
	case StatusInProgress:
		return "in_progress"
	case StatusComplete:
		return "complete"
	case StatusClosed:
		return "closed"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusClosed || s == StatusFailed
}

// Armable reports whether a new operation may be started from s.
func (s Status) Armable() bool {
	return s == StatusUnknown || s == StatusComplete
}

// ErrorPolicy decides what a non-reset transport error does to a direction.
type ErrorPolicy int

const (
	// FailOpen logs the error and marks the direction Complete.
	FailOpen ErrorPolicy = iota

	// Halt marks the direction Failed so the owner reaps the connection.
	Halt
)

// String returns the config spelling of the policy.
func (p ErrorPolicy) String() string {
	switch p {
	case FailOpen:
		return "fail-open"
	case Halt:
		return "halt"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParseErrorPolicy parses "fail-open" or "halt". The empty string means FailOpen.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail-open", "failopen":
		return FailOpen, nil
	case "halt":
		return Halt, nil
	default:
		return FailOpen, fmt.Errorf("conn: unknown error policy %q", s)
	}
}
