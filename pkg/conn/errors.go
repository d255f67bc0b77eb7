package conn

import (
	"errors"
	"io"
	"net"
	"syscall"
)

// IsReset reports whether err belongs to the reset/abort class: the peer is
// gone and the direction can never be used again.
func IsReset(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.ErrClosedPipe),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNABORTED),
		errors.Is(err, syscall.EPIPE):
		return true
	}
	return false
}

// classify maps the outcome of an operation onto the next status.
func classify(err error, policy ErrorPolicy) Status {
	switch {
	case err == nil:
		return StatusComplete
	case IsReset(err):
		return StatusClosed
	case policy == Halt:
		return StatusFailed
	default:
		return StatusComplete
	}
}
