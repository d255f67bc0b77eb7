package client

import "errors"

// Sentinel errors for the client lifecycle.
var (
	// ErrAlreadyStarted is returned by Start on a running manager.
	ErrAlreadyStarted = errors.New("client: already started")

	// ErrStopped is returned by Start after Stop.
	ErrStopped = errors.New("client: stopped")
)
