package server

import "errors"

// Sentinel errors for manager lifecycle and configuration.
var (
	// ErrAlreadyStarted is returned by Start on a running manager.
	ErrAlreadyStarted = errors.New("server: already started")

	// ErrStopped is returned by Start after Stop. Managers are single-use.
	ErrStopped = errors.New("server: stopped")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("server: invalid config")
)
