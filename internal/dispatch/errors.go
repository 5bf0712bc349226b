package dispatch

import "errors"

// Sentinel errors for the dispatch package.
var (
	// ErrAlreadyRunning is returned when Start is called on a running manager.
	ErrAlreadyRunning = errors.New("key manager is already running")

	// ErrNotRunning is returned when Stop is called on a stopped manager.
	ErrNotRunning = errors.New("key manager is not running")

	// ErrQueueFull is returned when a batch cannot be queued because the
	// queue is full and no consumer is attached to drain it.
	ErrQueueFull = errors.New("key queue is full")
)
