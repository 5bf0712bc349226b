package controller

import "errors"

// Sentinel errors for the controller package.
var (
	// ErrAlreadyRunning is returned when Start is called twice.
	ErrAlreadyRunning = errors.New("controller is already running")

	// ErrNotRunning is returned when Close is called on a controller that
	// was never started or is already closed.
	ErrNotRunning = errors.New("controller is not running")
)
