package pointer

import "errors"

// Errors.
var (
	// ErrAlreadyRunning indicates the sampler is already running.
	ErrAlreadyRunning = errors.New("sampler already running")

	// ErrNotRunning indicates the sampler is not running.
	ErrNotRunning = errors.New("sampler not running")
)
