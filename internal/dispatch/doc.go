// Package dispatch turns key press and release requests into ordered OS
// key events.
//
// Producers on any goroutine push Batches onto a Queue. A single dispatch
// goroutine owns the Manager and calls Tick roughly once per millisecond.
// Tick drains the queue in bounded bulks, keeps the set of keys that are
// currently down (the resident set), and forwards the result to a Sender,
// which is normally an OS-level key injector.
//
// # Guarantees
//
// Every key the Manager sends down receives exactly one up: releases are
// intersected with the resident set, and Clear or Flush releases whatever
// is still resident. Batches are applied in FIFO order. Consecutive press
// batches are merged into one SendKeysDown call.
//
// # Usage
//
// Standalone, the Manager runs its own loop:
//
//	m := dispatch.NewManager(injector, dispatch.WithPersistent(true))
//	if err := m.Start(); err != nil {
//	    return err
//	}
//	defer m.Stop(ctx)
//	m.Press(code)
//	m.Release(code)
//
// Embedded in a larger loop, the owner calls Tick and, when shutting down,
// Flush on the same goroutine. Code already running on that goroutine
// presses keys through Immediate instead of the queue.
package dispatch
