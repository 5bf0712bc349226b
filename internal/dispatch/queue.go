package dispatch

import (
	"sync"
	"sync/atomic"

	"github.com/dshills/panpad/internal/keys"
)

// Op is the direction of a key batch.
type Op uint8

const (
	// OpDown presses every key in the batch.
	OpDown Op = iota + 1
	// OpUp releases every key in the batch.
	OpUp
	// OpClear marks where a clear was requested. The consumer releases
	// every resident key when it reaches the marker.
	OpClear
)

// String returns the op name.
func (o Op) String() string {
	switch o {
	case OpDown:
		return "down"
	case OpUp:
		return "up"
	case OpClear:
		return "clear"
	default:
		return "invalid"
	}
}

// Batch is one queued press or release of a set of keys, or a clear
// marker.
type Batch struct {
	Op   Op
	Keys keys.Set
	// Gen numbers clear markers.
	Gen uint64
}

// DefaultQueueSize is the buffered capacity of a new Queue.
const DefaultQueueSize = 1024

// Queue is a multi-producer, single-consumer FIFO of key batches.
//
// Push never drops a batch while a consumer is attached: a full queue
// blocks the producer until the consumer drains it. Without a consumer a
// full queue rejects the push with ErrQueueFull.
type Queue struct {
	ch chan Batch

	mu       sync.Mutex
	detached chan struct{} // closed when the consumer goes away; nil if none

	pushed   atomic.Uint64
	rejected atomic.Uint64
}

// NewQueue creates a queue with the given capacity.
// A non-positive size uses DefaultQueueSize.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = DefaultQueueSize
	}
	return &Queue{ch: make(chan Batch, size)}
}

// Push appends a batch. Empty key batches are ignored.
func (q *Queue) Push(b Batch) error {
	if b.Op != OpClear && b.Keys.IsEmpty() {
		return nil
	}

	select {
	case q.ch <- b:
		q.pushed.Add(1)
		return nil
	default:
	}

	q.mu.Lock()
	detached := q.detached
	q.mu.Unlock()
	if detached == nil {
		q.rejected.Add(1)
		return ErrQueueFull
	}

	select {
	case q.ch <- b:
		q.pushed.Add(1)
		return nil
	case <-detached:
		q.rejected.Add(1)
		return ErrQueueFull
	}
}

// Drain moves up to len(buf) queued batches into buf without blocking and
// returns how many were written.
func (q *Queue) Drain(buf []Batch) int {
	n := 0
	for n < len(buf) {
		select {
		case b := <-q.ch:
			buf[n] = b
			n++
		default:
			return n
		}
	}
	return n
}

// Discard drops every queued batch and returns how many were dropped.
func (q *Queue) Discard() int {
	n := 0
	for {
		select {
		case <-q.ch:
			n++
		default:
			return n
		}
	}
}

// Len returns the number of queued batches.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *Queue) Cap() int {
	return cap(q.ch)
}

// Attach marks a consumer as present so full pushes block instead of
// failing.
func (q *Queue) Attach() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.detached == nil {
		q.detached = make(chan struct{})
	}
}

// Detach wakes blocked producers and restores fail-fast pushes.
func (q *Queue) Detach() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.detached != nil {
		close(q.detached)
		q.detached = nil
	}
}
