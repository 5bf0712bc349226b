package controller

import (
	"sync/atomic"
	"time"
)

// Metrics tracks controller activity.
type Metrics struct {
	// Input
	stickCalls   atomic.Uint64
	stickChanges atomic.Uint64
	buttonCalls  atomic.Uint64
	clears       atomic.Uint64
	reconfigures atomic.Uint64

	// Dispatch loop timing
	loopCount   atomic.Uint64
	loopTotalNs atomic.Int64
	loopMinNs   atomic.Int64
	loopMaxNs   atomic.Int64
	lastLoopNs  atomic.Int64

	startTime time.Time
}

// NewMetrics creates a new metrics tracker.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),
	}
	// Initialize min to max int64 so first loop will be smaller
	m.loopMinNs.Store(1<<63 - 1)
	return m
}

// RecordStick records a SetStick call; changed is false for duplicates.
func (m *Metrics) RecordStick(changed bool) {
	m.stickCalls.Add(1)
	if changed {
		m.stickChanges.Add(1)
	}
}

// RecordButton records a SetButton call.
func (m *Metrics) RecordButton() {
	m.buttonCalls.Add(1)
}

// RecordClear records a ClearState call.
func (m *Metrics) RecordClear() {
	m.clears.Add(1)
}

// RecordReconfigure records a Reconfigure call.
func (m *Metrics) RecordReconfigure() {
	m.reconfigures.Add(1)
}

// RecordLoop records one dispatch iteration.
func (m *Metrics) RecordLoop(duration time.Duration) {
	ns := duration.Nanoseconds()

	m.loopCount.Add(1)
	m.loopTotalNs.Add(ns)
	m.lastLoopNs.Store(ns)

	for {
		old := m.loopMinNs.Load()
		if ns >= old || m.loopMinNs.CompareAndSwap(old, ns) {
			break
		}
	}
	for {
		old := m.loopMaxNs.Load()
		if ns <= old || m.loopMaxNs.CompareAndSwap(old, ns) {
			break
		}
	}
}

// Snapshot returns a snapshot of current metrics.
func (m *Metrics) Snapshot() MetricsSnapshot {
	loops := m.loopCount.Load()

	var avgNs int64
	if loops > 0 {
		avgNs = m.loopTotalNs.Load() / int64(loops)
	}

	minNs := m.loopMinNs.Load()
	if minNs == 1<<63-1 {
		minNs = 0
	}

	return MetricsSnapshot{
		StickCalls:   m.stickCalls.Load(),
		StickChanges: m.stickChanges.Load(),
		ButtonCalls:  m.buttonCalls.Load(),
		Clears:       m.clears.Load(),
		Reconfigures: m.reconfigures.Load(),
		Loops:        loops,
		AvgLoop:      time.Duration(avgNs),
		MinLoop:      time.Duration(minNs),
		MaxLoop:      time.Duration(m.loopMaxNs.Load()),
		LastLoop:     time.Duration(m.lastLoopNs.Load()),
		Uptime:       time.Since(m.startTime),
	}
}

// Reset clears all metrics.
func (m *Metrics) Reset() {
	m.stickCalls.Store(0)
	m.stickChanges.Store(0)
	m.buttonCalls.Store(0)
	m.clears.Store(0)
	m.reconfigures.Store(0)
	m.loopCount.Store(0)
	m.loopTotalNs.Store(0)
	m.loopMinNs.Store(1<<63 - 1)
	m.loopMaxNs.Store(0)
	m.lastLoopNs.Store(0)
}

// MetricsSnapshot is a point-in-time copy of Metrics.
type MetricsSnapshot struct {
	StickCalls   uint64
	StickChanges uint64
	ButtonCalls  uint64
	Clears       uint64
	Reconfigures uint64

	Loops    uint64
	AvgLoop  time.Duration
	MinLoop  time.Duration
	MaxLoop  time.Duration
	LastLoop time.Duration

	Uptime time.Duration
}
