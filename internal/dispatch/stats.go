package dispatch

import "time"

// Stats is a snapshot of manager counters.
type Stats struct {
	// Ticks is the number of Tick calls.
	Ticks uint64

	// Batches is the number of batches applied.
	Batches uint64

	// DownCalls and UpCalls count Sender invocations.
	DownCalls uint64
	UpCalls   uint64

	// KeysDown and KeysUp count individual codes sent.
	KeysDown uint64
	KeysUp   uint64

	// Clears is the number of clear or flush passes.
	Clears uint64

	// Discarded is the number of batches dropped by clears.
	Discarded uint64

	// Failures is the number of Sender calls that returned an error.
	Failures uint64

	// Resends is the number of persistent-mode re-sends.
	Resends uint64

	// Rejected is the number of pushes refused by a full queue.
	Rejected uint64

	// Resident is the current resident set size.
	Resident int

	// QueueDepth is the number of batches waiting.
	QueueDepth int

	// AvgTick and MaxTick describe Tick duration.
	AvgTick time.Duration
	MaxTick time.Duration
}

// Stats returns current counters.
func (m *Manager) Stats() Stats {
	ticks := m.ticks.Load()
	totalNs := m.totalTimeNs.Load()

	var avgNs int64
	if ticks > 0 {
		avgNs = totalNs / int64(ticks)
	}

	return Stats{
		Ticks:      ticks,
		Batches:    m.batches.Load(),
		DownCalls:  m.downCalls.Load(),
		UpCalls:    m.upCalls.Load(),
		KeysDown:   m.keysDown.Load(),
		KeysUp:     m.keysUp.Load(),
		Clears:     m.clears.Load(),
		Discarded:  m.discarded.Load(),
		Failures:   m.failures.Load(),
		Resends:    m.resends.Load(),
		Rejected:   m.queue.rejected.Load(),
		Resident:   m.ResidentLen(),
		QueueDepth: m.queue.Len(),
		AvgTick:    time.Duration(avgNs),
		MaxTick:    time.Duration(m.maxTimeNs.Load()),
	}
}

// ResetStats zeroes the counters. The resident set is untouched.
func (m *Manager) ResetStats() {
	m.ticks.Store(0)
	m.batches.Store(0)
	m.downCalls.Store(0)
	m.upCalls.Store(0)
	m.keysDown.Store(0)
	m.keysUp.Store(0)
	m.clears.Store(0)
	m.discarded.Store(0)
	m.failures.Store(0)
	m.resends.Store(0)
	m.queue.rejected.Store(0)
	m.totalTimeNs.Store(0)
	m.maxTimeNs.Store(0)
}
