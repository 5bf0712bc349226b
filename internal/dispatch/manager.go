package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/panpad/internal/keys"
	"github.com/dshills/panpad/internal/logging"
)

// Sender delivers key events to the operating system.
// Only the dispatch goroutine calls a Sender.
type Sender interface {
	SendKeysDown(codes []keys.ScanCode) error
	SendKeysUp(codes []keys.ScanCode) error
}

// DownPolicy controls which codes a press sends to the Sender.
type DownPolicy uint8

const (
	// DownNewOnly sends only codes that are not already down.
	DownNewOnly DownPolicy = iota
	// DownResendResident sends the whole resident set whenever any code
	// goes down. Some targets only notice a key while it auto-repeats.
	DownResendResident
)

// String returns the policy name used in configuration.
func (p DownPolicy) String() string {
	switch p {
	case DownNewOnly:
		return "new"
	case DownResendResident:
		return "resident"
	default:
		return "unknown"
	}
}

// ParseDownPolicy parses "new" or "resident". Unknown values yield
// DownNewOnly and false.
func ParseDownPolicy(s string) (DownPolicy, bool) {
	switch s {
	case "", "new":
		return DownNewOnly, true
	case "resident":
		return DownResendResident, true
	default:
		return DownNewOnly, false
	}
}

const (
	// BulkSize is the maximum number of batches taken from the queue at once.
	BulkSize = 8

	// DefaultInterval is the standalone tick period.
	DefaultInterval = time.Millisecond
)

// Manager owns the resident key set and applies queued batches to a
// Sender. Press, Release, Clear and SetPersistent are safe from any
// goroutine. Tick and Flush must only be called from the dispatch
// goroutine.
type Manager struct {
	sender   Sender
	queue    *Queue
	logger   *logging.Logger
	policy   DownPolicy
	interval time.Duration

	persistent atomic.Bool

	// Clear generations. requested counts Clear calls, cleared is the
	// last generation whose marker was processed. clearAll is set when a
	// marker could not be queued.
	clearMu   sync.Mutex
	requested atomic.Uint64
	cleared   atomic.Uint64
	clearAll  atomic.Bool

	// Dispatch goroutine only.
	resident keys.Set
	buf      [BulkSize]Batch

	residentLen atomic.Int64

	// Standalone loop
	mu      sync.Mutex
	running atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	// Stats
	ticks       atomic.Uint64
	batches     atomic.Uint64
	downCalls   atomic.Uint64
	upCalls     atomic.Uint64
	keysDown    atomic.Uint64
	keysUp      atomic.Uint64
	clears      atomic.Uint64
	discarded   atomic.Uint64
	failures    atomic.Uint64
	resends     atomic.Uint64
	totalTimeNs atomic.Int64
	maxTimeNs   atomic.Int64
}

// Option configures a Manager.
type Option func(*Manager)

// WithQueue uses an existing queue instead of creating one.
func WithQueue(q *Queue) Option {
	return func(m *Manager) {
		if q != nil {
			m.queue = q
		}
	}
}

// WithQueueSize sets the capacity of the queue the manager creates.
func WithQueueSize(size int) Option {
	return func(m *Manager) {
		if size > 0 {
			m.queue = NewQueue(size)
		}
	}
}

// WithDownPolicy sets the press policy.
func WithDownPolicy(p DownPolicy) Option {
	return func(m *Manager) {
		m.policy = p
	}
}

// WithPersistent sets the initial persistent mode.
func WithPersistent(on bool) Option {
	return func(m *Manager) {
		m.persistent.Store(on)
	}
}

// WithInterval sets the tick period of the standalone loop.
func WithInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(m *Manager) {
		m.logger = logging.OrNull(l)
	}
}

// NewManager creates a manager that sends key events to sender.
func NewManager(sender Sender, opts ...Option) *Manager {
	m := &Manager{
		sender:   sender,
		logger:   logging.NullLogger,
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.queue == nil {
		m.queue = NewQueue(DefaultQueueSize)
	}
	return m
}

// Queue returns the manager's input queue.
func (m *Manager) Queue() *Queue {
	return m.queue
}

// Press queues a key-down for the given codes. None is ignored.
func (m *Manager) Press(codes ...keys.ScanCode) error {
	return m.PressSet(keys.Of(codes...))
}

// Release queues a key-up for the given codes. None is ignored.
func (m *Manager) Release(codes ...keys.ScanCode) error {
	return m.ReleaseSet(keys.Of(codes...))
}

// PressSet queues a key-down for every member of s.
func (m *Manager) PressSet(s keys.Set) error {
	return m.push(Batch{Op: OpDown, Keys: s})
}

// ReleaseSet queues a key-up for every member of s.
func (m *Manager) ReleaseSet(s keys.Set) error {
	return m.push(Batch{Op: OpUp, Keys: s})
}

func (m *Manager) push(b Batch) error {
	if err := m.queue.Push(b); err != nil {
		m.logger.Warn("dropping %s batch %v: %v", b.Op, b.Keys, err)
		return err
	}
	return nil
}

// SetPersistent toggles persistent mode. While on, idle ticks re-send the
// resident set as key-downs.
func (m *Manager) SetPersistent(on bool) {
	m.persistent.Store(on)
}

// Persistent reports whether persistent mode is on.
func (m *Manager) Persistent() bool {
	return m.persistent.Load()
}

// Clear queues a clear marker and returns its generation. When the
// dispatch goroutine reaches the marker it drops the presses queued before
// it and releases every resident key; batches queued after it apply
// normally. If the marker cannot be queued the next Tick flushes
// everything instead.
func (m *Manager) Clear() uint64 {
	m.clearMu.Lock()
	defer m.clearMu.Unlock()

	gen := m.requested.Add(1)
	if err := m.queue.Push(Batch{Op: OpClear, Gen: gen}); err != nil {
		m.logger.Warn("clear %d not queued, flushing on next tick: %v", gen, err)
		m.clearAll.Store(true)
	}
	return gen
}

// ClearPending reports whether a Clear has not been processed yet.
func (m *Manager) ClearPending() bool {
	return m.clearAll.Load() || m.cleared.Load() < m.requested.Load()
}

// ClearThrough applies queued batches up to and including the clear
// marker for gen, so that work requested after that clear sees an empty
// resident set. It returns at once when gen was already processed.
// Dispatch goroutine only.
func (m *Manager) ClearThrough(gen uint64) {
	if m.clearAll.Load() {
		m.flush()
		return
	}
	if m.cleared.Load() >= gen {
		return
	}
	m.drain(m.queue.Len(), gen)
}

// Resident returns a copy of the resident set. Dispatch goroutine only.
func (m *Manager) Resident() keys.Set {
	return m.resident
}

// ResidentLen returns the resident set size. Safe from any goroutine.
func (m *Manager) ResidentLen() int {
	return int(m.residentLen.Load())
}

// Tick processes one dispatch step.
func (m *Manager) Tick() {
	start := time.Now()
	m.ticks.Add(1)
	defer m.recordTime(start)

	if m.clearAll.Load() {
		m.flush()
		return
	}

	drained := m.drain(m.queue.Len(), 0)
	if drained == 0 && m.persistent.Load() && !m.resident.IsEmpty() {
		m.resends.Add(1)
		_ = m.sendDown(m.resident)
	}
}

// drain applies up to budget queued batches in bulks of at most BulkSize.
// Later arrivals wait for the next tick. A non-zero through stops the
// drain right after the clear marker of that generation.
func (m *Manager) drain(budget int, through uint64) int {
	total := 0
	var pendingDown keys.Set
	downs := 0

	for budget > 0 {
		size := min(budget, BulkSize)
		if through != 0 {
			size = 1
		}
		buf := m.buf[:size]
		n := m.queue.Drain(buf)
		if n == 0 {
			break
		}
		budget -= n
		total += n

		for i := 0; i < n; i++ {
			b := buf[i]
			switch b.Op {
			case OpDown:
				pendingDown = pendingDown.Union(b.Keys)
				downs++
			case OpUp:
				if !pendingDown.IsEmpty() {
					_ = m.applyDown(pendingDown)
					pendingDown.Clear()
					downs = 0
				}
				_ = m.applyUp(b.Keys)
			case OpClear:
				if downs > 0 {
					m.discarded.Add(uint64(downs))
				}
				pendingDown.Clear()
				downs = 0
				m.releaseResident()
				if b.Gen > m.cleared.Load() {
					m.cleared.Store(b.Gen)
				}
			}
			buf[i] = Batch{}
		}
		if through != 0 && m.cleared.Load() >= through {
			break
		}
	}

	if !pendingDown.IsEmpty() {
		_ = m.applyDown(pendingDown)
	}
	m.batches.Add(uint64(total))
	return total
}

func (m *Manager) applyDown(s keys.Set) error {
	fresh := s.Minus(m.resident)
	m.resident = m.resident.Union(s)
	m.residentLen.Store(int64(m.resident.Len()))

	switch m.policy {
	case DownResendResident:
		return m.sendDown(m.resident)
	default:
		if fresh.IsEmpty() {
			return nil
		}
		return m.sendDown(fresh)
	}
}

func (m *Manager) applyUp(s keys.Set) error {
	up := s.Intersect(m.resident)
	if up.IsEmpty() {
		return nil
	}
	m.resident = m.resident.Minus(up)
	m.residentLen.Store(int64(m.resident.Len()))
	return m.sendUp(up)
}

func (m *Manager) sendDown(s keys.Set) error {
	codes := s.Codes()
	m.downCalls.Add(1)
	m.keysDown.Add(uint64(len(codes)))
	if err := m.sender.SendKeysDown(codes); err != nil {
		m.failures.Add(1)
		m.logger.Error("key down %v: %v", s, err)
		return err
	}
	return nil
}

func (m *Manager) sendUp(s keys.Set) error {
	codes := s.Codes()
	m.upCalls.Add(1)
	m.keysUp.Add(uint64(len(codes)))
	if err := m.sender.SendKeysUp(codes); err != nil {
		m.failures.Add(1)
		m.logger.Error("key up %v: %v", s, err)
		return err
	}
	return nil
}

// Immediate is a Keyboard that applies presses and releases on the
// calling goroutine, bypassing the queue. It must only be used from the
// dispatch goroutine, where pushing onto a full queue would block the
// only consumer.
type Immediate struct {
	m *Manager
}

// Immediate returns the manager's direct keyboard.
func (m *Manager) Immediate() Immediate {
	return Immediate{m: m}
}

// Press sends a key-down for codes not already down.
func (i Immediate) Press(codes ...keys.ScanCode) error {
	s := keys.Of(codes...)
	if s.IsEmpty() {
		return nil
	}
	return i.m.applyDown(s)
}

// Release sends a key-up for the codes that are down.
func (i Immediate) Release(codes ...keys.ScanCode) error {
	return i.m.applyUp(keys.Of(codes...))
}

// Flush releases every resident key, drops everything queued and marks
// every requested clear as done. It runs synchronously on the calling goroutine, which
// must be the dispatch goroutine or one that has replaced it.
func (m *Manager) Flush() {
	m.flush()
}

func (m *Manager) flush() {
	target := m.requested.Load()
	m.clearAll.Store(false)
	m.releaseResident()
	if n := m.queue.Discard(); n > 0 {
		m.discarded.Add(uint64(n))
	}
	if target > m.cleared.Load() {
		m.cleared.Store(target)
	}
}

func (m *Manager) releaseResident() {
	m.clears.Add(1)
	if m.resident.IsEmpty() {
		return
	}
	m.logger.Debug("releasing resident keys %v", m.resident)
	_ = m.sendUp(m.resident)
	m.resident.Clear()
	m.residentLen.Store(0)
}

func (m *Manager) recordTime(start time.Time) {
	ns := time.Since(start).Nanoseconds()
	m.totalTimeNs.Add(ns)
	for {
		cur := m.maxTimeNs.Load()
		if ns <= cur || m.maxTimeNs.CompareAndSwap(cur, ns) {
			return
		}
	}
}

// Run ticks the manager every interval until ctx is done, then flushes.
// The caller's goroutine becomes the dispatch goroutine.
func (m *Manager) Run(ctx context.Context) {
	m.queue.Attach()
	defer m.queue.Detach()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.flush()
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Start runs the manager loop on its own goroutine.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running.Load() {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	m.running.Store(true)

	// Producers may push before the goroutine is scheduled.
	m.queue.Attach()
	go func(done chan struct{}) {
		defer close(done)
		m.Run(ctx)
	}(m.done)

	return nil
}

// Stop ends the loop started by Start. The resident set is flushed before
// the loop exits; Stop waits for that or for ctx.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.running.Load() {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.running.Store(false)
	m.cancel()
	done := m.done
	m.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsRunning reports whether the standalone loop is running.
func (m *Manager) IsRunning() bool {
	return m.running.Load()
}
