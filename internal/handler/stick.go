package handler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/panpad/internal/keys"
	"github.com/dshills/panpad/internal/logging"
)

// JoystickMax is the magnitude of a fully deflected axis.
const JoystickMax = 0x7fff

// bulkSize bounds how many commands are applied between budget updates.
const bulkSize = NumDirections * 2

type hold struct {
	code      keys.ScanCode
	magnitude uint32
	budget    time.Duration
}

// Stick turns stick changes into per-direction key holds.
//
// OnChange may be called from any goroutine. OnUpdate, Release and the
// hold accessors belong to the dispatch goroutine.
type Stick struct {
	kb     Keyboard
	logger *logging.Logger
	now    func() time.Time

	bindings   atomic.Pointer[Bindings]
	tieBreak   atomic.Uint32
	holdWindow atomic.Int64

	mu      sync.Mutex
	pending []Command

	// Dispatch goroutine only.
	holds      [NumDirections]hold
	lastUpdate time.Time
	batch      []Command

	held atomic.Int32
}

// StickOption configures a Stick.
type StickOption func(*Stick)

// WithTieBreak sets the axis ordering rule.
func WithTieBreak(t TieBreak) StickOption {
	return func(s *Stick) {
		s.tieBreak.Store(uint32(t))
	}
}

// WithHoldWindow enables timed holds. Zero latches holds until released.
func WithHoldWindow(d time.Duration) StickOption {
	return func(s *Stick) {
		s.holdWindow.Store(int64(d))
	}
}

// WithClock replaces time.Now for timed holds.
func WithClock(now func() time.Time) StickOption {
	return func(s *Stick) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStickLogger sets the logger.
func WithStickLogger(l *logging.Logger) StickOption {
	return func(s *Stick) {
		s.logger = logging.OrNull(l)
	}
}

// NewStick creates a stick handler sending to kb.
func NewStick(kb Keyboard, b Bindings, opts ...StickOption) *Stick {
	s := &Stick{
		kb:     kb,
		logger: logging.NullLogger,
		now:    time.Now,
	}
	s.bindings.Store(&b)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetBindings replaces the direction keys used for future presses.
// Held keys are released with the code they were pressed with.
func (s *Stick) SetBindings(b Bindings) {
	s.bindings.Store(&b)
}

// Bindings returns the current direction keys.
func (s *Stick) Bindings() Bindings {
	return *s.bindings.Load()
}

// SetTieBreak changes the axis ordering rule.
func (s *Stick) SetTieBreak(t TieBreak) {
	s.tieBreak.Store(uint32(t))
}

// SetHoldWindow changes the timed hold window. Zero latches holds.
func (s *Stick) SetHoldWindow(d time.Duration) {
	s.holdWindow.Store(int64(d))
}

// OnChange queues the commands for a new quantized stick position.
// Each axis yields a press of its active half and a release of the other.
func (s *Stick) OnChange(x, y int32) {
	magX, magY := abs32(x), abs32(y)

	activeX := Left
	if x > 0 {
		activeX = Right
	}
	activeY := Up
	if y > 0 {
		activeY = Down
	}

	xPair := [2]Command{{Dir: activeX, Magnitude: magX}, {Dir: activeX.Opposite()}}
	yPair := [2]Command{{Dir: activeY, Magnitude: magY}, {Dir: activeY.Opposite()}}

	yFirst := TieBreak(s.tieBreak.Load()) == LargerFirst && magY > magX && magX > 0

	s.mu.Lock()
	if yFirst {
		s.pending = append(s.pending, yPair[0], yPair[1], xPair[0], xPair[1])
	} else {
		s.pending = append(s.pending, xPair[0], xPair[1], yPair[0], yPair[1])
	}
	s.mu.Unlock()
}

// OnStop discards every queued command and queues the stop sentinel. The
// next OnUpdate releases all held directions.
func (s *Stick) OnStop() {
	s.StopAfter(nil)
}

// StopAfter is OnStop with a hook: OnUpdate calls before on the dispatch
// goroutine when it reaches the sentinel, ahead of the release and of
// every command queued after the stop.
func (s *Stick) StopAfter(before func()) {
	s.mu.Lock()
	s.pending = append(s.pending[:0], Command{stop: true, before: before})
	s.mu.Unlock()
}

// Pending returns the number of queued commands.
func (s *Stick) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// OnUpdate advances timed holds and applies queued commands.
func (s *Stick) OnUpdate() {
	now := s.now()
	if !s.lastUpdate.IsZero() {
		s.expire(now.Sub(s.lastUpdate))
	}
	s.lastUpdate = now

	s.mu.Lock()
	s.batch, s.pending = s.pending, s.batch[:0]
	s.mu.Unlock()

	for start := 0; start < len(s.batch); start += bulkSize {
		end := min(start+bulkSize, len(s.batch))
		for _, c := range s.batch[start:end] {
			if c.stop {
				if c.before != nil {
					c.before()
				}
				s.Release()
				continue
			}
			s.apply(c)
		}
	}
	clear(s.batch)
}

func (s *Stick) apply(c Command) {
	if int(c.Dir) >= NumDirections {
		return
	}
	h := &s.holds[c.Dir]

	if c.Magnitude == 0 {
		if h.magnitude != 0 {
			s.release(c.Dir)
		}
		return
	}

	if h.magnitude == 0 {
		code := s.bindings.Load()[c.Dir]
		if code == keys.None {
			return
		}
		if err := s.kb.Press(code); err != nil {
			s.logger.Warn("stick %s press %v: %v", c.Dir, code, err)
		}
		h.code = code
		s.held.Add(1)
	}
	h.magnitude = c.Magnitude
	h.budget = s.budgetFor(c.Magnitude)
}

func (s *Stick) budgetFor(magnitude uint32) time.Duration {
	window := time.Duration(s.holdWindow.Load())
	if window <= 0 {
		return 0
	}
	m := min(magnitude, JoystickMax)
	return time.Duration(int64(window) * int64(m) / JoystickMax)
}

// expire charges elapsed time against timed holds.
func (s *Stick) expire(elapsed time.Duration) {
	if s.holdWindow.Load() <= 0 || elapsed <= 0 {
		return
	}
	for d := range s.holds {
		h := &s.holds[d]
		if h.magnitude == 0 {
			continue
		}
		h.budget -= elapsed
		if h.budget <= 0 {
			s.release(Direction(d))
		}
	}
}

func (s *Stick) release(d Direction) {
	h := &s.holds[d]
	if err := s.kb.Release(h.code); err != nil {
		s.logger.Warn("stick %s release %v: %v", d, h.code, err)
	}
	*h = hold{}
	s.held.Add(-1)
}

// Release lets go of every held direction immediately.
func (s *Stick) Release() {
	for d := range s.holds {
		if s.holds[d].magnitude != 0 {
			s.release(Direction(d))
		}
	}
}

// Held reports which directions are held.
func (s *Stick) Held() [NumDirections]bool {
	var out [NumDirections]bool
	for d := range s.holds {
		out[d] = s.holds[d].magnitude != 0
	}
	return out
}

// HeldCount returns the number of held directions. Safe from any goroutine.
func (s *Stick) HeldCount() int {
	return int(s.held.Load())
}

func abs32(v int32) uint32 {
	if v < 0 {
		return uint32(-int64(v))
	}
	return uint32(v)
}
