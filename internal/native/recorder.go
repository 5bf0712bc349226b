package native

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dshills/panpad/internal/keys"
	"github.com/dshills/panpad/internal/logging"
)

// Call is one recorded backend call.
type Call struct {
	Op    string
	Codes []keys.ScanCode
	X, Y  int
	Arg   string
	Hide  bool
}

// String renders the call for logs and test failures.
func (c Call) String() string {
	switch c.Op {
	case "down", "up":
		parts := make([]string, len(c.Codes))
		for i, code := range c.Codes {
			parts[i] = code.String()
		}
		return c.Op + " " + strings.Join(parts, ",")
	case "warp":
		return fmt.Sprintf("warp %d,%d", c.X, c.Y)
	case "cursor":
		return fmt.Sprintf("cursor hide=%t", c.Hide)
	default:
		if c.Arg != "" {
			return c.Op + " " + c.Arg
		}
		return c.Op
	}
}

// Recorder is a Native that touches nothing. It records every call, logs
// it at debug level and serves a scripted desktop: a fixed screen, a
// pointer that stays where it was warped and a set of named windows.
// It is also a PointerSource fed through Emit.
type Recorder struct {
	mu      sync.Mutex
	calls   []Call
	logger  *logging.Logger
	screenW int
	screenH int
	mouseX  int
	mouseY  int
	hidden  bool
	windows []Window
	active  Window

	emitMu sync.RWMutex
	closed bool
	events chan PointerEvent
}

// NewRecorder creates a Recorder with a 1920x1080 screen and no windows.
func NewRecorder(logger *logging.Logger) *Recorder {
	return &Recorder{
		logger:  logging.OrNull(logger).WithComponent("dry"),
		screenW: 1920,
		screenH: 1080,
		events:  make(chan PointerEvent, 256),
	}
}

func (r *Recorder) record(c Call) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
	r.logger.Debug("%s", c)
}

// SendKeysDown records a key-down call.
func (r *Recorder) SendKeysDown(codes []keys.ScanCode) error {
	r.record(Call{Op: "down", Codes: append([]keys.ScanCode(nil), codes...)})
	return nil
}

// SendKeysUp records a key-up call.
func (r *Recorder) SendKeysUp(codes []keys.ScanCode) error {
	r.record(Call{Op: "up", Codes: append([]keys.ScanCode(nil), codes...)})
	return nil
}

// SetMousePos moves the scripted pointer.
func (r *Recorder) SetMousePos(x, y int) error {
	r.mu.Lock()
	r.mouseX, r.mouseY = x, y
	r.mu.Unlock()
	r.record(Call{Op: "warp", X: x, Y: y})
	return nil
}

// GetMousePos returns the scripted pointer position.
func (r *Recorder) GetMousePos() (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mouseX, r.mouseY, nil
}

// ScreenSize returns the scripted screen size.
func (r *Recorder) ScreenSize() (int, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.screenW, r.screenH, nil
}

// SetScreenSize changes the scripted screen size.
func (r *Recorder) SetScreenSize(w, h int) {
	r.mu.Lock()
	r.screenW, r.screenH = w, h
	r.mu.Unlock()
}

// CursorHide records a cursor visibility change.
func (r *Recorder) CursorHide(hide bool) error {
	r.mu.Lock()
	r.hidden = hide
	r.mu.Unlock()
	r.record(Call{Op: "cursor", Hide: hide})
	return nil
}

// CursorHidden reports the last requested cursor state.
func (r *Recorder) CursorHidden() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hidden
}

// AddWindow adds a scripted window and returns it.
func (r *Recorder) AddWindow(name string) Window {
	r.mu.Lock()
	defer r.mu.Unlock()
	w := Window{ID: uint32(len(r.windows) + 1), Name: name}
	r.windows = append(r.windows, w)
	return w
}

// Activate makes w the focused window without recording a call, as if the
// user had clicked it. The zero Window clears focus.
func (r *Recorder) Activate(w Window) {
	r.mu.Lock()
	r.active = w
	r.mu.Unlock()
}

// IsMainWindowActive reports whether the active window's name contains name.
func (r *Recorder) IsMainWindowActive(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.active.IsZero() && name != "" && strings.Contains(r.active.Name, name)
}

// SetFocusOnWindow focuses the first window whose name contains name.
func (r *Recorder) SetFocusOnWindow(name string) bool {
	r.record(Call{Op: "focus-name", Arg: name})
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.windows {
		if name != "" && strings.Contains(w.Name, name) {
			r.active = w
			return true
		}
	}
	return false
}

// FocusedWindow returns the active window.
func (r *Recorder) FocusedWindow() (Window, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active.IsZero() {
		return Window{}, ErrNoWindow
	}
	return r.active, nil
}

// FocusWindow focuses w if it is known.
func (r *Recorder) FocusWindow(w Window) error {
	r.record(Call{Op: "focus", Arg: w.Name})
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, known := range r.windows {
		if known.ID == w.ID {
			r.active = known
			return nil
		}
	}
	return fmt.Errorf("focus window %d: %w", w.ID, ErrNoWindow)
}

// Pointer returns r itself as the pointer feed.
func (r *Recorder) Pointer(time.Duration) (PointerSource, error) {
	return r, nil
}

// Emit queues a pointer event. A move also updates the scripted pointer.
// Emit after Close is ignored.
func (r *Recorder) Emit(ev PointerEvent) {
	r.emitMu.RLock()
	defer r.emitMu.RUnlock()
	if r.closed {
		return
	}
	if ev.Kind == PointerMove {
		r.mu.Lock()
		r.mouseX, r.mouseY = ev.X, ev.Y
		r.mu.Unlock()
	}
	r.events <- ev
}

// Events returns the pointer event channel. It is closed by Close.
func (r *Recorder) Events() <-chan PointerEvent {
	return r.events
}

// Close ends the pointer feed. Recording continues to work.
func (r *Recorder) Close() error {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()
	if !r.closed {
		r.closed = true
		close(r.events)
	}
	return nil
}

// Calls returns a copy of every recorded call.
func (r *Recorder) Calls() []Call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Call(nil), r.calls...)
}

// CallsOf returns the recorded calls with the given op.
func (r *Recorder) CallsOf(op string) []Call {
	var out []Call
	for _, c := range r.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Balance returns, per key, downs minus ups.
func (r *Recorder) Balance() map[keys.ScanCode]int {
	bal := make(map[keys.ScanCode]int)
	for _, c := range r.Calls() {
		for _, code := range c.Codes {
			switch c.Op {
			case "down":
				bal[code]++
			case "up":
				bal[code]--
			}
		}
	}
	return bal
}

// Held returns the keys with more downs than ups.
func (r *Recorder) Held() keys.Set {
	var s keys.Set
	for code, n := range r.Balance() {
		if n > 0 {
			s.Add(code)
		}
	}
	return s
}

// Reset forgets recorded calls.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}
