package app

import (
	"time"

	"github.com/google/uuid"

	"github.com/dshills/panpad/internal/config"
	"github.com/dshills/panpad/internal/native"
	"github.com/dshills/panpad/internal/pointer"
)

// State is the panning state.
type State int32

const (
	// StateIdle passes the pointer through untouched.
	StateIdle State = iota
	// StatePanning turns pointer motion into stick deflection.
	StatePanning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePanning:
		return "panning"
	default:
		return "unknown"
	}
}

// Session describes one panning period.
type Session struct {
	ID      string
	Started time.Time
	Target  string
	// Focused is true when the target window was focused on start.
	Focused bool
	CenterX int
	CenterY int
}

// gate forwards smoothed stick values to the controller only while
// panning. State transitions hold panMu, so no push lands after a stop.
type gate struct{ a *Application }

func (g gate) SetStick(x, y float64) {
	g.a.panMu.Lock()
	defer g.a.panMu.Unlock()
	if State(g.a.state.Load()) == StatePanning {
		g.a.ctrl.SetStick(x, y)
	}
}

var _ pointer.Stick = gate{}

// State returns the current state.
func (a *Application) State() State {
	return State(a.state.Load())
}

// IsPanning reports whether pointer motion drives the stick.
func (a *Application) IsPanning() bool {
	return a.State() == StatePanning
}

// Session returns the current panning session, or nil while idle.
func (a *Application) Session() *Session {
	a.panMu.Lock()
	defer a.panMu.Unlock()
	if !a.IsPanning() {
		return nil
	}
	s := *a.session
	return &s
}

// TogglePanning switches between idle and panning and returns the new
// state.
func (a *Application) TogglePanning() State {
	a.stats.toggles.Add(1)
	if a.IsPanning() {
		a.stopPanning("toggle")
	} else {
		a.startPanning()
	}
	a.setStatus()
	return a.State()
}

func (a *Application) startPanning() {
	cfg := a.store.Current()

	s := &Session{
		ID:      uuid.NewString(),
		Started: a.now(),
		Target:  cfg.Target,
	}
	if cfg.AutoFocusTarget && cfg.Target != "" {
		s.Focused = a.native.SetFocusOnWindow(cfg.Target)
		if !s.Focused {
			a.logger.Warn("target window %q not found", cfg.Target)
		}
	}

	w, h, err := a.native.ScreenSize()
	if err != nil {
		a.logger.Warn("screen size: %v", err)
	}
	s.CenterX, s.CenterY = w/2, h/2

	a.panMu.Lock()
	a.smoother.Reset()
	a.centerX, a.centerY = s.CenterX, s.CenterY
	a.havePos = false
	a.session = s
	a.state.Store(int32(StatePanning))
	a.panMu.Unlock()

	if !a.opts.Relative {
		if err := a.native.SetMousePos(s.CenterX, s.CenterY); err != nil {
			a.logger.Warn("warp to center: %v", err)
		}
	}
	a.stats.sessions.Add(1)
	a.logger.WithField("session", s.ID).Info("panning started, center %d,%d", s.CenterX, s.CenterY)
}

func (a *Application) stopPanning(reason string) {
	a.panMu.Lock()
	a.state.Store(int32(StateIdle))
	a.smoother.Reset()
	a.ctrl.ClearState()
	a.heldButtons.Clear()
	s := a.session
	a.session = nil
	a.panMu.Unlock()

	if a.cursorHidden {
		if err := a.native.CursorHide(false); err != nil {
			a.logger.Warn("show cursor: %v", err)
		}
		a.cursorHidden = false
	}
	a.lastMoved = a.now()

	if s != nil {
		a.logger.WithField("session", s.ID).Info("panning stopped (%s) after %s",
			reason, a.now().Sub(s.Started).Round(time.Millisecond))
	}
}

// HandlePointer applies one pointer event. It runs on the event loop.
func (a *Application) HandlePointer(ev native.PointerEvent) {
	switch ev.Kind {
	case native.PointerMove:
		a.handleMove(ev.X, ev.Y)
	case native.PointerButton:
		a.handleButton(ev.Button, ev.Down)
	case native.PointerToggle:
		a.TogglePanning()
	case native.PointerQuit:
		a.Quit()
	default:
		a.logger.Debug("ignoring pointer event %s", ev.Kind)
	}
}

func (a *Application) handleMove(x, y int) {
	a.lastMoved = a.now()
	if !a.IsPanning() {
		a.lastX, a.lastY, a.havePos = x, y, true
		return
	}

	if a.opts.Relative {
		if a.havePos {
			a.smoother.Moved(x, y, a.lastX, a.lastY)
		}
		a.lastX, a.lastY, a.havePos = x, y, true
		return
	}

	if x == a.centerX && y == a.centerY {
		return
	}
	a.smoother.Moved(x, y, a.centerX, a.centerY)
	if err := a.native.SetMousePos(a.centerX, a.centerY); err != nil {
		a.logger.Debug("warp to center: %v", err)
	}
}

func (a *Application) handleButton(button int, down bool) {
	cfg := a.store.Current()
	if !cfg.BindMouseButtons || !a.IsPanning() {
		return
	}
	code := cfg.MouseKey(button)
	if !code.IsBound() {
		return
	}

	if cfg.Target != "" && !a.native.IsMainWindowActive(cfg.Target) {
		if !a.heldButtons.IsEmpty() {
			a.stats.focusClears.Add(1)
			a.logger.Info("target %q lost focus, releasing %s", cfg.Target, a.heldButtons)
			a.ctrl.ClearState()
			a.heldButtons.Clear()
		}
		return
	}

	a.stats.buttons.Add(1)
	if down {
		a.heldButtons.Add(code)
	} else {
		a.heldButtons.Remove(code)
	}
	a.ctrl.SetButton(code, down)
}

// UpdateCursor hides or shows the cursor according to HideMouse. It runs
// on the event loop.
func (a *Application) UpdateCursor() {
	cfg := a.store.Current()

	want := false
	if cfg.HideMouse && (cfg.Target == "" || a.native.IsMainWindowActive(cfg.Target)) {
		want = a.IsPanning() || a.now().Sub(a.lastMoved) >= cfg.Tuning.CursorHideAfter.Std()
	}
	if want == a.cursorHidden {
		return
	}
	if err := a.native.CursorHide(want); err != nil {
		a.logger.Debug("cursor hide=%v: %v", want, err)
		return
	}
	a.cursorHidden = want
}

// CursorHidden reports whether the application hid the cursor.
func (a *Application) CursorHidden() bool {
	return a.cursorHidden
}

// Reload re-reads the configuration file and environment and publishes
// the result. An invalid file keeps the current configuration.
func (a *Application) Reload() error {
	path := a.opts.ConfigPath
	if path == "" {
		return ErrNoConfigFile
	}
	cfg, err := config.Resolve(path, a.opts.Env)
	if err != nil {
		a.stats.reloadFailures.Add(1)
		a.logger.Warn("reload %s: %v", path, err)
		return err
	}
	a.stats.reloads.Add(1)
	a.store.Swap(cfg, "file")
	return nil
}

// applyConfig runs for every published snapshot.
func (a *Application) applyConfig(ch config.Change) {
	a.ctrl.Reconfigure(ch.New)
	a.smoother.SetParams(pointer.ParamsFrom(ch.New))

	if ch.Old == nil || ch.Old.Toggle != ch.New.Toggle {
		a.registerToggle(ch.New)
	}
	if ch.Old != nil && ch.Old.Target != ch.New.Target {
		a.logger.Info("target window %q -> %q", ch.Old.Target, ch.New.Target)
	}
	a.logger.WithField("source", ch.Source).Info("configuration applied")
}
