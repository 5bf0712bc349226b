package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/panpad/internal/config"
	"github.com/dshills/panpad/internal/keys"
	"github.com/dshills/panpad/internal/native"
)

type fakeHotkeys struct {
	mu         sync.Mutex
	registered []keys.Hotkey
	closed     bool
	events     chan keys.Hotkey
}

func newFakeHotkeys() *fakeHotkeys {
	return &fakeHotkeys{events: make(chan keys.Hotkey, 4)}
}

func (f *fakeHotkeys) Register(h keys.Hotkey) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registered = append(f.registered, h)
	return nil
}

func (f *fakeHotkeys) Unregister() error { return nil }

func (f *fakeHotkeys) Events() <-chan keys.Hotkey { return f.events }

func (f *fakeHotkeys) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeHotkeys) last() (keys.Hotkey, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.registered) == 0 {
		return keys.Hotkey{}, 0
	}
	return f.registered[len(f.registered)-1], len(f.registered)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func code(t *testing.T, name string) keys.ScanCode {
	t.Helper()
	c, ok := keys.Lookup(name)
	if !ok {
		t.Fatalf("unknown key %q", name)
	}
	return c
}

type fixture struct {
	app   *Application
	rec   *native.Recorder
	store *config.Store
	hk    *fakeHotkeys
	clock *fakeClock
}

func newFixture(t *testing.T, mutate func(*config.Config, *Options)) *fixture {
	t.Helper()

	cfg := config.Default()
	cfg.Sensitivity = 100
	rec := native.NewRecorder(nil)
	rec.AddWindow("Ryujinx 1.1.0")
	hk := newFakeHotkeys()
	clock := &fakeClock{now: time.Unix(1000, 0)}

	opts := Options{
		Native:  rec,
		Pointer: rec,
		Hotkeys: hk,
		Clock:   clock.Now,
	}
	if mutate != nil {
		mutate(cfg, &opts)
	}
	store := config.NewStore(cfg)
	opts.Store = store

	a, err := New(opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		_ = a.Shutdown(context.Background())
	})
	return &fixture{app: a, rec: rec, store: store, hk: hk, clock: clock}
}

// push runs one sample tick and one dispatch iteration.
func (f *fixture) push() {
	f.app.Smoother().Step(true)
	f.app.Controller().Tick()
}

func TestNewRequiresDependencies(t *testing.T) {
	rec := native.NewRecorder(nil)
	store := config.NewStore(config.Default())

	tests := []struct {
		name      string
		opts      Options
		component string
	}{
		{"no store", Options{Native: rec, Pointer: rec}, "config"},
		{"no native", Options{Store: store, Pointer: rec}, "native"},
		{"no pointer", Options{Store: store, Native: rec}, "pointer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.opts)
			if !errors.Is(err, ErrInitialization) {
				t.Fatalf("New error = %v, want ErrInitialization", err)
			}
			var ie *InitError
			if !errors.As(err, &ie) || ie.Component != tt.component {
				t.Errorf("component = %v, want %s", ie, tt.component)
			}
		})
	}
}

func TestTogglePanningStart(t *testing.T) {
	f := newFixture(t, nil)

	if got := f.app.TogglePanning(); got != StatePanning {
		t.Fatalf("state = %s, want panning", got)
	}

	focus := f.rec.CallsOf("focus-name")
	if len(focus) != 1 || focus[0].Arg != "Ryujinx" {
		t.Errorf("focus calls = %v", focus)
	}
	warps := f.rec.CallsOf("warp")
	if len(warps) != 1 || warps[0].X != 960 || warps[0].Y != 540 {
		t.Errorf("warp calls = %v, want one warp to 960,540", warps)
	}

	s := f.app.Session()
	if s == nil {
		t.Fatal("expected a session while panning")
	}
	if _, err := uuid.Parse(s.ID); err != nil {
		t.Errorf("session id %q: %v", s.ID, err)
	}
	if !s.Focused || s.CenterX != 960 || s.CenterY != 540 {
		t.Errorf("session = %+v", s)
	}
}

func TestTogglePanningWithoutTargetWindow(t *testing.T) {
	f := newFixture(t, func(c *config.Config, _ *Options) {
		c.Target = "Yuzu"
	})

	f.app.TogglePanning()
	if s := f.app.Session(); s == nil || s.Focused {
		t.Errorf("session = %+v, want unfocused session", s)
	}
}

func TestMoveDrivesStick(t *testing.T) {
	f := newFixture(t, nil)
	f.app.TogglePanning()

	f.app.HandlePointer(native.PointerEvent{Kind: native.PointerMove, X: 1000, Y: 540})
	if x, y := f.app.Smoother().Average(); x <= 0 || y != 0 {
		t.Fatalf("average = (%v, %v), want positive x", x, y)
	}
	if warps := f.rec.CallsOf("warp"); len(warps) != 2 {
		t.Errorf("warps = %d, want start warp plus recenter", len(warps))
	}

	f.push()
	if held := f.rec.Held(); !held.Has(code(t, "l")) || held.Len() != 1 {
		t.Errorf("held = %s, want l", held)
	}

	f.app.TogglePanning()
	f.app.Controller().Tick()
	if held := f.rec.Held(); !held.IsEmpty() {
		t.Errorf("held after stop = %s", held)
	}
	if f.app.Session() != nil {
		t.Error("session should be nil after stop")
	}
}

func TestMoveAtCenterIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.app.TogglePanning()

	f.app.HandlePointer(native.PointerEvent{Kind: native.PointerMove, X: 960, Y: 540})
	if moves, _ := f.app.Smoother().Counts(); moves != 0 {
		t.Errorf("moves = %d, want 0", moves)
	}
	if warps := f.rec.CallsOf("warp"); len(warps) != 1 {
		t.Errorf("warps = %d, want 1", len(warps))
	}
}

func TestIdleIgnoresMotion(t *testing.T) {
	f := newFixture(t, nil)

	f.app.HandlePointer(native.PointerEvent{Kind: native.PointerMove, X: 1500, Y: 200})
	f.push()

	if moves, _ := f.app.Smoother().Counts(); moves != 0 {
		t.Errorf("moves = %d while idle", moves)
	}
	if st := f.app.Controller().Stats(); st.Metrics.StickCalls != 0 {
		t.Errorf("stick calls = %d while idle", st.Metrics.StickCalls)
	}
	if calls := f.rec.CallsOf("down"); len(calls) != 0 {
		t.Errorf("downs = %v while idle", calls)
	}
}

func TestRelativeMode(t *testing.T) {
	f := newFixture(t, func(_ *config.Config, o *Options) {
		o.Relative = true
	})
	f.app.TogglePanning()

	if warps := f.rec.CallsOf("warp"); len(warps) != 0 {
		t.Fatalf("relative mode warped: %v", warps)
	}

	f.app.HandlePointer(native.PointerEvent{Kind: native.PointerMove, X: 100, Y: 100})
	if moves, _ := f.app.Smoother().Counts(); moves != 0 {
		t.Fatalf("first position should only set the baseline")
	}
	f.app.HandlePointer(native.PointerEvent{Kind: native.PointerMove, X: 100, Y: 60})
	f.push()

	if held := f.rec.Held(); !held.Has(code(t, "i")) {
		t.Errorf("held = %s, want i (up)", held)
	}
}

func TestMouseButtons(t *testing.T) {
	f := newFixture(t, func(c *config.Config, _ *Options) {
		c.BindMouseButtons = true
		c.MouseKeys.Left = code(t, "u")
		c.MouseKeys.Right = code(t, "o")
	})
	u, o := code(t, "u"), code(t, "o")

	// Idle: ignored.
	f.app.HandlePointer(native.PointerEvent{Kind: native.PointerButton, Button: native.ButtonLeft, Down: true})
	f.app.Controller().Tick()
	if held := f.rec.Held(); !held.IsEmpty() {
		t.Fatalf("idle button pressed %s", held)
	}

	f.app.TogglePanning()
	f.app.HandlePointer(native.PointerEvent{Kind: native.PointerButton, Button: native.ButtonLeft, Down: true})
	f.app.HandlePointer(native.PointerEvent{Kind: native.PointerButton, Button: native.ButtonRight, Down: true})
	f.app.Controller().Tick()
	if held := f.rec.Held(); !held.Has(u) || !held.Has(o) {
		t.Fatalf("held = %s, want u and o", held)
	}

	f.app.HandlePointer(native.PointerEvent{Kind: native.PointerButton, Button: native.ButtonRight, Down: false})
	f.app.Controller().Tick()
	if held := f.rec.Held(); !held.Has(u) || held.Has(o) {
		t.Fatalf("held = %s, want only u", held)
	}

	// Middle is unbound.
	f.app.HandlePointer(native.PointerEvent{Kind: native.PointerButton, Button: native.ButtonMiddle, Down: true})
	if got := f.app.Stats().Buttons; got != 3 {
		t.Errorf("buttons = %d, want 3", got)
	}

	// Focus moves elsewhere: the next edge releases everything.
	other := f.rec.AddWindow("terminal")
	f.rec.Activate(other)
	f.app.HandlePointer(native.PointerEvent{Kind: native.PointerButton, Button: native.ButtonLeft, Down: false})
	f.app.Controller().Tick()
	if held := f.rec.Held(); !held.IsEmpty() {
		t.Errorf("held after focus loss = %s", held)
	}
	if got := f.app.Stats().FocusClears; got != 1 {
		t.Errorf("focus clears = %d, want 1", got)
	}

	// Presses while unfocused are dropped.
	f.app.HandlePointer(native.PointerEvent{Kind: native.PointerButton, Button: native.ButtonLeft, Down: true})
	f.app.Controller().Tick()
	if held := f.rec.Held(); !held.IsEmpty() {
		t.Errorf("unfocused press held %s", held)
	}
}

func TestFocusLossKeepsLaterMotion(t *testing.T) {
	f := newFixture(t, func(c *config.Config, _ *Options) {
		c.BindMouseButtons = true
		c.MouseKeys.Left = code(t, "u")
	})
	l := code(t, "l")
	f.app.TogglePanning()

	f.app.HandlePointer(native.PointerEvent{Kind: native.PointerButton, Button: native.ButtonLeft, Down: true})
	f.app.Controller().Tick()

	f.rec.Activate(f.rec.AddWindow("terminal"))
	f.app.HandlePointer(native.PointerEvent{Kind: native.PointerButton, Button: native.ButtonLeft, Down: false})

	// Motion arrives before the engine processes the clear.
	f.app.HandlePointer(native.PointerEvent{Kind: native.PointerMove, X: 1000, Y: 540})
	f.push()
	if held := f.rec.Held(); !held.Has(l) || held.Len() != 1 {
		t.Fatalf("held = %s, want l", held)
	}

	f.app.HandlePointer(native.PointerEvent{Kind: native.PointerMove, X: 1010, Y: 540})
	f.push()
	if held := f.rec.Held(); !held.Has(l) {
		t.Errorf("held = %s, want l to stay down", held)
	}
	if got := f.app.Controller().Stats().Held; got != 1 {
		t.Errorf("stick held = %d, want 1", got)
	}
}

func TestButtonsUnboundWhenDisabled(t *testing.T) {
	f := newFixture(t, func(c *config.Config, _ *Options) {
		c.MouseKeys.Left = code(t, "u")
	})
	f.app.TogglePanning()

	f.app.HandlePointer(native.PointerEvent{Kind: native.PointerButton, Button: native.ButtonLeft, Down: true})
	f.app.Controller().Tick()
	if calls := f.rec.CallsOf("down"); len(calls) != 0 {
		t.Errorf("downs = %v with BindMouseButtons off", calls)
	}
}

func TestUpdateCursor(t *testing.T) {
	f := newFixture(t, nil)
	win := f.rec.AddWindow("Ryujinx main")
	f.rec.Activate(win)

	f.app.UpdateCursor()
	if f.app.CursorHidden() {
		t.Fatal("cursor hidden before the idle delay")
	}

	f.clock.Advance(3 * time.Second)
	f.app.UpdateCursor()
	if !f.app.CursorHidden() || !f.rec.CursorHidden() {
		t.Fatal("cursor should hide after the idle delay")
	}

	f.app.HandlePointer(native.PointerEvent{Kind: native.PointerMove, X: 10, Y: 10})
	f.app.UpdateCursor()
	if f.app.CursorHidden() || f.rec.CursorHidden() {
		t.Fatal("cursor should show again on movement")
	}

	// Repeated updates do not repeat native calls.
	f.app.UpdateCursor()
	if n := len(f.rec.CallsOf("cursor")); n != 2 {
		t.Errorf("cursor calls = %d, want 2", n)
	}
}

func TestUpdateCursorTargetInactive(t *testing.T) {
	f := newFixture(t, nil)
	f.rec.Activate(f.rec.AddWindow("editor"))

	f.clock.Advance(time.Minute)
	f.app.UpdateCursor()
	if f.app.CursorHidden() {
		t.Error("cursor hidden while the target window is not active")
	}
}

func TestCursorShownOnStop(t *testing.T) {
	f := newFixture(t, nil)
	f.app.TogglePanning()
	f.app.UpdateCursor()
	if !f.rec.CursorHidden() {
		t.Fatal("cursor should hide while panning over the target")
	}

	f.app.TogglePanning()
	if f.rec.CursorHidden() || f.app.CursorHidden() {
		t.Error("cursor still hidden after stop")
	}
}

func TestCursorDisabled(t *testing.T) {
	f := newFixture(t, func(c *config.Config, _ *Options) {
		c.HideMouse = false
	})
	f.app.TogglePanning()
	f.app.UpdateCursor()
	if n := len(f.rec.CallsOf("cursor")); n != 0 {
		t.Errorf("cursor calls = %d with HideMouse off", n)
	}
}

func TestConfigChangeApplies(t *testing.T) {
	f := newFixture(t, nil)

	next := f.store.Current().Clone()
	next.Toggle = "F9"
	next.StickKeys.Right = code(t, "d")
	f.store.Swap(next, "test")

	h, n := f.hk.last()
	if n != 1 || h.Key != "f9" {
		t.Errorf("registered %v (%d), want f9", h, n)
	}
	if got := f.app.Controller().Config(); got != next {
		t.Error("controller did not receive the new snapshot")
	}

	f.app.TogglePanning()
	f.app.HandlePointer(native.PointerEvent{Kind: native.PointerMove, X: 1100, Y: 540})
	f.push()
	if held := f.rec.Held(); !held.Has(code(t, "d")) {
		t.Errorf("held = %s, want rebound d", held)
	}
}

func TestReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "panpad.toml")
	if err := os.WriteFile(path, []byte("target = \"Cemu\"\nsensitivity = 2.5\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	f := newFixture(t, func(_ *config.Config, o *Options) {
		o.ConfigPath = path
	})

	if err := f.app.Reload(); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	cfg := f.app.Controller().Config()
	if cfg.Target != "Cemu" || cfg.Sensitivity != 2.5 {
		t.Errorf("config = %q %v", cfg.Target, cfg.Sensitivity)
	}

	if err := os.WriteFile(path, []byte("sensitivity = \"fast\"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := f.app.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if got := f.app.Controller().Config().Target; got != "Cemu" {
		t.Errorf("bad reload replaced config, target = %q", got)
	}

	st := f.app.Stats()
	if st.Reloads != 1 || st.ReloadFailures != 1 {
		t.Errorf("reloads = %d, failures = %d", st.Reloads, st.ReloadFailures)
	}
}

func TestReloadWithoutFile(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.app.Reload(); !errors.Is(err, ErrNoConfigFile) {
		t.Errorf("Reload = %v, want ErrNoConfigFile", err)
	}
}

func TestShutdownReleasesKeys(t *testing.T) {
	f := newFixture(t, nil)
	f.app.TogglePanning()
	f.app.HandlePointer(native.PointerEvent{Kind: native.PointerMove, X: 700, Y: 540})
	f.push()
	if f.rec.Held().IsEmpty() {
		t.Fatal("expected a held key before shutdown")
	}

	if err := f.app.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if held := f.rec.Held(); !held.IsEmpty() {
		t.Errorf("held after shutdown = %s", held)
	}
	if f.app.IsPanning() {
		t.Error("still panning after shutdown")
	}
	if !f.hk.closed {
		t.Error("hotkeys not closed")
	}
	if err := f.app.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown = %v", err)
	}
}

func TestRunQuitsOnPointerQuit(t *testing.T) {
	f := newFixture(t, nil)

	errCh := make(chan error, 1)
	go func() { errCh <- f.app.Run(context.Background()) }()

	f.hk.events <- keys.Hotkey{Key: "f8"}
	waitFor(t, f.app.IsPanning)

	f.rec.Emit(native.PointerEvent{Kind: native.PointerMove, X: 1200, Y: 540})
	f.rec.Emit(native.PointerEvent{Kind: native.PointerQuit})

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	if h, n := f.hk.last(); n == 0 || h.Key != "f8" {
		t.Errorf("toggle registration = %v (%d)", h, n)
	}
	if held := f.rec.Held(); !held.IsEmpty() {
		t.Errorf("held after Run = %s", held)
	}
	if f.app.IsRunning() {
		t.Error("still running after Run returned")
	}
}

func TestRunStopsOnContext(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() { errCh <- f.app.Run(ctx) }()
	waitFor(t, f.app.IsRunning)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("Run = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestStartTwice(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.app.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := f.app.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start = %v, want ErrAlreadyRunning", err)
	}
}

type statusSource struct {
	*native.Recorder

	mu     sync.Mutex
	status string
}

func (s *statusSource) SetStatus(v string) {
	s.mu.Lock()
	s.status = v
	s.mu.Unlock()
}

func (s *statusSource) get() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func TestStatusFollowsSession(t *testing.T) {
	var src *statusSource
	f := newFixture(t, func(_ *config.Config, o *Options) {
		src = &statusSource{Recorder: o.Native.(*native.Recorder)}
		o.Pointer = src
	})

	f.app.TogglePanning()
	s := f.app.Session()
	if s == nil {
		t.Fatal("no session")
	}
	if got, want := src.get(), "panning (session "+s.ID+")"; got != want {
		t.Errorf("status = %q, want %q", got, want)
	}

	f.app.TogglePanning()
	if got := src.get(); got != "idle" {
		t.Errorf("status = %q, want idle", got)
	}
}

func TestStateString(t *testing.T) {
	if StateIdle.String() != "idle" || StatePanning.String() != "panning" || State(7).String() != "unknown" {
		t.Error("unexpected State strings")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met")
		}
		time.Sleep(time.Millisecond)
	}
}
