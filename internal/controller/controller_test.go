package controller

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/dshills/panpad/internal/axis"
	"github.com/dshills/panpad/internal/config"
	"github.com/dshills/panpad/internal/keys"
)

const (
	keyLeft  keys.ScanCode = 44 // j
	keyRight keys.ScanCode = 46 // l
	keyUp    keys.ScanCode = 31 // i
	keyDown  keys.ScanCode = 45 // k
)

type keyCall struct {
	down bool
	code keys.ScanCode
}

type recorder struct {
	mu    sync.Mutex
	calls []keyCall
}

func (r *recorder) SendKeysDown(codes []keys.ScanCode) error {
	r.add(true, codes)
	return nil
}

func (r *recorder) SendKeysUp(codes []keys.ScanCode) error {
	r.add(false, codes)
	return nil
}

func (r *recorder) add(down bool, codes []keys.ScanCode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range codes {
		r.calls = append(r.calls, keyCall{down: down, code: c})
	}
}

func (r *recorder) snapshot() []keyCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]keyCall(nil), r.calls...)
}

func (r *recorder) count(down bool, code keys.ScanCode) int {
	n := 0
	for _, c := range r.snapshot() {
		if c.down == down && c.code == code {
			n++
		}
	}
	return n
}

func (r *recorder) downs() []keys.ScanCode {
	var out []keys.ScanCode
	for _, c := range r.snapshot() {
		if c.down {
			out = append(out, c.code)
		}
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	r.calls = nil
	r.mu.Unlock()
}

// assertBalanced fails if any key went down more or fewer times than up.
func assertBalanced(t *testing.T, r *recorder) {
	t.Helper()
	bal := make(map[keys.ScanCode]int)
	for _, c := range r.snapshot() {
		if c.down {
			bal[c.code]++
		} else {
			bal[c.code]--
		}
		if bal[c.code] < 0 {
			t.Fatalf("key %v released more often than pressed", c.code)
		}
	}
	for code, n := range bal {
		if n != 0 {
			t.Errorf("key %v left down (%d unmatched)", code, n)
		}
	}
}

func newTestController(t *testing.T, mutate func(*config.Config)) (*Controller, *recorder) {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("invalid test config: %v", err)
	}
	rec := &recorder{}
	return New(cfg, rec), rec
}

func TestController_ZeroInput(t *testing.T) {
	c, rec := newTestController(t, nil)

	c.SetStick(0, 0)
	c.Tick()

	if a := c.Axes(); a != (Axes{}) {
		t.Errorf("Axes() = %+v, want zero", a)
	}
	if n := len(rec.snapshot()); n != 0 {
		t.Errorf("zero input sent %d key events", n)
	}
}

func TestController_SmallRightDeflection(t *testing.T) {
	c, rec := newTestController(t, nil)

	c.SetStick(0.2, 0)
	c.Tick()

	a := c.Axes()
	if math.Abs(a.X-0.0619) > 1e-4 {
		t.Errorf("X = %v, want ~0.0619", a.X)
	}
	if a.QX != axis.Quantize(a.X) || a.QY != 0 {
		t.Errorf("quantized = %d,%d", a.QX, a.QY)
	}
	if a.Right || a.Left {
		t.Errorf("flags below threshold: %+v", a)
	}
	if rec.count(true, keyRight) != 1 {
		t.Error("right key not pressed")
	}
	if rec.count(true, keyLeft) != 0 {
		t.Error("left key pressed")
	}
}

func TestController_DirectionFlags(t *testing.T) {
	c, _ := newTestController(t, nil)

	tests := []struct {
		x, y                  float64
		left, right, up, down bool
	}{
		{1, 0, false, true, false, false},
		{-1, 0, true, false, false, false},
		{0, -1, false, false, true, false},
		{0, 1, false, false, false, true},
		{0.7, 0.7, false, true, false, true},
	}
	for _, tt := range tests {
		c.SetStick(tt.x, tt.y)
		a := c.Axes()
		if a.Left != tt.left || a.Right != tt.right || a.Up != tt.up || a.Down != tt.down {
			t.Errorf("SetStick(%v, %v) flags = %+v", tt.x, tt.y, a)
		}
	}
}

func TestController_Clamp(t *testing.T) {
	c, _ := newTestController(t, nil)

	c.SetStick(50, -80)
	a := c.Axes()
	if m := math.Hypot(a.X, a.Y); m > 1+1e-9 {
		t.Errorf("|v| = %v, want <= 1", m)
	}
	if a.QX > axis.JoystickMax || a.QY < -axis.JoystickMax {
		t.Errorf("quantized out of range: %d,%d", a.QX, a.QY)
	}
}

func TestController_SetStickIdempotent(t *testing.T) {
	c, rec := newTestController(t, nil)

	c.SetStick(0.6, 0.1)
	c.SetStick(0.6, 0.1)
	c.SetStick(0.6, 0.1)
	c.Tick()

	st := c.Stats()
	if st.Metrics.StickCalls != 3 || st.Metrics.StickChanges != 1 {
		t.Errorf("stick metrics = %+v", st.Metrics)
	}
	if rec.count(true, keyRight) != 1 {
		t.Errorf("right pressed %d times", rec.count(true, keyRight))
	}
}

func TestController_DiagonalTieBreak(t *testing.T) {
	tests := []struct {
		name string
		x, y float64
		want []keys.ScanCode
	}{
		{"x larger", 0.8, 0.3, []keys.ScanCode{keyRight, keyDown}},
		{"y larger", 0.3, 0.8, []keys.ScanCode{keyDown, keyRight}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newTestController(t, nil)
			c.SetStick(tt.x, tt.y)
			c.Tick()

			got := rec.downs()
			if len(got) != 2 || got[0] != tt.want[0] || got[1] != tt.want[1] {
				t.Errorf("press order = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestController_XFirstTieBreak(t *testing.T) {
	c, rec := newTestController(t, func(cfg *config.Config) {
		cfg.Tuning.TieBreak = "x"
	})
	c.SetStick(0.3, 0.8)
	c.Tick()

	got := rec.downs()
	if len(got) != 2 || got[0] != keyRight {
		t.Errorf("press order = %v, want right first", got)
	}
}

func TestController_ButtonEdges(t *testing.T) {
	c, rec := newTestController(t, nil)
	const k keys.ScanCode = 50

	c.SetButton(k, true)
	c.SetButton(k, true)
	c.Tick()
	c.SetButton(k, false)
	c.Tick()

	if d, u := rec.count(true, k), rec.count(false, k); d != 1 || u != 1 {
		t.Errorf("downs=%d ups=%d, want 1/1", d, u)
	}
	c.SetButton(keys.None, true)
	c.Tick()
	if len(rec.snapshot()) != 2 {
		t.Error("unbound button produced key events")
	}
}

func TestController_ClearStateReleasesEverything(t *testing.T) {
	c, rec := newTestController(t, nil)
	const k keys.ScanCode = 50

	c.SetStick(0.6, 0.6)
	c.SetButton(k, true)
	c.Tick()

	if got := c.Stats().Dispatch.Resident; got != 3 {
		t.Fatalf("resident = %d, want 3", got)
	}
	rec.reset()

	c.ClearState()
	c.Tick()

	ups := rec.snapshot()
	if len(ups) != 3 {
		t.Fatalf("got %d events after ClearState, want 3: %+v", len(ups), ups)
	}
	for _, code := range []keys.ScanCode{keyRight, keyDown, k} {
		if rec.count(false, code) != 1 {
			t.Errorf("key %v released %d times", code, rec.count(false, code))
		}
	}
	if c.Stats().Dispatch.Resident != 0 {
		t.Error("resident set not empty after ClearState")
	}
	if c.Axes() != (Axes{}) {
		t.Error("axes not reset")
	}

	// Further ticks send nothing.
	c.Tick()
	c.Tick()
	if len(rec.snapshot()) != 3 {
		t.Error("extra events after clear")
	}
}

func TestController_ClearStateThenMove(t *testing.T) {
	c, rec := newTestController(t, nil)

	c.SetStick(0.6, 0)
	c.Tick()
	c.ClearState()
	c.SetStick(-0.6, 0)
	c.Tick()
	c.Tick()

	if rec.count(true, keyLeft) != 1 {
		t.Errorf("left pressed %d times after clear", rec.count(true, keyLeft))
	}
	if rec.count(false, keyRight) != 1 {
		t.Errorf("right released %d times", rec.count(false, keyRight))
	}
	if !c.manager.Resident().Has(keyLeft) || c.Stats().Held != 1 {
		t.Fatalf("resident = %v, held = %d, want left held", c.manager.Resident(), c.Stats().Held)
	}

	c.SetStick(-0.7, 0)
	c.Tick()
	if !c.manager.Resident().Has(keyLeft) || rec.count(false, keyLeft) != 0 {
		t.Errorf("left lost after a further deflection: resident = %v", c.manager.Resident())
	}
	c.Shutdown()
	assertBalanced(t, rec)
}

func TestController_ClearStateThenSameDirection(t *testing.T) {
	c, rec := newTestController(t, nil)

	c.SetStick(0.8, 0)
	c.Tick()
	c.ClearState()
	c.SetStick(0.8, 0)
	c.Tick()
	c.SetStick(0.9, 0)
	c.Tick()
	c.Tick()

	if !c.manager.Resident().Has(keyRight) {
		t.Fatalf("stick holds right but resident = %v", c.manager.Resident())
	}
	if held := c.Stats().Held; held != 1 {
		t.Errorf("held = %d, want 1", held)
	}
	want := []keyCall{{true, keyRight}, {false, keyRight}, {true, keyRight}}
	got := rec.snapshot()
	if len(got) != len(want) {
		t.Fatalf("calls = %+v, want %+v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	c.Shutdown()
	assertBalanced(t, rec)
}

func TestController_ClearStateThenButton(t *testing.T) {
	c, rec := newTestController(t, nil)
	const k keys.ScanCode = 50

	c.ClearState()
	c.SetButton(k, true)
	c.Tick()

	if rec.count(true, k) != 1 || !c.manager.Resident().Has(k) {
		t.Fatalf("button after clear not pressed: calls = %+v", rec.snapshot())
	}
	if !c.button.Pressed().Has(k) {
		t.Error("button tracker lost the press")
	}

	c.SetButton(k, false)
	c.Tick()
	if rec.count(false, k) != 1 || c.manager.Resident().Has(k) {
		t.Errorf("button not released: calls = %+v", rec.snapshot())
	}
	assertBalanced(t, rec)
}

func TestController_ReconfigureThenMove(t *testing.T) {
	c, rec := newTestController(t, nil)

	c.SetStick(0.6, 0)
	c.Tick()

	next := c.Config().Clone()
	next.StickKeys.Right = 40 // d
	c.Reconfigure(next)
	c.SetStick(0.7, 0)
	c.Tick()

	if rec.count(false, keyRight) != 1 || rec.count(true, 40) != 1 {
		t.Fatalf("calls = %+v, want old right released and new right pressed", rec.snapshot())
	}
	if !c.manager.Resident().Has(40) || c.Stats().Held != 1 {
		t.Errorf("resident = %v, held = %d", c.manager.Resident(), c.Stats().Held)
	}
	c.Shutdown()
	assertBalanced(t, rec)
}

func TestController_ReconfigureBindings(t *testing.T) {
	c, rec := newTestController(t, nil)

	c.SetStick(0.6, 0)
	c.Tick()

	next := c.Config().Clone()
	next.StickKeys.Right = 40 // d
	c.Reconfigure(next)
	c.Tick()

	if rec.count(false, keyRight) != 1 {
		t.Error("old right key not released on rebinding")
	}
	if c.Config() != next {
		t.Error("Config() did not return the new snapshot")
	}

	c.SetStick(0.7, 0)
	c.Tick()
	if rec.count(true, 40) != 1 {
		t.Error("new right key not used")
	}
	c.Shutdown()
	assertBalanced(t, rec)
}

func TestController_ReconfigureKeepsHolds(t *testing.T) {
	c, rec := newTestController(t, nil)

	c.SetStick(0.6, 0)
	c.Tick()

	next := c.Config().Clone()
	next.Deadzone = 0.2
	next.PersistentKeyPress = true
	c.Reconfigure(next)
	c.Tick()

	if rec.count(false, keyRight) != 0 {
		t.Error("holds released although bindings are unchanged")
	}
	// Persistent mode re-sends the held key on idle ticks.
	if rec.count(true, keyRight) < 2 {
		t.Error("persistent mode not applied")
	}
}

func TestController_TimedHolds(t *testing.T) {
	now := time.Unix(0, 0)
	cfg := config.Default()
	cfg.Tuning.HoldWindow = config.Duration(100 * time.Millisecond)
	rec := &recorder{}
	c := New(cfg, rec, WithClock(func() time.Time { return now }))

	c.SetStick(1, 0)
	c.Tick()
	now = now.Add(50 * time.Millisecond)
	c.Tick()
	if rec.count(false, keyRight) != 0 {
		t.Fatal("released before window elapsed")
	}
	now = now.Add(60 * time.Millisecond)
	c.Tick()
	if rec.count(false, keyRight) != 1 {
		t.Error("hold not released after window")
	}
}

func TestController_StartClose(t *testing.T) {
	c, rec := newTestController(t, nil)

	if err := c.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if err := c.Start(); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() = %v", err)
	}

	c.SetStick(0.6, -0.6)
	c.SetButton(50, true)

	deadline := time.Now().Add(time.Second)
	for c.Stats().Dispatch.Resident < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("keys not dispatched, resident = %d", c.Stats().Dispatch.Resident)
		}
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	if c.IsRunning() {
		t.Error("IsRunning() after Close")
	}
	if err := c.Close(ctx); !errors.Is(err, ErrNotRunning) {
		t.Errorf("second Close() = %v", err)
	}

	assertBalanced(t, rec)
	if c.Stats().Dispatch.Resident != 0 {
		t.Error("resident keys after Close")
	}
}

func TestController_ConcurrentProducersNoStuckKeys(t *testing.T) {
	c, rec := newTestController(t, func(cfg *config.Config) {
		cfg.Tuning.QueueSize = 8
	})
	if err := c.Start(); err != nil {
		t.Fatalf("Start() = %v", err)
	}

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			r := rand.New(rand.NewSource(seed))
			for i := 0; i < 300; i++ {
				switch r.Intn(10) {
				case 0:
					c.ClearState()
				case 1, 2:
					c.SetButton(keys.ScanCode(50+r.Intn(3)), r.Intn(2) == 0)
				default:
					c.SetStick(r.Float64()*2-1, r.Float64()*2-1)
				}
				if i%25 == 0 {
					time.Sleep(time.Millisecond)
				}
			}
		}(int64(g))
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Close(ctx); err != nil {
		t.Fatalf("Close() = %v", err)
	}
	assertBalanced(t, rec)
}
