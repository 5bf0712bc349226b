package config

import (
	"fmt"
	"time"

	"github.com/dshills/panpad/internal/axis"
	"github.com/dshills/panpad/internal/keys"
)

// Config is one immutable configuration snapshot.
type Config struct {
	// Target is the window name (or class) of the application receiving
	// the emulated stick.
	Target string `toml:"target" yaml:"target"`

	Sensitivity float64 `toml:"sensitivity" yaml:"sensitivity"`
	Deadzone    float64 `toml:"deadzone" yaml:"deadzone"`
	Range       float64 `toml:"range" yaml:"range"`
	Threshold   float64 `toml:"threshold" yaml:"threshold"`
	OffsetX     float64 `toml:"offset_x" yaml:"offset_x"`
	OffsetY     float64 `toml:"offset_y" yaml:"offset_y"`

	StickKeys StickKeys `toml:"stick_keys" yaml:"stick_keys"`
	MouseKeys MouseKeys `toml:"mouse_keys" yaml:"mouse_keys"`

	// Toggle is the global hotkey that starts and stops panning.
	Toggle string `toml:"toggle" yaml:"toggle"`

	HideMouse          bool `toml:"hide_mouse" yaml:"hide_mouse"`
	AutoFocusTarget    bool `toml:"auto_focus_target" yaml:"auto_focus_target"`
	BindMouseButtons   bool `toml:"bind_mouse_buttons" yaml:"bind_mouse_buttons"`
	PersistentKeyPress bool `toml:"persistent_key_press" yaml:"persistent_key_press"`

	Tuning Tuning `toml:"tuning" yaml:"tuning"`
}

// StickKeys binds the four stick directions.
type StickKeys struct {
	Left  keys.ScanCode `toml:"left" yaml:"left"`
	Right keys.ScanCode `toml:"right" yaml:"right"`
	Up    keys.ScanCode `toml:"up" yaml:"up"`
	Down  keys.ScanCode `toml:"down" yaml:"down"`
}

// Array returns the bindings in left, right, up, down order.
func (s StickKeys) Array() [4]keys.ScanCode {
	return [4]keys.ScanCode{s.Left, s.Right, s.Up, s.Down}
}

// MouseKeys binds mouse buttons to keys. None leaves a button unbound.
type MouseKeys struct {
	Left   keys.ScanCode `toml:"left" yaml:"left"`
	Right  keys.ScanCode `toml:"right" yaml:"right"`
	Middle keys.ScanCode `toml:"middle" yaml:"middle"`
}

// Tuning holds the feel constants of pointer smoothing and dispatch.
type Tuning struct {
	// SampleInterval is the pointer smoothing tick.
	SampleInterval Duration `toml:"sample_interval" yaml:"sample_interval"`
	// Blend is the weight of the newest delta in the moving average.
	Blend float64 `toml:"blend" yaml:"blend"`
	// Decay multiplies the average once per sample tick.
	Decay float64 `toml:"decay" yaml:"decay"`
	// MinMove is the shortest delta length; shorter deltas are scaled up.
	MinMove float64 `toml:"min_move" yaml:"min_move"`
	// MaxMove caps the averaged delta length.
	MaxMove float64 `toml:"max_move" yaml:"max_move"`
	// SensitivityScale converts averaged pixels to stick units.
	SensitivityScale float64 `toml:"sensitivity_scale" yaml:"sensitivity_scale"`
	// IdleTicks is the number of motionless sample ticks before the
	// average is zeroed.
	IdleTicks int `toml:"idle_ticks" yaml:"idle_ticks"`
	// DispatchInterval is the key dispatch loop period.
	DispatchInterval Duration `toml:"dispatch_interval" yaml:"dispatch_interval"`
	// CursorHideAfter is the idle time before the cursor is hidden.
	CursorHideAfter Duration `toml:"cursor_hide_after" yaml:"cursor_hide_after"`
	// HoldWindow enables timed stick holds when positive.
	HoldWindow Duration `toml:"hold_window" yaml:"hold_window"`
	// TieBreak is "larger" or "x".
	TieBreak string `toml:"tie_break" yaml:"tie_break"`
	// DownPolicy is "new" or "resident".
	DownPolicy string `toml:"down_policy" yaml:"down_policy"`
	// QueueSize is the key dispatch queue capacity.
	QueueSize int `toml:"queue_size" yaml:"queue_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Target:      "Ryujinx",
		Sensitivity: 1.0,
		Deadzone:    0.15,
		Range:       0.95,
		Threshold:   0.5,
		StickKeys: StickKeys{
			Left:  mustLookup("j"),
			Right: mustLookup("l"),
			Up:    mustLookup("i"),
			Down:  mustLookup("k"),
		},
		Toggle:           "Ctrl+F8",
		HideMouse:        true,
		AutoFocusTarget:  true,
		BindMouseButtons: false,
		Tuning:           DefaultTuning(),
	}
}

// DefaultTuning returns the built-in feel constants.
func DefaultTuning() Tuning {
	return Tuning{
		SampleInterval:   Duration(10 * time.Millisecond),
		Blend:            0.69,
		Decay:            0.76,
		MinMove:          3,
		MaxMove:          10,
		SensitivityScale: 0.0044,
		IdleTicks:        15,
		DispatchInterval: Duration(time.Millisecond),
		CursorHideAfter:  Duration(2500 * time.Millisecond),
		HoldWindow:       0,
		TieBreak:         "larger",
		DownPolicy:       "new",
		QueueSize:        1024,
	}
}

func mustLookup(name string) keys.ScanCode {
	c, ok := keys.Lookup(name)
	if !ok {
		panic(fmt.Sprintf("config: unknown default key %q", name))
	}
	return c
}

// Clone returns a copy that can be modified and published separately.
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}

// AxisParams returns the normalization parameters.
func (c *Config) AxisParams() axis.Params {
	return axis.Params{
		Deadzone: c.Deadzone,
		Range:    c.Range,
		OffsetX:  c.OffsetX,
		OffsetY:  c.OffsetY,
	}
}

// Hotkey parses the toggle binding.
func (c *Config) Hotkey() (keys.Hotkey, error) {
	return keys.ParseHotkey(c.Toggle)
}

// BindingsEqual reports whether c and o bind the same keys.
func (c *Config) BindingsEqual(o *Config) bool {
	return c.StickKeys == o.StickKeys && c.MouseKeys == o.MouseKeys
}

// MouseKey returns the binding for a mouse button index
// (0 left, 1 right, 2 middle).
func (c *Config) MouseKey(button int) keys.ScanCode {
	switch button {
	case 0:
		return c.MouseKeys.Left
	case 1:
		return c.MouseKeys.Right
	case 2:
		return c.MouseKeys.Middle
	default:
		return keys.None
	}
}

// Duration is a time.Duration written as "10ms" in config files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// String formats the duration like time.Duration.
func (d Duration) String() string {
	return time.Duration(d).String()
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
