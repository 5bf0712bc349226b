package config

import (
	"math"

	"github.com/dshills/panpad/internal/keys"
)

// Validate checks every setting and returns ValidationErrors listing all
// problems, or nil.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, msg string, value any) {
		errs = append(errs, &ValidationError{Field: field, Message: msg, Value: value})
	}

	if c.Target == "" {
		add("target", "must not be empty", c.Target)
	}
	if !finite(c.Sensitivity) || c.Sensitivity <= 0 {
		add("sensitivity", "must be > 0", c.Sensitivity)
	}
	if !finite(c.Deadzone) || c.Deadzone < 0 || c.Deadzone >= 1 {
		add("deadzone", "must be in [0, 1)", c.Deadzone)
	}
	if !finite(c.Range) || c.Range <= 0 {
		add("range", "must be > 0", c.Range)
	}
	if !finite(c.Threshold) || c.Threshold < 0 || c.Threshold > 1 {
		add("threshold", "must be in [0, 1]", c.Threshold)
	}
	if !finite(c.OffsetX) || math.Abs(c.OffsetX) >= 1 {
		add("offset_x", "must be in (-1, 1)", c.OffsetX)
	}
	if !finite(c.OffsetY) || math.Abs(c.OffsetY) >= 1 {
		add("offset_y", "must be in (-1, 1)", c.OffsetY)
	}

	if _, err := c.Hotkey(); err != nil {
		add("toggle", err.Error(), c.Toggle)
	}

	seen := make(map[keys.ScanCode]string)
	names := [4]string{"stick_keys.left", "stick_keys.right", "stick_keys.up", "stick_keys.down"}
	for i, code := range c.StickKeys.Array() {
		if code == keys.None {
			continue
		}
		if prev, dup := seen[code]; dup {
			add(names[i], "duplicates "+prev, code)
			continue
		}
		seen[code] = names[i]
	}

	c.Tuning.validate(add)

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (t Tuning) validate(add func(field, msg string, value any)) {
	if t.SampleInterval <= 0 {
		add("tuning.sample_interval", "must be > 0", t.SampleInterval)
	}
	if !finite(t.Blend) || t.Blend <= 0 || t.Blend > 1 {
		add("tuning.blend", "must be in (0, 1]", t.Blend)
	}
	if !finite(t.Decay) || t.Decay < 0 || t.Decay >= 1 {
		add("tuning.decay", "must be in [0, 1)", t.Decay)
	}
	if !finite(t.MinMove) || t.MinMove < 0 {
		add("tuning.min_move", "must be >= 0", t.MinMove)
	}
	if !finite(t.MaxMove) || t.MaxMove <= 0 || t.MaxMove < t.MinMove {
		add("tuning.max_move", "must be > 0 and >= min_move", t.MaxMove)
	}
	if !finite(t.SensitivityScale) || t.SensitivityScale <= 0 {
		add("tuning.sensitivity_scale", "must be > 0", t.SensitivityScale)
	}
	if t.IdleTicks < 1 {
		add("tuning.idle_ticks", "must be >= 1", t.IdleTicks)
	}
	if t.DispatchInterval <= 0 {
		add("tuning.dispatch_interval", "must be > 0", t.DispatchInterval)
	}
	if t.CursorHideAfter < 0 {
		add("tuning.cursor_hide_after", "must be >= 0", t.CursorHideAfter)
	}
	if t.HoldWindow < 0 {
		add("tuning.hold_window", "must be >= 0", t.HoldWindow)
	}
	switch t.TieBreak {
	case "", "larger", "x":
	default:
		add("tuning.tie_break", `must be "larger" or "x"`, t.TieBreak)
	}
	switch t.DownPolicy {
	case "", "new", "resident":
	default:
		add("tuning.down_policy", `must be "new" or "resident"`, t.DownPolicy)
	}
	if t.QueueSize < 0 {
		add("tuning.queue_size", "must be >= 0", t.QueueSize)
	}
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
