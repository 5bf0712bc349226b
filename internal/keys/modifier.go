package keys

import (
	"fmt"
	"strings"
)

// Modifier is a bitmask of hotkey modifier keys.
type Modifier uint8

// ModNone is the empty modifier set.
const ModNone Modifier = 0

const (
	ModShift Modifier = 1 << iota
	ModCtrl
	ModAlt
	ModSuper
)

// Has returns true if m contains the given modifier.
func (m Modifier) Has(mod Modifier) bool {
	return m&mod != 0
}

// With returns m with the given modifier added.
func (m Modifier) With(mod Modifier) Modifier {
	return m | mod
}

// String returns "Ctrl+Alt+Shift+Super" style text, in that fixed order.
func (m Modifier) String() string {
	if m == ModNone {
		return ""
	}
	var parts []string
	if m.Has(ModCtrl) {
		parts = append(parts, "Ctrl")
	}
	if m.Has(ModAlt) {
		parts = append(parts, "Alt")
	}
	if m.Has(ModShift) {
		parts = append(parts, "Shift")
	}
	if m.Has(ModSuper) {
		parts = append(parts, "Super")
	}
	return strings.Join(parts, "+")
}

var modifierNames = map[string]Modifier{
	"ctrl":    ModCtrl,
	"control": ModCtrl,
	"c":       ModCtrl,
	"alt":     ModAlt,
	"option":  ModAlt,
	"opt":     ModAlt,
	"m":       ModAlt,
	"shift":   ModShift,
	"s":       ModShift,
	"super":   ModSuper,
	"meta":    ModSuper,
	"win":     ModSuper,
	"cmd":     ModSuper,
	"d":       ModSuper,
}

// ModifierFromName returns the modifier for a name (case-insensitive).
func ModifierFromName(name string) (Modifier, bool) {
	m, ok := modifierNames[strings.ToLower(name)]
	return m, ok
}

// ParseModifiers parses "ctrl+shift" or "ctrl,shift" into a mask.
func ParseModifiers(s string) (Modifier, error) {
	if s == "" {
		return ModNone, nil
	}
	var result Modifier
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '+' || r == ',' }) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		mod, ok := ModifierFromName(part)
		if !ok {
			return ModNone, fmt.Errorf("%w: unknown modifier %q", ErrInvalidHotkey, part)
		}
		result = result.With(mod)
	}
	return result, nil
}
