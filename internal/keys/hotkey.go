package keys

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidHotkey is returned for malformed hotkey specifications.
var ErrInvalidHotkey = errors.New("invalid hotkey")

// Hotkey is a global toggle binding such as Ctrl+F8.
type Hotkey struct {
	Mods Modifier
	// Key is the canonical lowercase key name.
	Key string
	// Code is the scan code of Key.
	Code ScanCode
}

// ParseHotkey parses "Ctrl+F8", "ctrl+shift+p" or "F9".
// The last "+" separated part is the key; everything before it must be a
// modifier.
func ParseHotkey(spec string) (Hotkey, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Hotkey{}, fmt.Errorf("%w: %w", ErrInvalidHotkey, ErrEmptyKeySpec)
	}

	parts := strings.Split(spec, "+")
	keyPart := strings.TrimSpace(parts[len(parts)-1])
	if keyPart == "" {
		return Hotkey{}, fmt.Errorf("%w: missing key in %q", ErrInvalidHotkey, spec)
	}

	var mods Modifier
	for _, p := range parts[:len(parts)-1] {
		p = strings.TrimSpace(p)
		mod, ok := ModifierFromName(p)
		if !ok {
			return Hotkey{}, fmt.Errorf("%w: unknown modifier %q", ErrInvalidHotkey, p)
		}
		mods = mods.With(mod)
	}

	code, ok := Lookup(keyPart)
	if !ok {
		return Hotkey{}, fmt.Errorf("%w: unknown key %q", ErrInvalidHotkey, keyPart)
	}

	return Hotkey{Mods: mods, Key: code.Name(), Code: code}, nil
}

// MustParseHotkey is like ParseHotkey but panics on error.
func MustParseHotkey(spec string) Hotkey {
	h, err := ParseHotkey(spec)
	if err != nil {
		panic(err)
	}
	return h
}

// IsZero reports whether h is unset.
func (h Hotkey) IsZero() bool {
	return h.Code == None
}

// String renders the hotkey in "Ctrl+F8" form.
func (h Hotkey) String() string {
	if h.IsZero() {
		return ""
	}
	key := h.Key
	if len(key) <= 3 {
		key = strings.ToUpper(key)
	}
	if h.Mods == ModNone {
		return key
	}
	return h.Mods.String() + "+" + key
}
