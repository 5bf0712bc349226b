package keys

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ScanCode identifies a physical key. Zero means "no binding".
type ScanCode uint8

const (
	// None is the unbound scan code.
	None ScanCode = 0

	// MaxScanCode is the highest representable scan code.
	MaxScanCode = 0xff

	// evdevOffset converts between X11 keycodes and Linux evdev codes.
	evdevOffset = 8
)

// Scan code errors.
var (
	ErrUnknownKey   = errors.New("unknown key name")
	ErrCodeRange    = errors.New("scan code out of range")
	ErrEmptyKeySpec = errors.New("empty key specification")
)

// evdevCodes maps lowercase key names to Linux evdev codes.
// Aliases share a code; the first name listed in canonicalNames wins for
// String.
var evdevCodes = map[string]uint16{
	"esc": 1, "escape": 1,
	"1": 2, "2": 3, "3": 4, "4": 5, "5": 6, "6": 7, "7": 8, "8": 9, "9": 10, "0": 11,
	"minus": 12, "-": 12, "equal": 13, "=": 13,
	"backspace": 14, "tab": 15,
	"q": 16, "w": 17, "e": 18, "r": 19, "t": 20, "y": 21, "u": 22, "i": 23, "o": 24, "p": 25,
	"leftbrace": 26, "[": 26, "rightbrace": 27, "]": 27,
	"enter": 28, "return": 28,
	"leftctrl": 29, "ctrl": 29,
	"a": 30, "s": 31, "d": 32, "f": 33, "g": 34, "h": 35, "j": 36, "k": 37, "l": 38,
	"semicolon": 39, ";": 39, "apostrophe": 40, "'": 40, "grave": 41, "`": 41,
	"leftshift": 42, "shift": 42, "backslash": 43, "\\": 43,
	"z": 44, "x": 45, "c": 46, "v": 47, "b": 48, "n": 49, "m": 50,
	"comma": 51, ",": 51, "dot": 52, ".": 52, "slash": 53, "/": 53,
	"rightshift": 54, "kpasterisk": 55, "leftalt": 56, "alt": 56,
	"space": 57, "capslock": 58,
	"f1": 59, "f2": 60, "f3": 61, "f4": 62, "f5": 63, "f6": 64, "f7": 65, "f8": 66, "f9": 67, "f10": 68,
	"numlock": 69, "scrolllock": 70,
	"kp7": 71, "kp8": 72, "kp9": 73, "kpminus": 74,
	"kp4": 75, "kp5": 76, "kp6": 77, "kpplus": 78,
	"kp1": 79, "kp2": 80, "kp3": 81, "kp0": 82, "kpdot": 83,
	"f11": 87, "f12": 88,
	"kpenter": 96, "rightctrl": 97, "kpslash": 98, "rightalt": 100,
	"home": 102, "up": 103, "pageup": 104, "left": 105, "right": 106,
	"end": 107, "down": 108, "pagedown": 109, "insert": 110, "delete": 111,
	"leftmeta": 125, "super": 125, "rightmeta": 126,
}

// canonicalNames lists the preferred name for codes that have aliases.
var canonicalNames = []string{
	"esc", "minus", "equal", "leftbrace", "rightbrace", "enter", "leftctrl",
	"semicolon", "apostrophe", "grave", "leftshift", "backslash", "comma",
	"dot", "slash", "leftalt", "leftmeta",
}

var codeNames = buildCodeNames()

func buildCodeNames() map[ScanCode]string {
	names := make(map[ScanCode]string, len(evdevCodes))
	for _, name := range canonicalNames {
		names[ScanCode(evdevCodes[name]+evdevOffset)] = name
	}
	// Deterministic choice for the remaining names: shortest, then lexical.
	all := make([]string, 0, len(evdevCodes))
	for name := range evdevCodes {
		all = append(all, name)
	}
	sort.Slice(all, func(i, j int) bool {
		if len(all[i]) != len(all[j]) {
			return len(all[i]) < len(all[j])
		}
		return all[i] < all[j]
	})
	for _, name := range all {
		code := ScanCode(evdevCodes[name] + evdevOffset)
		if _, ok := names[code]; !ok {
			names[code] = name
		}
	}
	return names
}

// Lookup resolves a key name (case-insensitive) to its scan code.
func Lookup(name string) (ScanCode, bool) {
	ev, ok := evdevCodes[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return None, false
	}
	return ScanCode(ev + evdevOffset), true
}

// ParseScanCode accepts a key name, a decimal code ("44") or a hex code
// ("0x2c"). An empty string or "none" yields None.
func ParseScanCode(spec string) (ScanCode, error) {
	spec = strings.TrimSpace(spec)
	switch strings.ToLower(spec) {
	case "", "none", "unbound":
		return None, nil
	}

	if code, ok := Lookup(spec); ok {
		return code, nil
	}

	n, err := strconv.ParseUint(spec, 0, 32)
	if err != nil {
		return None, fmt.Errorf("%w: %q", ErrUnknownKey, spec)
	}
	if n > MaxScanCode {
		return None, fmt.Errorf("%w: %d", ErrCodeRange, n)
	}
	return ScanCode(n), nil
}

// FromEvdev converts a Linux evdev key code to a scan code.
func FromEvdev(code uint16) (ScanCode, error) {
	if int(code)+evdevOffset > MaxScanCode {
		return None, fmt.Errorf("%w: evdev %d", ErrCodeRange, code)
	}
	return ScanCode(code + evdevOffset), nil
}

// Evdev returns the Linux evdev key code for c.
// The second result is false for None and for codes below the X11 offset.
func (c ScanCode) Evdev() (uint16, bool) {
	if c < evdevOffset+1 {
		return 0, false
	}
	return uint16(c) - evdevOffset, true
}

// Name returns the key name for c, or "" when the code has none.
func (c ScanCode) Name() string {
	return codeNames[c]
}

// IsBound reports whether c is a real key.
func (c ScanCode) IsBound() bool {
	return c != None
}

// String returns the key name, or the decimal code for unnamed keys.
func (c ScanCode) String() string {
	if c == None {
		return "none"
	}
	if name, ok := codeNames[c]; ok {
		return name
	}
	return strconv.Itoa(int(c))
}

// MarshalText encodes the scan code as its name so configuration files stay
// readable.
func (c ScanCode) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts everything ParseScanCode accepts.
func (c *ScanCode) UnmarshalText(text []byte) error {
	code, err := ParseScanCode(string(text))
	if err != nil {
		return err
	}
	*c = code
	return nil
}
