// Package keys defines the key vocabulary of the remapping engine: scan
// codes, the fixed-size down-key bit set, modifiers and hotkey bindings.
//
// A ScanCode is the platform key identifier used uniformly by the engine.
// On Linux it is the X11 keycode (evdev code + 8), which is what both the
// X11 and uinput backends accept. ScanCode 0 is reserved for "unbound".
//
// Key names used in configuration files ("j", "f8", "space", "kp5") resolve
// to scan codes through Lookup; numeric strings are accepted as raw codes.
package keys
