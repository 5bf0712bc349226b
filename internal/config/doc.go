// Package config provides panpad's configuration: the Config snapshot,
// file loading and saving, environment overrides, validation, a
// swappable current-snapshot Store and a file Watcher for live reload.
//
// # File Formats
//
// Files are TOML (.toml) or YAML (.yaml, .yml), chosen by extension:
//
//	target = "Ryujinx"
//	sensitivity = 1.0
//	deadzone = 0.15
//	toggle = "Ctrl+F8"
//
//	[stick_keys]
//	left = "j"
//	right = "l"
//	up = "i"
//	down = "k"
//
//	[tuning]
//	sample_interval = "10ms"
//
// Key bindings accept key names or numeric scan codes written as strings.
//
// # Environment Variables
//
// Variables named PANPAD_<FIELD> override file values, for example
// PANPAD_DEADZONE=0.2 or PANPAD_STICK_KEYS_LEFT=a. Booleans accept
// true/false, yes/no, on/off and 1/0.
//
// # Immutability
//
// A Config is never modified after it is published through a Store.
// Reconfiguration builds a new Config and swaps it in wholesale.
package config
