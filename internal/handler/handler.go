// Package handler converts quantized stick values and button edges into
// key press and release requests.
//
// Stick keeps one hold per direction and is driven by two goroutines:
// producers call OnChange, and the dispatch goroutine calls OnUpdate.
// Button is edge-triggered and tracks which scan codes it has pressed.
// Both release everything they hold on OnStop.
package handler

import (
	"github.com/dshills/panpad/internal/keys"
)

// Keyboard receives key requests. dispatch.Manager implements it.
type Keyboard interface {
	Press(codes ...keys.ScanCode) error
	Release(codes ...keys.ScanCode) error
}

// Handler is the part of a handler the dispatch loop drives.
type Handler interface {
	// OnUpdate runs on the dispatch goroutine once per tick.
	OnUpdate()
	// OnStop releases everything the handler holds.
	OnStop()
}

// Direction indexes the four stick keys.
type Direction uint8

const (
	Left Direction = iota
	Right
	Up
	Down

	// NumDirections is the number of stick directions.
	NumDirections = 4
)

// String returns the lowercase direction name.
func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	case Up:
		return "up"
	case Down:
		return "down"
	default:
		return "invalid"
	}
}

// Opposite returns the other half of the same axis.
func (d Direction) Opposite() Direction {
	return d ^ 1
}

// Bindings maps each direction to a scan code, indexed by Direction.
type Bindings [NumDirections]keys.ScanCode

// Command asks the stick to hold a direction with a magnitude.
// Magnitude 0 releases the direction.
type Command struct {
	Dir       Direction
	Magnitude uint32

	stop bool
	// before runs ahead of the release a stop sentinel performs.
	before func()
}

// IsStop reports whether c is the stop sentinel.
func (c Command) IsStop() bool {
	return c.stop
}

// TieBreak orders the two axis pairs queued by one stick change.
type TieBreak uint8

const (
	// LargerFirst queues the larger-magnitude axis first.
	LargerFirst TieBreak = iota
	// XFirst always queues the horizontal axis first.
	XFirst
)

// String returns the configuration name of t.
func (t TieBreak) String() string {
	if t == XFirst {
		return "x"
	}
	return "larger"
}

// ParseTieBreak parses "larger" or "x".
func ParseTieBreak(s string) (TieBreak, bool) {
	switch s {
	case "", "larger":
		return LargerFirst, true
	case "x":
		return XFirst, true
	default:
		return LargerFirst, false
	}
}
