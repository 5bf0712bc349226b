// Package axis turns raw two-dimensional pointer displacement into a
// normalized stick vector.
//
// Normalization applies a per-axis center offset, a radial deadzone and a
// range scale, in that order. The result is suitable for Quantize, which
// maps it onto the signed 16-bit joystick scale used by the key handlers.
package axis

import "math"

// JoystickMax is the quantized magnitude of a fully deflected axis.
const JoystickMax = 0x7fff

// OffsetRescaleLimit is the offset magnitude at or above which the
// asymmetric rescale after offsetting is skipped.
const OffsetRescaleLimit = 0.75

// Params holds the normalization inputs taken from configuration.
type Params struct {
	// Deadzone is the radius below which the vector collapses to zero.
	// Values >= 1 disable the stick entirely.
	Deadzone float64
	// Range divides the post-deadzone vector. Must be > 0.
	Range float64
	OffsetX float64
	OffsetY float64
}

// Normalize returns the deadzone/range/offset corrected vector for a raw
// displacement. When clamp is true the result never exceeds unit length.
//
// Normalize is pure; identical inputs always give identical outputs.
func Normalize(rawX, rawY float64, p Params, clamp bool) (x, y float64) {
	x = applyOffset(sanitize(rawX), p.OffsetX)
	y = applyOffset(sanitize(rawY), p.OffsetY)

	r := math.Hypot(x, y)
	if r <= p.Deadzone || p.Deadzone >= 1 {
		return 0, 0
	}

	factor := (r - p.Deadzone) / (r * (1 - p.Deadzone))
	scale := factor
	if p.Range > 0 {
		scale /= p.Range
	}
	x *= scale
	y *= scale

	if clamp {
		if m := math.Hypot(x, y); m > 1 {
			x /= m
			y /= m
		}
	}
	return x, y
}

// Quantize maps a normalized axis value onto the integer joystick scale.
// Values outside [-1, 1] are clamped first.
func Quantize(v float64) int32 {
	switch {
	case v > 1:
		v = 1
	case v < -1:
		v = -1
	}
	return int32(math.Round(v * JoystickMax))
}

const smallestNormal = 0x1p-1022

// sanitize replaces NaN, infinities and subnormals with zero.
func sanitize(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || math.Abs(v) < smallestNormal {
		return 0
	}
	return v
}

func applyOffset(v, offset float64) float64 {
	v += offset
	if math.Abs(offset) < OffsetRescaleLimit {
		if v > 0 {
			v /= 1 + offset
		} else {
			v /= 1 - offset
		}
	}
	return v
}
