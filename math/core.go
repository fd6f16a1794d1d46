// math/core.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	gomath "math"

	"golang.org/x/exp/constraints"
)

// Degrees converts an angle expressed in radians to degrees
func Degrees(r float64) float64 {
	return r * 180 / gomath.Pi
}

// Radians converts an angle expressed in degrees to radians
func Radians(d float64) float64 {
	return d / 180 * gomath.Pi
}

// A handful of wrappers so that callers don't need to import both this
// package and the standard library math package.

func Sqrt(a float64) float64 {
	return gomath.Sqrt(a)
}

// SafeSqrt returns 0 for negative (or NaN) arguments rather than NaN.
func SafeSqrt(a float64) float64 {
	if !(a > 0) {
		return 0
	}
	return gomath.Sqrt(a)
}

func Hypot(x, y float64) float64 {
	return gomath.Hypot(x, y)
}

func Atan2(y, x float64) float64 {
	return gomath.Atan2(y, x)
}

func Mod(a, b float64) float64 {
	return gomath.Mod(a, b)
}

func Sign(v float64) float64 {
	if v > 0 {
		return 1
	} else if v < 0 {
		return -1
	}
	return 0
}

func Abs[V constraints.Integer | constraints.Float](x V) V {
	if x < 0 {
		return -x
	}
	return x
}

func Sqr[V constraints.Integer | constraints.Float](v V) V { return v * v }

func Clamp[T constraints.Ordered](x T, low T, high T) T {
	if x < low {
		return low
	} else if x > high {
		return high
	}
	return x
}

func Lerp(x, a, b float64) float64 {
	return (1-x)*a + x*b
}

// IsZero reports whether v is close enough to zero that it should be
// treated as such; parameters that use 0 to mean "disabled" are tested
// with it.
func IsZero(v float64) bool {
	return Abs(v) < 1e-9
}

// IsPositive reports whether v is meaningfully greater than zero.
func IsPositive(v float64) bool {
	return v > 1e-9
}

// HighByte and LowByte split 16-bit mission command parameters that pack
// two values.
func HighByte(v uint16) uint8 { return uint8(v >> 8) }

func LowByte(v uint16) uint8 { return uint8(v & 0xff) }
