// math/heading.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

///////////////////////////////////////////////////////////////////////////
// headings and angles

// Reduces it to [0,360).
func NormalizeHeading(h float64) float64 {
	h = Mod(h, 360)
	if h < 0 {
		h += 360
	}
	if h >= 360 { // tiny negative values round up
		h = 0
	}
	return h
}

// HeadingDifference returns the minimum difference between two
// headings. (i.e., the result is always in the range [0,180].)
func HeadingDifference(a float64, b float64) float64 {
	d := Abs(NormalizeHeading(a) - NormalizeHeading(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

// Figure out which way is closest: first find the angle to rotate the
// target heading by so that it's aligned with 180 degrees. This lets us
// not worry about the complexities of the wrap around at 0/360..
func HeadingSignedTurn(cur, target float64) float64 {
	rot := NormalizeHeading(180 - target)
	return 180 - NormalizeHeading(cur+rot) // w.r.t. 180 target
}

// Wrap180 maps an angle in degrees to (-180,180].
func Wrap180(deg float64) float64 {
	w := NormalizeHeading(deg)
	if w > 180 {
		w -= 360
	}
	return w
}

// Wrap180Cd is Wrap180 for angles expressed in centidegrees, which is how
// all of the attitude targets are stored.
func Wrap180Cd(cd float64) float64 {
	return 100 * Wrap180(cd/100)
}

// Wrap360Cd maps centidegrees to [0,36000).
func Wrap360Cd(cd float64) float64 {
	return 100 * NormalizeHeading(cd/100)
}
