// math/vecmat.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	gomath "math"

	"github.com/golang/geo/r3"
)

///////////////////////////////////////////////////////////////////////////
// 3D vectors in the local tangent plane
//
// Positions and velocities are r3.Vectors with x north, y east, and z up,
// in centimeters (or cm/s). The helpers here cover the horizontal-plane
// operations that r3 doesn't provide.

// HorizontalLength returns the length of v's projection onto the
// horizontal plane.
func HorizontalLength(v r3.Vector) float64 {
	return gomath.Hypot(v.X, v.Y)
}

// HorizontalDistance returns the distance between a and b ignoring
// altitude.
func HorizontalDistance(a, b r3.Vector) float64 {
	return gomath.Hypot(b.X-a.X, b.Y-a.Y)
}

// BearingCd returns the bearing from |from| to |to| in centidegrees in
// [0,36000), measured clockwise from north.
func BearingCd(from, to r3.Vector) float64 {
	// atan2(east, north) gives a clockwise angle from north.
	return Wrap360Cd(100 * Degrees(gomath.Atan2(to.Y-from.Y, to.X-from.X)))
}

// IsZeroVector reports whether every component of v is zero.
func IsZeroVector(v r3.Vector) bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

///////////////////////////////////////////////////////////////////////////
// Quaternion

// Quaternion is a unit quaternion describing a body attitude with respect
// to the local frame.
type Quaternion struct {
	W, X, Y, Z float64
}

// QuaternionFromEuler returns the quaternion for the given roll, pitch, and
// yaw, expressed in radians (3-2-1 rotation order).
func QuaternionFromEuler(roll, pitch, yaw float64) Quaternion {
	cr, sr := gomath.Cos(roll/2), gomath.Sin(roll/2)
	cp, sp := gomath.Cos(pitch/2), gomath.Sin(pitch/2)
	cy, sy := gomath.Cos(yaw/2), gomath.Sin(yaw/2)

	return Quaternion{
		W: cr*cp*cy + sr*sp*sy,
		X: sr*cp*cy - cr*sp*sy,
		Y: cr*sp*cy + sr*cp*sy,
		Z: cr*cp*sy - sr*sp*cy,
	}
}

// Euler returns roll, pitch, and yaw in radians.
func (q Quaternion) Euler() (roll, pitch, yaw float64) {
	roll = gomath.Atan2(2*(q.W*q.X+q.Y*q.Z), 1-2*(q.X*q.X+q.Y*q.Y))
	pitch = gomath.Asin(Clamp(2*(q.W*q.Y-q.Z*q.X), -1, 1))
	yaw = gomath.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.Y*q.Y+q.Z*q.Z))
	return
}
