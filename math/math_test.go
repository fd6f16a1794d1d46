// math/math_test.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package math

import (
	gomath "math"
	"testing"

	"github.com/golang/geo/r3"
)

func approxEqual(a, b, eps float64) bool {
	return gomath.Abs(a-b) <= eps
}

func TestClamp(t *testing.T) {
	if c := Clamp(5, 0, 3); c != 3 {
		t.Errorf("Expected 3, got %d", c)
	}
	if c := Clamp(-1.5, -1, 1); c != -1 {
		t.Errorf("Expected -1, got %f", c)
	}
	if c := Clamp(0.25, -1, 1); c != 0.25 {
		t.Errorf("Expected 0.25, got %f", c)
	}
}

func TestSafeSqrt(t *testing.T) {
	if v := SafeSqrt(-4); v != 0 {
		t.Errorf("Expected 0 for negative input, got %f", v)
	}
	if v := SafeSqrt(gomath.NaN()); v != 0 {
		t.Errorf("Expected 0 for NaN input, got %f", v)
	}
	if v := SafeSqrt(16); v != 4 {
		t.Errorf("Expected 4, got %f", v)
	}
}

func TestBytes(t *testing.T) {
	v := uint16(0x0a03)
	if HighByte(v) != 10 {
		t.Errorf("Expected high byte 10, got %d", HighByte(v))
	}
	if LowByte(v) != 3 {
		t.Errorf("Expected low byte 3, got %d", LowByte(v))
	}
}

func TestNormalizeHeading(t *testing.T) {
	for _, test := range []struct{ h, expected float64 }{
		{0, 0}, {360, 0}, {-360, 0}, {-90, 270}, {725, 5}, {359.5, 359.5},
	} {
		if n := NormalizeHeading(test.h); !approxEqual(n, test.expected, 1e-9) {
			t.Errorf("NormalizeHeading(%f): expected %f, got %f", test.h, test.expected, n)
		}
	}
}

func TestWrap180Cd(t *testing.T) {
	for _, test := range []struct{ cd, expected float64 }{
		{0, 0},
		{17000, 17000},
		{18000, 18000},
		{19000, -17000},
		{-19000, 17000},
		{36000, 0},
		{-9000, -9000},
		{72000 + 4500, 4500},
	} {
		if w := Wrap180Cd(test.cd); !approxEqual(w, test.expected, 1e-6) {
			t.Errorf("Wrap180Cd(%f): expected %f, got %f", test.cd, test.expected, w)
		}
	}
}

func TestHeadingDifference(t *testing.T) {
	if d := HeadingDifference(350, 10); !approxEqual(d, 20, 1e-9) {
		t.Errorf("Expected 20, got %f", d)
	}
	if d := HeadingDifference(90, 270); !approxEqual(d, 180, 1e-9) {
		t.Errorf("Expected 180, got %f", d)
	}
}

func TestBearingCd(t *testing.T) {
	origin := r3.Vector{}
	for _, test := range []struct {
		to       r3.Vector
		expected float64
	}{
		{r3.Vector{X: 100}, 0},
		{r3.Vector{Y: 100}, 9000},
		{r3.Vector{X: -100}, 18000},
		{r3.Vector{Y: -100}, 27000},
		{r3.Vector{X: 100, Y: 100, Z: 500}, 4500},
	} {
		if b := BearingCd(origin, test.to); !approxEqual(b, test.expected, 1e-6) {
			t.Errorf("BearingCd to %v: expected %f, got %f", test.to, test.expected, b)
		}
	}
}

func TestHorizontalDistance(t *testing.T) {
	a := r3.Vector{X: 100, Y: 200, Z: -50}
	b := r3.Vector{X: 400, Y: 600, Z: 1000}
	if d := HorizontalDistance(a, b); !approxEqual(d, 500, 1e-9) {
		t.Errorf("Expected 500, got %f", d)
	}
}

func TestQuaternionEulerRoundTrip(t *testing.T) {
	for _, e := range [][3]float64{
		{0, 0, 0},
		{Radians(10), Radians(-5), Radians(90)},
		{Radians(-30), Radians(20), Radians(-170)},
	} {
		q := QuaternionFromEuler(e[0], e[1], e[2])
		r, p, y := q.Euler()
		if !approxEqual(r, e[0], 1e-9) || !approxEqual(p, e[1], 1e-9) || !approxEqual(y, e[2], 1e-9) {
			t.Errorf("Euler %v: got back %f %f %f", e, r, p, y)
		}
	}
}
