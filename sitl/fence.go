// sitl/fence.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sitl

import (
	"time"

	"github.com/mmp/guided/guided"
	"github.com/mmp/guided/math"

	"github.com/golang/geo/r3"
)

type FenceConfig struct {
	Enabled bool `yaml:"enabled"`
	// Radius of the cylinder around home; 0 disables the horizontal
	// limit.
	Radius float64 `yaml:"radius_cm"`
	// AltMax above home; 0 disables the altitude limit.
	AltMax float64 `yaml:"alt_max_cm"`
	// Margin is how far inside the fence avoidance stops the vehicle.
	Margin float64 `yaml:"margin_cm"`
}

// Fence is a cylinder centered on home.
type Fence struct {
	cfg FenceConfig
	v   *Vehicle
}

var _ guided.Fence = (*Fence)(nil)

func (f *Fence) DestinationWithinFence(dest r3.Vector) bool {
	if !f.cfg.Enabled {
		return true
	}
	if f.cfg.Radius > 0 && math.HorizontalLength(dest) > f.cfg.Radius {
		return false
	}
	if f.cfg.AltMax > 0 && dest.Z > f.cfg.AltMax {
		return false
	}
	return true
}

func (f *Fence) LocationWithinFence(loc guided.Location) bool {
	p, ok := f.v.VectorFromOrigin(loc)
	if !ok {
		// Without terrain data, check the altitude as given.
		p.X, p.Y = f.v.horizontalFromOrigin(loc)
		p.Z = float64(loc.Alt)
	}
	return f.DestinationWithinFence(p)
}

// Avoidance slows the vehicle so that it can always stop before reaching
// the fence.
type Avoidance struct {
	fence  *Fence
	v      *Vehicle
	accelZ float64
}

var _ guided.Avoidance = (*Avoidance)(nil)

func (a *Avoidance) AdjustVelocity(accelXY float64, vel r3.Vector, dt time.Duration) r3.Vector {
	cfg := a.fence.cfg
	if !cfg.Enabled || cfg.Radius <= 0 || accelXY <= 0 {
		return vel
	}

	pos := a.v.Position()
	r := math.HorizontalLength(pos)
	if math.IsZero(r) {
		return vel
	}
	out := r3.Vector{X: pos.X / r, Y: pos.Y / r}
	vOut := vel.X*out.X + vel.Y*out.Y
	if vOut <= 0 {
		return vel
	}

	// Leave room for one more step at the current speed.
	remaining := max(0, cfg.Radius-cfg.Margin-r-vOut*dt.Seconds())
	if maxOut := math.SafeSqrt(2 * accelXY * remaining); vOut > maxOut {
		vel.X -= out.X * (vOut - maxOut)
		vel.Y -= out.Y * (vOut - maxOut)
	}
	return vel
}

func (a *Avoidance) AdjustClimbRate(climbRate float64) float64 {
	cfg := a.fence.cfg
	if !cfg.Enabled || cfg.AltMax <= 0 || climbRate <= 0 || a.accelZ <= 0 {
		return climbRate
	}
	remaining := max(0, cfg.AltMax-cfg.Margin-a.v.Position().Z)
	return min(climbRate, math.SafeSqrt(2*a.accelZ*remaining))
}
