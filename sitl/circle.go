// sitl/circle.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sitl

import (
	gomath "math"
	"time"

	"github.com/mmp/guided/guided"
	"github.com/mmp/guided/math"

	"github.com/golang/geo/r3"
)

// CircleNav flies clockwise around a center point at a constant angular
// rate, with the nose pointed at the center.
type CircleNav struct {
	v  *Vehicle
	pc *PosControl
	dt time.Duration

	center     r3.Vector
	radius     float64
	rate       float64 // radians/s
	angle      float64 // radians, clockwise from north as seen from the center
	angleTotal float64
}

var _ guided.CircleNav = (*CircleNav)(nil)

func newCircleNav(cfg Config, v *Vehicle, pc *PosControl, dt time.Duration) *CircleNav {
	return &CircleNav{
		v:      v,
		pc:     pc,
		dt:     dt,
		center: v.Position(),
		radius: cfg.CircleRadius,
		rate:   math.Radians(cfg.CircleRate),
	}
}

func (c *CircleNav) SetCenter(center r3.Vector) { c.center = center }
func (c *CircleNav) Center() r3.Vector          { return c.center }
func (c *CircleNav) SetRadius(cm float64)       { c.radius = cm }
func (c *CircleNav) Radius() float64            { return c.radius }
func (c *CircleNav) Roll() float64              { return c.pc.Roll() }
func (c *CircleNav) Pitch() float64             { return c.pc.Pitch() }
func (c *CircleNav) AngleTotal() float64        { return c.angleTotal }

// Init starts circling from the point on the circle closest to the
// vehicle.
func (c *CircleNav) Init(center r3.Vector) {
	c.center = center
	p := c.ClosestPointOnCircle()
	c.angle = gomath.Atan2(p.Y-center.Y, p.X-center.X)
	c.angleTotal = 0

	c.pc.SetDesiredVelocity(r3.Vector{})
	c.pc.SetPosTarget(p)
}

// ClosestPointOnCircle returns the point on the circle nearest the
// vehicle, at the center's altitude. From the center itself, that's the
// point behind the vehicle.
func (c *CircleNav) ClosestPointOnCircle() r3.Vector {
	pos := c.v.Position()
	d := r3.Vector{X: pos.X - c.center.X, Y: pos.Y - c.center.Y}
	n := math.HorizontalLength(d)
	if math.IsZero(n) {
		_, _, yaw := c.v.Attitude()
		sy, cy := gomath.Sincos(math.Radians(yaw / 100))
		return r3.Vector{X: c.center.X - c.radius*cy, Y: c.center.Y - c.radius*sy, Z: c.center.Z}
	}
	d = d.Mul(c.radius / n)
	return r3.Vector{X: c.center.X + d.X, Y: c.center.Y + d.Y, Z: c.center.Z}
}

func (c *CircleNav) Update() {
	delta := c.rate * c.dt.Seconds()
	c.angle += delta
	c.angleTotal += delta

	sa, ca := gomath.Sincos(c.angle)
	target := r3.Vector{X: c.center.X + c.radius*ca, Y: c.center.Y + c.radius*sa, Z: c.center.Z}

	// Feed forward the tangential velocity.
	speed := c.rate * c.radius
	c.pc.SetDesiredVelocity(r3.Vector{X: -speed * sa, Y: speed * ca})
	c.pc.SetPosTarget(target)
	c.pc.UpdateXY()
}

// Yaw returns the heading from the vehicle to the center.
func (c *CircleNav) Yaw() float64 {
	pos := c.v.Position()
	if math.IsZero(math.HorizontalDistance(pos, c.center)) {
		_, _, yaw := c.v.Attitude()
		return yaw
	}
	return math.BearingCd(pos, c.center)
}
