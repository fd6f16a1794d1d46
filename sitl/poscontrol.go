// sitl/poscontrol.go
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

// Controller gains, in 1/s.
const (
	kPosXY = 1
	kVelXY = 2
	kPosZ  = 1
	kVelZ  = 3
)

// PosControl is a cascaded position/velocity controller: position errors
// give velocity corrections, velocity errors give accelerations, which
// become lean angles and throttle. It is only used from the control loop.
type PosControl struct {
	v     *Vehicle
	clock *Clock
	dt    time.Duration

	maxSpeedXY, maxAccelXY   float64
	maxSpeedDown, maxSpeedUp float64
	maxAccelZ                float64

	posTarget  r3.Vector
	velDesired r3.Vector
	activeZ    bool
	lastXY     time.Time

	roll, pitch float64
}

var _ guided.PositionControl = (*PosControl)(nil)

func newPosControl(v *Vehicle, clock *Clock, dt time.Duration) *PosControl {
	return &PosControl{
		v:            v,
		clock:        clock,
		dt:           dt,
		maxSpeedXY:   v.cfg.SpeedXY,
		maxAccelXY:   v.cfg.AccelXY,
		maxSpeedDown: v.cfg.SpeedDown,
		maxSpeedUp:   v.cfg.SpeedUp,
		maxAccelZ:    v.cfg.AccelZ,
		posTarget:    v.Position(),
	}
}

func (p *PosControl) SetMaxSpeedXY(cms float64) { p.maxSpeedXY = cms }
func (p *PosControl) SetMaxAccelXY(cmss float64) { p.maxAccelXY = cmss }
func (p *PosControl) SetMaxAccelZ(cmss float64) { p.maxAccelZ = cmss }
func (p *PosControl) MaxAccelXY() float64 { return p.maxAccelXY }
func (p *PosControl) MaxAccelZ() float64 { return p.maxAccelZ }
func (p *PosControl) IsActiveZ() bool { return p.activeZ }
func (p *PosControl) SetXYTarget(x, y float64) { p.posTarget.X, p.posTarget.Y = x, y }
func (p *PosControl) SetPosTarget(pos r3.Vector) { p.posTarget = pos }
func (p *PosControl) SetDesiredVelocityZ(vz float64) { p.velDesired.Z = vz }
func (p *PosControl) SetDesiredVelocity(v r3.Vector) { p.velDesired = v }
func (p *PosControl) DesiredVelocity() r3.Vector { return p.velDesired }
func (p *PosControl) Roll() float64 { return p.roll }
func (p *PosControl) Pitch() float64 { return p.pitch }

func (p *PosControl) SetMaxSpeedZ(down, up float64) {
	p.maxSpeedDown, p.maxSpeedUp = math.Abs(down), up
}

func (p *PosControl) SetDesiredVelocityXY(vx, vy float64) {
	p.velDesired.X, p.velDesired.Y = vx, vy
}

func (p *PosControl) InitVelController() {
	p.posTarget = p.v.Position()
	p.velDesired = p.v.Velocity()
	p.activeZ = true
}

func (p *PosControl) InitXYController() {
	pos, vel := p.v.Position(), p.v.Velocity()
	p.posTarget.X, p.posTarget.Y = pos.X, pos.Y
	p.velDesired.X, p.velDesired.Y = vel.X, vel.Y
	p.lastXY = time.Time{}
}

func (p *PosControl) SetAltTargetToCurrentAlt() {
	p.posTarget.Z = p.v.Position().Z
	p.activeZ = true
}

func (p *PosControl) InitTakeoff() {
	p.posTarget.Z = p.v.Position().Z
	p.velDesired.Z = 0
	p.activeZ = true
}

func (p *PosControl) RelaxZ() {
	p.posTarget.Z = p.v.Position().Z
	p.velDesired.Z = 0
	p.activeZ = false
}

func (p *PosControl) SetAltTargetFromClimbRate(climbRate float64, dt time.Duration) {
	climbRate = math.Clamp(climbRate, -p.maxSpeedDown, p.maxSpeedUp)
	p.posTarget.Z += climbRate * dt.Seconds()
	p.velDesired.Z = climbRate
	p.activeZ = true
}

// TimeSinceLastXYUpdate returns a very long duration if UpdateXY has not
// run since the XY controller was initialized.
func (p *PosControl) TimeSinceLastXYUpdate() time.Duration {
	if p.lastXY.IsZero() {
		return time.Hour
	}
	return p.clock.Now().Sub(p.lastXY)
}

// UpdateVelController tracks the desired velocity horizontally and
// integrates the desired climb rate into the altitude target.
func (p *PosControl) UpdateVelController() {
	vel := p.v.Velocity()
	p.outputAccel(r3.Vector{X: p.velDesired.X - vel.X, Y: p.velDesired.Y - vel.Y}.Mul(kVelXY))

	pos := p.v.Position()
	p.posTarget.X, p.posTarget.Y = pos.X, pos.Y
	p.posTarget.Z += p.velDesired.Z * p.dt.Seconds()
	p.UpdateZ()
}

func (p *PosControl) UpdateXY() {
	p.lastXY = p.clock.Now()

	pos, vel := p.v.Position(), p.v.Velocity()
	cmd := r3.Vector{
		X: p.velDesired.X + kPosXY*(p.posTarget.X-pos.X),
		Y: p.velDesired.Y + kPosXY*(p.posTarget.Y-pos.Y),
	}
	if n := math.HorizontalLength(cmd); p.maxSpeedXY > 0 && n > p.maxSpeedXY {
		cmd = cmd.Mul(p.maxSpeedXY / n)
	}
	p.outputAccel(r3.Vector{X: cmd.X - vel.X, Y: cmd.Y - vel.Y}.Mul(kVelXY))
}

// outputAccel converts a north-east acceleration to lean angles for the
// current heading.
func (p *PosControl) outputAccel(accel r3.Vector) {
	if n := math.HorizontalLength(accel); p.maxAccelXY > 0 && n > p.maxAccelXY {
		accel = accel.Mul(p.maxAccelXY / n)
	}

	_, _, yaw := p.v.Attitude()
	sy, cy := gomath.Sincos(math.Radians(yaw / 100))
	fwd := accel.X*cy + accel.Y*sy
	right := -accel.X*sy + accel.Y*cy

	p.pitch = -100 * math.Degrees(gomath.Atan(fwd/Gravity))
	p.roll = 100 * math.Degrees(gomath.Atan(right/Gravity))
}

func (p *PosControl) UpdateZ() {
	pos, vel := p.v.Position(), p.v.Velocity()

	climb := math.Clamp(p.velDesired.Z+kPosZ*(p.posTarget.Z-pos.Z), -p.maxSpeedDown, p.maxSpeedUp)
	accel := kVelZ * (climb - vel.Z)
	if p.maxAccelZ > 0 {
		accel = math.Clamp(accel, -p.maxAccelZ, p.maxAccelZ)
	}
	p.v.SetThrottleOut(p.v.cfg.Hover*(1+accel/Gravity), true)
}

func (p *PosControl) DistanceToTarget() float64 {
	return math.HorizontalDistance(p.v.Position(), p.posTarget)
}

func (p *PosControl) BearingToTarget() float64 {
	return math.BearingCd(p.v.Position(), p.posTarget)
}
