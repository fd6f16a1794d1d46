// sitl/vehicle.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sitl

import (
	"log/slog"
	gomath "math"
	"sync"
	"time"

	"github.com/mmp/guided/guided"
	"github.com/mmp/guided/log"
	"github.com/mmp/guided/math"

	"github.com/golang/geo/r3"
)

// cm per degree of latitude.
const cmPerDegree = 111319.5 * 100

// The vehicle is considered landed after it has been on the ground with
// less than hover throttle for this long.
const landDetectTime = time.Second

// Vehicle is a point-mass multirotor with perfect attitude tracking. It
// provides the estimator, attitude controller, motors and vehicle-state
// services.
type Vehicle struct {
	mu sync.Mutex

	pos, vel         r3.Vector
	roll, pitch, yaw float64 // centidegrees
	yawTarget        float64
	yawRate          float64
	rateMode         bool
	throttle         float64

	armed        bool
	spool        guided.SpoolState
	desiredSpool guided.DesiredSpoolState
	spoolElapsed time.Duration
	autoArmed    bool
	landed       bool
	groundTime   time.Duration

	cfg     Config
	terrain *Terrain
	lg      *log.Logger
}

var (
	_ guided.Estimator       = (*Vehicle)(nil)
	_ guided.AttitudeControl = (*Vehicle)(nil)
	_ guided.Motors          = (*Vehicle)(nil)
	_ guided.VehicleState    = (*Vehicle)(nil)
)

func newVehicle(cfg Config, terrain *Terrain, lg *log.Logger) *Vehicle {
	v := &Vehicle{
		pos:     r3.Vector{X: cfg.Start[0], Y: cfg.Start[1], Z: cfg.Start[2]},
		landed:  true,
		cfg:     cfg,
		terrain: terrain,
		lg:      lg,
	}
	if h, ok := terrain.HeightAt(v.pos.X, v.pos.Y); ok && v.pos.Z < h {
		v.pos.Z = h
	}
	return v
}

func (v *Vehicle) LogValue() slog.Value {
	v.mu.Lock()
	defer v.mu.Unlock()

	return slog.GroupValue(
		slog.Any("pos", v.pos),
		slog.Any("vel", v.vel),
		slog.Float64("roll", v.roll),
		slog.Float64("pitch", v.pitch),
		slog.Float64("yaw", v.yaw),
		slog.Float64("throttle", v.throttle),
		slog.Bool("armed", v.armed),
		slog.Bool("landed", v.landed))
}

// Arm arms the motors; an armed vehicle sits at ground idle until it is
// given full throttle range. Arming in guided also sets auto-armed.
func (v *Vehicle) Arm() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.armed = true
	v.autoArmed = true
	v.desiredSpool = guided.DesiredGroundIdle
	v.lg.Info("armed")
}

func (v *Vehicle) Disarm() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.armed = false
	v.autoArmed = false
	v.lg.Info("disarmed")
}

///////////////////////////////////////////////////////////////////////////
// Estimator

func (v *Vehicle) Position() r3.Vector {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pos
}

func (v *Vehicle) Velocity() r3.Vector {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.vel
}

func (v *Vehicle) Attitude() (roll, pitch, yaw float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.roll, v.pitch, v.yaw
}

func (v *Vehicle) lngScale() float64 {
	return gomath.Cos(math.Radians(float64(v.cfg.Origin.Lat) * 1e-7))
}

// Location returns the current location with altitude above home, which
// is the origin.
func (v *Vehicle) Location() guided.Location {
	pos := v.Position()
	return guided.Location{
		Lat:   v.cfg.Origin.Lat + int32(gomath.Round(pos.X/cmPerDegree*1e7)),
		Lng:   v.cfg.Origin.Lng + int32(gomath.Round(pos.Y/(cmPerDegree*v.lngScale())*1e7)),
		Alt:   int32(gomath.Round(pos.Z)),
		Frame: guided.AltAboveHome,
	}
}

// horizontalFromOrigin returns the north and east offsets of loc from the
// origin.
func (v *Vehicle) horizontalFromOrigin(loc guided.Location) (n, e float64) {
	n = float64(loc.Lat-v.cfg.Origin.Lat) * 1e-7 * cmPerDegree
	e = float64(loc.Lng-v.cfg.Origin.Lng) * 1e-7 * cmPerDegree * v.lngScale()
	return
}

func (v *Vehicle) VectorFromOrigin(loc guided.Location) (r3.Vector, bool) {
	var p r3.Vector
	if loc.HasLatLng() {
		p.X, p.Y = v.horizontalFromOrigin(loc)
	} else {
		pos := v.Position()
		p.X, p.Y = pos.X, pos.Y
	}

	switch loc.Frame {
	case guided.AltAboveHome, guided.AltAboveOrigin:
		p.Z = float64(loc.Alt)
	case guided.AltAbsolute:
		p.Z = float64(loc.Alt - v.cfg.Origin.Alt)
	case guided.AltAboveTerrain:
		h, ok := v.terrain.HeightAt(p.X, p.Y)
		if !ok {
			return r3.Vector{}, false
		}
		p.Z = h + float64(loc.Alt)
	}
	return p, true
}

///////////////////////////////////////////////////////////////////////////
// AttitudeControl

func (v *Vehicle) clampLean(roll, pitch float64) (float64, float64) {
	if total := math.Hypot(roll, pitch); total > v.cfg.LeanAngleMax {
		s := v.cfg.LeanAngleMax / total
		return roll * s, pitch * s
	}
	return roll, pitch
}

func (v *Vehicle) InputRollPitchYawRate(roll, pitch, yawRate float64) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.roll, v.pitch = v.clampLean(roll, pitch)
	v.yawRate = math.Clamp(yawRate, -v.cfg.MaxYawRate, v.cfg.MaxYawRate)
	v.rateMode = true
}

func (v *Vehicle) InputRollPitchYaw(roll, pitch, yaw float64, slewYaw bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.roll, v.pitch = v.clampLean(roll, pitch)
	v.yawTarget = math.Wrap360Cd(yaw)
	v.rateMode = false
	if !slewYaw {
		v.yaw = v.yawTarget
	}
}

func (v *Vehicle) SetThrottleOut(thrust float64, applyAngleBoost bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if applyAngleBoost {
		tilt := gomath.Cos(math.Radians(v.roll/100)) * gomath.Cos(math.Radians(v.pitch/100))
		thrust /= max(tilt, 0.5)
	}
	v.throttle = math.Clamp(thrust, 0, 1)
}

func (v *Vehicle) Relax() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.roll, v.pitch = 0, 0
	v.yawTarget = v.yaw
	v.yawRate = 0
	v.rateMode = false
}

func (v *Vehicle) LeanAngleMax() float64 {
	return v.cfg.LeanAngleMax
}

///////////////////////////////////////////////////////////////////////////
// Motors and VehicleState

func (v *Vehicle) Armed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.armed
}

func (v *Vehicle) SpoolState() guided.SpoolState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.spool
}

func (v *Vehicle) SetDesiredSpoolState(s guided.DesiredSpoolState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.desiredSpool = s
}

func (v *Vehicle) AutoArmed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.autoArmed
}

func (v *Vehicle) SetAutoArmed(a bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.autoArmed = a
}

func (v *Vehicle) LandComplete() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.landed
}

func (v *Vehicle) SetLandComplete(l bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if l != v.landed {
		v.lg.Debug("land complete", slog.Bool("landed", l))
	}
	v.landed = l
}

///////////////////////////////////////////////////////////////////////////
// Dynamics

func (v *Vehicle) updateSpool(dt time.Duration) {
	if !v.armed {
		v.spool = guided.SpoolShutDown
		return
	}

	switch v.desiredSpool {
	case guided.DesiredShutDown:
		v.spool = guided.SpoolShutDown
	case guided.DesiredGroundIdle:
		v.spool = guided.SpoolGroundIdle
	case guided.DesiredThrottleUnlimited:
		switch v.spool {
		case guided.SpoolShutDown, guided.SpoolGroundIdle, guided.SpoolDown:
			v.spool = guided.SpoolUp
			v.spoolElapsed = 0
		case guided.SpoolUp:
			v.spoolElapsed += dt
			if v.spoolElapsed >= v.cfg.SpoolTime {
				v.spool = guided.SpoolThrottleUnlimited
			}
		}
	}
}

// effectiveThrottle returns the throttle that the motors actually deliver
// given the spool state.
func (v *Vehicle) effectiveThrottle() float64 {
	switch v.spool {
	case guided.SpoolThrottleUnlimited:
		return v.throttle
	case guided.SpoolUp:
		if v.cfg.SpoolTime == 0 {
			return v.throttle
		}
		return v.throttle * min(1, float64(v.spoolElapsed)/float64(v.cfg.SpoolTime))
	default:
		return 0
	}
}

func (v *Vehicle) step(dt time.Duration) {
	v.mu.Lock()
	defer v.mu.Unlock()

	s := dt.Seconds()
	v.updateSpool(dt)

	if v.rateMode {
		v.yaw = math.Wrap360Cd(v.yaw + v.yawRate*s)
	} else {
		turn := 100 * math.HeadingSignedTurn(v.yaw/100, v.yawTarget/100)
		maxTurn := v.cfg.MaxYawRate * s
		v.yaw = math.Wrap360Cd(v.yaw + math.Clamp(turn, -maxTurn, maxTurn))
	}

	thr := v.effectiveThrottle()
	var accel r3.Vector
	if thr > 0 {
		// Horizontal acceleration from the lean angles, rotated from the
		// body frame into north-east.
		fwd := -Gravity * gomath.Tan(math.Radians(v.pitch/100))
		right := Gravity * gomath.Tan(math.Radians(v.roll/100))
		sy, cy := gomath.Sincos(math.Radians(v.yaw / 100))
		accel.X = fwd*cy - right*sy
		accel.Y = fwd*sy + right*cy
	}
	tilt := gomath.Cos(math.Radians(v.roll/100)) * gomath.Cos(math.Radians(v.pitch/100))
	accel.Z = (thr*tilt/v.cfg.Hover - 1) * Gravity

	v.vel = v.vel.Add(accel.Mul(s))
	v.pos = v.pos.Add(v.vel.Mul(s))

	ground, ok := v.terrain.HeightAt(v.pos.X, v.pos.Y)
	if !ok {
		ground = 0
	}
	if v.pos.Z <= ground {
		v.pos.Z = ground
		v.vel = r3.Vector{}
		if thr < v.cfg.Hover {
			v.groundTime += dt
		} else {
			v.groundTime = 0
		}
		if v.groundTime >= landDetectTime && !v.landed {
			v.landed = true
			v.lg.Info("touchdown", slog.Any("pos", v.pos))
		}
	} else {
		v.groundTime = 0
	}
}
