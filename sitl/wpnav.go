// sitl/wpnav.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package sitl

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/mmp/guided/guided"
	"github.com/mmp/guided/log"
	"github.com/mmp/guided/math"

	"github.com/golang/geo/r3"
)

var ErrNoTerrain = errors.New("terrain data unavailable")

// WPNav flies a straight line from its origin to the destination. With a
// terrain-relative destination, the destination's altitude is above the
// terrain beneath it.
type WPNav struct {
	v       *Vehicle
	pc      *PosControl
	terrain *Terrain
	rf      *Rangefinder

	origin, dest r3.Vector
	terrainAlt   bool
	reached      bool

	speedXY, speedUp, speedDown float64
	accelXY, accelZ             float64
	radius                      float64
	rangefinderTerrain          bool

	lg *log.Logger
}

var _ guided.WaypointNav = (*WPNav)(nil)

func newWPNav(cfg Config, v *Vehicle, pc *PosControl, terrain *Terrain, rf *Rangefinder, lg *log.Logger) *WPNav {
	pos := v.Position()
	return &WPNav{
		v:                  v,
		pc:                 pc,
		terrain:            terrain,
		rf:                 rf,
		origin:             pos,
		dest:               pos,
		speedXY:            cfg.SpeedXY,
		speedUp:            cfg.SpeedUp,
		speedDown:          cfg.SpeedDown,
		accelXY:            cfg.AccelXY,
		accelZ:             cfg.AccelZ,
		radius:             cfg.WPRadius,
		rangefinderTerrain: cfg.Rangefinder.UseForTerrain,
		lg:                 lg,
	}
}

func (w *WPNav) Init() {
	w.pc.SetMaxSpeedXY(w.speedXY)
	w.pc.SetMaxAccelXY(w.accelXY)
	w.pc.SetMaxSpeedZ(w.speedDown, w.speedUp)
	w.pc.SetMaxAccelZ(w.accelZ)
	w.pc.SetDesiredVelocity(r3.Vector{})

	w.origin = w.StoppingPoint()
	w.dest = w.origin
	w.terrainAlt = false
	w.reached = false
}

// StoppingPoint returns where the vehicle would come to rest if it
// decelerated at the configured rate starting now.
func (w *WPNav) StoppingPoint() r3.Vector {
	pos, vel := w.v.Position(), w.v.Velocity()
	if w.accelXY <= 0 {
		return pos
	}
	speed := math.HorizontalLength(vel)
	d := speed / (2 * w.accelXY)
	return r3.Vector{X: pos.X + vel.X*d, Y: pos.Y + vel.Y*d, Z: pos.Z}
}

// current returns the vehicle position with its altitude in the
// destination's frame.
func (w *WPNav) current(terrainAlt bool) (r3.Vector, bool) {
	pos := w.v.Position()
	if terrainAlt {
		h, ok := w.terrainHeight(pos.X, pos.Y)
		if !ok {
			return r3.Vector{}, false
		}
		pos.Z -= h
	}
	return pos, true
}

func (w *WPNav) terrainHeight(n, e float64) (float64, bool) {
	if w.TerrainFromRangefinder() {
		pos := w.v.Position()
		return pos.Z - w.rf.Altitude(), true
	}
	return w.terrain.HeightAt(n, e)
}

func (w *WPNav) SetDestination(dest r3.Vector, terrainAlt bool) error {
	origin, ok := w.current(terrainAlt)
	if !ok {
		return ErrNoTerrain
	}
	if terrainAlt {
		if _, ok := w.terrainHeight(dest.X, dest.Y); !ok {
			return fmt.Errorf("%v: %w", dest, ErrNoTerrain)
		}
	}

	w.origin, w.dest = origin, dest
	w.terrainAlt = terrainAlt
	w.reached = false

	w.lg.Debug("wpnav destination", slog.Any("dest", dest), slog.Bool("terrain_alt", terrainAlt))
	return nil
}

func (w *WPNav) SetDestinationLocation(loc guided.Location) error {
	if loc.Frame == guided.AltAboveTerrain {
		var dest r3.Vector
		if loc.HasLatLng() {
			dest.X, dest.Y = w.v.horizontalFromOrigin(loc)
		} else {
			pos := w.v.Position()
			dest.X, dest.Y = pos.X, pos.Y
		}
		dest.Z = float64(loc.Alt)
		return w.SetDestination(dest, true)
	}

	dest, ok := w.v.VectorFromOrigin(loc)
	if !ok {
		return ErrNoTerrain
	}
	return w.SetDestination(dest, false)
}

func (w *WPNav) Destination() r3.Vector                  { return w.dest }
func (w *WPNav) OriginAndDestinationAreTerrainAlt() bool { return w.terrainAlt }
func (w *WPNav) ReachedDestination() bool                { return w.reached }
func (w *WPNav) Roll() float64                           { return w.pc.Roll() }
func (w *WPNav) Pitch() float64                          { return w.pc.Pitch() }
func (w *WPNav) DefaultSpeedXY() float64                 { return w.speedXY }
func (w *WPNav) DefaultSpeedUp() float64                 { return w.speedUp }
func (w *WPNav) DefaultSpeedDown() float64               { return math.Abs(w.speedDown) }
func (w *WPNav) AccelXY() float64                        { return w.accelXY }
func (w *WPNav) AccelZ() float64                         { return w.accelZ }

func (w *WPNav) TerrainFromRangefinder() bool {
	return w.rangefinderTerrain && w.rf.Healthy()
}

// Update steers toward the destination; the position target is the
// destination, limited so that the horizontal speed stays below the
// navigator's speed.
func (w *WPNav) Update() bool {
	target := w.dest
	if w.terrainAlt {
		h, ok := w.terrainHeight(w.dest.X, w.dest.Y)
		if !ok {
			// Hold the current position until terrain data returns.
			w.pc.SetPosTarget(w.v.Position())
			w.pc.UpdateXY()
			return false
		}
		target.Z += h
	}

	w.pc.SetDesiredVelocity(r3.Vector{})
	w.pc.SetPosTarget(target)
	w.pc.UpdateXY()

	if !w.reached {
		pos := w.v.Position()
		if pos.Sub(target).Norm() <= w.radius {
			w.reached = true
			w.lg.Debug("wpnav destination reached", slog.Any("dest", w.dest))
		}
	}
	return true
}

func (w *WPNav) DistanceToDestination() float64 {
	return math.HorizontalDistance(w.v.Position(), w.dest)
}

func (w *WPNav) BearingToDestination() float64 {
	return math.BearingCd(w.v.Position(), w.dest)
}

// CrosstrackError returns the horizontal distance from the vehicle to the
// line through the leg's origin and destination.
func (w *WPNav) CrosstrackError() float64 {
	leg := w.dest.Sub(w.origin)
	n := math.HorizontalLength(leg)
	if math.IsZero(n) {
		return 0
	}
	d := w.v.Position().Sub(w.origin)
	return math.Abs(d.X*leg.Y-d.Y*leg.X) / n
}

///////////////////////////////////////////////////////////////////////////
// Takeoff

// Takeoff climbs vertically to the waypoint navigator's destination.
type Takeoff struct {
	v        *Vehicle
	pc       *PosControl
	wp       *WPNav
	startAlt float64
}

var _ guided.Takeoff = (*Takeoff)(nil)

func (t *Takeoff) SetStartAlt() {
	t.startAlt = t.v.Position().Z
}

// StartAlt returns the altitude the most recent takeoff started from.
func (t *Takeoff) StartAlt() float64 {
	return t.startAlt
}

func (t *Takeoff) Run() {
	v := t.v
	v.SetDesiredSpoolState(guided.DesiredThrottleUnlimited)
	if v.SpoolState() != guided.SpoolThrottleUnlimited {
		v.Relax()
		v.SetThrottleOut(0, false)
		t.pc.RelaxZ()
		return
	}
	if v.LandComplete() {
		v.SetLandComplete(false)
	}

	t.wp.Update()
	t.pc.UpdateZ()

	_, _, yaw := v.Attitude()
	v.InputRollPitchYaw(t.wp.Roll(), t.wp.Pitch(), yaw, true)
}
