// guided/transition.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package guided

import (
	"log/slog"
	"strings"

	"github.com/golang/geo/r3"
)

// ResetAction is a set of initialization steps run when a sub-mode is
// entered.
type ResetAction uint16

const (
	// ResetWaypointNav reinitializes the waypoint navigator and sets its
	// destination to the current stopping point.
	ResetWaypointNav ResetAction = 1 << iota
	// ResetVelocityController applies the pilot speed limits and
	// reinitializes the velocity controller.
	ResetVelocityController
	// ResetXYController reinitializes the horizontal position controller
	// at the current position and velocity.
	ResetXYController
	// ResetAltitudeHold starts the vertical controller if it isn't
	// already running.
	ResetAltitudeHold
	// ResetAngleTargets sets the angle target to the current attitude
	// with zero climb.
	ResetAngleTargets
	ResetCircle
	YawToDefault
	YawToHold
	// YawToHoldUnlessROI switches yaw to hold unless a region of
	// interest is being tracked.
	YawToHoldUnlessROI
)

var resetActionNames = []string{"WaypointNav", "VelocityController", "XYController", "AltitudeHold",
	"AngleTargets", "Circle", "YawToDefault", "YawToHold", "YawToHoldUnlessROI"}

func (r ResetAction) String() string {
	var s []string
	for i, name := range resetActionNames {
		if r&(1<<i) != 0 {
			s = append(s, name)
		}
	}
	return strings.Join(s, "|")
}

func (r ResetAction) Has(a ResetAction) bool {
	return r&a != 0
}

// transition returns the sub-mode to switch to and the initialization to
// run when requested is asked for while current is running. Requests for
// the running position, velocity, position+velocity or angle sub-mode
// keep its state; the others always reinitialize.
func transition(current, requested SubMode) (SubMode, ResetAction) {
	switch requested {
	case ModeWaypoint:
		if current == ModeWaypoint {
			return ModeWaypoint, 0
		}
		return ModeWaypoint, ResetWaypointNav | YawToDefault

	case ModeVelocity:
		if current == ModeVelocity {
			return ModeVelocity, 0
		}
		return ModeVelocity, ResetVelocityController

	case ModePositionVelocity:
		if current == ModePositionVelocity {
			return ModePositionVelocity, 0
		}
		return ModePositionVelocity, ResetXYController | YawToHold

	case ModeAngle:
		if current == ModeAngle {
			return ModeAngle, 0
		}
		return ModeAngle, ResetAltitudeHold | ResetAngleTargets | YawToHold

	case ModeTakeOff:
		return ModeTakeOff, YawToHold

	case ModeCircle:
		return ModeCircle, ResetCircle | YawToHoldUnlessROI

	case ModeCircleMoveToEdge:
		return ModeCircleMoveToEdge, 0

	default:
		return current, 0
	}
}

// enter switches to the requested sub-mode, running its initialization.
// With force set, the initialization runs even if the sub-mode is already
// active. c.mu must be held.
func (c *Controller) enter(requested SubMode, force bool) {
	from := c.mode
	if force {
		// Pretend we're coming from a different mode so that the full
		// initialization is returned.
		from = -1
	}
	mode, actions := transition(from, requested)

	if mode != c.mode || actions != 0 {
		c.lg.Debug("guided sub-mode transition", slog.String("from", c.mode.String()),
			slog.String("to", mode.String()), slog.String("actions", actions.String()))
	}
	c.mode = mode
	c.reset(actions)
}

func (c *Controller) reset(actions ResetAction) {
	est, wp, pc := c.deps.Estimator, c.deps.WPNav, c.deps.PosControl
	now := c.now()

	if actions.Has(ResetWaypointNav) {
		wp.Init()
		// The stopping point is in the origin frame so this can't fail.
		_ = wp.SetDestination(wp.StoppingPoint(), false)
	}

	if actions.Has(ResetVelocityController) {
		pc.SetMaxSpeedXY(wp.DefaultSpeedXY())
		pc.SetMaxAccelXY(wp.AccelXY())
		pc.SetMaxSpeedZ(c.pilotSpeedDown(), c.PilotSpeedUp)
		pc.SetMaxAccelZ(c.PilotAccelZ)
		pc.InitVelController()

		c.store.vel = r3.Vector{}
		c.store.velUpdated = now
	}

	if actions.Has(ResetXYController) {
		pc.InitXYController()
		pc.SetMaxSpeedXY(wp.DefaultSpeedXY())
		pc.SetMaxAccelXY(wp.AccelXY())

		pos, vel := est.Position(), est.Velocity()
		pc.SetXYTarget(pos.X, pos.Y)
		pc.SetDesiredVelocityXY(vel.X, vel.Y)

		pc.SetMaxSpeedZ(wp.DefaultSpeedDown(), wp.DefaultSpeedUp())
		pc.SetMaxAccelZ(wp.AccelZ())

		c.store.pos = pos
		c.store.vel = r3.Vector{}
		c.store.posvelUpdated = now
	}

	if actions.Has(ResetAltitudeHold) {
		pc.SetMaxSpeedZ(wp.DefaultSpeedDown(), wp.DefaultSpeedUp())
		pc.SetMaxAccelZ(wp.AccelZ())
		if !pc.IsActiveZ() {
			pc.SetAltTargetToCurrentAlt()
			pc.SetDesiredVelocityZ(est.Velocity().Z)
		}
	}

	if actions.Has(ResetAngleTargets) {
		roll, pitch, yaw := est.Attitude()
		c.store.angle = AngleTarget{
			Roll:    roll,
			Pitch:   pitch,
			Yaw:     yaw,
			Alt:     ClimbRate(0),
			Updated: now,
		}
	}

	if actions.Has(ResetCircle) {
		c.deps.Circle.Init(c.deps.Circle.Center())
	}

	switch {
	case actions.Has(YawToDefault):
		c.setYawMode(YawDefault)
	case actions.Has(YawToHold):
		c.setYawMode(YawHold)
	case actions.Has(YawToHoldUnlessROI):
		if c.yaw.Mode != YawROI {
			c.setYawMode(YawHold)
		}
	}
}
