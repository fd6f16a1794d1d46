// guided/yaw.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package guided

import (
	"log/slog"

	"github.com/mmp/guided/math"

	"github.com/golang/geo/r3"
)

type YawMode int

const (
	// YawHold keeps the current heading; the pilot's stick may still turn
	// the vehicle.
	YawHold YawMode = iota
	// YawDefault points the nose at the destination.
	YawDefault
	YawFixed
	YawRate
	// YawROI points the nose at a region of interest.
	YawROI
)

func (m YawMode) String() string {
	return [...]string{"Hold", "Default", "Fixed", "Rate", "ROI"}[m]
}

// YawState is the heading behavior commanded alongside position and
// velocity targets.
type YawState struct {
	Mode YawMode
	// Heading is the target heading in centidegrees for YawFixed and the
	// most recently computed one for YawDefault and YawROI.
	Heading float64
	Rate    float64 // centidegrees/s, for YawRate
	ROI     r3.Vector
}

func (y YawState) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("mode", y.Mode.String()),
		slog.Float64("heading", y.Heading),
		slog.Float64("rate", y.Rate),
		slog.Any("roi", y.ROI))
}

// YawRequest carries the optional yaw fields of a position or velocity
// command. If both a heading and a rate are given, the heading wins; if
// neither is, the current yaw behavior is left alone.
type YawRequest struct {
	UseYaw   bool
	Yaw      float64 // centidegrees
	Relative bool

	UseYawRate bool
	YawRate    float64 // centidegrees/s
}

func (c *Controller) setYawMode(m YawMode) {
	if c.yaw.Mode == m {
		return
	}
	if m == YawDefault || m == YawHold {
		_, _, c.yaw.Heading = c.deps.Estimator.Attitude()
	}
	c.yaw.Mode = m
}

func (c *Controller) applyYawRequest(req YawRequest) {
	switch {
	case req.UseYaw:
		heading := req.Yaw
		if req.Relative {
			if c.yaw.Mode == YawFixed {
				heading += c.yaw.Heading
			} else {
				_, _, cur := c.deps.Estimator.Attitude()
				heading += cur
			}
		}
		c.yaw.Mode = YawFixed
		c.yaw.Heading = math.Wrap360Cd(heading)

	case req.UseYawRate:
		c.yaw.Mode = YawRate
		c.yaw.Rate = req.YawRate
	}
}

// autoHeading returns the heading to hold for the YawDefault, YawFixed and
// YawROI modes.
func (c *Controller) autoHeading() float64 {
	switch c.yaw.Mode {
	case YawROI:
		pos := c.deps.Estimator.Position()
		if math.HorizontalDistance(pos, c.yaw.ROI) > 1 {
			c.yaw.Heading = math.BearingCd(pos, c.yaw.ROI)
		}

	case YawDefault:
		switch c.mode {
		case ModeWaypoint, ModeTakeOff, ModeCircleMoveToEdge:
			if c.deps.WPNav.DistanceToDestination() > c.LookAtTargetMinDistance {
				c.yaw.Heading = c.deps.WPNav.BearingToDestination()
			}
		}
	}
	return c.yaw.Heading
}

// pilotYawRate returns the yaw rate requested by the pilot's stick. Any
// stick input takes yaw back from the autopilot.
func (c *Controller) pilotYawRate() float64 {
	if c.deps.Pilot == nil || c.Options.IgnorePilotYaw || c.deps.Pilot.RadioFailsafe() {
		return 0
	}
	rate := c.deps.Pilot.YawRate()
	if !math.IsZero(rate) {
		c.setYawMode(YawHold)
	}
	return rate
}

// outputAttitude sends the roll and pitch from a position controller
// together with the yaw command for the current yaw mode.
func (c *Controller) outputAttitude(roll, pitch, pilotYawRate float64) {
	switch c.yaw.Mode {
	case YawHold:
		c.deps.Attitude.InputRollPitchYawRate(roll, pitch, pilotYawRate)
	case YawRate:
		c.deps.Attitude.InputRollPitchYawRate(roll, pitch, c.yaw.Rate)
	default:
		c.deps.Attitude.InputRollPitchYaw(roll, pitch, c.autoHeading(), true)
	}
}
