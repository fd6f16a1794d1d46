// guided/staleness.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package guided

import (
	"time"

	"github.com/golang/geo/r3"
)

// Staleness decides whether commanded targets are still fresh enough to
// act on. The sub-controllers only look at target timestamps through it.
type Staleness struct {
	PosVelTimeout time.Duration
	AngleTimeout  time.Duration
}

func (c *Controller) staleness() Staleness {
	return Staleness{PosVelTimeout: c.PosVelTimeout, AngleTimeout: c.AngleTimeout}
}

func (s Staleness) PosVelStale(now, updated time.Time) bool {
	return now.Sub(updated) > s.PosVelTimeout
}

func (s Staleness) AngleStale(now, updated time.Time) bool {
	return now.Sub(updated) > s.AngleTimeout
}

// Velocity returns the velocity to act on: the commanded one if it is
// fresh and zero otherwise.
func (s Staleness) Velocity(now, updated time.Time, vel r3.Vector) (r3.Vector, bool) {
	if s.PosVelStale(now, updated) {
		return r3.Vector{}, false
	}
	return vel, true
}

// AngleCommand is an attitude command after limiting.
type AngleCommand struct {
	Roll, Pitch float64
	Yaw         float64
	YawRate     float64
	ClimbRate   float64
	Alt         AltitudeCommand
}

// Angle returns the command to act on; once the target has gone stale the
// vehicle is levelled, yaw rotation stops and thrust control is handed
// back to the climb rate controller with zero climb.
func (s Staleness) Angle(now, updated time.Time, cmd AngleCommand) (AngleCommand, bool) {
	if !s.AngleStale(now, updated) {
		return cmd, true
	}
	cmd.Roll, cmd.Pitch = 0, 0
	cmd.YawRate = 0
	cmd.ClimbRate = 0
	cmd.Alt = ClimbRate(0)
	return cmd, false
}
