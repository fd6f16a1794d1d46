// guided/mission.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package guided

import (
	"log/slog"
	gomath "math"

	"github.com/mmp/guided/math"
)

type CommandID uint16

const CmdNavLoiterTurns CommandID = 18

// MissionCommand is a mission item handed to the controller by the mission
// sequencer.
type MissionCommand struct {
	Index uint16
	ID    CommandID
	// For CmdNavLoiterTurns, the high byte of P1 is the radius in meters
	// and the low byte is the number of turns.
	P1       uint16
	Location Location
}

func (cmd MissionCommand) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("index", int(cmd.Index)),
		slog.Int("id", int(cmd.ID)),
		slog.Int("p1", int(cmd.P1)),
		slog.Any("location", cmd.Location))
}

// StartCommand starts running a mission command. It returns false if the
// command isn't supported, in which case the sequencer should move on.
func (c *Controller) StartCommand(cmd MissionCommand) bool {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	switch cmd.ID {
	case CmdNavLoiterTurns:
		center := c.locationFromCommand(cmd)
		c.circleMoveToEdgeStart(center, float64(math.HighByte(cmd.P1)))
		return true

	default:
		c.lg.Warn("unsupported mission command", slog.Any("cmd", cmd))
		return false
	}
}

// VerifyCommand reports whether a running mission command has completed.
// Commands it doesn't know are reported as complete.
func (c *Controller) VerifyCommand(cmd MissionCommand) bool {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	if !c.active {
		return false
	}

	var complete bool
	switch cmd.ID {
	case CmdNavLoiterTurns:
		complete = c.verifyCircle(cmd)

	default:
		c.lg.Warn("skipping invalid mission command", slog.Any("cmd", cmd))
		complete = true
	}

	if complete && c.deps.Recorder != nil {
		c.deps.Recorder.MissionItemReached(cmd.Index)
	}
	return complete
}

func (c *Controller) verifyCircle(cmd MissionCommand) bool {
	if c.mode == ModeCircleMoveToEdge {
		if c.deps.WPNav.ReachedDestination() {
			c.circleStart()
		}
		return false
	}

	turns := math.Abs(c.deps.Circle.AngleTotal()) / (2 * gomath.Pi)
	return turns >= float64(math.LowByte(cmd.P1))
}

// locationFromCommand fills in a command's missing position and altitude
// from the vehicle's current location.
func (c *Controller) locationFromCommand(cmd MissionCommand) Location {
	loc := cmd.Location
	cur := c.deps.Estimator.Location()

	if !loc.HasLatLng() {
		loc.Lat, loc.Lng = cur.Lat, cur.Lng
	}
	if loc.Alt == 0 {
		loc.Alt, loc.Frame = cur.Alt, cur.Frame
	}
	return loc
}
