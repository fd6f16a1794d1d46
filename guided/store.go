// guided/store.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package guided

import (
	"log/slog"
	"time"

	"github.com/mmp/guided/math"

	"github.com/golang/geo/r3"
)

type AltitudeKind int

const (
	ClimbRateCommand AltitudeKind = iota
	ThrustCommand
)

// AltitudeCommand is the vertical half of an angle target: either a climb
// rate in cm/s or a normalized thrust in [-1, 1], never both. Use the
// ClimbRate and Thrust constructors to make one.
type AltitudeCommand struct {
	Kind  AltitudeKind
	Value float64
}

func ClimbRate(cms float64) AltitudeCommand {
	return AltitudeCommand{Kind: ClimbRateCommand, Value: cms}
}

func Thrust(t float64) AltitudeCommand {
	return AltitudeCommand{Kind: ThrustCommand, Value: math.Clamp(t, -1, 1)}
}

func (a AltitudeCommand) IsThrust() bool {
	return a.Kind == ThrustCommand
}

// ClimbRate returns the commanded climb rate, or 0 for a thrust command.
func (a AltitudeCommand) ClimbRate() float64 {
	if a.Kind == ClimbRateCommand {
		return a.Value
	}
	return 0
}

// Thrust returns the commanded thrust, or 0 for a climb rate command.
func (a AltitudeCommand) Thrust() float64 {
	if a.Kind == ThrustCommand {
		return a.Value
	}
	return 0
}

func (a AltitudeCommand) LogValue() slog.Value {
	if a.IsThrust() {
		return slog.GroupValue(slog.Float64("thrust", a.Value))
	}
	return slog.GroupValue(slog.Float64("climb_rate", a.Value))
}

// AngleTarget is the most recent attitude command. Angles are in
// centidegrees and the yaw rate in centidegrees/s.
type AngleTarget struct {
	Roll, Pitch, Yaw float64
	YawRate          float64
	UseYawRate       bool
	Alt              AltitudeCommand
	Updated          time.Time
}

func (a AngleTarget) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Float64("roll", a.Roll),
		slog.Float64("pitch", a.Pitch),
		slog.Float64("yaw", a.Yaw),
		slog.Float64("yaw_rate", a.YawRate),
		slog.Bool("use_yaw_rate", a.UseYawRate),
		slog.Any("alt", a.Alt),
		slog.Time("updated", a.Updated))
}

// targetStore holds the latest commanded targets and when they arrived.
// It is only accessed with the controller's mutex held.
type targetStore struct {
	pos           r3.Vector
	vel           r3.Vector
	posvelUpdated time.Time
	velUpdated    time.Time
	angle         AngleTarget
}
