// link/command.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package link

import (
	gomath "math"
	"strings"
	"time"

	"github.com/mmp/guided/guided"
	"github.com/mmp/guided/math"
	"github.com/mmp/guided/util"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	KindDestination = "destination"
	KindLocation    = "location"
	KindVelocity    = "velocity"
	KindPosVel      = "posvel"
	KindAngle       = "angle"
	KindTakeoff     = "takeoff"
	KindCircle      = "circle"
	KindROI         = "roi"
	KindLimit       = "limit"
	KindLimitClear  = "limit_clear"
	KindLimitStart  = "limit_start"
)

var (
	ErrUnknownKind  = errors.New("unknown command kind")
	ErrMissingField = errors.New("missing field")
)

// Location is the wire form of guided.Location.
type Location struct {
	Lat   int32  `json:"lat" yaml:"lat"`
	Lng   int32  `json:"lng" yaml:"lng"`
	Alt   int32  `json:"alt" yaml:"alt"`
	Frame string `json:"frame,omitempty" yaml:"frame,omitempty"`
}

func (l Location) Guided() (guided.Location, error) {
	frame, err := guided.ParseAltFrame(l.Frame)
	return guided.Location{Lat: l.Lat, Lng: l.Lng, Alt: l.Alt, Frame: frame}, err
}

// Command is a single guided command as sent by a ground station or
// companion computer. Positions are in cm and velocities in cm/s in the
// local north-east-up frame; which fields are used depends on Kind.
type Command struct {
	ID        string    `json:"id,omitempty" yaml:"id,omitempty"`
	Kind      string    `json:"kind" yaml:"kind"`
	Timestamp time.Time `json:"timestamp,omitempty" yaml:"-"`

	Position   *[3]float64 `json:"position,omitempty" yaml:"position,omitempty"`
	Velocity   *[3]float64 `json:"velocity,omitempty" yaml:"velocity,omitempty"`
	TerrainAlt bool        `json:"terrain_alt,omitempty" yaml:"terrain_alt,omitempty"`
	Location   *Location   `json:"location,omitempty" yaml:"location,omitempty"`

	Yaw         *float64 `json:"yaw_cd,omitempty" yaml:"yaw_cd,omitempty"`
	RelativeYaw bool     `json:"relative_yaw,omitempty" yaml:"relative_yaw,omitempty"`
	YawRate     *float64 `json:"yaw_rate_cds,omitempty" yaml:"yaw_rate_cds,omitempty"`
	// Quiet suppresses target logging for high-rate velocity streams.
	Quiet bool `json:"quiet,omitempty" yaml:"quiet,omitempty"`

	// Attitude is a w, x, y, z quaternion.
	Attitude    *[4]float64 `json:"attitude,omitempty" yaml:"attitude,omitempty"`
	ClimbRate   *float64    `json:"climb_rate_cms,omitempty" yaml:"climb_rate_cms,omitempty"`
	Thrust      *float64    `json:"thrust,omitempty" yaml:"thrust,omitempty"`
	BodyYawRate *float64    `json:"body_yaw_rate_rads,omitempty" yaml:"body_yaw_rate_rads,omitempty"`

	Alt    float64 `json:"alt_cm,omitempty" yaml:"alt_cm,omitempty"`
	Radius float64 `json:"radius_m,omitempty" yaml:"radius_m,omitempty"`

	TimeoutMs int64   `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	AltMin    float64 `json:"alt_min_cm,omitempty" yaml:"alt_min_cm,omitempty"`
	AltMax    float64 `json:"alt_max_cm,omitempty" yaml:"alt_max_cm,omitempty"`
	HorizMax  float64 `json:"horiz_max_cm,omitempty" yaml:"horiz_max_cm,omitempty"`
}

// Decode parses a JSON command and checks that it carries the fields its
// kind requires. Commands without an id are assigned one.
func Decode(payload []byte) (Command, error) {
	var cmd Command
	if err := util.UnmarshalJSONBytes(payload, &cmd); err != nil {
		return Command{}, errors.Wrap(err, "could not unmarshal command")
	}
	if dups := util.DuplicateJSONKeys(payload); len(dups) > 0 {
		return Command{}, errors.Errorf("duplicate keys in command: %s", strings.Join(dups, ", "))
	}
	if err := cmd.Check(); err != nil {
		return cmd, err
	}
	if cmd.ID == "" {
		cmd.ID = uuid.New().String()
	}
	return cmd, nil
}

// Check validates the fields required by the command's kind.
func (cmd Command) Check() error {
	need := func(ok bool, field string) error {
		if !ok {
			return errors.Wrapf(ErrMissingField, "%s: %q", cmd.Kind, field)
		}
		return nil
	}

	switch cmd.Kind {
	case KindDestination, KindROI:
		return need(cmd.Position != nil, "position")
	case KindLocation, KindCircle:
		if err := need(cmd.Location != nil, "location"); err != nil {
			return err
		}
		_, err := cmd.Location.Guided()
		return err
	case KindVelocity:
		return need(cmd.Velocity != nil, "velocity")
	case KindPosVel:
		if err := need(cmd.Position != nil, "position"); err != nil {
			return err
		}
		return need(cmd.Velocity != nil, "velocity")
	case KindAngle:
		if err := need(cmd.Attitude != nil, "attitude"); err != nil {
			return err
		}
		if cmd.ClimbRate != nil && cmd.Thrust != nil {
			return errors.Errorf("%s: only one of climb_rate_cms and thrust may be given", cmd.Kind)
		}
		return nil
	case KindTakeoff:
		if gomath.IsNaN(cmd.Alt) || gomath.IsInf(cmd.Alt, 0) || cmd.Alt > gomath.MaxInt32 {
			return errors.Wrapf(guided.ErrInvalidAltitude, "%s: alt_cm %v", cmd.Kind, cmd.Alt)
		}
		return need(cmd.Alt > 0, "alt_cm")
	case KindLimit:
		if cmd.TimeoutMs < 0 || cmd.HorizMax < 0 {
			return errors.Errorf("%s: negative limit", cmd.Kind)
		}
		return nil
	case KindLimitClear, KindLimitStart:
		return nil
	default:
		return errors.Wrap(ErrUnknownKind, cmd.Kind)
	}
}

func vec(v *[3]float64) r3.Vector {
	if v == nil {
		return r3.Vector{}
	}
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}

func (cmd Command) yawRequest() guided.YawRequest {
	var req guided.YawRequest
	if cmd.Yaw != nil {
		req.UseYaw, req.Yaw, req.Relative = true, *cmd.Yaw, cmd.RelativeYaw
	}
	if cmd.YawRate != nil {
		req.UseYawRate, req.YawRate = true, *cmd.YawRate
	}
	return req
}

func (cmd Command) altitude() guided.AltitudeCommand {
	switch {
	case cmd.Thrust != nil:
		return guided.Thrust(*cmd.Thrust)
	case cmd.ClimbRate != nil:
		return guided.ClimbRate(*cmd.ClimbRate)
	default:
		return guided.ClimbRate(0)
	}
}

// Controller is the part of *guided.Controller that commands drive.
type Controller interface {
	SetDestination(dest r3.Vector, yaw guided.YawRequest, terrainAlt bool) error
	SetDestinationLocation(loc guided.Location, yaw guided.YawRequest) error
	SetVelocity(vel r3.Vector, yaw guided.YawRequest, logRequest bool)
	SetDestinationPosVel(dest, vel r3.Vector, yaw guided.YawRequest) error
	SetAngle(q math.Quaternion, alt guided.AltitudeCommand, useYawRate bool, yawRate float64)
	SetROI(roi r3.Vector)
	DoUserTakeoffStart(altCm float64) error
	CircleStart(center guided.Location, radiusM float64)
	LimitSet(timeout time.Duration, altMin, altMax, horizMax float64)
	LimitClear()
	LimitInitTimeAndPos()
}

var _ Controller = (*guided.Controller)(nil)

// Dispatch checks the command and then applies it to the controller.
func Dispatch(c Controller, cmd Command) error {
	if err := cmd.Check(); err != nil {
		return err
	}

	var err error
	switch cmd.Kind {
	case KindDestination:
		err = c.SetDestination(vec(cmd.Position), cmd.yawRequest(), cmd.TerrainAlt)

	case KindLocation:
		var loc guided.Location
		if loc, err = cmd.Location.Guided(); err == nil {
			err = c.SetDestinationLocation(loc, cmd.yawRequest())
		}

	case KindVelocity:
		c.SetVelocity(vec(cmd.Velocity), cmd.yawRequest(), !cmd.Quiet)

	case KindPosVel:
		err = c.SetDestinationPosVel(vec(cmd.Position), vec(cmd.Velocity), cmd.yawRequest())

	case KindAngle:
		a := cmd.Attitude
		q := math.Quaternion{W: a[0], X: a[1], Y: a[2], Z: a[3]}
		var rate float64
		if cmd.BodyYawRate != nil {
			rate = *cmd.BodyYawRate
		}
		c.SetAngle(q, cmd.altitude(), cmd.BodyYawRate != nil, rate)

	case KindTakeoff:
		err = c.DoUserTakeoffStart(cmd.Alt)

	case KindCircle:
		var loc guided.Location
		if loc, err = cmd.Location.Guided(); err == nil {
			c.CircleStart(loc, cmd.Radius)
		}

	case KindROI:
		c.SetROI(vec(cmd.Position))

	case KindLimit:
		c.LimitSet(time.Duration(cmd.TimeoutMs)*time.Millisecond, cmd.AltMin, cmd.AltMax, cmd.HorizMax)

	case KindLimitClear:
		c.LimitClear()

	case KindLimitStart:
		c.LimitInitTimeAndPos()

	default:
		return errors.Wrap(ErrUnknownKind, cmd.Kind)
	}

	return errors.WithMessage(err, cmd.Kind)
}
