// guided/guided.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package guided implements the guided flight mode of a multirotor: it
// accepts position, velocity, position+velocity, attitude, and circle
// targets from a ground station or companion computer and turns them into
// commands for the vehicle's position and attitude controllers, degrading
// to a safe hover when the targets stop arriving.
//
// A Controller is driven from two contexts. Run is called by the vehicle's
// fixed-rate scheduler; the Set* methods are called whenever a command
// arrives. Both take the controller's mutex for the duration of the call,
// so a tick never observes a half-written target.
package guided

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mmp/guided/log"
	"github.com/mmp/guided/math"
	"github.com/mmp/guided/util"

	"github.com/brunoga/deep"
	"github.com/golang/geo/r3"
	"gopkg.in/yaml.v3"
)

// SubMode identifies which of the guided sub-controllers is running.
type SubMode int

const (
	ModeTakeOff SubMode = iota
	ModeWaypoint
	ModeVelocity
	ModePositionVelocity
	ModeAngle
	ModeCircle
	ModeCircleMoveToEdge
)

func (m SubMode) String() string {
	switch m {
	case ModeTakeOff:
		return "TakeOff"
	case ModeWaypoint:
		return "Waypoint"
	case ModeVelocity:
		return "Velocity"
	case ModePositionVelocity:
		return "PositionVelocity"
	case ModeAngle:
		return "Angle"
	case ModeCircle:
		return "Circle"
	case ModeCircleMoveToEdge:
		return "CircleMoveToEdge"
	default:
		return fmt.Sprintf("SubMode(%d)", int(m))
	}
}

type AltFrame int

const (
	AltAboveHome AltFrame = iota
	AltAboveOrigin
	AltAboveTerrain
	AltAbsolute
)

func (f AltFrame) String() string {
	if f < AltAboveHome || f > AltAbsolute {
		return fmt.Sprintf("AltFrame(%d)", int(f))
	}
	return [...]string{"above-home", "above-origin", "above-terrain", "absolute"}[f]
}

// ParseAltFrame returns the altitude frame with the given name, ignoring
// case; an empty name is above-home.
func ParseAltFrame(s string) (AltFrame, error) {
	if s == "" {
		return AltAboveHome, nil
	}
	for f := AltAboveHome; f <= AltAbsolute; f++ {
		if strings.EqualFold(s, f.String()) {
			return f, nil
		}
	}
	return AltAboveHome, fmt.Errorf("%s: unknown altitude frame", s)
}

func (f AltFrame) MarshalYAML() (any, error) {
	return f.String(), nil
}

func (f *AltFrame) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	fr, err := ParseAltFrame(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*f = fr
	return nil
}

// Location is a global position: latitude and longitude in degrees*1e7
// and altitude in cm relative to the given frame.
type Location struct {
	Lat, Lng int32
	Alt      int32
	Frame    AltFrame
}

func (l Location) HasLatLng() bool {
	return l.Lat != 0 || l.Lng != 0
}

func (l Location) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("lat", int(l.Lat)),
		slog.Int("lng", int(l.Lng)),
		slog.Int("alt", int(l.Alt)),
		slog.String("frame", l.Frame.String()))
}

type Options struct {
	AllowArmingFromTX bool `yaml:"allow_arming_from_tx"`
	IgnorePilotYaw    bool `yaml:"ignore_pilot_yaw"`
}

// Params holds the tunables of the guided controller.
type Params struct {
	LoopRate int `yaml:"loop_rate_hz"`

	// Velocity and position+velocity targets older than PosVelTimeout are
	// replaced with zero velocity; angle targets older than AngleTimeout
	// are replaced with level attitude and zero climb.
	PosVelTimeout time.Duration `yaml:"posvel_timeout"`
	AngleTimeout  time.Duration `yaml:"angle_timeout"`

	// Position controller update intervals at or above PosVelMaxDt are
	// not used to extrapolate the position target.
	PosVelMaxDt time.Duration `yaml:"posvel_max_dt"`

	// Circle commands that start further than this from the circle's edge
	// first fly to the edge.
	CircleEdgeThreshold float64 `yaml:"circle_edge_threshold_cm"`
	// The nose is pointed at the destination only while it is further
	// away than this.
	LookAtTargetMinDistance float64 `yaml:"look_at_target_min_distance_cm"`

	AngleMax       float64 `yaml:"angle_max_cd"`
	PilotSpeedUp   float64 `yaml:"pilot_speed_up_cms"`
	PilotSpeedDown float64 `yaml:"pilot_speed_down_cms"` // 0 -> navigator default
	PilotAccelZ    float64 `yaml:"pilot_accel_z_cmss"`

	Options Options `yaml:"options"`
}

func DefaultParams() Params {
	return Params{
		LoopRate:                400,
		PosVelTimeout:           3000 * time.Millisecond,
		AngleTimeout:            1000 * time.Millisecond,
		PosVelMaxDt:             200 * time.Millisecond,
		CircleEdgeThreshold:     300,
		LookAtTargetMinDistance: 500,
		AngleMax:                3000,
		PilotSpeedUp:            250,
		PilotSpeedDown:          0,
		PilotAccelZ:             250,
	}
}

// LoopPeriod is the nominal interval between calls to Run.
func (p Params) LoopPeriod() time.Duration {
	return time.Second / time.Duration(p.LoopRate)
}

// Controller is the guided-mode supervisor for a single vehicle.
type Controller struct {
	mu util.LoggingMutex
	Params
	deps Deps
	lg   *log.Logger

	active bool
	mode   SubMode
	store  targetStore
	yaw    YawState
	limit  Limit

	// Most recent accepted targets, oldest first.
	history []TargetRecord

	// Set once holding position at the end of a takeoff has failed.
	takeoffHoldFailed bool
}

// TargetHistoryLength is the number of accepted targets a Controller
// remembers.
const TargetHistoryLength = 16

// TargetRecord is an accepted target as it was passed to the Recorder.
type TargetRecord struct {
	Time   time.Time
	Mode   SubMode
	Target r3.Vector
	Vel    r3.Vector
}

// New returns a Controller that drives the given collaborators. The
// controller starts inactive; Init must be called when the vehicle enters
// guided mode.
func New(p Params, deps Deps, lg *log.Logger) (*Controller, error) {
	required := []struct {
		name string
		ok   bool
	}{
		{"Estimator", deps.Estimator != nil},
		{"WPNav", deps.WPNav != nil},
		{"PosControl", deps.PosControl != nil},
		{"Attitude", deps.Attitude != nil},
		{"Circle", deps.Circle != nil},
		{"Motors", deps.Motors != nil},
		{"State", deps.State != nil},
		{"Takeoff", deps.Takeoff != nil},
	}
	for _, r := range required {
		if !r.ok {
			return nil, fmt.Errorf("%s: %w", r.name, ErrMissingCollaborator)
		}
	}

	if p.LoopRate <= 0 {
		p.LoopRate = DefaultParams().LoopRate
	}
	if deps.Clock == nil {
		deps.Clock = systemClock{}
	}

	return &Controller{
		Params: p,
		deps:   deps,
		lg:     lg,
		mode:   ModeWaypoint,
	}, nil
}

func (c *Controller) now() time.Time {
	return c.deps.Clock.Now()
}

///////////////////////////////////////////////////////////////////////////
// Mode entry and exit

// Init is called when the vehicle switches into guided mode; it starts
// out holding position at the waypoint controller's stopping point.
func (c *Controller) Init(ignoreChecks bool) bool {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	c.active = true
	c.enter(ModeWaypoint, true)
	c.lg.Info("guided mode entered", slog.Bool("ignore_checks", ignoreChecks))
	return true
}

// Exit is called when the vehicle leaves guided mode.
func (c *Controller) Exit() {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	c.active = false
	c.lg.Info("guided mode exited", slog.String("mode", c.mode.String()))
}

func (c *Controller) IsActive() bool {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)
	return c.active
}

// AllowsArming reports whether the vehicle may be armed while in guided
// mode; the ground station may always arm it while the transmitter may
// only if the option is set.
func (c *Controller) AllowsArming(fromGCS bool) bool {
	return fromGCS || c.Options.AllowArmingFromTX
}

func (c *Controller) Mode() SubMode {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)
	return c.mode
}

func (c *Controller) IsTakingOff() bool {
	return c.Mode() == ModeTakeOff
}

///////////////////////////////////////////////////////////////////////////
// Mode supervisor

// Run runs the active sub-controller; it should be called at the loop
// rate given in the Params.
func (c *Controller) Run() {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	switch c.mode {
	case ModeTakeOff:
		c.takeoffRun()
	case ModeWaypoint:
		c.waypointRun()
	case ModeCircleMoveToEdge:
		c.circleMoveToEdgeRun()
	case ModeVelocity:
		c.velocityRun()
	case ModePositionVelocity:
		c.posVelRun()
	case ModeAngle:
		c.angleRun()
	case ModeCircle:
		c.circleRun()
	}
}

///////////////////////////////////////////////////////////////////////////
// Telemetry queries

// WPDistance returns the distance to the current target in cm, for the
// sub-modes that have one.
func (c *Controller) WPDistance() float64 {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	switch c.mode {
	case ModeWaypoint:
		return c.deps.WPNav.DistanceToDestination()
	case ModePositionVelocity:
		return c.deps.PosControl.DistanceToTarget()
	default:
		return 0
	}
}

// WPBearing returns the bearing to the current target in centidegrees.
func (c *Controller) WPBearing() float64 {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	switch c.mode {
	case ModeWaypoint:
		return c.deps.WPNav.BearingToDestination()
	case ModePositionVelocity:
		return c.deps.PosControl.BearingToTarget()
	default:
		return 0
	}
}

func (c *Controller) CrosstrackError() float64 {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	if c.mode == ModeWaypoint {
		return c.deps.WPNav.CrosstrackError()
	}
	return 0
}

// WP returns the waypoint destination if the waypoint controller is
// running.
func (c *Controller) WP() (r3.Vector, bool) {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	if c.mode != ModeWaypoint {
		return r3.Vector{}, false
	}
	return c.deps.WPNav.Destination(), true
}

// Status is a point-in-time copy of the controller's state.
type Status struct {
	Active        bool
	Mode          SubMode
	Yaw           YawState
	PosTarget     r3.Vector
	VelTarget     r3.Vector
	PosVelUpdated time.Time
	VelUpdated    time.Time
	Angle         AngleTarget
	Limit         Limit
	History       []TargetRecord
}

func (s Status) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("active", s.Active),
		slog.String("mode", s.Mode.String()),
		slog.Any("yaw", s.Yaw),
		slog.Any("pos_target", s.PosTarget),
		slog.Any("vel_target", s.VelTarget),
		slog.Any("angle", s.Angle),
		slog.Any("limit", s.Limit),
		slog.Int("history", len(s.History)))
}

// Snapshot returns a deep copy of the controller's state; it is safe to
// hold on to and compare against later snapshots.
func (c *Controller) Snapshot() Status {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	return deep.MustCopy(Status{
		Active:        c.active,
		Mode:          c.mode,
		Yaw:           c.yaw,
		PosTarget:     c.store.pos,
		VelTarget:     c.store.vel,
		PosVelUpdated: c.store.posvelUpdated,
		VelUpdated:    c.store.velUpdated,
		Angle:         c.store.angle,
		Limit:         c.limit,
		History:       c.history,
	})
}

///////////////////////////////////////////////////////////////////////////
// Recording

func (c *Controller) recordTarget(target, vel r3.Vector) {
	c.lg.Debug("guided target", slog.String("mode", c.mode.String()),
		slog.Any("target", target), slog.Any("vel", vel))
	rec := TargetRecord{Time: c.now(), Mode: c.mode, Target: target, Vel: vel}
	if len(c.history) < TargetHistoryLength {
		c.history = append(c.history, rec)
	} else {
		// Shift in place so that the backing array is reused.
		copy(c.history, c.history[1:])
		c.history[len(c.history)-1] = rec
	}

	if c.deps.Recorder != nil {
		c.deps.Recorder.GuidedTarget(c.mode, target, vel)
	}
}

func (c *Controller) navError(code NavErrorCode) {
	c.lg.Warn("navigation error", slog.String("code", code.String()))
	if c.deps.Recorder != nil {
		c.deps.Recorder.NavigationError(code)
	}
}

// loopSeconds is the nominal tick interval in seconds, used to turn
// acceleration limits into per-tick velocity changes.
func (c *Controller) loopSeconds() float64 {
	return c.LoopPeriod().Seconds()
}

// pilotSpeedDown returns the maximum pilot-commanded descent rate as a
// positive value.
func (c *Controller) pilotSpeedDown() float64 {
	if math.IsZero(c.PilotSpeedDown) {
		return math.Abs(c.deps.WPNav.DefaultSpeedDown())
	}
	return math.Abs(c.PilotSpeedDown)
}
