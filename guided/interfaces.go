// guided/interfaces.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package guided

import (
	"time"

	"github.com/golang/geo/r3"
)

// The controller never computes control laws, trajectories, or estimates
// itself; it drives the services below. All of their methods are called
// from inside the control tick (or an ingestion call) and must not block.
//
// Units throughout: positions in cm and velocities in cm/s in a
// north-east-up local frame, angles in centidegrees, angular rates in
// centidegrees/s.

// Estimator provides the vehicle's current state.
type Estimator interface {
	Position() r3.Vector
	Velocity() r3.Vector
	// Attitude returns roll, pitch, and yaw in centidegrees.
	Attitude() (roll, pitch, yaw float64)
	Location() Location
	// VectorFromOrigin converts a location into the local frame; it fails
	// when the conversion needs data (e.g., terrain) that is unavailable.
	VectorFromOrigin(loc Location) (r3.Vector, bool)
}

// WaypointNav flies straight-line legs to a destination.
type WaypointNav interface {
	// Init resets the waypoint and spline state.
	Init()
	StoppingPoint() r3.Vector
	// SetDestination and SetDestinationLocation return an error only if
	// terrain data needed to resolve the destination is missing.
	SetDestination(dest r3.Vector, terrainAlt bool) error
	SetDestinationLocation(loc Location) error
	Destination() r3.Vector
	OriginAndDestinationAreTerrainAlt() bool
	// Update runs one navigation step; it returns false if terrain data
	// was required and unavailable.
	Update() bool
	ReachedDestination() bool
	DistanceToDestination() float64
	BearingToDestination() float64
	CrosstrackError() float64
	Roll() float64
	Pitch() float64

	DefaultSpeedXY() float64
	DefaultSpeedUp() float64
	// DefaultSpeedDown is reported as a positive magnitude.
	DefaultSpeedDown() float64
	AccelXY() float64
	AccelZ() float64

	// TerrainFromRangefinder reports whether a healthy rangefinder is the
	// navigator's terrain source.
	TerrainFromRangefinder() bool
}

// PositionControl runs the position and velocity control loops.
type PositionControl interface {
	SetMaxSpeedXY(cms float64)
	SetMaxAccelXY(cmss float64)
	SetMaxSpeedZ(down, up float64)
	SetMaxAccelZ(cmss float64)
	MaxAccelXY() float64
	MaxAccelZ() float64

	InitVelController()
	InitXYController()
	IsActiveZ() bool
	SetAltTargetToCurrentAlt()
	// InitTakeoff prepares the vertical controller for a takeoff
	// (throttle integrator reset, etc.).
	InitTakeoff()
	RelaxZ()

	SetXYTarget(x, y float64)
	SetPosTarget(pos r3.Vector)
	SetDesiredVelocityXY(vx, vy float64)
	SetDesiredVelocityZ(vz float64)
	SetDesiredVelocity(vel r3.Vector)
	DesiredVelocity() r3.Vector
	SetAltTargetFromClimbRate(climbRate float64, dt time.Duration)

	// TimeSinceLastXYUpdate returns the time since UpdateXY last ran.
	TimeSinceLastXYUpdate() time.Duration
	UpdateVelController()
	UpdateXY()
	UpdateZ()

	Roll() float64
	Pitch() float64
	DistanceToTarget() float64
	BearingToTarget() float64
}

// AttitudeControl accepts the final attitude and throttle commands.
type AttitudeControl interface {
	InputRollPitchYawRate(roll, pitch, yawRate float64)
	InputRollPitchYaw(roll, pitch, yaw float64, slewYaw bool)
	// SetThrottleOut passes normalized thrust straight through.
	SetThrottleOut(thrust float64, applyAngleBoost bool)
	Relax()
	// LeanAngleMax is the largest lean angle that still allows altitude
	// to be held.
	LeanAngleMax() float64
}

// CircleNav flies a circle around a center point.
type CircleNav interface {
	SetCenter(center r3.Vector)
	Center() r3.Vector
	SetRadius(cm float64)
	Radius() float64
	Init(center r3.Vector)
	ClosestPointOnCircle() r3.Vector
	Update()
	Roll() float64
	Pitch() float64
	Yaw() float64
	// AngleTotal is the signed angle flown so far, in radians.
	AngleTotal() float64
}

// Fence reports whether a destination is inside the geofence.
type Fence interface {
	DestinationWithinFence(dest r3.Vector) bool
	LocationWithinFence(loc Location) bool
}

type SpoolState int

const (
	SpoolShutDown SpoolState = iota
	SpoolGroundIdle
	SpoolUp
	SpoolThrottleUnlimited
	SpoolDown
)

type DesiredSpoolState int

const (
	DesiredShutDown DesiredSpoolState = iota
	DesiredGroundIdle
	DesiredThrottleUnlimited
)

func (d DesiredSpoolState) String() string {
	return [...]string{"ShutDown", "GroundIdle", "ThrottleUnlimited"}[d]
}

type Motors interface {
	Armed() bool
	SpoolState() SpoolState
	SetDesiredSpoolState(s DesiredSpoolState)
}

// VehicleState holds the landed and auto-armed flags.
type VehicleState interface {
	AutoArmed() bool
	SetAutoArmed(bool)
	LandComplete() bool
	SetLandComplete(bool)
}

// Takeoff is the generic takeoff ramp shared with other modes.
type Takeoff interface {
	Run()
	SetStartAlt()
}

// Optional collaborators; nil is allowed for each of these.

// Pilot reports the pilot's yaw stick, already converted to a rate.
type Pilot interface {
	YawRate() float64
	RadioFailsafe() bool
}

// Avoidance clips velocities so that the vehicle stays clear of the fence
// and obstacles.
type Avoidance interface {
	AdjustVelocity(accelXY float64, vel r3.Vector, dt time.Duration) r3.Vector
	AdjustClimbRate(climbRate float64) float64
}

type LandingGear interface {
	RetractAfterTakeoff()
}

type Rangefinder interface {
	Healthy() bool
	MaxDistance() float64
	// Altitude is the measured height above ground.
	Altitude() float64
}

type Failsafe interface {
	// TerrainStatus is called with the result of every waypoint update.
	TerrainStatus(ok bool)
	// TerrainEvent signals that a destination could not be set because of
	// missing terrain data outside of an ingestion call.
	TerrainEvent()
}

// Recorder receives fire-and-forget records of what the controller did;
// implementations must not block.
type Recorder interface {
	GuidedTarget(mode SubMode, target, vel r3.Vector)
	NavigationError(code NavErrorCode)
	MissionItemReached(index uint16)
}

type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Deps bundles the collaborators that a Controller drives.
type Deps struct {
	Estimator   Estimator
	WPNav       WaypointNav
	PosControl  PositionControl
	Attitude    AttitudeControl
	Circle      CircleNav
	Fence       Fence
	Motors      Motors
	State       VehicleState
	Takeoff     Takeoff
	Pilot       Pilot
	Avoidance   Avoidance
	LandingGear LandingGear
	Rangefinder Rangefinder
	Failsafe    Failsafe
	Recorder    Recorder
	Clock       Clock
}
