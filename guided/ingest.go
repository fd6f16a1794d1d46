// guided/ingest.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package guided

import (
	"fmt"
	"log/slog"
	gomath "math"

	"github.com/mmp/guided/math"

	"github.com/golang/geo/r3"
)

// SetDestination flies to the given point in the local frame. If terrainAlt
// is set, the point's altitude is above terrain. Destinations outside the
// fence are rejected without changing anything.
func (c *Controller) SetDestination(dest r3.Vector, yaw YawRequest, terrainAlt bool) error {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	return c.setDestination(dest, yaw, terrainAlt)
}

func (c *Controller) setDestination(dest r3.Vector, yaw YawRequest, terrainAlt bool) error {
	if c.deps.Fence != nil && !c.deps.Fence.DestinationWithinFence(dest) {
		c.navError(NavErrDestOutsideFence)
		return ErrDestinationRejected
	}

	c.enter(ModeWaypoint, false)

	if err := c.deps.WPNav.SetDestination(dest, terrainAlt); err != nil {
		c.navError(NavErrFailedToSetDestination)
		return fmt.Errorf("%w: %v", ErrDestinationUnreachable, err)
	}
	c.applyYawRequest(yaw)

	c.recordTarget(dest, r3.Vector{})
	return nil
}

// SetDestinationLocation flies to a global location. It fails if the
// location's altitude frame needs terrain data that isn't available.
func (c *Controller) SetDestinationLocation(loc Location, yaw YawRequest) error {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	if c.deps.Fence != nil && !c.deps.Fence.LocationWithinFence(loc) {
		c.navError(NavErrDestOutsideFence)
		return ErrDestinationRejected
	}

	c.enter(ModeWaypoint, false)

	if err := c.deps.WPNav.SetDestinationLocation(loc); err != nil {
		c.navError(NavErrFailedToSetDestination)
		return fmt.Errorf("%w: %v", ErrDestinationUnreachable, err)
	}
	c.applyYawRequest(yaw)

	c.recordTarget(r3.Vector{X: float64(loc.Lat), Y: float64(loc.Lng), Z: float64(loc.Alt)}, r3.Vector{})
	return nil
}

// SetVelocity flies at the given velocity until it is changed or goes
// stale. High-rate senders may set logRequest to false to keep the
// target out of the recorder.
func (c *Controller) SetVelocity(vel r3.Vector, yaw YawRequest, logRequest bool) {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	c.enter(ModeVelocity, false)
	c.applyYawRequest(yaw)

	c.store.vel = vel
	c.store.velUpdated = c.now()

	if logRequest {
		c.recordTarget(r3.Vector{}, vel)
	}
}

// SetDestinationPosVel sets a position target together with the velocity
// to extrapolate it with between updates.
func (c *Controller) SetDestinationPosVel(dest, vel r3.Vector, yaw YawRequest) error {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	if c.deps.Fence != nil && !c.deps.Fence.DestinationWithinFence(dest) {
		c.navError(NavErrDestOutsideFence)
		return ErrDestinationRejected
	}

	c.enter(ModePositionVelocity, false)
	c.applyYawRequest(yaw)

	c.store.posvelUpdated = c.now()
	c.store.pos = dest
	c.store.vel = vel

	c.deps.PosControl.SetPosTarget(dest)

	c.recordTarget(dest, vel)
	return nil
}

// SetAngle sets an attitude target along with either a climb rate or a
// thrust. yawRate is in radians/s and is only used if useYawRate is set.
func (c *Controller) SetAngle(q math.Quaternion, alt AltitudeCommand, useYawRate bool, yawRate float64) {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	c.enter(ModeAngle, false)

	roll, pitch, yaw := q.Euler()
	c.store.angle = AngleTarget{
		Roll:       math.Degrees(roll) * 100,
		Pitch:      math.Degrees(pitch) * 100,
		Yaw:        math.Wrap180Cd(math.Degrees(yaw) * 100),
		YawRate:    math.Degrees(yawRate) * 100,
		UseYawRate: useYawRate,
		Alt:        alt,
		Updated:    c.now(),
	}

	a := c.store.angle
	c.recordTarget(r3.Vector{X: a.Roll, Y: a.Pitch, Z: a.Yaw}, r3.Vector{Z: alt.Value})
}

// SetROI points the nose at the given point for as long as the position,
// velocity and circle sub-modes run.
func (c *Controller) SetROI(roi r3.Vector) {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	c.yaw.Mode = YawROI
	c.yaw.ROI = roi
	c.lg.Debug("guided roi", slog.Any("roi", roi))
}

// DoUserTakeoffStart climbs vertically from the current location to
// altCm. The altitude is above terrain when the rangefinder is providing
// terrain data and can see that far, and above home otherwise.
func (c *Controller) DoUserTakeoffStart(altCm float64) error {
	if gomath.IsNaN(altCm) || gomath.IsInf(altCm, 0) || altCm > gomath.MaxInt32 || altCm < gomath.MinInt32 {
		return ErrInvalidAltitude
	}

	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	target := c.deps.Estimator.Location()
	target.Frame = AltAboveHome
	if rf := c.deps.Rangefinder; rf != nil && rf.Healthy() && c.deps.WPNav.TerrainFromRangefinder() &&
		altCm < rf.MaxDistance() {
		if altCm <= rf.Altitude() {
			return ErrTakeoffBelowGround
		}
		target.Frame = AltAboveTerrain
	}
	target.Alt = int32(altCm)

	if err := c.deps.WPNav.SetDestinationLocation(target); err != nil {
		c.navError(NavErrFailedToSetDestination)
		return fmt.Errorf("%w: %v", ErrDestinationUnreachable, err)
	}

	c.enter(ModeTakeOff, false)
	c.takeoffHoldFailed = false
	c.deps.PosControl.InitTakeoff()
	c.deps.Takeoff.SetStartAlt()

	c.lg.Info("guided takeoff", slog.Float64("alt", altCm), slog.Any("target", target))
	return nil
}

// CircleStart circles the given center; a radius of zero keeps the
// navigator's current radius. If the vehicle is too far from the circle,
// it first flies to the closest point on it.
func (c *Controller) CircleStart(center Location, radiusM float64) {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	c.circleMoveToEdgeStart(center, radiusM)
}

func (c *Controller) circleMoveToEdgeStart(center Location, radiusM float64) {
	est, circle := c.deps.Estimator, c.deps.Circle

	centerPos, ok := est.VectorFromOrigin(center)
	if !ok {
		centerPos = est.Position()
		c.navError(NavErrFailedCircleInit)
	}
	circle.SetCenter(centerPos)
	if !math.IsZero(radiusM) {
		circle.SetRadius(radiusM * 100)
	}

	pos := est.Position()
	edge := circle.ClosestPointOnCircle()
	if pos.Sub(edge).Norm() <= c.CircleEdgeThreshold {
		c.circleStart()
		return
	}

	c.enter(ModeCircleMoveToEdge, false)

	// Fly to the edge at the altitude given with the center.
	terrainAlt := center.Frame == AltAboveTerrain
	if terrainAlt {
		edge.Z = float64(center.Alt)
	} else {
		edge.Z = centerPos.Z
	}
	if err := c.deps.WPNav.SetDestination(edge, terrainAlt); err != nil {
		c.lg.Warn("unable to set circle edge destination", slog.Any("error", err))
		if c.deps.Failsafe != nil {
			c.deps.Failsafe.TerrainEvent()
		}
	}

	// Point at the edge from well outside the circle; hold yaw otherwise.
	if c.yaw.Mode != YawROI {
		dist := math.HorizontalDistance(centerPos, pos)
		if dist > circle.Radius() && dist > c.LookAtTargetMinDistance {
			c.setYawMode(YawDefault)
		} else {
			c.setYawMode(YawHold)
		}
	}
	c.recordTarget(edge, r3.Vector{})
}

func (c *Controller) circleStart() {
	c.enter(ModeCircle, false)
	c.recordTarget(c.deps.Circle.Center(), r3.Vector{})
}
