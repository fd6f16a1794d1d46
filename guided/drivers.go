// guided/drivers.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package guided

import (
	"log/slog"

	"github.com/mmp/guided/math"

	"github.com/golang/geo/r3"
)

// The sub-controllers below are called from Run with c.mu held.

func (c *Controller) takeoffRun() {
	if c.interlock(true) {
		return
	}
	c.deps.Takeoff.Run()

	wp := c.deps.WPNav
	if wp.ReachedDestination() {
		if c.deps.LandingGear != nil {
			c.deps.LandingGear.RetractAfterTakeoff()
		}

		c.holdAfterTakeoff(wp.Destination(), wp.OriginAndDestinationAreTerrainAlt())
	}
}

// holdAfterTakeoff switches to holding position at the takeoff point. It
// is retried every tick until it succeeds but a fence rejection is only
// reported the first time.
func (c *Controller) holdAfterTakeoff(target r3.Vector, terrainAlt bool) {
	if c.takeoffHoldFailed && c.deps.Fence != nil && !c.deps.Fence.DestinationWithinFence(target) {
		return
	}

	if err := c.setDestination(target, YawRequest{}, terrainAlt); err != nil {
		if !c.takeoffHoldFailed {
			c.lg.Warn("unable to hold position after takeoff", slog.Any("error", err))
		}
		c.takeoffHoldFailed = true
		return
	}
	c.takeoffHoldFailed = false
}

func (c *Controller) waypointRun() {
	yawRate := c.pilotYawRate()
	if c.interlock(false) {
		return
	}

	ok := c.deps.WPNav.Update()
	if c.deps.Failsafe != nil {
		c.deps.Failsafe.TerrainStatus(ok)
	}
	c.deps.PosControl.UpdateZ()

	c.outputAttitude(c.deps.WPNav.Roll(), c.deps.WPNav.Pitch(), yawRate)
}

func (c *Controller) circleMoveToEdgeRun() {
	c.waypointRun()

	if c.deps.WPNav.ReachedDestination() {
		c.circleStart()
	}
}

func (c *Controller) velocityRun() {
	yawRate := c.pilotYawRate()

	vel, fresh := c.staleness().Velocity(c.now(), c.store.velUpdated, c.store.vel)

	m, st := c.deps.Motors, c.deps.State
	if m.Armed() && st.AutoArmed() && st.LandComplete() && math.IsPositive(vel.Z) {
		c.takeoffFromLanded()
		return
	}
	if c.interlock(false) {
		return
	}

	pc := c.deps.PosControl
	if !fresh {
		if !math.IsZeroVector(pc.DesiredVelocity()) {
			c.setDesiredVelocityWithLimits(r3.Vector{})
		}
		if c.yaw.Mode == YawRate {
			c.yaw.Rate = 0
		}
	} else {
		c.setDesiredVelocityWithLimits(vel)
	}

	pc.UpdateVelController()

	c.outputAttitude(pc.Roll(), pc.Pitch(), yawRate)
}

// setDesiredVelocityWithLimits moves the position controller's desired
// velocity toward vel by no more than one tick's worth of acceleration,
// then clips it for avoidance.
func (c *Controller) setDesiredVelocityWithLimits(vel r3.Vector) {
	pc := c.deps.PosControl
	dt := c.loopSeconds()

	cur := pc.DesiredVelocity()
	delta := vel.Sub(cur)

	deltaXY := math.SafeSqrt(math.Sqr(delta.X) + math.Sqr(delta.Y))
	maxDeltaXY := dt * pc.MaxAccelXY()
	ratio := 1.0
	if !math.IsZero(deltaXY) && deltaXY > maxDeltaXY {
		ratio = maxDeltaXY / deltaXY
	}
	cur.X += delta.X * ratio
	cur.Y += delta.Y * ratio

	maxDeltaZ := dt * pc.MaxAccelZ()
	cur.Z += math.Clamp(delta.Z, -maxDeltaZ, maxDeltaZ)

	if av := c.deps.Avoidance; av != nil {
		cur = av.AdjustVelocity(pc.MaxAccelXY(), cur, c.LoopPeriod())
		cur.Z = av.AdjustClimbRate(cur.Z)
	}

	pc.SetDesiredVelocity(cur)
}

func (c *Controller) posVelRun() {
	yawRate := c.pilotYawRate()
	if c.interlock(false) {
		return
	}

	if c.staleness().PosVelStale(c.now(), c.store.posvelUpdated) {
		c.store.vel = r3.Vector{}
		if c.yaw.Mode == YawRate {
			c.yaw.Rate = 0
		}
	}

	pc := c.deps.PosControl
	dt := pc.TimeSinceLastXYUpdate()
	if dt >= c.PosVelMaxDt {
		dt = 0
	}
	c.store.pos = c.store.pos.Add(c.store.vel.Mul(dt.Seconds()))

	pc.SetPosTarget(c.store.pos)
	pc.SetDesiredVelocityXY(c.store.vel.X, c.store.vel.Y)
	pc.UpdateXY()
	pc.UpdateZ()

	c.outputAttitude(pc.Roll(), pc.Pitch(), yawRate)
}

func (c *Controller) angleRun() {
	att, wp := c.deps.Attitude, c.deps.WPNav
	t := c.store.angle

	cmd := AngleCommand{
		Roll:    t.Roll,
		Pitch:   t.Pitch,
		Yaw:     math.Wrap180Cd(t.Yaw),
		YawRate: math.Wrap180Cd(t.YawRate),
		Alt:     t.Alt,
	}

	// Scale the lean back to the largest angle that still holds altitude.
	total := math.Hypot(cmd.Roll, cmd.Pitch)
	angleMax := min(att.LeanAngleMax(), c.AngleMax)
	if total > angleMax {
		ratio := angleMax / total
		cmd.Roll *= ratio
		cmd.Pitch *= ratio
	}

	if !t.Alt.IsThrust() {
		cmd.ClimbRate = math.Clamp(t.Alt.ClimbRate(), -math.Abs(wp.DefaultSpeedDown()), wp.DefaultSpeedUp())
		if c.deps.Avoidance != nil {
			cmd.ClimbRate = c.deps.Avoidance.AdjustClimbRate(cmd.ClimbRate)
		}
	}

	cmd, fresh := c.staleness().Angle(c.now(), t.Updated, cmd)
	if !fresh {
		c.store.angle.Alt = cmd.Alt
	}

	climbIntent := math.IsPositive(cmd.ClimbRate)
	if cmd.Alt.IsThrust() {
		climbIntent = math.IsPositive(cmd.Alt.Thrust())
	}

	m, st := c.deps.Motors, c.deps.State
	if m.Armed() && climbIntent && !st.AutoArmed() {
		st.SetAutoArmed(true)
	}

	if !m.Armed() || !st.AutoArmed() || (st.LandComplete() && !climbIntent) {
		c.safeSpoolDown()
		return
	}

	if st.LandComplete() && !cmd.Alt.IsThrust() && cmd.ClimbRate > 0 {
		c.takeoffFromLanded()
		return
	}

	m.SetDesiredSpoolState(DesiredThrottleUnlimited)

	if t.UseYawRate {
		att.InputRollPitchYawRate(cmd.Roll, cmd.Pitch, cmd.YawRate)
	} else {
		att.InputRollPitchYaw(cmd.Roll, cmd.Pitch, cmd.Yaw, true)
	}

	if cmd.Alt.IsThrust() {
		att.SetThrottleOut(cmd.Alt.Thrust(), true)
	} else {
		c.deps.PosControl.SetAltTargetFromClimbRate(cmd.ClimbRate, c.LoopPeriod())
		c.deps.PosControl.UpdateZ()
	}
}

func (c *Controller) circleRun() {
	circle := c.deps.Circle
	circle.Update()
	c.deps.PosControl.UpdateZ()

	heading := circle.Yaw()
	if c.yaw.Mode != YawHold {
		heading = c.autoHeading()
	}
	c.deps.Attitude.InputRollPitchYaw(circle.Roll(), circle.Pitch(), heading, true)
}
