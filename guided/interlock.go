// guided/interlock.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package guided

// interlock checks that it's safe to fly. If the vehicle is disarmed, not
// auto-armed, or landed without a request to climb, the motors are spooled
// down, the controllers are relaxed and true is returned; the caller must
// skip the rest of the tick. Otherwise the motors are given full range.
func (c *Controller) interlock(climbIntent bool) bool {
	m, st := c.deps.Motors, c.deps.State
	if !m.Armed() || !st.AutoArmed() || (st.LandComplete() && !climbIntent) {
		c.safeSpoolDown()
		return true
	}
	m.SetDesiredSpoolState(DesiredThrottleUnlimited)
	return false
}

func (c *Controller) safeSpoolDown() {
	c.deps.Motors.SetDesiredSpoolState(DesiredGroundIdle)
	c.zeroThrottleAndRelax()
	c.deps.PosControl.RelaxZ()
}

func (c *Controller) zeroThrottleAndRelax() {
	c.deps.Attitude.Relax()
	c.deps.Attitude.SetThrottleOut(0, false)
}

// takeoffFromLanded spools up a landed vehicle that has been asked to
// climb; the landed flag is cleared and the vertical controller prepared
// for takeoff once the motors reach full range.
func (c *Controller) takeoffFromLanded() {
	c.zeroThrottleAndRelax()
	c.deps.Motors.SetDesiredSpoolState(DesiredThrottleUnlimited)
	if c.deps.Motors.SpoolState() == SpoolThrottleUnlimited {
		c.deps.State.SetLandComplete(false)
		c.deps.PosControl.InitTakeoff()
	}
}
