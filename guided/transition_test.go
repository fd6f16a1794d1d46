// guided/transition_test.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package guided

import (
	"testing"
	"time"

	"github.com/golang/geo/r3"
)

func TestTransitionTable(t *testing.T) {
	for _, test := range []struct {
		current, requested SubMode
		mode               SubMode
		actions            ResetAction
	}{
		{ModeWaypoint, ModeWaypoint, ModeWaypoint, 0},
		{ModeVelocity, ModeWaypoint, ModeWaypoint, ResetWaypointNav | YawToDefault},
		{ModeTakeOff, ModeWaypoint, ModeWaypoint, ResetWaypointNav | YawToDefault},
		{ModeVelocity, ModeVelocity, ModeVelocity, 0},
		{ModeWaypoint, ModeVelocity, ModeVelocity, ResetVelocityController},
		{ModePositionVelocity, ModePositionVelocity, ModePositionVelocity, 0},
		{ModeAngle, ModePositionVelocity, ModePositionVelocity, ResetXYController | YawToHold},
		{ModeAngle, ModeAngle, ModeAngle, 0},
		{ModeCircle, ModeAngle, ModeAngle, ResetAltitudeHold | ResetAngleTargets | YawToHold},
		{ModeWaypoint, ModeTakeOff, ModeTakeOff, YawToHold},
		{ModeTakeOff, ModeTakeOff, ModeTakeOff, YawToHold},
		{ModeCircleMoveToEdge, ModeCircle, ModeCircle, ResetCircle | YawToHoldUnlessROI},
		{ModeCircle, ModeCircle, ModeCircle, ResetCircle | YawToHoldUnlessROI},
		{ModeWaypoint, ModeCircleMoveToEdge, ModeCircleMoveToEdge, 0},
		{ModeVelocity, SubMode(42), ModeVelocity, 0},
	} {
		mode, actions := transition(test.current, test.requested)
		if mode != test.mode || actions != test.actions {
			t.Errorf("%s -> %s: expected %s [%s], got %s [%s]", test.current, test.requested,
				test.mode, test.actions, mode, actions)
		}
	}
}

func TestResetActionString(t *testing.T) {
	if s := (ResetWaypointNav | YawToDefault).String(); s != "WaypointNav|YawToDefault" {
		t.Errorf("Expected \"WaypointNav|YawToDefault\", got %q", s)
	}
	if s := ResetAction(0).String(); s != "" {
		t.Errorf("Expected empty string, got %q", s)
	}
}

func TestModeEntryResetsTargets(t *testing.T) {
	c, f := newTestController(t)
	f.est.pos = r3.Vector{X: 50, Y: 60, Z: 1000}

	if err := c.SetDestinationPosVel(r3.Vector{X: 500, Z: 1000}, r3.Vector{X: 100}, YawRequest{}); err != nil {
		t.Fatalf("SetDestinationPosVel: %v", err)
	}
	c.SetVelocity(r3.Vector{Y: 300}, YawRequest{}, false)
	f.clock.Advance(time.Second)

	// Re-entering the position+velocity sub-mode starts from the current
	// position, not the previous session's target.
	c.mu.Lock(nil)
	c.enter(ModePositionVelocity, false)
	s := c.store
	c.mu.Unlock(nil)

	if s.pos != f.est.pos {
		t.Errorf("Expected position target reset to %v, got %v", f.est.pos, s.pos)
	}
	if s.vel != (r3.Vector{}) {
		t.Errorf("Expected velocity target reset, got %v", s.vel)
	}
	if !s.posvelUpdated.Equal(f.clock.Now()) {
		t.Errorf("Expected update time reset")
	}
	if f.pc.xyTarget != [2]float64{50, 60} {
		t.Errorf("Expected XY controller target at current position, got %v", f.pc.xyTarget)
	}
}

func TestAngleEntryUsesCurrentAttitude(t *testing.T) {
	c, f := newTestController(t)
	f.est.roll, f.est.pitch, f.est.yaw = 150, -250, 4000

	c.mu.Lock(nil)
	c.enter(ModeAngle, false)
	a := c.store.angle
	c.mu.Unlock(nil)

	if a.Roll != 150 || a.Pitch != -250 || a.Yaw != 4000 {
		t.Errorf("Expected current attitude, got %+v", a)
	}
	if a.Alt.IsThrust() || a.Alt.ClimbRate() != 0 || a.UseYawRate {
		t.Errorf("Expected zero climb and yaw angle control, got %+v", a)
	}
	if !f.pc.activeZ {
		t.Errorf("Expected vertical controller to be started")
	}
}
