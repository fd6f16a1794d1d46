// guided/fakes_test.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package guided

import (
	"errors"
	"testing"
	"time"

	"github.com/golang/geo/r3"
)

type fakeEstimator struct {
	pos, vel         r3.Vector
	roll, pitch, yaw float64
	loc              Location
	originFails      bool
}

func (e *fakeEstimator) Position() r3.Vector { return e.pos }
func (e *fakeEstimator) Velocity() r3.Vector { return e.vel }
func (e *fakeEstimator) Attitude() (float64, float64, float64) { return e.roll, e.pitch, e.yaw }
func (e *fakeEstimator) Location() Location { return e.loc }
func (e *fakeEstimator) VectorFromOrigin(l Location) (r3.Vector, bool) {
	if e.originFails {
		return r3.Vector{}, false
	}
	return r3.Vector{X: float64(l.Lat), Y: float64(l.Lng), Z: float64(l.Alt)}, true
}

var errNoTerrain = errors.New("no terrain data")

type fakeWPNav struct {
	dest        r3.Vector
	destLoc     Location
	terrainAlt  bool
	stopping    r3.Vector
	reached     bool
	failSet     bool
	rfTerrain   bool
	initCalls   int
	updateCalls int
	dist        float64
	bearing     float64
	xtrack      float64
}

func (w *fakeWPNav) Init() { w.initCalls++ }
func (w *fakeWPNav) StoppingPoint() r3.Vector { return w.stopping }
func (w *fakeWPNav) Destination() r3.Vector { return w.dest }
func (w *fakeWPNav) ReachedDestination() bool { return w.reached }
func (w *fakeWPNav) DistanceToDestination() float64 { return w.dist }
func (w *fakeWPNav) BearingToDestination() float64 { return w.bearing }
func (w *fakeWPNav) CrosstrackError() float64 { return w.xtrack }
func (w *fakeWPNav) Roll() float64 { return 100 }
func (w *fakeWPNav) Pitch() float64 { return -200 }
func (w *fakeWPNav) DefaultSpeedXY() float64 { return 500 }
func (w *fakeWPNav) DefaultSpeedUp() float64 { return 250 }
func (w *fakeWPNav) DefaultSpeedDown() float64 { return 150 }
func (w *fakeWPNav) AccelXY() float64 { return 100 }
func (w *fakeWPNav) AccelZ() float64 { return 100 }
func (w *fakeWPNav) TerrainFromRangefinder() bool { return w.rfTerrain }
func (w *fakeWPNav) OriginAndDestinationAreTerrainAlt() bool { return w.terrainAlt }

func (w *fakeWPNav) Update() bool {
	w.updateCalls++
	return true
}

func (w *fakeWPNav) SetDestination(dest r3.Vector, terrainAlt bool) error {
	if w.failSet && terrainAlt {
		return errNoTerrain
	}
	w.dest, w.terrainAlt = dest, terrainAlt
	return nil
}

func (w *fakeWPNav) SetDestinationLocation(loc Location) error {
	if w.failSet {
		return errNoTerrain
	}
	w.destLoc = loc
	w.dest = r3.Vector{X: float64(loc.Lat), Y: float64(loc.Lng), Z: float64(loc.Alt)}
	w.terrainAlt = loc.Frame == AltAboveTerrain
	return nil
}

type fakePosControl struct {
	desired          r3.Vector
	setDesiredCalls  int
	posTarget        r3.Vector
	xyTarget         [2]float64
	maxAccelXY       float64
	maxAccelZ        float64
	maxSpeedDown     float64
	maxSpeedUp       float64
	sinceXY          time.Duration
	activeZ          bool
	climbRates       []float64
	relaxZCalls      int
	updateZCalls     int
	updateXYCalls    int
	velUpdateCalls   int
	initTakeoffCalls int
	initVelCalls     int
	initXYCalls      int
}

func (p *fakePosControl) SetMaxSpeedXY(float64) {}
func (p *fakePosControl) SetMaxAccelXY(a float64) { p.maxAccelXY = a }
func (p *fakePosControl) SetMaxSpeedZ(down, up float64) { p.maxSpeedDown, p.maxSpeedUp = down, up }
func (p *fakePosControl) SetMaxAccelZ(a float64) { p.maxAccelZ = a }
func (p *fakePosControl) MaxAccelXY() float64 { return p.maxAccelXY }
func (p *fakePosControl) MaxAccelZ() float64 { return p.maxAccelZ }
func (p *fakePosControl) InitVelController() { p.initVelCalls++ }
func (p *fakePosControl) InitXYController() { p.initXYCalls++ }
func (p *fakePosControl) IsActiveZ() bool { return p.activeZ }
func (p *fakePosControl) SetAltTargetToCurrentAlt() { p.activeZ = true }
func (p *fakePosControl) InitTakeoff() { p.initTakeoffCalls++ }
func (p *fakePosControl) RelaxZ() { p.relaxZCalls++ }
func (p *fakePosControl) SetXYTarget(x, y float64) { p.xyTarget = [2]float64{x, y} }
func (p *fakePosControl) SetPosTarget(pos r3.Vector) { p.posTarget = pos }
func (p *fakePosControl) SetDesiredVelocityXY(x, y float64) {
	p.desired.X, p.desired.Y = x, y
}
func (p *fakePosControl) SetDesiredVelocityZ(z float64) { p.desired.Z = z }
func (p *fakePosControl) SetDesiredVelocity(v r3.Vector) {
	p.desired = v
	p.setDesiredCalls++
}
func (p *fakePosControl) DesiredVelocity() r3.Vector { return p.desired }
func (p *fakePosControl) SetAltTargetFromClimbRate(climb float64, dt time.Duration) {
	p.climbRates = append(p.climbRates, climb)
}
func (p *fakePosControl) TimeSinceLastXYUpdate() time.Duration { return p.sinceXY }
func (p *fakePosControl) UpdateVelController() { p.velUpdateCalls++ }
func (p *fakePosControl) UpdateXY() { p.updateXYCalls++ }
func (p *fakePosControl) UpdateZ() { p.updateZCalls++ }
func (p *fakePosControl) Roll() float64 { return 300 }
func (p *fakePosControl) Pitch() float64 { return 400 }
func (p *fakePosControl) DistanceToTarget() float64 { return 1234 }
func (p *fakePosControl) BearingToTarget() float64 { return 4500 }

type fakeAttitude struct {
	roll, pitch   float64
	yaw           float64
	yawRate       float64
	rateInput     bool
	inputCalls    int
	throttle      float64
	throttleCalls int
	relaxCalls    int
	leanMax       float64
}

func (a *fakeAttitude) InputRollPitchYawRate(roll, pitch, yawRate float64) {
	a.roll, a.pitch, a.yawRate, a.rateInput = roll, pitch, yawRate, true
	a.inputCalls++
}

func (a *fakeAttitude) InputRollPitchYaw(roll, pitch, yaw float64, slew bool) {
	a.roll, a.pitch, a.yaw, a.rateInput = roll, pitch, yaw, false
	a.inputCalls++
}

func (a *fakeAttitude) SetThrottleOut(t float64, boost bool) {
	a.throttle = t
	a.throttleCalls++
}

func (a *fakeAttitude) Relax() { a.relaxCalls++ }
func (a *fakeAttitude) LeanAngleMax() float64 { return a.leanMax }

type fakeCircle struct {
	center     r3.Vector
	radius     float64
	closest    r3.Vector
	initCalls  int
	angleTotal float64
}

func (c *fakeCircle) SetCenter(v r3.Vector) { c.center = v }
func (c *fakeCircle) Center() r3.Vector { return c.center }
func (c *fakeCircle) SetRadius(cm float64) { c.radius = cm }
func (c *fakeCircle) Radius() float64 { return c.radius }
func (c *fakeCircle) Init(r3.Vector) { c.initCalls++ }
func (c *fakeCircle) ClosestPointOnCircle() r3.Vector { return c.closest }
func (c *fakeCircle) Update() {}
func (c *fakeCircle) Roll() float64 { return 10 }
func (c *fakeCircle) Pitch() float64 { return 20 }
func (c *fakeCircle) Yaw() float64 { return 12345 }
func (c *fakeCircle) AngleTotal() float64 { return c.angleTotal }

type fakeFence struct {
	reject bool
}

func (f *fakeFence) DestinationWithinFence(r3.Vector) bool { return !f.reject }
func (f *fakeFence) LocationWithinFence(Location) bool { return !f.reject }

type fakeMotors struct {
	armed   bool
	spool   SpoolState
	desired DesiredSpoolState
}

func (m *fakeMotors) Armed() bool { return m.armed }
func (m *fakeMotors) SpoolState() SpoolState { return m.spool }
func (m *fakeMotors) SetDesiredSpoolState(s DesiredSpoolState) { m.desired = s }

type fakeState struct {
	autoArmed, landed bool
}

func (s *fakeState) AutoArmed() bool { return s.autoArmed }
func (s *fakeState) SetAutoArmed(a bool) { s.autoArmed = a }
func (s *fakeState) LandComplete() bool { return s.landed }
func (s *fakeState) SetLandComplete(l bool) { s.landed = l }

type fakeTakeoff struct {
	runs, startAlts int
}

func (t *fakeTakeoff) Run() { t.runs++ }
func (t *fakeTakeoff) SetStartAlt() { t.startAlts++ }

type fakePilot struct {
	rate     float64
	failsafe bool
}

func (p *fakePilot) YawRate() float64 { return p.rate }
func (p *fakePilot) RadioFailsafe() bool { return p.failsafe }

type fakeRangefinder struct {
	healthy  bool
	maxDist  float64
	altitude float64
}

func (r *fakeRangefinder) Healthy() bool { return r.healthy }
func (r *fakeRangefinder) MaxDistance() float64 { return r.maxDist }
func (r *fakeRangefinder) Altitude() float64 { return r.altitude }

type fakeGear struct {
	retracts int
}

func (g *fakeGear) RetractAfterTakeoff() { g.retracts++ }

type recordedTarget struct {
	mode        SubMode
	target, vel r3.Vector
}

type fakeRecorder struct {
	targets   []recordedTarget
	navErrors []NavErrorCode
	reached   []uint16
}

func (r *fakeRecorder) GuidedTarget(mode SubMode, target, vel r3.Vector) {
	r.targets = append(r.targets, recordedTarget{mode, target, vel})
}
func (r *fakeRecorder) NavigationError(code NavErrorCode) { r.navErrors = append(r.navErrors, code) }
func (r *fakeRecorder) MissionItemReached(idx uint16) { r.reached = append(r.reached, idx) }

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

// fakes bundles one of each collaborator for a test controller.
type fakes struct {
	est      *fakeEstimator
	wp       *fakeWPNav
	pc       *fakePosControl
	att      *fakeAttitude
	circle   *fakeCircle
	fence    *fakeFence
	motors   *fakeMotors
	state    *fakeState
	takeoff  *fakeTakeoff
	pilot    *fakePilot
	rf       *fakeRangefinder
	gear     *fakeGear
	recorder *fakeRecorder
	clock    *fakeClock
}

// newTestController returns a controller for an armed, flying vehicle that
// has just entered guided mode.
func newTestController(t *testing.T) (*Controller, *fakes) {
	t.Helper()

	f := &fakes{
		est:      &fakeEstimator{pos: r3.Vector{Z: 1000}, loc: Location{Lat: 1, Lng: 2, Alt: 1000}},
		wp:       &fakeWPNav{},
		pc:       &fakePosControl{},
		att:      &fakeAttitude{leanMax: 4500},
		circle:   &fakeCircle{radius: 1000},
		fence:    &fakeFence{},
		motors:   &fakeMotors{armed: true, spool: SpoolThrottleUnlimited},
		state:    &fakeState{autoArmed: true},
		takeoff:  &fakeTakeoff{},
		pilot:    &fakePilot{},
		rf:       &fakeRangefinder{},
		gear:     &fakeGear{},
		recorder: &fakeRecorder{},
		clock:    &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)},
	}

	c, err := New(DefaultParams(), Deps{
		Estimator:   f.est,
		WPNav:       f.wp,
		PosControl:  f.pc,
		Attitude:    f.att,
		Circle:      f.circle,
		Fence:       f.fence,
		Motors:      f.motors,
		State:       f.state,
		Takeoff:     f.takeoff,
		Pilot:       f.pilot,
		LandingGear: f.gear,
		Rangefinder: f.rf,
		Recorder:    f.recorder,
		Clock:       f.clock,
	}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if !c.Init(false) {
		t.Fatalf("Init failed")
	}
	return c, f
}
