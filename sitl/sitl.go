// sitl/sitl.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package sitl provides a simple kinematic multirotor that implements all
// of the services that the guided controller drives, so that the
// controller can be flown without hardware.
package sitl

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mmp/guided/guided"
	"github.com/mmp/guided/log"
)

// Gravity in cm/s^2.
const Gravity = 980.665

type Config struct {
	// Origin is the location of the local frame's origin; its altitude
	// is absolute (above mean sea level).
	Origin guided.Location `yaml:"origin"`
	Start  [3]float64      `yaml:"start"`

	LeanAngleMax float64       `yaml:"lean_angle_max_cd"`
	MaxYawRate   float64       `yaml:"max_yaw_rate_cds"`
	Hover        float64       `yaml:"hover_throttle"`
	SpoolTime    time.Duration `yaml:"spool_time"`

	SpeedXY   float64 `yaml:"wpnav_speed_cms"`
	SpeedUp   float64 `yaml:"wpnav_speed_up_cms"`
	SpeedDown float64 `yaml:"wpnav_speed_down_cms"`
	AccelXY   float64 `yaml:"wpnav_accel_cmss"`
	AccelZ    float64 `yaml:"wpnav_accel_z_cmss"`
	// WPRadius is how close the vehicle must get to a destination for it
	// to count as reached.
	WPRadius float64 `yaml:"wpnav_radius_cm"`

	CircleRadius float64 `yaml:"circle_radius_cm"`
	CircleRate   float64 `yaml:"circle_rate_degs"`

	Fence       FenceConfig       `yaml:"fence"`
	Terrain     TerrainConfig     `yaml:"terrain"`
	Rangefinder RangefinderConfig `yaml:"rangefinder"`

	Avoidance bool `yaml:"avoidance"`
}

func DefaultConfig() Config {
	return Config{
		Origin:       guided.Location{Lat: -353632610, Lng: 1491652300, Alt: 58400, Frame: guided.AltAbsolute},
		LeanAngleMax: 4500,
		MaxYawRate:   9000,
		Hover:        0.5,
		SpoolTime:    500 * time.Millisecond,
		SpeedXY:      500,
		SpeedUp:      250,
		SpeedDown:    150,
		AccelXY:      250,
		AccelZ:       100,
		WPRadius:     200,
		CircleRadius: 1000,
		CircleRate:   20,
		Terrain: TerrainConfig{
			TileSize: 10000,
			CacheTTL: time.Minute,
		},
		Rangefinder: RangefinderConfig{MaxDistance: 4000},
	}
}

// Clock is a simulated clock that only moves when it is advanced.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock {
	return &Clock{t: t}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// Sim bundles the simulated vehicle and its services.
type Sim struct {
	Clock       *Clock
	Vehicle     *Vehicle
	PosControl  *PosControl
	WPNav       *WPNav
	Circle      *CircleNav
	Fence       *Fence
	Terrain     *Terrain
	Rangefinder *Rangefinder
	Takeoff     *Takeoff
	Pilot       *Pilot
	LandingGear *LandingGear
	Failsafe    *Failsafe
	Avoidance   *Avoidance

	dt time.Duration
	lg *log.Logger
}

// New returns a landed, disarmed vehicle at the configured start position.
// dt is the interval that Step advances time by.
func New(cfg Config, dt time.Duration, start time.Time, lg *log.Logger) *Sim {
	clock := NewClock(start)
	terrain := NewTerrain(cfg.Terrain, lg)
	v := newVehicle(cfg, terrain, lg)
	pc := newPosControl(v, clock, dt)
	rf := &Rangefinder{cfg: cfg.Rangefinder, v: v, terrain: terrain}
	wp := newWPNav(cfg, v, pc, terrain, rf, lg)
	fence := &Fence{cfg: cfg.Fence, v: v}

	s := &Sim{
		Clock:       clock,
		Vehicle:     v,
		PosControl:  pc,
		WPNav:       wp,
		Circle:      newCircleNav(cfg, v, pc, dt),
		Fence:       fence,
		Terrain:     terrain,
		Rangefinder: rf,
		Takeoff:     &Takeoff{v: v, pc: pc, wp: wp},
		Pilot:       &Pilot{},
		LandingGear: &LandingGear{lg: lg},
		Failsafe:    &Failsafe{clock: clock, lg: lg},
		dt:          dt,
		lg:          lg,
	}
	if cfg.Avoidance {
		s.Avoidance = &Avoidance{fence: fence, v: v, accelZ: cfg.AccelZ}
	}
	return s
}

// Deps returns the controller collaborators backed by the simulation.
func (s *Sim) Deps() guided.Deps {
	d := guided.Deps{
		Estimator:   s.Vehicle,
		WPNav:       s.WPNav,
		PosControl:  s.PosControl,
		Attitude:    s.Vehicle,
		Circle:      s.Circle,
		Fence:       s.Fence,
		Motors:      s.Vehicle,
		State:       s.Vehicle,
		Takeoff:     s.Takeoff,
		Pilot:       s.Pilot,
		LandingGear: s.LandingGear,
		Rangefinder: s.Rangefinder,
		Failsafe:    s.Failsafe,
		Clock:       s.Clock,
	}
	if s.Avoidance != nil {
		d.Avoidance = s.Avoidance
	}
	return d
}

// Step advances the vehicle and the clock by one interval.
func (s *Sim) Step() {
	s.Vehicle.step(s.dt)
	s.Clock.Advance(s.dt)
}

func (s *Sim) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Time("time", s.Clock.Now()),
		slog.Any("vehicle", s.Vehicle))
}

///////////////////////////////////////////////////////////////////////////
// Pilot, LandingGear, Failsafe

// Pilot is a pilot who is either hands-off or holding a constant yaw
// stick deflection.
type Pilot struct {
	mu       sync.Mutex
	rate     float64
	failsafe bool
}

func (p *Pilot) SetYawRate(r float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate = r
}

func (p *Pilot) SetRadioFailsafe(fs bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failsafe = fs
}

func (p *Pilot) YawRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rate
}

func (p *Pilot) RadioFailsafe() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.failsafe
}

type LandingGear struct {
	Retracted bool
	lg        *log.Logger
}

func (g *LandingGear) RetractAfterTakeoff() {
	if !g.Retracted {
		g.lg.Info("landing gear retracted")
	}
	g.Retracted = true
}

// Failsafe tracks terrain data availability the way the vehicle's
// terrain failsafe would.
type Failsafe struct {
	// TerrainMissingSince is the time that waypoint updates started
	// failing for lack of terrain data; it's zero when they succeed.
	TerrainMissingSince time.Time
	Events              int

	clock *Clock
	lg    *log.Logger
}

func (f *Failsafe) TerrainStatus(ok bool) {
	if ok {
		if !f.TerrainMissingSince.IsZero() {
			f.lg.Info("terrain data recovered", slog.Duration("missing", f.clock.Now().Sub(f.TerrainMissingSince)))
		}
		f.TerrainMissingSince = time.Time{}
	} else if f.TerrainMissingSince.IsZero() {
		f.TerrainMissingSince = f.clock.Now()
		f.lg.Warn("terrain data missing")
	}
}

func (f *Failsafe) TerrainEvent() {
	f.Events++
	f.lg.Warn("terrain failsafe event", slog.Int("count", f.Events))
}
