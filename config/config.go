// config/config.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

// Package config loads the YAML configuration of the guided simulator.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mmp/guided/guided"
	"github.com/mmp/guided/link"
	"github.com/mmp/guided/log"
	"github.com/mmp/guided/sitl"
	"github.com/mmp/guided/util"

	"gopkg.in/yaml.v3"
)

type LogConfig struct {
	Level string `yaml:"level"`
	Dir   string `yaml:"dir"`
}

type TelemetryConfig struct {
	// Path of the compressed event log; empty disables it.
	Path        string        `yaml:"path"`
	FlushPeriod time.Duration `yaml:"flush_period"`
	// StatusPeriod is how often a status snapshot is posted to the event
	// stream.
	StatusPeriod time.Duration `yaml:"status_period"`
}

type LinkConfig struct {
	Enabled     bool `yaml:"enabled"`
	link.Config `yaml:",inline"`
}

type Config struct {
	Guided    guided.Params   `yaml:"guided"`
	Log       LogConfig       `yaml:"log"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Link      LinkConfig      `yaml:"link"`
	Sim       sitl.Config     `yaml:"sim"`
}

func Default() Config {
	return Config{
		Guided: guided.DefaultParams(),
		Log:    LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			FlushPeriod:  time.Second,
			StatusPeriod: 100 * time.Millisecond,
		},
		Link: LinkConfig{
			Config: link.Config{
				ClientID:        "guidedsim",
				DeviceID:        "sitl",
				TelemetryPeriod: 100 * time.Millisecond,
			},
		},
		Sim: sitl.DefaultConfig(),
	}
}

// Load reads the configuration at the given path; anything the file
// doesn't set keeps its default value.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()

	c, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Decode(r io.Reader) (Config, error) {
	c := Default()
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(&c); err != nil && err != io.EOF {
		return Config{}, err
	}
	return c, c.Validate()
}

func (c Config) Encode(w io.Writer) error {
	e := yaml.NewEncoder(w)
	e.SetIndent(2)
	if err := e.Encode(c); err != nil {
		return err
	}
	return e.Close()
}

func (c Config) String() string {
	var b bytes.Buffer
	if err := c.Encode(&b); err != nil {
		return err.Error()
	}
	return b.String()
}

// Validate checks the configuration, reporting every problem found.
func (c Config) Validate() error {
	var e util.ErrorLogger

	e.Push("guided")
	g := c.Guided
	if g.LoopRate <= 0 {
		e.ErrorString("loop_rate_hz must be positive, got %d", g.LoopRate)
	}
	if g.PosVelTimeout <= 0 {
		e.ErrorString("posvel_timeout must be positive")
	}
	if g.AngleTimeout <= 0 {
		e.ErrorString("angle_timeout must be positive")
	}
	if g.PosVelMaxDt <= 0 {
		e.ErrorString("posvel_max_dt must be positive")
	}
	if g.AngleMax <= 0 || g.AngleMax > 9000 {
		e.ErrorString("angle_max_cd %.0f out of range (0, 9000]", g.AngleMax)
	}
	if g.PilotSpeedUp < 0 || g.PilotSpeedDown < 0 || g.PilotAccelZ < 0 {
		e.ErrorString("pilot speeds and acceleration may not be negative")
	}
	if g.CircleEdgeThreshold < 0 {
		e.ErrorString("circle_edge_threshold_cm may not be negative, got %.0f", g.CircleEdgeThreshold)
	}
	if g.LookAtTargetMinDistance < 0 {
		e.ErrorString("look_at_target_min_distance_cm may not be negative, got %.0f", g.LookAtTargetMinDistance)
	}
	e.Pop()

	e.Push("log")
	if _, err := log.ParseLevel(c.Log.Level); err != nil {
		e.Error(err)
	}
	e.Pop()

	e.Push("telemetry")
	if c.Telemetry.FlushPeriod <= 0 {
		e.ErrorString("flush_period must be positive")
	}
	if c.Telemetry.StatusPeriod < 0 {
		e.ErrorString("status_period may not be negative")
	}
	e.Pop()

	if c.Link.Enabled {
		e.Push("link")
		if c.Link.Broker == "" {
			e.ErrorString("broker must be given")
		}
		if c.Link.DeviceID == "" {
			e.ErrorString("device_id must be given")
		}
		e.Pop()
	}

	e.Push("sim")
	s := c.Sim
	if frame := s.Origin.Frame; frame != guided.AltAbsolute {
		e.ErrorString("origin altitude must be absolute, got %s", frame)
	}
	if s.Hover <= 0 || s.Hover >= 1 {
		e.ErrorString("hover_throttle %.2f out of range (0, 1)", s.Hover)
	}
	if s.LeanAngleMax <= 0 || s.LeanAngleMax > 9000 {
		e.ErrorString("lean_angle_max_cd %.0f out of range (0, 9000]", s.LeanAngleMax)
	}
	for _, v := range []struct {
		name string
		v    float64
	}{
		{"wpnav_speed_cms", s.SpeedXY},
		{"wpnav_speed_up_cms", s.SpeedUp},
		{"wpnav_speed_down_cms", s.SpeedDown},
		{"wpnav_accel_cmss", s.AccelXY},
		{"wpnav_accel_z_cmss", s.AccelZ},
		{"wpnav_radius_cm", s.WPRadius},
	} {
		if v.v <= 0 {
			e.ErrorString("%s must be positive", v.name)
		}
	}
	if s.Fence.Enabled && s.Fence.Radius <= 0 && s.Fence.AltMax <= 0 {
		e.ErrorString("fence enabled without a radius or maximum altitude")
	}
	e.Pop()

	return e.Err()
}
