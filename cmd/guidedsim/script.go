// cmd/guidedsim/script.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/mmp/guided/guided"
	"github.com/mmp/guided/link"
	"github.com/mmp/guided/util"

	"gopkg.in/yaml.v3"
)

// Step is a single scripted event; At is measured in simulation time from
// the start of the run. Exactly one of the other fields is set.
type Step struct {
	At      time.Duration `yaml:"at"`
	Command *link.Command `yaml:"command,omitempty"`
	Mission *MissionItem  `yaml:"mission,omitempty"`
	Pilot   *PilotInput   `yaml:"pilot,omitempty"`
	Terrain *TerrainEvent `yaml:"terrain,omitempty"`
}

// MissionItem starts a loiter-turns mission command.
type MissionItem struct {
	Index    uint16        `yaml:"index"`
	Turns    uint8         `yaml:"turns"`
	RadiusM  uint8         `yaml:"radius_m"`
	Location link.Location `yaml:"location"`
}

func (m MissionItem) Command() (guided.MissionCommand, error) {
	loc, err := m.Location.Guided()
	if err != nil {
		return guided.MissionCommand{}, err
	}
	return guided.MissionCommand{
		Index:    m.Index,
		ID:       guided.CmdNavLoiterTurns,
		P1:       uint16(m.RadiusM)<<8 | uint16(m.Turns),
		Location: loc,
	}, nil
}

type PilotInput struct {
	YawRate       *float64 `yaml:"yaw_rate_cds,omitempty"`
	RadioFailsafe *bool    `yaml:"radio_failsafe,omitempty"`
}

// TerrainEvent removes or restores terrain data for the tile containing
// the given point.
type TerrainEvent struct {
	North   float64 `yaml:"north_cm"`
	East    float64 `yaml:"east_cm"`
	Missing bool    `yaml:"missing"`
}

type Script []Step

func LoadScript(path string) (Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	s, err := DecodeScript(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// DecodeScript parses a YAML list of steps and returns them sorted by
// time.
func DecodeScript(r io.Reader) (Script, error) {
	var s Script
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(&s); err != nil && err != io.EOF {
		return nil, err
	}

	var e util.ErrorLogger
	for i, step := range s {
		e.Push(fmt.Sprintf("step %d (%s)", i, step.At))
		n := 0
		for _, set := range []bool{step.Command != nil, step.Mission != nil, step.Pilot != nil, step.Terrain != nil} {
			if set {
				n++
			}
		}
		if n != 1 {
			e.ErrorString("expected exactly one of command, mission, pilot, or terrain")
		}
		if step.At < 0 {
			e.ErrorString("negative time")
		}
		if step.Command != nil {
			if err := step.Command.Check(); err != nil {
				e.Error(err)
			}
		}
		if step.Mission != nil {
			if _, err := step.Mission.Command(); err != nil {
				e.Error(err)
			}
		}
		e.Pop()
	}
	if err := e.Err(); err != nil {
		return nil, err
	}

	slices.SortStableFunc(s, func(a, b Step) int { return cmp.Compare(a.At, b.At) })
	return s, nil
}
