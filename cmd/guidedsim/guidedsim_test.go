// cmd/guidedsim/guidedsim_test.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/mmp/guided/guided"
	"github.com/mmp/guided/sitl"
	"github.com/mmp/guided/telemetry"
)

func TestDecodeScript(t *testing.T) {
	s, err := DecodeScript(strings.NewReader(`
- at: 5s
  mission:
    index: 3
    turns: 2
    radius_m: 10
    location: {lat: 0, lng: 0, alt: 1000}
- at: 0s
  command:
    kind: takeoff
    alt_cm: 500
- at: 2s
  pilot:
    radio_failsafe: true
- at: 3s
  terrain:
    north_cm: 100
    east_cm: 200
    missing: true
`))
	if err != nil {
		t.Fatalf("DecodeScript: %v", err)
	}
	if len(s) != 4 {
		t.Fatalf("Expected 4 steps, got %d", len(s))
	}
	for i, at := range []time.Duration{0, 2 * time.Second, 3 * time.Second, 5 * time.Second} {
		if s[i].At != at {
			t.Errorf("Step %d: expected time %s, got %s", i, at, s[i].At)
		}
	}
	if s[0].Command == nil || s[0].Command.Alt != 500 {
		t.Errorf("Expected takeoff command first, got %+v", s[0])
	}

	cmd, err := s[3].Mission.Command()
	if err != nil {
		t.Fatalf("Mission.Command: %v", err)
	}
	if cmd.ID != guided.CmdNavLoiterTurns || cmd.P1 != 10<<8|2 || cmd.Index != 3 {
		t.Errorf("Unexpected mission command %+v", cmd)
	}
	if cmd.Location.Alt != 1000 || cmd.Location.Frame != guided.AltAboveHome {
		t.Errorf("Unexpected mission location %+v", cmd.Location)
	}
}

func TestDecodeScriptErrors(t *testing.T) {
	for _, script := range []string{
		"- at: 1s\n",
		"- at: 1s\n  command: {kind: takeoff}\n  pilot: {radio_failsafe: true}\n",
		"- at: 1s\n  command: {kind: velocity}\n",
		"- at: 1s\n  command: {kind: warp}\n",
		"- at: -1s\n  pilot: {radio_failsafe: true}\n",
		"- at: 1s\n  mission: {turns: 1, location: {frame: sideways}}\n",
		"- at: 1s\n  bogus: 1\n",
	} {
		if _, err := DecodeScript(strings.NewReader(script)); err == nil {
			t.Errorf("%q: expected an error", script)
		}
	}
}

func TestRunner(t *testing.T) {
	script, err := DecodeScript(strings.NewReader(`
- at: 0s
  command:
    kind: takeoff
    alt_cm: 500
- at: 8s
  command:
    kind: velocity
    velocity: [100, 0, 0]
`))
	if err != nil {
		t.Fatalf("DecodeScript: %v", err)
	}

	const dt = 2500 * time.Microsecond
	sim := sitl.New(sitl.DefaultConfig(), dt, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC), nil)

	stream := telemetry.NewEventStream(nil)
	defer stream.Destroy()
	sub := stream.Subscribe()
	rec := telemetry.NewRecorder(stream, sim.Clock.Now)

	deps := sim.Deps()
	deps.Recorder = rec
	ctrl, err := guided.New(guided.DefaultParams(), deps, nil)
	if err != nil {
		t.Fatalf("guided.New: %v", err)
	}
	ctrl.Init(false)
	sim.Vehicle.Arm()

	r := newRunner(sim, ctrl, rec, script, 100*time.Millisecond, nil)
	if err := r.Run(context.Background(), dt, 10*time.Second, false); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if m := ctrl.Mode(); m != guided.ModeVelocity {
		t.Errorf("Expected Velocity mode, got %s", m)
	}
	pos := sim.Vehicle.Position()
	if pos.X < 50 {
		t.Errorf("Expected to have flown north, got %v", pos)
	}
	if pos.Z < 300 {
		t.Errorf("Expected to be airborne, got %v", pos)
	}

	var status, targets int
	for _, ev := range sub.Get() {
		switch ev.Type {
		case telemetry.StatusEvent:
			status++
		case telemetry.GuidedTargetEvent:
			targets++
		}
	}
	if status < 90 || status > 101 {
		t.Errorf("Expected about 100 status events, got %d", status)
	}
	if targets == 0 {
		t.Errorf("Expected guided target events")
	}
}

func TestRunnerCanceled(t *testing.T) {
	sim := sitl.New(sitl.DefaultConfig(), time.Millisecond, time.Now(), nil)
	ctrl, err := guided.New(guided.DefaultParams(), sim.Deps(), nil)
	if err != nil {
		t.Fatalf("guided.New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := newRunner(sim, ctrl, nil, nil, 0, nil)
	if err := r.Run(ctx, time.Millisecond, 0, false); err != nil {
		t.Errorf("Expected clean exit, got %v", err)
	}
	if r.elapsed() != 0 {
		t.Errorf("Expected no ticks after cancellation, got %s", r.elapsed())
	}
}
