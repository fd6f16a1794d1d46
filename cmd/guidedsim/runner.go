// cmd/guidedsim/runner.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/mmp/guided/guided"
	"github.com/mmp/guided/link"
	"github.com/mmp/guided/log"
	"github.com/mmp/guided/sitl"
	"github.com/mmp/guided/telemetry"

	"github.com/golang/geo/r3"
)

// runner steps the controller and the simulated vehicle at the loop rate,
// applying scripted events as their time comes.
type runner struct {
	sim  *sitl.Sim
	ctrl *guided.Controller
	rec  *telemetry.Recorder

	script  Script
	next    int
	mission *guided.MissionCommand

	start        time.Time
	statusPeriod time.Duration
	lastStatus   time.Time

	lg *log.Logger
}

func newRunner(sim *sitl.Sim, ctrl *guided.Controller, rec *telemetry.Recorder, script Script,
	statusPeriod time.Duration, lg *log.Logger) *runner {
	return &runner{
		sim:          sim,
		ctrl:         ctrl,
		rec:          rec,
		script:       script,
		start:        sim.Clock.Now(),
		statusPeriod: statusPeriod,
		lg:           lg,
	}
}

func (r *runner) elapsed() time.Duration {
	return r.sim.Clock.Now().Sub(r.start)
}

func (r *runner) tick() {
	for r.next < len(r.script) && r.script[r.next].At <= r.elapsed() {
		r.apply(r.script[r.next])
		r.next++
	}

	r.ctrl.Run()

	if r.mission != nil && r.ctrl.VerifyCommand(*r.mission) {
		r.lg.Info("mission item complete", slog.Int("index", int(r.mission.Index)))
		r.mission = nil
	}

	r.sim.Step()

	if r.ctrl.LimitCheck() {
		r.lg.Warn("guided limit breached; holding position", slog.Any("limit", r.ctrl.Snapshot().Limit))
		r.ctrl.LimitClear()
		r.ctrl.SetVelocity(r3.Vector{}, guided.YawRequest{}, true)
	}

	if r.rec != nil && r.statusPeriod > 0 {
		if now := r.sim.Clock.Now(); now.Sub(r.lastStatus) >= r.statusPeriod {
			r.rec.PostStatus(r.ctrl.Snapshot())
			r.lastStatus = now
		}
	}
}

func (r *runner) apply(step Step) {
	lg := r.lg.With(slog.Duration("at", step.At))

	switch {
	case step.Command != nil:
		if err := link.Dispatch(r.ctrl, *step.Command); err != nil {
			lg.Warn("scripted command rejected", slog.String("kind", step.Command.Kind), slog.Any("error", err))
		} else {
			lg.Info("scripted command", slog.String("kind", step.Command.Kind))
		}

	case step.Mission != nil:
		cmd, err := step.Mission.Command()
		if err != nil {
			lg.Warn("invalid mission item", slog.Any("error", err))
			return
		}
		if r.ctrl.StartCommand(cmd) {
			r.mission = &cmd
			lg.Info("mission item started", slog.Any("cmd", cmd))
		}

	case step.Pilot != nil:
		if step.Pilot.YawRate != nil {
			r.sim.Pilot.SetYawRate(*step.Pilot.YawRate)
		}
		if step.Pilot.RadioFailsafe != nil {
			r.sim.Pilot.SetRadioFailsafe(*step.Pilot.RadioFailsafe)
		}
		lg.Info("pilot input", slog.Float64("yaw_rate", r.sim.Pilot.YawRate()),
			slog.Bool("radio_failsafe", r.sim.Pilot.RadioFailsafe()))

	case step.Terrain != nil:
		t := step.Terrain
		r.sim.Terrain.SetMissing(t.North, t.East, t.Missing)
		lg.Info("terrain data changed", slog.Float64("north", t.North), slog.Float64("east", t.East),
			slog.Bool("missing", t.Missing))
	}
}

// Run ticks until ctx is canceled or, if duration is non-zero, until that
// much simulation time has passed. With realtime set, ticks are paced to
// the wall clock.
func (r *runner) Run(ctx context.Context, dt, duration time.Duration, realtime bool) error {
	var pace <-chan time.Time
	if realtime {
		ticker := time.NewTicker(dt)
		defer ticker.Stop()
		pace = ticker.C
	}

	for {
		if duration > 0 && r.elapsed() >= duration {
			r.lg.Info("simulation finished", slog.Duration("elapsed", r.elapsed()), slog.Any("sim", r.sim))
			return nil
		}

		if pace != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-pace:
			}
		} else if ctx.Err() != nil {
			return nil
		}

		r.tick()
	}
}
