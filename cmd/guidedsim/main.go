// cmd/guidedsim/main.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package main

// guidedsim flies the guided-mode controller against the kinematic vehicle
// simulation. Commands come from a script file, an MQTT broker, or both;
// controller events are written to a compressed telemetry log.

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mmp/guided/config"
	"github.com/mmp/guided/guided"
	"github.com/mmp/guided/link"
	"github.com/mmp/guided/log"
	"github.com/mmp/guided/sitl"
	"github.com/mmp/guided/telemetry"

	"github.com/goforj/godump"
	"golang.org/x/sync/errgroup"
)

var (
	configFile   = flag.String("config", "", "YAML configuration file")
	logLevel     = flag.String("loglevel", "", "logging level: debug, info, warn, error (overrides the config file)")
	logDir       = flag.String("logdir", "", "log file directory (overrides the config file)")
	scriptFile   = flag.String("script", "", "YAML file of timed commands to run")
	duration     = flag.Duration("duration", 0, "simulation time to run for; 0 runs until interrupted")
	realtime     = flag.Bool("realtime", true, "pace the simulation to the wall clock")
	dump         = flag.Bool("dump", false, "print the controller state at exit")
	dumpLog      = flag.String("dumplog", "", "print the events in the given telemetry log and exit")
	printConfig  = flag.Bool("printconfig", false, "print the configuration and exit")
	noAutoArming = flag.Bool("noarm", false, "don't arm the vehicle at startup")
)

func main() {
	flag.Parse()

	if *dumpLog != "" {
		if err := dumpTelemetryLog(*dumpLog); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", *dumpLog, err)
			os.Exit(1)
		}
		return
	}

	cfg := config.Default()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logDir != "" {
		cfg.Log.Dir = *logDir
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	if *printConfig {
		fmt.Print(cfg.String())
		return
	}

	lg := log.New(cfg.Log.Level, cfg.Log.Dir)
	defer lg.CatchAndReportCrash()

	var script Script
	if *scriptFile != "" {
		var err error
		if script, err = LoadScript(*scriptFile); err != nil {
			lg.Errorf("%v", err)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, script, lg); err != nil {
		lg.Errorf("%v", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, script Script, lg *log.Logger) error {
	dt := time.Second / time.Duration(cfg.Guided.LoopRate)
	sim := sitl.New(cfg.Sim, dt, time.Now(), lg)

	stream := telemetry.NewEventStream(lg)
	defer stream.Destroy()
	rec := telemetry.NewRecorder(stream, sim.Clock.Now)

	deps := sim.Deps()
	deps.Recorder = rec
	ctrl, err := guided.New(cfg.Guided, deps, lg)
	if err != nil {
		return err
	}

	if !ctrl.Init(false) {
		return fmt.Errorf("unable to enter guided mode")
	}
	if !*noAutoArming && ctrl.AllowsArming(true) {
		sim.Vehicle.Arm()
		lg.Info("vehicle armed")
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	if cfg.Telemetry.Path != "" {
		f, err := os.Create(cfg.Telemetry.Path)
		if err != nil {
			return err
		}
		defer f.Close()

		w, err := telemetry.NewWriter(f, stream, lg)
		if err != nil {
			return err
		}
		eg.Go(func() error {
			defer lg.CatchAndReportCrash()
			return w.Run(ctx, cfg.Telemetry.FlushPeriod)
		})
	}

	if cfg.Link.Enabled {
		eg.Go(func() error {
			defer lg.CatchAndReportCrash()

			client, err := link.Connect(ctx, cfg.Link.Config, lg)
			if err != nil {
				return err
			}
			defer client.Disconnect(250)

			return link.New(cfg.Link.Config, client, ctrl, stream, lg).Run(ctx)
		})
	}

	r := newRunner(sim, ctrl, rec, script, cfg.Telemetry.StatusPeriod, lg)
	eg.Go(func() error {
		defer lg.CatchAndReportCrash()
		// Everything else shuts down once the simulation is done.
		defer cancel()
		return r.Run(ctx, dt, *duration, *realtime)
	})

	err = eg.Wait()

	ctrl.Exit()
	lg.Info("guidedsim exiting", slog.Any("status", ctrl.Snapshot()))
	if *dump {
		godump.Dump(ctrl.Snapshot())
	}
	return err
}

func dumpTelemetryLog(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	events, err := telemetry.ReadLog(f)
	for _, ev := range events {
		godump.Dump(ev)
	}
	return err
}
