// util/sync.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package util

import (
	"log/slog"
	gomath "math"
	"runtime"
	"sync"
	"time"

	"github.com/mmp/guided/log"

	"github.com/shirou/gopsutil/v3/cpu"
)

///////////////////////////////////////////////////////////////////////////
// LoggingMutex

var heldMutexesMutex sync.Mutex
var heldMutexes map[*LoggingMutex]interface{} = make(map[*LoggingMutex]interface{})

// LoggingMutex is a sync.Mutex that records where it was acquired and
// complains (loudly) about long waits and long holds. The guided
// controller's critical sections are expected to be far shorter than a
// control period, so anything measured in milliseconds is worth a
// warning.
type LoggingMutex struct {
	sync.Mutex
	acq      time.Time
	acqStack []log.StackFrame

	// Waits or holds longer than this are logged as warnings; zero
	// selects DefaultMutexWarnThreshold.
	WarnThreshold time.Duration
}

const DefaultMutexWarnThreshold = 5 * time.Millisecond

func (l *LoggingMutex) threshold() time.Duration {
	t := DefaultMutexWarnThreshold
	if l.WarnThreshold > 0 {
		t = l.WarnThreshold
	}
	if log.RaceEnabled {
		// Everything is much slower with the race detector.
		t *= 10
	}
	return t
}

func (l *LoggingMutex) Lock(lg *log.Logger) {
	if l.Mutex.TryLock() {
		// Fast path: no contention, so don't bother with timing.
		l.acquired(lg, 0)
		return
	}

	tryTime := time.Now()

	// Lock with timeout.
	locked := make(chan struct{}, 1)
	go func() {
		l.Mutex.Lock()
		locked <- struct{}{}
	}()

	select {
	case <-locked:

	case <-time.After(10 * time.Second):
		lg.Error("unable to acquire mutex after 10 seconds", slog.Any("mutex", l),
			slog.Any("held_mutexes", heldMutexes))

		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		if usage, err := cpu.Percent(time.Second, false); err == nil && len(usage) > 0 {
			lg.Errorf("CPU: %d%% alloc: %dMB total alloc: %dMB sys mem: %dMB goroutines: %d",
				int(gomath.Round(usage[0])), m.Alloc/(1024*1024), m.TotalAlloc/(1024*1024), m.Sys/(1024*1024),
				runtime.NumGoroutine())
		}

		<-locked
	}

	l.acquired(lg, time.Since(tryTime))
}

func (l *LoggingMutex) acquired(lg *log.Logger, wait time.Duration) {
	heldMutexesMutex.Lock()
	heldMutexes[l] = nil
	heldMutexesMutex.Unlock()

	l.acq = time.Now()
	if lg != nil && lg.Enabled(nil, slog.LevelDebug) {
		l.acqStack = log.Callstack(l.acqStack)
	}
	if wait > l.threshold() {
		lg.Warn("long wait to acquire mutex", slog.Any("mutex", l), slog.Duration("wait", wait))
	}
}

func (l *LoggingMutex) Unlock(lg *log.Logger) {
	heldMutexesMutex.Lock()
	// Though it may seem like we could unlock this sooner, holding it
	// until this function returns ensures that if we end up doing logging
	// in the code below, other mutexes aren't unlocked while we're trying
	// to log the held ones.
	defer heldMutexesMutex.Unlock()

	if _, ok := heldMutexes[l]; !ok {
		lg.Error("mutex not held", slog.Any("held_mutexes", heldMutexes))
	}
	delete(heldMutexes, l)

	if d := time.Since(l.acq); d > l.threshold() {
		lg.Warn("mutex held too long", slog.Any("mutex", l), slog.Duration("held", d))
	}

	l.acq = time.Time{}
	l.acqStack = l.acqStack[:0]
	l.Mutex.Unlock()
}

func (l *LoggingMutex) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Time("acq", l.acq),
		slog.Duration("held", time.Since(l.acq)),
		slog.Any("acq_stack", l.acqStack))
}
