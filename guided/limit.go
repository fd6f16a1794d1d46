// guided/limit.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package guided

import (
	"log/slog"
	"time"

	"github.com/mmp/guided/math"

	"github.com/golang/geo/r3"
)

// Limit bounds how long and how far the vehicle may operate under guided
// control when it was entered from a mission; zero values disable each
// check.
type Limit struct {
	Timeout  time.Duration
	AltMin   float64 // cm
	AltMax   float64 // cm
	HorizMax float64 // cm

	StartTime time.Time
	StartPos  r3.Vector
}

func (l Limit) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Duration("timeout", l.Timeout),
		slog.Float64("alt_min", l.AltMin),
		slog.Float64("alt_max", l.AltMax),
		slog.Float64("horiz_max", l.HorizMax),
		slog.Time("start_time", l.StartTime),
		slog.Any("start_pos", l.StartPos))
}

// Breached reports whether any configured limit is exceeded at the given
// time and position.
func (l Limit) Breached(now time.Time, pos r3.Vector) bool {
	if l.Timeout > 0 && now.Sub(l.StartTime) >= l.Timeout {
		return true
	}
	if !math.IsZero(l.AltMin) && pos.Z < l.AltMin {
		return true
	}
	if !math.IsZero(l.AltMax) && pos.Z > l.AltMax {
		return true
	}
	if l.HorizMax > 0 && math.HorizontalDistance(l.StartPos, pos) > l.HorizMax {
		return true
	}
	return false
}

// LimitClear disables all limits.
func (c *Controller) LimitClear() {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	c.limit.Timeout = 0
	c.limit.AltMin, c.limit.AltMax, c.limit.HorizMax = 0, 0, 0
}

// LimitSet sets the limits; a zero value disables the corresponding
// check.
func (c *Controller) LimitSet(timeout time.Duration, altMin, altMax, horizMax float64) {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	c.limit.Timeout = timeout
	c.limit.AltMin = altMin
	c.limit.AltMax = altMax
	c.limit.HorizMax = horizMax
	c.lg.Debug("guided limits set", slog.Any("limit", c.limit))
}

// LimitInitTimeAndPos records the current time and position as the
// reference for the timeout and horizontal limits.
func (c *Controller) LimitInitTimeAndPos() {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	c.limit.StartTime = c.now()
	c.limit.StartPos = c.deps.Estimator.Position()
}

// LimitCheck returns true if any limit has been breached.
func (c *Controller) LimitCheck() bool {
	c.mu.Lock(c.lg)
	defer c.mu.Unlock(c.lg)

	return c.limit.Breached(c.now(), c.deps.Estimator.Position())
}
