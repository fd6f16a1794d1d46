// telemetry/event.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package telemetry

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/mmp/guided/guided"

	"github.com/golang/geo/r3"
)

type EventType int

const (
	GuidedTargetEvent EventType = iota
	NavigationErrorEvent
	MissionItemReachedEvent
	StatusEvent
	CommandEvent
	NumEventTypes
)

func (t EventType) String() string {
	return []string{"GuidedTarget", "NavigationError", "MissionItemReached", "Status", "Command"}[t]
}

// Event is a single telemetry record. Which fields are set depends on the
// Type.
type Event struct {
	Type EventType
	Time time.Time

	Mode   string    `msgpack:",omitempty"` // GuidedTargetEvent, StatusEvent
	Target r3.Vector
	Vel    r3.Vector

	NavError     string `msgpack:",omitempty"` // NavigationErrorEvent
	MissionIndex uint16 `msgpack:",omitempty"` // MissionItemReachedEvent

	// CommandEvent
	CommandID   string `msgpack:",omitempty"`
	CommandKind string `msgpack:",omitempty"`
	Error       string `msgpack:",omitempty"`
}

func (e Event) String() string {
	switch e.Type {
	case GuidedTargetEvent, StatusEvent:
		return fmt.Sprintf("%s: mode %s target %v vel %v", e.Type, e.Mode, e.Target, e.Vel)
	case NavigationErrorEvent:
		return fmt.Sprintf("%s: %s", e.Type, e.NavError)
	case MissionItemReachedEvent:
		return fmt.Sprintf("%s: #%d", e.Type, e.MissionIndex)
	default:
		return fmt.Sprintf("%s: %s %s %q", e.Type, e.CommandKind, e.CommandID, e.Error)
	}
}

func (e Event) LogValue() slog.Value {
	attrs := []slog.Attr{slog.String("type", e.Type.String()), slog.Time("time", e.Time)}
	if e.Mode != "" {
		attrs = append(attrs, slog.String("mode", e.Mode), slog.Any("target", e.Target), slog.Any("vel", e.Vel))
	}
	if e.NavError != "" {
		attrs = append(attrs, slog.String("nav_error", e.NavError))
	}
	if e.Type == MissionItemReachedEvent {
		attrs = append(attrs, slog.Int("mission_index", int(e.MissionIndex)))
	}
	if e.CommandKind != "" {
		attrs = append(attrs, slog.String("command_kind", e.CommandKind), slog.String("command_id", e.CommandID))
	}
	if e.Error != "" {
		attrs = append(attrs, slog.String("error", e.Error))
	}
	return slog.GroupValue(attrs...)
}

// Recorder posts the guided controller's records to an EventStream.
type Recorder struct {
	stream *EventStream
	now    func() time.Time
}

var _ guided.Recorder = (*Recorder)(nil)

// NewRecorder returns a Recorder that timestamps events with now; nil
// selects time.Now.
func NewRecorder(stream *EventStream, now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{stream: stream, now: now}
}

func (r *Recorder) GuidedTarget(mode guided.SubMode, target, vel r3.Vector) {
	r.stream.Post(Event{Type: GuidedTargetEvent, Time: r.now(), Mode: mode.String(), Target: target, Vel: vel})
}

func (r *Recorder) NavigationError(code guided.NavErrorCode) {
	r.stream.Post(Event{Type: NavigationErrorEvent, Time: r.now(), NavError: code.String()})
}

func (r *Recorder) MissionItemReached(index uint16) {
	r.stream.Post(Event{Type: MissionItemReachedEvent, Time: r.now(), MissionIndex: index})
}

// PostStatus posts a snapshot of the controller's state.
func (r *Recorder) PostStatus(s guided.Status) {
	r.stream.Post(Event{Type: StatusEvent, Time: r.now(), Mode: s.Mode.String(), Target: s.PosTarget, Vel: s.VelTarget})
}
