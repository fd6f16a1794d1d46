// telemetry/eventstream.go
// Copyright(c) 2022-2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package telemetry

import (
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"github.com/mmp/guided/log"
)

const (
	// Period at which the stream is compacted and its readers checked.
	housekeepingPeriod = 5 * time.Second
	// A reader that hasn't called Get for this long while events are
	// arriving is reported.
	readerStallTimeout = 10 * time.Second
	// A backlog longer than this is reported once per compaction.
	backlogWarnLength = 10000
)

// EventStream fans controller events out to its readers: the Recorder
// posts target, navigation error and status events from the control loop;
// the telemetry log Writer and the link publisher each read them through
// their own Subscription. Post is an append under a short lock.
type EventStream struct {
	mu            sync.Mutex
	events        []Event
	subscriptions map[*Subscription]struct{}
	lastPost      time.Time
	warnedBacklog bool
	done          chan struct{}
	lg            *log.Logger
}

// Subscription is a single reader's position in an EventStream.
type Subscription struct {
	stream *EventStream
	// Index into stream.events of the first event not yet returned by Get.
	offset int
	// Caller of Subscribe, for stall reports.
	source      string
	lastGet     time.Time
	warnedStall bool
}

func (s *Subscription) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("offset", s.offset),
		slog.String("source", s.source),
		slog.Time("last_get", s.lastGet))
}

// NewEventStream returns a stream along with a goroutine that compacts it
// until Destroy is called.
func NewEventStream(lg *log.Logger) *EventStream {
	es := &EventStream{
		subscriptions: make(map[*Subscription]struct{}),
		lastPost:      time.Now(),
		done:          make(chan struct{}),
		lg:            lg,
	}
	go es.housekeep()
	return es
}

// Subscribe adds a reader; its first Get returns the events posted after
// this call.
func (e *EventStream) Subscribe() *Subscription {
	_, fn, line, _ := runtime.Caller(1)

	e.mu.Lock()
	defer e.mu.Unlock()

	sub := &Subscription{
		stream:  e,
		offset:  len(e.events),
		source:  fmt.Sprintf("%s:%d", fn, line),
		lastGet: time.Now(),
	}
	e.subscriptions[sub] = struct{}{}
	return sub
}

func (e *EventStream) housekeep() {
	tick := time.NewTicker(housekeepingPeriod)
	defer tick.Stop()

	for {
		select {
		case <-e.done:
			return
		case now := <-tick.C:
			e.mu.Lock()
			e.compact()
			e.checkReaders(now)
			e.mu.Unlock()
		}
	}
}

// checkReaders reports a large backlog and readers that have stopped
// calling Get. Each is reported once until it recovers. e.mu must be held.
func (e *EventStream) checkReaders(now time.Time) {
	if len(e.events) > backlogWarnLength && !e.warnedBacklog {
		e.lg.Warn("telemetry backlog", slog.Int("events", len(e.events)),
			slog.Int("subscriptions", len(e.subscriptions)))
		e.warnedBacklog = true
	}

	// An idle vehicle posts nothing, so quiet readers are fine then.
	if now.Sub(e.lastPost) >= housekeepingPeriod {
		return
	}
	for sub := range e.subscriptions {
		if d := now.Sub(sub.lastGet); d > readerStallTimeout && !sub.warnedStall {
			e.lg.Warn("telemetry reader stalled", slog.Duration("since_get", d), slog.Any("subscription", sub))
			sub.warnedStall = true
		}
	}
}

// Unsubscribe removes the reader; events it hasn't read are discarded once
// the other readers have them.
func (s *Subscription) Unsubscribe() {
	s.stream.mu.Lock()
	defer s.stream.mu.Unlock()

	if _, ok := s.stream.subscriptions[s]; !ok {
		s.stream.lg.Errorf("unsubscribe of unknown telemetry subscription: %+v", s)
	}
	delete(s.stream.subscriptions, s)
}

// Post appends an event for all current readers. Events posted with no
// readers are dropped.
func (e *EventStream) Post(event Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.subscriptions) > 0 {
		e.lastPost = time.Now()
		e.events = append(e.events, event)
	}
}

// Get returns the events posted since the reader's previous Get, oldest
// first.
func (s *Subscription) Get() []Event {
	s.stream.mu.Lock()
	defer s.stream.mu.Unlock()

	if _, ok := s.stream.subscriptions[s]; !ok {
		s.stream.lg.Errorf("read from unknown telemetry subscription: %+v", s)
		return nil
	}

	events := slices.Clone(s.stream.events[s.offset:])
	s.offset = len(s.stream.events)
	s.lastGet = time.Now()
	s.warnedStall = false

	return events
}

// Destroy stops the housekeeping goroutine and drops all readers. It may
// be called more than once.
func (e *EventStream) Destroy() {
	e.mu.Lock()
	defer e.mu.Unlock()

	select {
	case <-e.done:
	default:
		close(e.done)
	}
	clear(e.subscriptions)
}

// compact drops the events every reader has seen once they make up more
// than half of the buffer. e.mu must be held.
func (e *EventStream) compact() {
	read := len(e.events)
	for sub := range e.subscriptions {
		read = min(read, sub.offset)
	}
	if read <= cap(e.events)/2 {
		return
	}

	n := copy(e.events, e.events[read:])
	e.events = e.events[:n]
	for sub := range e.subscriptions {
		sub.offset -= read
	}
	e.warnedBacklog = false
}

func (e *EventStream) LogValue() slog.Value {
	e.mu.Lock()
	defer e.mu.Unlock()

	attrs := []slog.Attr{slog.Int("len", len(e.events)), slog.Int("cap", cap(e.events)),
		slog.Int("subscriptions", len(e.subscriptions))}
	if n := len(e.events); n > 0 {
		attrs = append(attrs, slog.Any("last", e.events[n-1]))
	}
	return slog.GroupValue(attrs...)
}
