// link/link_test.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package link

import (
	"errors"
	gomath "math"
	"strings"
	"testing"
	"time"

	"github.com/mmp/guided/guided"
	"github.com/mmp/guided/math"
	"github.com/mmp/guided/telemetry"

	"github.com/golang/geo/r3"
	"github.com/google/uuid"
)

type call struct {
	name     string
	pos, vel r3.Vector
	yaw      guided.YawRequest
	loc      guided.Location
	alt      guided.AltitudeCommand
	f        []float64
	flag     bool
	q        math.Quaternion
	timeout  time.Duration
}

type fakeController struct {
	calls []call
	err   error
}

func (f *fakeController) SetDestination(dest r3.Vector, yaw guided.YawRequest, terrainAlt bool) error {
	f.calls = append(f.calls, call{name: "SetDestination", pos: dest, yaw: yaw, flag: terrainAlt})
	return f.err
}

func (f *fakeController) SetDestinationLocation(loc guided.Location, yaw guided.YawRequest) error {
	f.calls = append(f.calls, call{name: "SetDestinationLocation", loc: loc, yaw: yaw})
	return f.err
}

func (f *fakeController) SetVelocity(vel r3.Vector, yaw guided.YawRequest, logRequest bool) {
	f.calls = append(f.calls, call{name: "SetVelocity", vel: vel, yaw: yaw, flag: logRequest})
}

func (f *fakeController) SetDestinationPosVel(dest, vel r3.Vector, yaw guided.YawRequest) error {
	f.calls = append(f.calls, call{name: "SetDestinationPosVel", pos: dest, vel: vel, yaw: yaw})
	return f.err
}

func (f *fakeController) SetAngle(q math.Quaternion, alt guided.AltitudeCommand, useYawRate bool, yawRate float64) {
	f.calls = append(f.calls, call{name: "SetAngle", q: q, alt: alt, flag: useYawRate, f: []float64{yawRate}})
}

func (f *fakeController) SetROI(roi r3.Vector) {
	f.calls = append(f.calls, call{name: "SetROI", pos: roi})
}

func (f *fakeController) DoUserTakeoffStart(altCm float64) error {
	f.calls = append(f.calls, call{name: "DoUserTakeoffStart", f: []float64{altCm}})
	return f.err
}

func (f *fakeController) CircleStart(center guided.Location, radiusM float64) {
	f.calls = append(f.calls, call{name: "CircleStart", loc: center, f: []float64{radiusM}})
}

func (f *fakeController) LimitSet(timeout time.Duration, altMin, altMax, horizMax float64) {
	f.calls = append(f.calls, call{name: "LimitSet", timeout: timeout, f: []float64{altMin, altMax, horizMax}})
}

func (f *fakeController) LimitClear()          { f.calls = append(f.calls, call{name: "LimitClear"}) }
func (f *fakeController) LimitInitTimeAndPos() { f.calls = append(f.calls, call{name: "LimitInitTimeAndPos"}) }

func TestDecode(t *testing.T) {
	for _, test := range []struct {
		payload string
		err     string
	}{
		{`{"kind":"destination","position":[100,200,300]}`, ""},
		{`{"kind":"destination"}`, `"position": missing field`},
		{`{"kind":"location","location":{"lat":1,"lng":2,"alt":3,"frame":"above-terrain"}}`, ""},
		{`{"kind":"location","location":{"lat":1,"lng":2,"alt":3,"frame":"sideways"}}`, "unknown altitude frame"},
		{`{"kind":"circle"}`, `"location": missing field`},
		{`{"kind":"velocity","velocity":[1,2,3]}`, ""},
		{`{"kind":"posvel","position":[1,2,3]}`, `"velocity": missing field`},
		{`{"kind":"angle","attitude":[1,0,0,0],"thrust":0.5,"climb_rate_cms":10}`, "only one of"},
		{`{"kind":"angle","attitude":[1,0,0,0]}`, ""},
		{`{"kind":"takeoff"}`, `"alt_cm": missing field`},
		{`{"kind":"takeoff","alt_cm":1000}`, ""},
		{`{"kind":"limit","timeout_ms":-5}`, "negative limit"},
		{`{"kind":"limit_clear"}`, ""},
		{`{"kind":"land"}`, "unknown command kind"},
		{`{"kind":`, "could not unmarshal"},
		{`{"kind":"takeoff","alt_cm":1000,"alt_cm":2000}`, "duplicate keys in command: alt_cm"},
	} {
		_, err := Decode([]byte(test.payload))
		if test.err == "" && err != nil {
			t.Errorf("%s: unexpected error %v", test.payload, err)
		} else if test.err != "" && (err == nil || !strings.Contains(err.Error(), test.err)) {
			t.Errorf("%s: expected error containing %q, got %v", test.payload, test.err, err)
		}
	}
}

func TestDecodeAssignsID(t *testing.T) {
	cmd, err := Decode([]byte(`{"kind":"limit_start"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if _, err := uuid.Parse(cmd.ID); err != nil {
		t.Errorf("Expected generated uuid, got %q", cmd.ID)
	}

	cmd, _ = Decode([]byte(`{"id":"abc","kind":"limit_start"}`))
	if cmd.ID != "abc" {
		t.Errorf("Expected id \"abc\", got %q", cmd.ID)
	}
}

func TestDecodeUnknownKind(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"flip"}`))
	if !errors.Is(err, ErrUnknownKind) {
		t.Errorf("Expected ErrUnknownKind, got %v", err)
	}
}

func TestDispatch(t *testing.T) {
	for _, test := range []struct {
		payload string
		expect  call
	}{
		{`{"kind":"destination","position":[100,200,300],"terrain_alt":true,"yaw_cd":9000,"relative_yaw":true}`,
			call{name: "SetDestination", pos: r3.Vector{X: 100, Y: 200, Z: 300}, flag: true,
				yaw: guided.YawRequest{UseYaw: true, Yaw: 9000, Relative: true}}},
		{`{"kind":"location","location":{"lat":10,"lng":20,"alt":30,"frame":"absolute"}}`,
			call{name: "SetDestinationLocation", loc: guided.Location{Lat: 10, Lng: 20, Alt: 30, Frame: guided.AltAbsolute}}},
		{`{"kind":"velocity","velocity":[1,2,3],"yaw_rate_cds":100,"quiet":true}`,
			call{name: "SetVelocity", vel: r3.Vector{X: 1, Y: 2, Z: 3},
				yaw: guided.YawRequest{UseYawRate: true, YawRate: 100}}},
		{`{"kind":"posvel","position":[1,2,3],"velocity":[4,5,6]}`,
			call{name: "SetDestinationPosVel", pos: r3.Vector{X: 1, Y: 2, Z: 3}, vel: r3.Vector{X: 4, Y: 5, Z: 6}}},
		{`{"kind":"roi","position":[7,8,9]}`, call{name: "SetROI", pos: r3.Vector{X: 7, Y: 8, Z: 9}}},
		{`{"kind":"limit_clear"}`, call{name: "LimitClear"}},
		{`{"kind":"limit_start"}`, call{name: "LimitInitTimeAndPos"}},
	} {
		var fc fakeController
		cmd, err := Decode([]byte(test.payload))
		if err != nil {
			t.Fatalf("%s: %v", test.payload, err)
		}
		if err := Dispatch(&fc, cmd); err != nil {
			t.Errorf("%s: unexpected error %v", test.payload, err)
		}
		if len(fc.calls) != 1 {
			t.Fatalf("%s: expected 1 call, got %d", test.payload, len(fc.calls))
		}
		got := fc.calls[0]
		if got.name != test.expect.name || got.pos != test.expect.pos || got.vel != test.expect.vel ||
			got.yaw != test.expect.yaw || got.loc != test.expect.loc || got.flag != test.expect.flag {
			t.Errorf("%s: expected %+v, got %+v", test.payload, test.expect, got)
		}
	}
}

func TestDispatchAngle(t *testing.T) {
	var fc fakeController
	cmd, _ := Decode([]byte(`{"kind":"angle","attitude":[1,0,0,0],"thrust":0.4,"body_yaw_rate_rads":0.5}`))
	if err := Dispatch(&fc, cmd); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	c := fc.calls[0]
	if c.q != (math.Quaternion{W: 1}) || !c.alt.IsThrust() || c.alt.Thrust() != 0.4 || !c.flag || c.f[0] != 0.5 {
		t.Errorf("Unexpected angle call %+v", c)
	}

	fc.calls = nil
	cmd, _ = Decode([]byte(`{"kind":"angle","attitude":[1,0,0,0]}`))
	Dispatch(&fc, cmd)
	if c := fc.calls[0]; c.alt.IsThrust() || c.alt.ClimbRate() != 0 || c.flag {
		t.Errorf("Expected zero climb rate without yaw rate, got %+v", c)
	}
}

func TestDispatchLimitsTakeoffCircle(t *testing.T) {
	var fc fakeController
	for _, p := range []string{
		`{"kind":"limit","timeout_ms":2500,"alt_min_cm":100,"alt_max_cm":5000,"horiz_max_cm":1000}`,
		`{"kind":"takeoff","alt_cm":1500}`,
		`{"kind":"circle","location":{"lat":5,"lng":6,"alt":700,"frame":"above-terrain"},"radius_m":12}`,
	} {
		cmd, err := Decode([]byte(p))
		if err != nil {
			t.Fatalf("%s: %v", p, err)
		}
		if err := Dispatch(&fc, cmd); err != nil {
			t.Errorf("%s: %v", p, err)
		}
	}

	if c := fc.calls[0]; c.timeout != 2500*time.Millisecond || c.f[0] != 100 || c.f[1] != 5000 || c.f[2] != 1000 {
		t.Errorf("Unexpected limit call %+v", c)
	}
	if c := fc.calls[1]; c.name != "DoUserTakeoffStart" || c.f[0] != 1500 {
		t.Errorf("Unexpected takeoff call %+v", c)
	}
	if c := fc.calls[2]; c.loc != (guided.Location{Lat: 5, Lng: 6, Alt: 700, Frame: guided.AltAboveTerrain}) || c.f[0] != 12 {
		t.Errorf("Unexpected circle call %+v", c)
	}
}

func TestDispatchError(t *testing.T) {
	fc := fakeController{err: guided.ErrDestinationRejected}
	cmd, _ := Decode([]byte(`{"kind":"destination","position":[0,0,0]}`))
	err := Dispatch(&fc, cmd)
	if !errors.Is(err, guided.ErrDestinationRejected) {
		t.Errorf("Expected ErrDestinationRejected, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), "destination: ") {
		t.Errorf("Expected error prefixed with the command kind, got %q", err.Error())
	}
}

func TestCheckTakeoffAltitude(t *testing.T) {
	for _, test := range []struct {
		alt float64
		err error
	}{
		{1500, nil},
		{gomath.MaxInt32, nil},
		{0, ErrMissingField},
		{-100, ErrMissingField},
		{gomath.MaxInt32 + 1, guided.ErrInvalidAltitude},
		{gomath.Inf(1), guided.ErrInvalidAltitude},
		{gomath.NaN(), guided.ErrInvalidAltitude},
	} {
		err := Command{Kind: KindTakeoff, Alt: test.alt}.Check()
		if test.err == nil && err != nil {
			t.Errorf("%v: unexpected error %v", test.alt, err)
		} else if test.err != nil && !errors.Is(err, test.err) {
			t.Errorf("%v: expected %v, got %v", test.alt, test.err, err)
		}
	}
}

func TestDispatchUnchecked(t *testing.T) {
	for _, cmd := range []Command{
		{Kind: KindAngle},
		{Kind: KindLocation},
		{Kind: KindCircle, Radius: 10},
		{Kind: KindPosVel, Position: &[3]float64{1, 2, 3}},
		{Kind: KindTakeoff},
	} {
		var fc fakeController
		if err := Dispatch(&fc, cmd); !errors.Is(err, ErrMissingField) {
			t.Errorf("%s: expected ErrMissingField, got %v", cmd.Kind, err)
		}
		if len(fc.calls) != 0 {
			t.Errorf("%s: expected no controller calls, got %+v", cmd.Kind, fc.calls)
		}
	}

	var fc fakeController
	if err := Dispatch(&fc, Command{Kind: KindTakeoff, Alt: gomath.Inf(1)}); !errors.Is(err, guided.ErrInvalidAltitude) {
		t.Errorf("Expected ErrInvalidAltitude, got %v", err)
	}
}

func TestHandle(t *testing.T) {
	es := telemetry.NewEventStream(nil)
	defer es.Destroy()
	sub := es.Subscribe()

	fc := fakeController{err: guided.ErrDestinationUnreachable}
	l := New(Config{DeviceID: "test"}, nil, &fc, es, nil)

	ack := l.Handle([]byte(`{"id":"1","kind":"velocity","velocity":[1,0,0]}`))
	if !ack.OK || ack.ID != "1" || ack.Kind != "velocity" {
		t.Errorf("Unexpected ack %+v", ack)
	}

	ack = l.Handle([]byte(`{"id":"2","kind":"destination","position":[1,0,0]}`))
	if ack.OK || !strings.Contains(ack.Error, guided.ErrDestinationUnreachable.Error()) {
		t.Errorf("Expected failed ack, got %+v", ack)
	}

	ack = l.Handle([]byte(`not json`))
	if ack.OK {
		t.Errorf("Expected failed ack for bad payload")
	}

	ev := sub.Get()
	if len(ev) != 3 {
		t.Fatalf("Expected 3 command events, got %d", len(ev))
	}
	if ev[0].Type != telemetry.CommandEvent || ev[0].CommandID != "1" || ev[0].Error != "" {
		t.Errorf("Unexpected event %v", ev[0])
	}
	if ev[1].CommandID != "2" || ev[1].Error == "" {
		t.Errorf("Unexpected event %v", ev[1])
	}
}

func TestTelemetryMessage(t *testing.T) {
	now := time.Date(2025, 1, 2, 3, 4, 5, 6000, time.UTC)
	m := TelemetryMessageFromEvent(telemetry.Event{
		Type:   telemetry.GuidedTargetEvent,
		Time:   now,
		Mode:   "PositionVelocity",
		Target: r3.Vector{X: 1, Y: 2, Z: 3},
		Vel:    r3.Vector{X: 4},
	})
	if m.Timestamp != now.UnixMicro() || m.Type != "GuidedTarget" || m.Target != [3]float64{1, 2, 3} ||
		m.Velocity != [3]float64{4, 0, 0} {
		t.Errorf("Unexpected message %+v", m)
	}
	if _, err := uuid.Parse(m.MessageID); err != nil {
		t.Errorf("Expected uuid message id, got %q", m.MessageID)
	}
}
