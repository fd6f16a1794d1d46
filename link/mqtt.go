// link/mqtt.go
// Copyright(c) 2025 vice contributors, licensed under the GNU Public License, Version 3.
// SPDX: GPL-3.0-only

package link

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mmp/guided/log"
	"github.com/mmp/guided/telemetry"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

const (
	qos    = 1
	retain = false
)

type Config struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	DeviceID string `yaml:"device_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// TelemetryPeriod is how often telemetry events are forwarded to the
	// broker.
	TelemetryPeriod time.Duration `yaml:"telemetry_period"`
}

func (c Config) commandTopic() string   { return fmt.Sprintf("/devices/%s/commands/guided", c.DeviceID) }
func (c Config) ackTopic() string       { return fmt.Sprintf("/devices/%s/events/guided-ack", c.DeviceID) }
func (c Config) telemetryTopic() string { return fmt.Sprintf("/devices/%s/events/telemetry", c.DeviceID) }

// Ack reports the outcome of a command back to its sender.
type Ack struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Link feeds commands received over MQTT to the controller and forwards
// telemetry events to the broker.
type Link struct {
	cfg    Config
	client mqtt.Client
	ctrl   Controller
	stream *telemetry.EventStream
	lg     *log.Logger
}

func New(cfg Config, client mqtt.Client, ctrl Controller, stream *telemetry.EventStream, lg *log.Logger) *Link {
	if cfg.TelemetryPeriod == 0 {
		cfg.TelemetryPeriod = 100 * time.Millisecond
	}
	return &Link{cfg: cfg, client: client, ctrl: ctrl, stream: stream, lg: lg}
}

// Connect returns a client connected to the configured broker.
func Connect(ctx context.Context, cfg Config, lg *log.Logger) (mqtt.Client, error) {
	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "guided-" + cfg.DeviceID
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetAutoReconnect(true).
		SetProtocolVersion(4) // MQTT 3.1.1
	client := mqtt.NewClient(opts)

	for {
		lg.Info("connecting to MQTT broker", slog.String("broker", cfg.Broker), slog.String("client_id", clientID))
		tok := client.Connect()
		if tok.WaitTimeout(5 * time.Second) {
			if err := tok.Error(); err != nil {
				return nil, errors.Wrap(err, cfg.Broker)
			}
			return client, nil
		}

		lg.Warn("MQTT connection timeout", slog.String("broker", cfg.Broker))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
	}
}

// Handle decodes and dispatches one command payload.
func (l *Link) Handle(payload []byte) Ack {
	cmd, err := Decode(payload)
	if err == nil {
		err = Dispatch(l.ctrl, cmd)
	}

	ack := Ack{ID: cmd.ID, Kind: cmd.Kind, OK: err == nil, Timestamp: time.Now().UTC()}
	ev := telemetry.Event{Type: telemetry.CommandEvent, Time: ack.Timestamp, CommandID: cmd.ID, CommandKind: cmd.Kind}
	if err != nil {
		ack.Error = err.Error()
		ev.Error = ack.Error
		l.lg.Warn("guided command failed", slog.String("id", cmd.ID), slog.String("kind", cmd.Kind),
			slog.Any("error", err))
	} else {
		l.lg.Debug("guided command", slog.String("id", cmd.ID), slog.String("kind", cmd.Kind))
	}
	if l.stream != nil {
		l.stream.Post(ev)
	}
	return ack
}

// Run subscribes to the command topic and forwards telemetry until ctx is
// canceled.
func (l *Link) Run(ctx context.Context) error {
	tok := l.client.Subscribe(l.cfg.commandTopic(), qos, func(client mqtt.Client, msg mqtt.Message) {
		ack := l.Handle(msg.Payload())
		b, err := json.Marshal(ack)
		if err != nil {
			l.lg.Errorf("%v: unable to marshal ack", err)
			return
		}
		client.Publish(l.cfg.ackTopic(), qos, retain, b)
	})
	if tok.Wait(); tok.Error() != nil {
		return errors.Wrap(tok.Error(), "subscribe "+l.cfg.commandTopic())
	}
	l.lg.Info("subscribed to guided commands", slog.String("topic", l.cfg.commandTopic()))

	defer func() {
		l.client.Unsubscribe(l.cfg.commandTopic()).WaitTimeout(time.Second)
	}()

	if l.stream == nil {
		<-ctx.Done()
		return nil
	}

	sub := l.stream.Subscribe()
	defer sub.Unsubscribe()

	ticker := time.NewTicker(l.cfg.TelemetryPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for _, ev := range sub.Get() {
				if ev.Type == telemetry.CommandEvent {
					// Already acknowledged.
					continue
				}
				b, err := json.Marshal(TelemetryMessageFromEvent(ev))
				if err != nil {
					return errors.Wrap(err, "telemetry")
				}
				l.client.Publish(l.cfg.telemetryTopic(), qos, retain, b)
			}
		}
	}
}

// TelemetryMessage is the JSON form of a telemetry event.
type TelemetryMessage struct {
	MessageID    string     `json:"message_id"`
	Timestamp    int64      `json:"timestamp"` // microseconds
	Type         string     `json:"type"`
	Mode         string     `json:"mode,omitempty"`
	Target       [3]float64 `json:"target"`
	Velocity     [3]float64 `json:"velocity"`
	NavError     string     `json:"nav_error,omitempty"`
	MissionIndex uint16     `json:"mission_index,omitempty"`
}

func TelemetryMessageFromEvent(ev telemetry.Event) TelemetryMessage {
	return TelemetryMessage{
		MessageID:    uuid.New().String(),
		Timestamp:    ev.Time.UnixMicro(),
		Type:         ev.Type.String(),
		Mode:         ev.Mode,
		Target:       [3]float64{ev.Target.X, ev.Target.Y, ev.Target.Z},
		Velocity:     [3]float64{ev.Vel.X, ev.Vel.Y, ev.Vel.Z},
		NavError:     ev.NavError,
		MissionIndex: ev.MissionIndex,
	}
}
