// Package bus carries the bridge's outward-facing events over NATS:
// operator notifications for reported failures, telemetry events, and an
// optional inbound command subject mirroring the editor vocabulary. Every
// method is nil-safe so deployments without a NATS server run unchanged.
package bus

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/robonet-io/armbridge/core/infra/logging"
)

const (
	subjectNotify = "armbridge.notify"
	subjectEvents = "armbridge.events"
)

var errEmptySubject = errors.New("empty subject")

// Notification is an operator-visible failure report (JSON on the wire).
type Notification struct {
	ID       string         `json:"id"`
	Category string         `json:"category"`
	Message  string         `json:"message"`
	Fields   map[string]any `json:"fields,omitempty"`
	At       time.Time      `json:"at"`
}

// Event is a telemetry record for dashboards and tooling.
type Event struct {
	ID     string         `json:"id"`
	Kind   string         `json:"kind"`
	Fields map[string]any `json:"fields,omitempty"`
	At     time.Time      `json:"at"`
}

// Announcer publishes bridge events on NATS.
type Announcer struct {
	nc *nats.Conn
}

// Connect dials NATS at the provided URL. An empty URL yields a disabled
// announcer whose methods are no-ops.
func Connect(url string) (*Announcer, error) {
	if url == "" {
		return nil, nil
	}
	opts := []nats.Option{
		nats.Name("armbridge"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logging.Warn("bus", "disconnected from NATS", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logging.Info("bus", "reconnected to NATS", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logging.Info("bus", "connection closed")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Announcer{nc: nc}, nil
}

// Close shuts down the underlying NATS connection.
func (a *Announcer) Close() {
	if a != nil && a.nc != nil {
		a.nc.Close()
	}
}

// Notify publishes an operator notification. Failures are logged, never
// propagated: a dead bus must not take down a command handler.
func (a *Announcer) Notify(category, message string, fields map[string]any) {
	if a == nil || a.nc == nil {
		return
	}
	n := Notification{
		ID:       uuid.NewString(),
		Category: category,
		Message:  message,
		Fields:   fields,
		At:       time.Now().UTC(),
	}
	if err := a.publish(subjectNotify, n); err != nil {
		logging.Error("bus", "notify publish failed", "category", category, "error", err)
	}
}

// Publish emits a telemetry event.
func (a *Announcer) Publish(kind string, fields map[string]any) {
	if a == nil || a.nc == nil {
		return
	}
	e := Event{
		ID:     uuid.NewString(),
		Kind:   kind,
		Fields: fields,
		At:     time.Now().UTC(),
	}
	if err := a.publish(subjectEvents, e); err != nil {
		logging.Error("bus", "event publish failed", "kind", kind, "error", err)
	}
}

func (a *Announcer) publish(subject string, payload any) error {
	if subject == "" {
		return errEmptySubject
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return a.nc.Publish(subject, data)
}

// SubscribeCommands attaches a handler to a subject carrying raw editor
// commands, one command string per message. Returns a drain func, or a
// no-op when the announcer is disabled.
func (a *Announcer) SubscribeCommands(subject string, handler func(string)) (func(), error) {
	if a == nil || a.nc == nil {
		return func() {}, nil
	}
	if subject == "" {
		return nil, errEmptySubject
	}
	if handler == nil {
		return nil, errors.New("nil handler")
	}
	sub, err := a.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(string(msg.Data))
	})
	if err != nil {
		return nil, err
	}
	return func() { _ = sub.Unsubscribe() }, nil
}

// IsConnected reports whether the announcer has a live NATS connection.
func (a *Announcer) IsConnected() bool {
	return a != nil && a.nc != nil && a.nc.IsConnected()
}
