package myhome

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/myhome-bridge/internal/infrastructure/mqtt"
)

// EventBus receives host events fired by the listener.
// Payloads are flat maps of primitive values.
type EventBus interface {
	Fire(name string, payload map[string]any)
}

// EventBusFunc adapts a function to EventBus.
type EventBusFunc func(name string, payload map[string]any)

// Fire calls f.
func (f EventBusFunc) Fire(name string, payload map[string]any) { f(name, payload) }

// Buses fans one event out to several buses in order.
type Buses []EventBus

// Fire forwards the event to every non-nil bus.
func (b Buses) Fire(name string, payload map[string]any) {
	for _, bus := range b {
		if bus != nil {
			bus.Fire(name, payload)
		}
	}
}

// Publisher is the MQTT surface used by the bridge.
// This is satisfied by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// HostEvent is the MQTT and WebSocket representation of a fired event.
type HostEvent struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Gateway   string         `json:"gateway"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data"`
}

// NewHostEvent stamps an event with a fresh ID and the current time.
func NewHostEvent(gateway, name string, data map[string]any) HostEvent {
	return HostEvent{
		ID:        uuid.NewString(),
		Name:      name,
		Gateway:   gateway,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
}

// MQTTEventBus publishes host events on myhome/event/<name>.
type MQTTEventBus struct {
	pub     Publisher
	gateway string
	qos     byte

	logger   Logger
	loggerMu sync.RWMutex
}

// NewMQTTEventBus creates an event publisher for one gateway.
func NewMQTTEventBus(pub Publisher, gateway string, qos byte) *MQTTEventBus {
	return &MQTTEventBus{pub: pub, gateway: gateway, qos: qos}
}

// SetLogger sets the logger for publish failures.
func (b *MQTTEventBus) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

// Fire publishes the event. Failures are logged; events are not retried.
func (b *MQTTEventBus) Fire(name string, payload map[string]any) {
	data, err := json.Marshal(NewHostEvent(b.gateway, name, payload))
	if err != nil {
		b.logWarn("event marshal failed", "event", name, "error", err)
		return
	}
	if !b.pub.IsConnected() {
		b.logWarn("event dropped, MQTT disconnected", "event", name)
		return
	}
	if err := b.pub.Publish(mqtt.Topics{}.Event(name), data, b.qos, false); err != nil {
		b.logWarn("event publish failed", "event", name, "error", err)
	}
}

func (b *MQTTEventBus) logWarn(msg string, args ...any) {
	b.loggerMu.RLock()
	l := b.logger
	b.loggerMu.RUnlock()
	if l != nil {
		l.Warn(msg, args...)
	}
}
