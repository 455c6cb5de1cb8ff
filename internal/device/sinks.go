package device

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/myhome-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// Sender enqueues frames for the gateway's command sessions.
// *myhome.Gateway satisfies it.
type Sender interface {
	Send(frame openwebnet.Frame)
	SendStatusRequest(frame openwebnet.Frame)
}

// Publisher publishes MQTT messages. *mqtt.Client satisfies it.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MetricsWriter stores numeric state history. *influxdb.Client satisfies it.
type MetricsWriter interface {
	WriteDeviceState(gateway, key, platform string, fields map[string]any)
	WriteEnergyMetric(gateway, key string, powerWatts, energyWh *int)
}

// StateRecorder journals state updates. *audit.Journal satisfies it.
type StateRecorder interface {
	RecordState(key, platform, message string, state map[string]any)
}

// Sinks are the destinations of entity state updates. Nil members are
// skipped.
type Sinks struct {
	Publisher Publisher
	Metrics   MetricsWriter
	Recorder  StateRecorder
	// OnState is called after every update, e.g. to feed a WebSocket hub.
	OnState func(StateMessage)
}

// stateQoS is the QoS of retained state messages.
const stateQoS = 1

// Logger defines the logging interface used by the device package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// output fans state updates out to the sinks. One output is shared by all
// entities of a Manager.
type output struct {
	gateway string
	sinks   Sinks
	now     func() time.Time

	mu     sync.RWMutex
	logger Logger
}

func newOutput(gateway string, sinks Sinks) *output {
	return &output{gateway: gateway, sinks: sinks, now: time.Now, logger: noopLogger{}}
}

func (o *output) setLogger(l Logger) {
	if l == nil {
		l = noopLogger{}
	}
	o.mu.Lock()
	o.logger = l
	o.mu.Unlock()
}

func (o *output) log() Logger {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.logger
}

// publish delivers one state update. Sink failures are logged; they never
// reach the listener.
func (o *output) publish(msg StateMessage) {
	if o.sinks.Publisher != nil {
		payload, err := json.Marshal(msg)
		if err != nil {
			o.log().Error("marshalling device state", "key", msg.Key, "error", err)
		} else if err := o.sinks.Publisher.Publish(mqtt.Topics{}.State(msg.Gateway, msg.Key), payload, stateQoS, true); err != nil {
			o.log().Warn("publishing device state failed", "key", msg.Key, "error", err)
		}
	}
	if o.sinks.Metrics != nil {
		o.sinks.Metrics.WriteDeviceState(msg.Gateway, msg.Key, string(msg.Platform), msg.State)
	}
	if o.sinks.Recorder != nil {
		o.sinks.Recorder.RecordState(msg.Key, string(msg.Platform), msg.Message, msg.State)
	}
	if o.sinks.OnState != nil {
		o.sinks.OnState(msg)
	}
}
