package myhome

import (
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// Send results used as the "result" label of myhome_frames_sent_total.
const (
	sendOK      = "ok"
	sendNACK    = "nack"
	sendTimeout = "timeout"
	sendError   = "error"
)

// Metrics holds the Prometheus collectors for one gateway, plus atomic
// mirrors of the counters reported in health messages.
type Metrics struct {
	framesReceived *prometheus.CounterVec
	eventsFired    *prometheus.CounterVec
	framesSent     *prometheus.CounterVec
	queueDropped   *prometheus.CounterVec
	reconnects     *prometheus.CounterVec
	routingMisses  prometheus.Counter
	decodeErrors   prometheus.Counter
	handlerPanics  prometheus.Counter
	ignored        prometheus.Counter
	queueDepth     prometheus.Gauge
	listenerState  prometheus.Gauge

	received      atomic.Uint64
	fired         atomic.Uint64
	sent          atomic.Uint64
	sendFailures  atomic.Uint64
	dropped       atomic.Uint64
	reconnectsN   atomic.Uint64
	misses        atomic.Uint64
	decodeErrorsN atomic.Uint64
	panics        atomic.Uint64
}

// Stats is a point-in-time copy of the gateway counters.
type Stats struct {
	FramesReceived uint64 `json:"frames_received"`
	EventsFired    uint64 `json:"events_fired"`
	FramesSent     uint64 `json:"frames_sent"`
	SendFailures   uint64 `json:"send_failures"`
	QueueDropped   uint64 `json:"queue_dropped"`
	Reconnects     uint64 `json:"reconnects"`
	RoutingMisses  uint64 `json:"routing_misses"`
	DecodeErrors   uint64 `json:"decode_errors"`
	HandlerPanics  uint64 `json:"handler_panics"`
}

// NewMetrics creates the collectors and registers them with reg.
// A nil reg creates unregistered collectors, which is what tests use.
// Registering twice with the same registry panics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		framesReceived: f.NewCounterVec(prometheus.CounterOpts{
			Name: "myhome_frames_received_total",
			Help: "Frames received on the event session, by message family.",
		}, []string{"family"}),
		eventsFired: f.NewCounterVec(prometheus.CounterOpts{
			Name: "myhome_events_fired_total",
			Help: "Host events fired, by event name.",
		}, []string{"event"}),
		framesSent: f.NewCounterVec(prometheus.CounterOpts{
			Name: "myhome_frames_sent_total",
			Help: "Frames sent by dispatch workers, by result.",
		}, []string{"result"}),
		queueDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "myhome_queue_dropped_total",
			Help: "Tasks dropped by the queue depth cap, by kind.",
		}, []string{"kind"}),
		reconnects: f.NewCounterVec(prometheus.CounterOpts{
			Name: "myhome_reconnects_total",
			Help: "Session reconnect attempts, by session kind.",
		}, []string{"session"}),
		routingMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "myhome_routing_misses_total",
			Help: "Messages dropped because no handler is registered for their key.",
		}),
		decodeErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "myhome_decode_errors_total",
			Help: "Inbound frames that could not be decoded.",
		}),
		handlerPanics: f.NewCounter(prometheus.CounterOpts{
			Name: "myhome_handler_panics_total",
			Help: "Panics recovered while handling an inbound message.",
		}),
		ignored: f.NewCounter(prometheus.CounterOpts{
			Name: "myhome_translations_ignored_total",
			Help: "Translation echoes filtered by the listener.",
		}),
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "myhome_queue_depth",
			Help: "Tasks waiting in the outbound queue.",
		}),
		listenerState: f.NewGauge(prometheus.GaugeOpts{
			Name: "myhome_listener_state",
			Help: "Event listener state (0 disconnected, 1 connecting, 2 listening, 3 closing).",
		}),
	}
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Stats {
	return Stats{
		FramesReceived: m.received.Load(),
		EventsFired:    m.fired.Load(),
		FramesSent:     m.sent.Load(),
		SendFailures:   m.sendFailures.Load(),
		QueueDropped:   m.dropped.Load(),
		Reconnects:     m.reconnectsN.Load(),
		RoutingMisses:  m.misses.Load(),
		DecodeErrors:   m.decodeErrorsN.Load(),
		HandlerPanics:  m.panics.Load(),
	}
}

func (m *Metrics) frameReceived(msg openwebnet.Message) {
	m.received.Add(1)
	m.framesReceived.WithLabelValues(family(msg)).Inc()
}

func (m *Metrics) eventFired(name string) {
	m.fired.Add(1)
	m.eventsFired.WithLabelValues(name).Inc()
}

func (m *Metrics) frameSent(result string) {
	if result == sendOK {
		m.sent.Add(1)
	} else {
		m.sendFailures.Add(1)
	}
	m.framesSent.WithLabelValues(result).Inc()
}

func (m *Metrics) taskDropped(t Task) {
	m.dropped.Add(1)
	kind := "command"
	if t.StatusRequest {
		kind = "status"
	}
	m.queueDropped.WithLabelValues(kind).Inc()
}

func (m *Metrics) reconnect(kind openwebnet.SessionKind) {
	m.reconnectsN.Add(1)
	m.reconnects.WithLabelValues(kind.String()).Inc()
}

func (m *Metrics) routingMiss() {
	m.misses.Add(1)
	m.routingMisses.Inc()
}

func (m *Metrics) decodeError() {
	m.decodeErrorsN.Add(1)
	m.decodeErrors.Inc()
}

func (m *Metrics) handlerPanic() {
	m.panics.Add(1)
	m.handlerPanics.Inc()
}

func (m *Metrics) translationIgnored() { m.ignored.Inc() }

func (m *Metrics) setQueueDepth(n int) { m.queueDepth.Set(float64(n)) }

func (m *Metrics) setListenerState(s ListenerState) { m.listenerState.Set(float64(s)) }

// family returns a low-cardinality label for a message.
func family(msg openwebnet.Message) string {
	switch msg.(type) {
	case *openwebnet.LightingEvent:
		return "lighting"
	case *openwebnet.AutomationEvent:
		return "automation"
	case *openwebnet.HeatingEvent, *openwebnet.HeatingCommand:
		return "heating"
	case *openwebnet.EnergyEvent:
		return "energy"
	case *openwebnet.DryContactEvent:
		return "dry_contact"
	case *openwebnet.AuxEvent:
		return "aux"
	case *openwebnet.CENEvent:
		return "cen"
	case *openwebnet.CENPlusEvent:
		return "cen_plus"
	case *openwebnet.GatewayEvent:
		return "gateway"
	default:
		return "unknown"
	}
}
