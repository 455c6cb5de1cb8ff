package myhome

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/myhome-bridge/internal/infrastructure/mqtt"
)

// HealthStatus represents the operational status of a gateway bridge.
type HealthStatus string

const (
	// HealthHealthy indicates the event session is open and MQTT is connected.
	HealthHealthy HealthStatus = "healthy"

	// HealthDegraded indicates the bridge is running with a session or MQTT problem.
	HealthDegraded HealthStatus = "degraded"

	// HealthUnhealthy indicates the gateway rejected our credentials.
	HealthUnhealthy HealthStatus = "unhealthy"

	// HealthStarting indicates the bridge is starting up.
	HealthStarting HealthStatus = "starting"

	// HealthStopping indicates the bridge is shutting down.
	HealthStopping HealthStatus = "stopping"
)

// HealthMessage is published on myhome/health/<mac>.
// QoS: 1, Retained: Yes
type HealthMessage struct {
	Gateway       string       `json:"gateway"`
	Timestamp     time.Time    `json:"timestamp"`
	Status        HealthStatus `json:"status"`
	Version       string       `json:"version,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`

	// Listener is the event listener state.
	Listener string `json:"listener,omitempty"`

	QueueDepth     int    `json:"queue_depth"`
	DevicesManaged int    `json:"devices_managed"`
	Statistics     *Stats `json:"statistics,omitempty"`

	// Reason explains the status (especially for offline/degraded).
	Reason string `json:"reason,omitempty"`
}

// GatewayStatus is the read-only gateway view used by the health reporter.
// *Gateway implements it.
type GatewayStatus interface {
	MAC() string
	ListenerState() ListenerState
	QueueDepth() int
	DeviceCount() int
	Stats() Stats
	AuthError() error
}

// Telemetry keeps a history of the periodic health reports.
// *influxdb.Client implements it.
type Telemetry interface {
	WriteGatewayHealth(gateway string, healthy bool, fields map[string]any)
}

// HealthReporter publishes gateway health at a fixed interval.
type HealthReporter struct {
	gateway   GatewayStatus
	publisher Publisher
	telemetry Telemetry
	version   string
	interval  time.Duration
	startTime time.Time

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	logger   Logger
	loggerMu sync.RWMutex
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	Gateway   GatewayStatus
	Publisher Publisher
	Version   string

	// Telemetry, if set, records every periodic report.
	Telemetry Telemetry

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration
}

// NewHealthReporter creates a reporter. Call Run to begin publishing.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &HealthReporter{
		gateway:   cfg.Gateway,
		publisher: cfg.Publisher,
		telemetry: cfg.Telemetry,
		version:   cfg.Version,
		interval:  interval,
		startTime: time.Now(),
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// Run publishes health periodically and blocks until ctx is cancelled or
// Stop is called. It always returns nil so it can run as an errgroup member.
func (h *HealthReporter) Run(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	default:
	}
	h.wg.Add(1)
	h.reportLoop(ctx)
	return nil
}

// Stop ends reporting and publishes a final "stopping" status.
// Safe to call multiple times.
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		//nolint:errcheck // best-effort during shutdown
		h.publishStatus(HealthStopping, "")
	})
}

// PublishStarting publishes a "starting" status.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current status immediately and records it
// with the telemetry sink.
func (h *HealthReporter) PublishNow() error {
	msg := h.Snapshot()
	h.record(msg)
	return h.publish(msg)
}

func (h *HealthReporter) record(msg HealthMessage) {
	if h.telemetry == nil {
		return
	}
	fields := map[string]any{
		"queue_depth":     msg.QueueDepth,
		"devices_managed": msg.DevicesManaged,
		"uptime_seconds":  msg.UptimeSeconds,
	}
	if st := msg.Statistics; st != nil {
		fields["frames_received"] = st.FramesReceived
		fields["frames_sent"] = st.FramesSent
		fields["send_failures"] = st.SendFailures
		fields["queue_dropped"] = st.QueueDropped
		fields["reconnects"] = st.Reconnects
	}
	h.telemetry.WriteGatewayHealth(msg.Gateway, msg.Status == HealthHealthy, fields)
}

func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if err := h.gateway.AuthError(); err != nil {
		return HealthUnhealthy, err.Error()
	}
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}
	if state := h.gateway.ListenerState(); state != StateListening {
		return HealthDegraded, "event session " + state.String()
	}
	return HealthHealthy, ""
}

// Snapshot returns the current health without publishing it.
func (h *HealthReporter) Snapshot() HealthMessage {
	status, reason := h.determineStatus()
	return h.message(status, reason)
}

func (h *HealthReporter) message(status HealthStatus, reason string) HealthMessage {
	stats := h.gateway.Stats()
	return HealthMessage{
		Gateway:        h.gateway.MAC(),
		Timestamp:      time.Now().UTC(),
		Status:         status,
		Version:        h.version,
		UptimeSeconds:  int64(time.Since(h.startTime).Seconds()),
		Listener:       h.gateway.ListenerState().String(),
		QueueDepth:     h.gateway.QueueDepth(),
		DevicesManaged: h.gateway.DeviceCount(),
		Statistics:     &stats,
		Reason:         reason,
	}
}

func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	return h.publish(h.message(status, reason))
}

func (h *HealthReporter) publish(msg HealthMessage) error {
	if h.publisher == nil {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return h.publisher.Publish(mqtt.Topics{}.Health(msg.Gateway), payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
