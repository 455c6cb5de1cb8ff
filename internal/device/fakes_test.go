package device

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

const testMAC = "00:03:50:12:34:56"

// recordingSender captures enqueued frames.
type recordingSender struct {
	mu       sync.Mutex
	sent     []openwebnet.Frame
	requests []openwebnet.Frame
}

func (s *recordingSender) Send(f openwebnet.Frame) {
	s.mu.Lock()
	s.sent = append(s.sent, f)
	s.mu.Unlock()
}

func (s *recordingSender) SendStatusRequest(f openwebnet.Frame) {
	s.mu.Lock()
	s.requests = append(s.requests, f)
	s.mu.Unlock()
}

func (s *recordingSender) Sent() []openwebnet.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]openwebnet.Frame(nil), s.sent...)
}

func (s *recordingSender) Requests() []openwebnet.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]openwebnet.Frame(nil), s.requests...)
}

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// mockPublisher captures MQTT publishes.
type mockPublisher struct {
	mu       sync.Mutex
	messages []publishedMessage
	err      error
}

func (p *mockPublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, publishedMessage{topic: topic, payload: payload, qos: qos, retained: retained})
	return nil
}

func (p *mockPublisher) Messages() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishedMessage(nil), p.messages...)
}

type energyPoint struct {
	key    string
	power  *int
	energy *int
}

// mockMetrics captures InfluxDB writes.
type mockMetrics struct {
	mu     sync.Mutex
	states []map[string]any
	energy []energyPoint
}

func (m *mockMetrics) WriteDeviceState(_, _, _ string, fields map[string]any) {
	m.mu.Lock()
	m.states = append(m.states, fields)
	m.mu.Unlock()
}

func (m *mockMetrics) WriteEnergyMetric(_, key string, power, energy *int) {
	m.mu.Lock()
	m.energy = append(m.energy, energyPoint{key: key, power: power, energy: energy})
	m.mu.Unlock()
}

func (m *mockMetrics) Energy() []energyPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]energyPoint(nil), m.energy...)
}

type recordedState struct {
	key, platform, message string
}

// mockRecorder captures journal writes.
type mockRecorder struct {
	mu      sync.Mutex
	records []recordedState
}

func (r *mockRecorder) RecordState(key, platform, message string, _ map[string]any) {
	r.mu.Lock()
	r.records = append(r.records, recordedState{key: key, platform: platform, message: message})
	r.mu.Unlock()
}

func (r *mockRecorder) Records() []recordedState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedState(nil), r.records...)
}

// fakeClock is a settable time source.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 12, 14, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func mustParse(t *testing.T, raw string) openwebnet.Message {
	t.Helper()
	msg, err := openwebnet.Parse(raw)
	require.NoError(t, err, raw)
	return msg
}

// mustConfig normalises cfg for tests.
func mustConfig(t *testing.T, cfg Config) Config {
	t.Helper()
	require.NoError(t, Normalize(&cfg))
	return cfg
}

func decodeState(t *testing.T, payload []byte) StateMessage {
	t.Helper()
	var msg StateMessage
	require.NoError(t, json.Unmarshal(payload, &msg))
	return msg
}

func ptr[T any](v T) *T { return &v }
