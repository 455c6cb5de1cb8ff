package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/myhome-bridge/internal/audit"
	"github.com/nerrad567/myhome-bridge/internal/bridges/myhome"
	"github.com/nerrad567/myhome-bridge/internal/device"
	"github.com/nerrad567/myhome-bridge/internal/infrastructure/config"
	"github.com/nerrad567/myhome-bridge/internal/infrastructure/database"
	"github.com/nerrad567/myhome-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
	"github.com/nerrad567/myhome-bridge/migrations"
)

const testMAC = "00:03:50:12:34:56"

// refusingDialer fails every dial with err.
type refusingDialer struct{ err error }

func (d refusingDialer) Dial(context.Context, openwebnet.SessionKind) (openwebnet.Session, error) {
	return nil, d.err
}

// staticDiscoverer returns a fixed result.
type staticDiscoverer struct {
	gateways []myhome.Identity
	err      error
}

func (d staticDiscoverer) Discover(context.Context) ([]myhome.Identity, error) {
	return d.gateways, d.err
}

type staticHealth struct{ msg myhome.HealthMessage }

func (h staticHealth) Snapshot() myhome.HealthMessage { return h.msg }

type fixture struct {
	srv     *Server
	router  http.Handler
	gateway *myhome.Gateway
	devices *device.Manager
	journal *audit.SQLiteRepository
}

// testServer wires a real gateway (never started), a device manager with
// two devices and a sqlite journal.
func testServer(t *testing.T, mutate func(*Deps)) *fixture {
	t.Helper()

	gw, err := myhome.New(myhome.Config{
		Identity: myhome.Identity{Host: "192.168.1.35", Port: 20000, MAC: testMAC, Model: "F454", Password: "12345"},
		Registry: myhome.NewRegistry(),
		Dialer:   refusingDialer{err: fmt.Errorf("dialing: %w", openwebnet.ErrAuthRequired)},
		Workers:  2,
	})
	if err != nil {
		t.Fatalf("myhome.New() error: %v", err)
	}

	mgr := device.NewManager(testMAC, gw, gw.Registry(), device.Sinks{})
	if err := mgr.Load([]device.Config{
		{Platform: device.PlatformLight, ID: "kitchen", Name: "Kitchen", Where: "11", Dimmable: true},
		{Platform: device.PlatformLight, ID: "ground", Name: "Ground floor", Where: "#5"},
		{Platform: device.PlatformCover, ID: "shutter", Name: "Shutter", Where: "41"},
	}); err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	db, err := database.Open(context.Background(), database.Config{Path: filepath.Join(t.TempDir(), "api.db")})
	if err != nil {
		t.Fatalf("database.Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	journal := audit.NewSQLiteRepository(db.DB)

	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	deps := Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS:       config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Logger:   log,
		Gateway:  gw,
		Devices:  mgr,
		Journal:  journal,
		Gatherer: prometheus.NewRegistry(),
		Version:  "test",
	}
	if mutate != nil {
		mutate(&deps)
	}

	srv, err := New(deps)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return &fixture{srv: srv, router: srv.buildRouter(), gateway: gw, devices: mgr, journal: journal}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

func queued(gw *myhome.Gateway) []openwebnet.Frame {
	var frames []openwebnet.Frame
	for _, task := range gw.Queue().Snapshot() {
		frames = append(frames, task.Message)
	}
	return frames
}

// ─── Construction ──────────────────────────────────────────────────

func TestNew_RequiresDependencies(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error"}, "test")
	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{}},
		{"no gateway", Deps{Logger: log}},
		{"no devices", Deps{Logger: log, Gateway: &myhome.Gateway{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

// ─── Health ────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	f := testServer(t, nil)

	w := f.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp map[string]any
	decodeBody(t, w, &resp)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("resp = %v", resp)
	}
	if _, ok := resp["gateway"]; ok {
		t.Error("gateway section present without a health source")
	}
}

func TestHealth_WithGatewaySnapshot(t *testing.T) {
	f := testServer(t, func(d *Deps) {
		d.Health = staticHealth{myhome.HealthMessage{Gateway: testMAC, Status: myhome.HealthDegraded, Reason: "MQTT disconnected"}}
	})

	var resp struct {
		Gateway myhome.HealthMessage `json:"gateway"`
	}
	decodeBody(t, f.do(t, http.MethodGet, "/api/v1/health", ""), &resp)
	if resp.Gateway.Status != myhome.HealthDegraded || resp.Gateway.Reason != "MQTT disconnected" {
		t.Errorf("gateway = %+v", resp.Gateway)
	}
}

// ─── Middleware ────────────────────────────────────────────────────

func TestRequestID(t *testing.T) {
	f := testServer(t, nil)

	w := f.do(t, http.MethodGet, "/api/v1/health", "")
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("expected X-Request-ID header to be set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-123")
	w = httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "client-123" {
		t.Errorf("X-Request-ID = %q, want client-123", got)
	}
}

func TestCORS(t *testing.T) {
	f := testServer(t, func(d *Deps) { d.Config.CORS.AllowedOrigins = []string{"http://panel.local"} })

	tests := []struct {
		origin string
		want   string
	}{
		{"http://panel.local", "http://panel.local"},
		{"http://evil.example", ""},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodOptions, "/api/v1/devices", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()
			f.router.ServeHTTP(w, req)

			if w.Code != http.StatusNoContent {
				t.Errorf("preflight status = %d, want 204", w.Code)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin"); got != tt.want {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNotFound(t *testing.T) {
	f := testServer(t, nil)
	if w := f.do(t, http.MethodGet, "/api/v1/nope", ""); w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

// ─── Gateway ───────────────────────────────────────────────────────

func TestGetGateway(t *testing.T) {
	f := testServer(t, nil)
	f.gateway.Send("*1*1*11##")

	w := f.do(t, http.MethodGet, "/api/v1/gateway", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if strings.Contains(w.Body.String(), "12345") {
		t.Error("response leaks the gateway password")
	}

	var resp GatewayResponse
	decodeBody(t, w, &resp)
	if resp.MAC != testMAC || resp.Host != "192.168.1.35" || resp.Model != "F454" {
		t.Errorf("identity = %+v", resp.Identity)
	}
	if resp.Listener != "disconnected" {
		t.Errorf("Listener = %q, want disconnected", resp.Listener)
	}
	if resp.QueueDepth != 1 || resp.Workers != 2 {
		t.Errorf("QueueDepth = %d Workers = %d", resp.QueueDepth, resp.Workers)
	}
	if len(resp.Services) != 2 {
		t.Errorf("Services = %v", resp.Services)
	}
}

func TestTestGateway(t *testing.T) {
	f := testServer(t, nil)

	w := f.do(t, http.MethodPost, "/api/v1/gateway/test", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var result myhome.TestResult
	decodeBody(t, w, &result)
	if result.Success || result.Reason != myhome.ReasonPasswordRequired {
		t.Errorf("result = %+v, want password_required", result)
	}
}

func TestCallService(t *testing.T) {
	tests := []struct {
		name       string
		service    string
		body       string
		wantStatus int
		wantFrames int
	}{
		{"send message", "send_message", `{"message":"*1*1*11##"}`, http.StatusAccepted, 1},
		{"invalid frame", "send_message", `{"message":"hello"}`, http.StatusBadRequest, 0},
		{"invalid json", "send_message", `{`, http.StatusBadRequest, 0},
		{"sync time", "sync_time", `{"timezone":"UTC"}`, http.StatusAccepted, 1},
		{"sync time without body", "sync_time", "", http.StatusAccepted, 1},
		{"bad timezone", "sync_time", `{"timezone":"Mars/Olympus"}`, http.StatusBadRequest, 0},
		{"unknown service", "reboot", "", http.StatusNotFound, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testServer(t, nil)

			w := f.do(t, http.MethodPost, "/api/v1/gateway/services/"+tt.service, tt.body)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			if got := len(queued(f.gateway)); got != tt.wantFrames {
				t.Errorf("queued %d frames, want %d", got, tt.wantFrames)
			}
		})
	}
}

func TestCallService_SendMessageFrame(t *testing.T) {
	f := testServer(t, nil)
	f.do(t, http.MethodPost, "/api/v1/gateway/services/send_message", `{"message":"*2*1*41##"}`)

	frames := queued(f.gateway)
	if len(frames) != 1 || frames[0] != "*2*1*41##" {
		t.Errorf("queued = %v", frames)
	}
}

// ─── Devices ───────────────────────────────────────────────────────

func TestListDevices(t *testing.T) {
	f := testServer(t, nil)

	tests := []struct {
		query      string
		wantStatus int
		wantCount  int
	}{
		{"", http.StatusOK, 3},
		{"?platform=light", http.StatusOK, 2},
		{"?platform=cover", http.StatusOK, 1},
		{"?platform=climate", http.StatusOK, 0},
		{"?platform=toaster", http.StatusBadRequest, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := f.do(t, http.MethodGet, "/api/v1/devices"+tt.query, "")
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			var resp struct {
				Count int `json:"count"`
			}
			decodeBody(t, w, &resp)
			if resp.Count != tt.wantCount {
				t.Errorf("count = %d, want %d", resp.Count, tt.wantCount)
			}
		})
	}
}

func TestGetDevice(t *testing.T) {
	f := testServer(t, nil)

	entity, ok := f.devices.Get("1-#5")
	if !ok {
		t.Fatal("group light not loaded")
	}
	msg, err := openwebnet.Parse("*1*1*#5##")
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	entity.HandleEvent(msg)

	w := f.do(t, http.MethodGet, "/api/v1/devices/1-_5", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var info struct {
		Config struct {
			Name string `json:"name"`
		} `json:"config"`
		State map[string]any `json:"state"`
	}
	decodeBody(t, w, &info)
	if info.Config.Name != "Ground floor" {
		t.Errorf("name = %q", info.Config.Name)
	}
	if info.State["on"] != true {
		t.Errorf("state = %v, want on", info.State)
	}

	if w := f.do(t, http.MethodGet, "/api/v1/devices/1-99", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing device status = %d, want 404", w.Code)
	}
}

func TestDeviceCommand(t *testing.T) {
	tests := []struct {
		name       string
		key        string
		body       string
		wantStatus int
		wantFrames []openwebnet.Frame
	}{
		{"turn on", "1-11", `{"action":"turn_on"}`, http.StatusAccepted,
			[]openwebnet.Frame{"*1*1*11##", "*#1*11*1##"}},
		{"brightness", "1-11", `{"action":"set_brightness","brightness":40}`, http.StatusAccepted,
			[]openwebnet.Frame{"*#1*11*#1*140*0##"}},
		{"group off", "1-_5", `{"action":"turn_off"}`, http.StatusAccepted,
			[]openwebnet.Frame{"*1*0*#5##"}},
		{"close cover", "2-41", `{"action":"close"}`, http.StatusAccepted,
			[]openwebnet.Frame{"*2*2*41##"}},
		{"missing action", "1-11", `{}`, http.StatusBadRequest, nil},
		{"bad json", "1-11", `{`, http.StatusBadRequest, nil},
		{"unsupported", "2-41", `{"action":"set_temperature","temperature":21}`, http.StatusBadRequest, nil},
		{"unknown device", "1-99", `{"action":"turn_on"}`, http.StatusNotFound, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := testServer(t, nil)

			w := f.do(t, http.MethodPost, "/api/v1/devices/"+tt.key+"/command", tt.body)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
			got := queued(f.gateway)
			if len(got) != len(tt.wantFrames) {
				t.Fatalf("queued = %v, want %v", got, tt.wantFrames)
			}
			for i := range got {
				if got[i] != tt.wantFrames[i] {
					t.Errorf("frame %d = %q, want %q", i, got[i], tt.wantFrames[i])
				}
			}
		})
	}
}

// ─── Events ────────────────────────────────────────────────────────

func TestListEvents(t *testing.T) {
	f := testServer(t, nil)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries := []audit.Entry{
		{Kind: audit.KindEvent, Name: "myhome_general_light_event", Gateway: testMAC, Message: "*1*1*0##", CreatedAt: base},
		{Kind: audit.KindState, Name: "light", Gateway: testMAC, Key: "1-#5", Message: "*1*1*#5##", CreatedAt: base.Add(time.Minute)},
		{Kind: audit.KindState, Name: "cover", Gateway: testMAC, Key: "2-41", Message: "*2*1*41##", CreatedAt: base.Add(2 * time.Minute)},
	}
	for i := range entries {
		if err := f.journal.Create(ctx, &entries[i]); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	tests := []struct {
		query     string
		wantTotal int
		wantFirst string
	}{
		{"", 3, "cover"},
		{"?kind=event", 1, "myhome_general_light_event"},
		{"?key=1-_5", 1, "light"},
		{"?since=2026-03-01T12:01:00Z", 2, "cover"},
		{"?limit=1&offset=1", 3, "light"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := f.do(t, http.MethodGet, "/api/v1/events"+tt.query, "")
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", w.Code)
			}
			var result audit.ListResult
			decodeBody(t, w, &result)
			if result.Total != tt.wantTotal {
				t.Errorf("total = %d, want %d", result.Total, tt.wantTotal)
			}
			if len(result.Entries) == 0 || result.Entries[0].Name != tt.wantFirst {
				t.Errorf("entries = %+v, want first %q", result.Entries, tt.wantFirst)
			}
		})
	}
}

func TestListEvents_BadQuery(t *testing.T) {
	f := testServer(t, nil)
	for _, q := range []string{"?kind=other", "?since=yesterday"} {
		if w := f.do(t, http.MethodGet, "/api/v1/events"+q, ""); w.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, w.Code)
		}
	}
}

func TestOptionalComponentsUnavailable(t *testing.T) {
	f := testServer(t, func(d *Deps) { d.Journal = nil })

	for _, path := range []string{"/api/v1/events", "/api/v1/discovery"} {
		if w := f.do(t, http.MethodGet, path, ""); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s: status = %d, want 503", path, w.Code)
		}
	}
}

// ─── Discovery ─────────────────────────────────────────────────────

func TestDiscovery(t *testing.T) {
	found := []myhome.Identity{{Host: "192.168.1.40", Port: 20000, MAC: "00:03:50:aa:bb:cc", Model: "MH202"}}
	f := testServer(t, func(d *Deps) { d.Discovery = staticDiscoverer{gateways: found} })

	var resp struct {
		Gateways []myhome.Identity `json:"gateways"`
		Count    int               `json:"count"`
	}
	decodeBody(t, f.do(t, http.MethodGet, "/api/v1/discovery", ""), &resp)
	if resp.Count != 1 || resp.Gateways[0].MAC != "00:03:50:aa:bb:cc" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestDiscovery_Failure(t *testing.T) {
	f := testServer(t, func(d *Deps) { d.Discovery = staticDiscoverer{err: errors.New("no route")} })
	if w := f.do(t, http.MethodGet, "/api/v1/discovery", ""); w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}

// ─── Metrics ───────────────────────────────────────────────────────

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	myhome.NewMetrics(reg)
	f := testServer(t, func(d *Deps) { d.Gatherer = reg })

	w := f.do(t, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "myhome_queue_depth") {
		t.Errorf("metrics output missing myhome_queue_depth:\n%s", w.Body.String())
	}
}

// ─── WebSocket Hub ─────────────────────────────────────────────────

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	log := logging.New(config.LoggingConfig{Level: "error"}, "test")
	return NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, log)
}

func newHubClient(hub *Hub, channels ...string) *WSClient {
	c := &WSClient{hub: hub, send: make(chan []byte, 8), subscriptions: make(map[string]struct{})}
	for _, ch := range channels {
		c.subscriptions[ch] = struct{}{}
	}
	hub.Register(c)
	return c
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := newTestHub(t)
	events := newHubClient(hub, ChannelBusEvent)
	states := newHubClient(hub, ChannelDeviceState)

	hub.EventBus(testMAC).Fire("myhome_cen_event", map[string]any{"object": 21})

	select {
	case data := <-events.send:
		var msg struct {
			EventType string           `json:"event_type"`
			Payload   myhome.HostEvent `json:"payload"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if msg.EventType != ChannelBusEvent || msg.Payload.Name != "myhome_cen_event" || msg.Payload.Gateway != testMAC {
			t.Errorf("msg = %+v", msg)
		}
	default:
		t.Fatal("subscribed client got nothing")
	}

	select {
	case data := <-states.send:
		t.Errorf("unsubscribed client got %s", data)
	default:
	}

	hub.PublishState(device.StateMessage{Gateway: testMAC, Key: "1-11", Platform: device.PlatformLight})
	if len(states.send) != 1 {
		t.Errorf("state client buffered %d messages, want 1", len(states.send))
	}
}

func TestHub_UnregisterAndCount(t *testing.T) {
	hub := newTestHub(t)
	c := newHubClient(hub)
	newHubClient(hub)
	if hub.ClientCount() != 2 {
		t.Fatalf("ClientCount() = %d, want 2", hub.ClientCount())
	}

	hub.Unregister(c)
	hub.Unregister(c) // second call must not double-close
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", hub.ClientCount())
	}
}

// ─── Server lifecycle and WebSocket ────────────────────────────────

func startServer(t *testing.T) (*fixture, string) {
	t.Helper()
	f := testServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	if err := f.srv.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { f.srv.Close() })
	return f, f.srv.Addr()
}

func dialWS(t *testing.T, addr string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+addr+"/api/v1/ws", nil)
	if err != nil {
		t.Fatalf("websocket dial failed: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	//nolint:errcheck // test deadline
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	return ws
}

func TestServer_StartAndClose(t *testing.T) {
	f, addr := startServer(t)

	resp, err := http.Get("http://" + addr + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := f.srv.Close(); err != nil {
		t.Errorf("Close() error: %v", err)
	}
	if err := f.srv.Close(); err != nil {
		t.Errorf("second Close() error: %v", err)
	}
	if _, err := http.Get("http://" + addr + "/api/v1/health"); err == nil {
		t.Error("server still answering after Close")
	}
}

func TestServer_StartPortInUse(t *testing.T) {
	_, addr := startServer(t)

	var port int
	if _, err := fmt.Sscanf(addr[strings.LastIndex(addr, ":")+1:], "%d", &port); err != nil {
		t.Fatalf("parsing port from %q: %v", addr, err)
	}
	other := testServer(t, func(d *Deps) { d.Config.Port = port })
	if err := other.srv.Start(context.Background()); err == nil {
		other.srv.Close()
		t.Error("Start() on a used port: error = nil")
	}
}

func TestServer_ServeUntilCancelled(t *testing.T) {
	f, addr := startServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- f.srv.Serve(ctx) }()
	cancel()

	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve() = %v, want nil on cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
	if _, err := http.Get("http://" + addr + "/api/v1/health"); err == nil {
		t.Error("server still answering after Serve returned")
	}
}

func TestServer_ServeWithoutStart(t *testing.T) {
	f := testServer(t, nil)
	if err := f.srv.Serve(context.Background()); err == nil {
		t.Error("Serve() before Start: error = nil")
	}
}

func TestWebSocket_SubscribeAndReceive(t *testing.T) {
	f, addr := startServer(t)
	ws := dialWS(t, addr)

	if err := ws.WriteJSON(WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{ChannelDeviceState}},
	}); err != nil {
		t.Fatalf("write subscribe: %v", err)
	}
	var resp WSMessage
	if err := ws.ReadJSON(&resp); err != nil {
		t.Fatalf("read subscribe response: %v", err)
	}
	if resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Fatalf("response = %+v", resp)
	}

	f.srv.Hub().PublishState(device.StateMessage{Gateway: testMAC, Key: "1-11", State: map[string]any{"on": true}})

	var event WSMessage
	if err := ws.ReadJSON(&event); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if event.Type != WSTypeEvent || event.EventType != ChannelDeviceState {
		t.Errorf("event = %+v", event)
	}
}

func TestWebSocket_Messages(t *testing.T) {
	tests := []struct {
		name     string
		send     string
		wantType string
	}{
		{"ping", `{"type":"ping","id":"p1"}`, WSTypePong},
		{"unsubscribe", `{"type":"unsubscribe","payload":{"channels":["bus.event"]}}`, WSTypeResponse},
		{"invalid json", `not json`, WSTypeError},
		{"unknown type", `{"type":"dance"}`, WSTypeError},
	}
	_, addr := startServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := dialWS(t, addr)
			if err := ws.WriteMessage(websocket.TextMessage, []byte(tt.send)); err != nil {
				t.Fatalf("write: %v", err)
			}
			var resp WSMessage
			if err := ws.ReadJSON(&resp); err != nil {
				t.Fatalf("read: %v", err)
			}
			if resp.Type != tt.wantType {
				t.Errorf("type = %q, want %q", resp.Type, tt.wantType)
			}
		})
	}
}
