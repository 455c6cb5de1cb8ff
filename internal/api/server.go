package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/myhome-bridge/internal/audit"
	"github.com/nerrad567/myhome-bridge/internal/bridges/myhome"
	"github.com/nerrad567/myhome-bridge/internal/device"
	"github.com/nerrad567/myhome-bridge/internal/infrastructure/config"
	"github.com/nerrad567/myhome-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Gateway is the gateway surface served by the API.
// *myhome.Gateway implements it.
type Gateway interface {
	Identity() myhome.Identity
	ListenerState() myhome.ListenerState
	QueueDepth() int
	Workers() int
	Stats() myhome.Stats
	Test(ctx context.Context) myhome.TestResult
	CallService(name string, data []byte) error
}

// Devices is the device surface served by the API.
// *device.Manager implements it.
type Devices interface {
	List(platform device.Platform) []device.Info
	Info(key openwebnet.Key) (device.Info, error)
	HandleCommand(key openwebnet.Key, cmd device.Command) error
}

// Journal lists journalled bus events and state updates.
// *audit.SQLiteRepository implements it.
type Journal interface {
	List(ctx context.Context, filter audit.Filter) (*audit.ListResult, error)
}

// Discoverer finds gateways on the local network.
// *discovery.Discoverer implements it.
type Discoverer interface {
	Discover(ctx context.Context) ([]myhome.Identity, error)
}

// HealthSource reports the bridge health.
// *myhome.HealthReporter implements it.
type HealthSource interface {
	Snapshot() myhome.HealthMessage
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Gateway Gateway
	Devices Devices

	// Optional. Their routes answer 503 when unset.
	Journal   Journal
	Discovery Discoverer
	Health    HealthSource

	// Gatherer backs /metrics. Default: prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Hub is the live event hub. If nil the server creates its own, which
	// then receives nothing unless wired through Server.Hub.
	Hub *Hub

	Version string
}

// Server is the HTTP API server for the MyHOME bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.APIConfig
	wsCfg     config.WebSocketConfig
	logger    *logging.Logger
	gateway   Gateway
	devices   Devices
	journal   Journal
	discovery Discoverer
	health    HealthSource
	gatherer  prometheus.Gatherer
	hub       *Hub
	version   string
	startTime time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
	serveErr chan error
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("gateway is required")
	}
	if deps.Devices == nil {
		return nil, errors.New("device manager is required")
	}

	s := &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		gateway:   deps.Gateway,
		devices:   deps.Devices,
		journal:   deps.Journal,
		discovery: deps.Discovery,
		health:    deps.Health,
		gatherer:  deps.Gatherer,
		hub:       deps.Hub,
		version:   deps.Version,
		startTime: time.Now(),
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	return s, nil
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Start begins listening for HTTP connections.
//
// The listener is bound before Start returns so a port conflict is reported
// to the caller; requests are served in a background goroutine until Close.
//
// Returns:
//   - error: If the address cannot be bound
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.listener = ln
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	srv, errc := s.server, make(chan error, 1)
	s.serveErr = errc
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
			errc <- err
		}
	}()
	return nil
}

// Serve blocks until ctx is cancelled, then closes the server. It returns
// early with the error if serving fails. Start must be called first.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	errc := s.serveErr
	s.mu.Unlock()
	if errc == nil {
		return errors.New("API server not started")
	}

	select {
	case <-ctx.Done():
		return s.Close()
	case err := <-errc:
		//nolint:errcheck // already failing
		s.Close()
		return fmt.Errorf("serving API: %w", err)
	}
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	err := s.server.Shutdown(ctx)
	s.server = nil
	if err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
