package myhome

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// defaultTestTimeout bounds Test when Config.TestTimeout is zero.
const defaultTestTimeout = 5 * time.Second

// Identity describes one gateway. Only the password may change after New.
type Identity struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	Password     string `json:"-"`
	MAC          string `json:"mac"`
	Name         string `json:"name,omitempty"`
	Model        string `json:"model,omitempty"`
	Firmware     string `json:"firmware,omitempty"`
	Manufacturer string `json:"manufacturer,omitempty"`
	UDN          string `json:"udn,omitempty"`
	SSDPLocation string `json:"ssdp_location,omitempty"`
}

// TestReason explains a failed connectivity test.
type TestReason string

// Test failure reasons.
const (
	ReasonPasswordRequired TestReason = "password_required"
	ReasonPasswordError    TestReason = "password_error"
	ReasonOther            TestReason = "other"
)

// TestResult is the outcome of Gateway.Test.
type TestResult struct {
	Success bool       `json:"success"`
	Reason  TestReason `json:"reason,omitempty"`
	// Err is the underlying failure, nil on success.
	Err error `json:"-"`
}

// Config holds the collaborators and tuning of a Gateway.
type Config struct {
	Identity Identity

	// Registry is required. Device lifecycle code adds and removes handlers on it.
	Registry *Registry

	// Bus receives broadcast and button events. Optional.
	Bus EventBus

	// Dialer opens gateway sessions. Defaults to a TCP dialer built from
	// the current identity on every dial.
	Dialer openwebnet.Dialer

	// Workers is the dispatch pool size (1-10). Default: 1.
	Workers int
	// QueueCap bounds the outbound queue. 0 means unbounded.
	QueueCap int
	// SendRate limits frames per second per worker. 0 means unlimited.
	SendRate float64
	// TestTimeout bounds Test. Default: 5 seconds.
	TestTimeout time.Duration

	Reconnect Backoff

	// SettleDelay is the wait before re-polling after a lighting broadcast.
	// Default: 100ms.
	SettleDelay time.Duration

	// GenerateEvents enables CEN/CEN+ button events.
	GenerateEvents bool

	// Metrics defaults to an unregistered set.
	Metrics *Metrics

	// Observer records session outcomes. Optional.
	Observer SessionObserver
}

// Gateway is the session manager for one MyHOME gateway. It owns the
// identity and the outbound queue, and runs the event listener and the
// dispatch pool between StartListening and CloseListener.
type Gateway struct {
	mu       sync.RWMutex
	identity Identity
	authErr  error

	registry *Registry
	bus      EventBus
	dialer   openwebnet.Dialer
	queue    *Queue
	metrics  *Metrics
	observer SessionObserver
	log      logRef

	workers        int
	sendRate       float64
	testTimeout    time.Duration
	reconnect      Backoff
	settleDelay    time.Duration
	generateEvents bool

	now func() time.Time

	runMu    sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	listener *Listener
	pool     *Pool
}

// New creates a gateway. Nothing connects until Test or StartListening.
//
// Returns:
//   - *Gateway: the session manager
//   - error: ErrInvalidIdentity if host or MAC is missing, or if no registry is given
func New(cfg Config) (*Gateway, error) {
	if cfg.Identity.Host == "" {
		return nil, fmt.Errorf("%w: host is required", ErrInvalidIdentity)
	}
	if cfg.Identity.MAC == "" {
		return nil, fmt.Errorf("%w: mac is required", ErrInvalidIdentity)
	}
	if cfg.Registry == nil {
		return nil, fmt.Errorf("%w: registry is required", ErrInvalidIdentity)
	}

	g := &Gateway{
		identity:       cfg.Identity,
		registry:       cfg.Registry,
		bus:            cfg.Bus,
		dialer:         cfg.Dialer,
		queue:          NewQueue(cfg.QueueCap),
		metrics:        cfg.Metrics,
		observer:       cfg.Observer,
		workers:        cfg.Workers,
		sendRate:       cfg.SendRate,
		testTimeout:    cfg.TestTimeout,
		reconnect:      cfg.Reconnect,
		settleDelay:    cfg.SettleDelay,
		generateEvents: cfg.GenerateEvents,
		now:            time.Now,
	}
	if g.dialer == nil {
		g.dialer = identityDialer{g: g}
	}
	if g.metrics == nil {
		g.metrics = NewMetrics(nil)
	}
	if g.testTimeout <= 0 {
		g.testTimeout = defaultTestTimeout
	}
	if g.settleDelay <= 0 {
		g.settleDelay = defaultSettleDelay
	}
	g.queue.OnDrop(func(t Task) {
		g.metrics.taskDropped(t)
		g.log.get().Warn("outbound queue full, task dropped",
			"message", t.Message.String(), "status_request", t.StatusRequest)
	})
	return g, nil
}

// identityDialer dials with the gateway's current identity so a password
// changed through SetPassword applies to the next connection.
type identityDialer struct {
	g *Gateway
}

func (d identityDialer) Dial(ctx context.Context, kind openwebnet.SessionKind) (openwebnet.Session, error) {
	id := d.g.Identity()
	td := &openwebnet.TCPDialer{Host: id.Host, Port: id.Port, Password: id.Password}
	return td.Dial(ctx, kind)
}

// SetLogger sets the logger used by the gateway, its listener and workers.
func (g *Gateway) SetLogger(logger Logger) {
	g.log.set(logger)
}

// Identity returns a copy of the gateway identity.
func (g *Gateway) Identity() Identity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.identity
}

// SetPassword replaces the OPEN password used by future connections.
func (g *Gateway) SetPassword(password string) {
	g.mu.Lock()
	g.identity.Password = password
	g.mu.Unlock()
}

// MAC returns the gateway serial.
func (g *Gateway) MAC() string { return g.Identity().MAC }

// ID returns the unique gateway id, which is its MAC.
func (g *Gateway) ID() string { return g.MAC() }

// Model returns the gateway model name.
func (g *Gateway) Model() string { return g.Identity().Model }

// Firmware returns the firmware version.
func (g *Gateway) Firmware() string { return g.Identity().Firmware }

// Manufacturer returns the manufacturer.
func (g *Gateway) Manufacturer() string { return g.Identity().Manufacturer }

// Name returns the display name, "<model> Gateway".
func (g *Gateway) Name() string {
	model := g.Model()
	if model == "" {
		model = "MyHOME"
	}
	return model + " Gateway"
}

// LogID returns the prefix used to identify this gateway in log lines.
func (g *Gateway) LogID() string {
	id := g.Identity()
	model := id.Model
	if model == "" {
		model = "MyHOME"
	}
	return fmt.Sprintf("[%s gateway - %s]", model, id.Host)
}

// Registry returns the injected handler registry.
func (g *Gateway) Registry() *Registry { return g.registry }

// Queue returns the outbound queue.
func (g *Gateway) Queue() *Queue { return g.queue }

// Stats returns the gateway counters.
func (g *Gateway) Stats() Stats { return g.metrics.Snapshot() }

// Workers returns the configured dispatch pool size.
func (g *Gateway) Workers() int {
	if g.workers <= 0 {
		return defaultWorkers
	}
	return min(g.workers, maxWorkers)
}

// AuthError returns the authentication failure that stopped the last
// listener run, or nil.
func (g *Gateway) AuthError() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.authErr
}

func (g *Gateway) setAuthErr(err error) {
	g.mu.Lock()
	g.authErr = err
	g.mu.Unlock()
}

// ListenerState returns the event listener state, StateDisconnected when
// the listener has never run.
func (g *Gateway) ListenerState() ListenerState {
	g.runMu.Lock()
	l := g.listener
	g.runMu.Unlock()
	if l == nil {
		return StateDisconnected
	}
	return l.State()
}

// Test opens and closes a command session to validate the address and
// password.
func (g *Gateway) Test(ctx context.Context) TestResult {
	ctx, cancel := context.WithTimeout(ctx, g.testTimeout)
	defer cancel()

	sess, err := g.dialer.Dial(ctx, openwebnet.CommandSession)
	if err != nil {
		g.log.get().Info("gateway test failed", "gateway", g.LogID(), "error", err)
		return TestResult{Reason: testReason(err), Err: err}
	}
	if err := sess.Close(); err != nil {
		g.log.get().Debug("test session close failed", "error", err)
	}
	return TestResult{Success: true}
}

func testReason(err error) TestReason {
	switch {
	case errors.Is(err, openwebnet.ErrAuthRequired):
		return ReasonPasswordRequired
	case errors.Is(err, openwebnet.ErrPasswordError):
		return ReasonPasswordError
	default:
		return ReasonOther
	}
}

// Send enqueues a command frame and returns immediately. Delivery is
// asynchronous and unacknowledged.
func (g *Gateway) Send(frame openwebnet.Frame) {
	enqueue(g.queue, g.metrics, Task{Message: frame})
}

// SendStatusRequest enqueues a status request and returns immediately.
func (g *Gateway) SendStatusRequest(frame openwebnet.Frame) {
	enqueue(g.queue, g.metrics, Task{Message: frame, StatusRequest: true})
}

// StartListening starts the event listener and the dispatch pool, each
// under a reconnect supervisor. Both stop when ctx is cancelled or
// CloseListener is called.
//
// An authentication failure on any session stops the whole run; it is
// available from AuthError afterwards.
func (g *Gateway) StartListening(ctx context.Context) error {
	g.runMu.Lock()
	defer g.runMu.Unlock()

	if g.done != nil {
		select {
		case <-g.done:
		default:
			return ErrAlreadyListening
		}
	}

	g.setAuthErr(nil)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	listener := &Listener{
		dialer:       g.dialer,
		registry:     g.registry,
		queue:        g.queue,
		bus:          g.bus,
		metrics:      g.metrics,
		log:          &g.log,
		observer:     g.observer,
		settleDelay:  g.settleDelay,
		buttonEvents: g.generateEvents,
	}
	pool := newPool(g.dialer, g.queue, g.workers, g.sendRate, g.reconnect, g.metrics, &g.log, g.observer)

	g.cancel, g.done, g.listener, g.pool = cancel, done, listener, pool

	authFailed := func(err error) {
		g.setAuthErr(err)
		cancel()
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		err := supervise(runCtx, g.reconnect, openwebnet.EventSession, g.metrics, &g.log, listener.Run)
		if err != nil {
			authFailed(err)
		}
	}()
	go func() {
		defer wg.Done()
		select {
		case err := <-pool.AuthErrors():
			authFailed(err)
		case <-runCtx.Done():
		}
	}()
	pool.Start(runCtx)

	go func() {
		wg.Wait()
		pool.Wait()
		cancel()
		g.log.get().Info("listener stopped", "gateway", g.LogID())
		close(done)
	}()

	g.log.get().Info("listener started", "gateway", g.LogID(), "workers", pool.Size())
	return nil
}

// CloseListener asks the listener and every worker to stop and returns
// immediately. Use Wait to block until they have released their sessions.
func (g *Gateway) CloseListener() {
	g.runMu.Lock()
	cancel := g.cancel
	g.runMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Wait blocks until the listener and every worker have exited. It returns
// immediately if StartListening was never called.
func (g *Gateway) Wait() {
	g.runMu.Lock()
	done := g.done
	g.runMu.Unlock()
	if done != nil {
		<-done
	}
}

// Done is closed when the current run has fully stopped. Nil before the
// first StartListening.
func (g *Gateway) Done() <-chan struct{} {
	g.runMu.Lock()
	defer g.runMu.Unlock()
	return g.done
}

// QueueDepth returns the number of tasks waiting in the outbound queue.
func (g *Gateway) QueueDepth() int { return g.queue.Len() }

// DeviceCount returns the number of registered handlers.
func (g *Gateway) DeviceCount() int { return g.registry.Len() }
