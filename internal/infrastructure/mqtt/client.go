package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/myhome-bridge/internal/infrastructure/config"
)

// Client is the bridge's connection to the host bus.
//
// Device commands and service calls arrive through routes registered with
// Subscribe; routes survive broker reconnects. Availability of the bridge
// process is announced retained on myhome/bridge/status, with a will that
// marks it offline if the process dies. All methods are safe for
// concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	connected atomic.Bool

	mu          sync.RWMutex
	routes      map[string]route
	onAvailable func(up bool, err error)
	logger      Logger
}

// Logger is satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// route is an inbound topic pattern and the handler it feeds.
type route struct {
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one inbound message. paho calls handlers on its
// own goroutines, so they must not block for long. A returned error is
// logged and otherwise ignored.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker configured in cfg, with the bridge will set and
// paho's reconnect enabled, and waits for the first connection.
func Connect(cfg config.MQTTConfig) (*Client, error) {
	c := &Client{cfg: cfg, routes: make(map[string]route)}

	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.up() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.down(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if l := c.log(); l != nil {
			l.Warn("MQTT reconnecting", "broker", cfg.Broker.Host)
		}
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The connect handler runs asynchronously; IsConnected must already
	// hold when Connect returns.
	c.connected.Store(true)
	return c, nil
}

// up runs on every (re)connection: routes are restored before the bridge
// announces itself online.
func (c *Client) up() {
	c.connected.Store(true)

	c.mu.RLock()
	for topic, r := range c.routes {
		c.client.Subscribe(topic, r.qos, c.wrapHandler(r.handler))
	}
	notify := c.onAvailable
	c.mu.RUnlock()

	payload := buildStatusPayload(c.cfg.Broker.ClientID, statusOnline, "")
	c.client.Publish(Topics{}.BridgeStatus(), byte(c.cfg.QoS), true, payload)

	if notify != nil {
		notify(true, nil)
	}
}

func (c *Client) down(err error) {
	c.connected.Store(false)

	c.mu.RLock()
	notify := c.onAvailable
	c.mu.RUnlock()
	if notify != nil {
		notify(false, err)
	}
}

// Close announces a graceful offline status, which consumers tell apart
// from the will, and disconnects.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		payload := buildStatusPayload(c.cfg.Broker.ClientID, statusOffline, reasonGraceful)
		c.client.Publish(Topics{}.BridgeStatus(), byte(c.cfg.QoS), true, payload).
			WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the last known connection state.
func (c *Client) IsConnected() bool {
	return c.client != nil && c.connected.Load() && c.client.IsConnected()
}

// SetAvailabilityHandler sets a callback run on every connect (up=true) and
// connection loss (up=false, with the cause).
func (c *Client) SetAvailabilityHandler(fn func(up bool, err error)) {
	c.mu.Lock()
	c.onAvailable = fn
	c.mu.Unlock()
}

// SetLogger sets the logger for handler failures and reconnects.
func (c *Client) SetLogger(logger Logger) {
	c.mu.Lock()
	c.logger = logger
	c.mu.Unlock()
}

func (c *Client) log() Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

// wrapHandler adapts a MessageHandler to paho. Returned errors are logged
// and panics recovered.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if l := c.log(); l != nil {
					l.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if l := c.log(); l != nil {
				l.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
