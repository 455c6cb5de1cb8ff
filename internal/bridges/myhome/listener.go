package myhome

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// ListenerState is the event listener lifecycle state.
type ListenerState int32

// Listener states.
const (
	StateDisconnected ListenerState = iota
	StateConnecting
	StateListening
	StateClosing
)

// String returns the state name.
func (s ListenerState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateListening:
		return "listening"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("unknown(%d)", int32(s))
	}
}

// defaultSettleDelay is the wait between a lighting broadcast and the
// status request that refreshes its members.
const defaultSettleDelay = 100 * time.Millisecond

// Listener reads the event session, classifies every message and acts on
// the decision. One Run call owns one event session.
type Listener struct {
	dialer   openwebnet.Dialer
	registry *Registry
	queue    *Queue
	bus      EventBus
	metrics  *Metrics
	log      *logRef
	observer SessionObserver

	settleDelay  time.Duration
	buttonEvents bool

	state  atomic.Int32
	settle sync.WaitGroup
}

// State returns the current lifecycle state.
func (l *Listener) State() ListenerState {
	return ListenerState(l.state.Load())
}

func (l *Listener) setState(s ListenerState) {
	l.state.Store(int32(s))
	l.metrics.setListenerState(s)
}

// Run opens an event session and processes messages until ctx is done or
// the session breaks.
//
// connected is called once the session is open. Run returns nil when ctx
// is cancelled, the dial error when the session cannot be opened, and a
// connection error when an established session is lost. The session is
// closed exactly once before Run returns.
func (l *Listener) Run(ctx context.Context, connected func()) error {
	l.setState(StateConnecting)
	sess, err := l.dialer.Dial(ctx, openwebnet.EventSession)
	if err != nil {
		l.setState(StateDisconnected)
		if ctx.Err() != nil {
			return nil
		}
		observeDialError(l.observer, openwebnet.EventSession, err)
		return fmt.Errorf("open event session: %w", err)
	}

	l.setState(StateListening)
	l.log.get().Info("event session opened")
	if l.observer != nil {
		l.observer.RecordSession(openwebnet.EventSession.String(), OutcomeConnected, "")
	}
	if connected != nil {
		connected()
	}

	runErr := l.listen(ctx, sess)

	l.setState(StateClosing)
	if err := sess.Close(); err != nil {
		l.log.get().Debug("event session close failed", "error", err)
	}
	l.settle.Wait()
	l.setState(StateDisconnected)

	if runErr != nil && l.observer != nil {
		l.observer.RecordSession(openwebnet.EventSession.String(), OutcomeLost, runErr.Error())
	}
	return runErr
}

func (l *Listener) listen(ctx context.Context, sess openwebnet.Session) error {
	for {
		msg, err := sess.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, openwebnet.ErrDecode) {
				l.metrics.decodeError()
				l.log.get().Warn("dropping undecodable frame", "error", err)
				continue
			}
			return err
		}
		if msg == nil {
			continue
		}
		l.metrics.frameReceived(msg)
		l.Dispatch(ctx, msg)
	}
}

// Dispatch classifies msg and acts on the decision. Panics raised by a
// handler are recovered and counted so one bad message cannot end the loop.
func (l *Listener) Dispatch(ctx context.Context, msg openwebnet.Message) {
	defer func() {
		if r := recover(); r != nil {
			l.metrics.handlerPanic()
			l.log.get().Error("panic while handling message", "message", msg.Raw(), "panic", r)
		}
	}()

	log := l.log.get()

	switch d := Classify(msg, l.registry).(type) {
	case Ignore:
		l.metrics.translationIgnored()
		log.Debug("ignoring message", "message", msg.Raw(), "reason", d.Reason)

	case Broadcast:
		payload := map[string]any{
			"message": msg.Raw(),
			"event":   d.Semantic,
		}
		switch d.Scope.Kind {
		case openwebnet.ScopeArea:
			payload["area"] = d.Scope.ID
		case openwebnet.ScopeGroup:
			payload["group"] = d.Scope.ID
		}
		l.fire(d.Event, payload)
		if d.StatusRequest != "" {
			l.scheduleStatusRequest(ctx, d.StatusRequest)
		}

	case Requery:
		if h, ok := l.registry.Get(d.Key); ok {
			h.AsyncUpdate()
			return
		}
		if d.Fallback != "" {
			enqueue(l.queue, l.metrics, Task{Message: d.Fallback, StatusRequest: true})
			return
		}
		l.metrics.routingMiss()
		log.Warn("unknown device", "key", string(d.Key), "message", msg.Raw())

	case Routed:
		h, ok := l.registry.Get(d.Key)
		if !ok {
			l.metrics.routingMiss()
			log.Warn("unknown device",
				"who", int(msg.Who()), "where", msg.Where(), "message", msg.Raw())
			return
		}
		h.HandleEvent(msg)

	case Button:
		if !l.buttonEvents {
			return
		}
		var action any
		if d.Action != openwebnet.NoAction {
			action = string(d.Action)
		}
		l.fire(d.Event, map[string]any{
			"message":    msg.Raw(),
			"object":     d.Object,
			"pushbutton": d.PushButton,
			"event":      action,
		})

	case Unknown:
		log.Info("unhandled message", "message", openwebnet.Describe(msg), "reason", d.Reason)
	}
}

func (l *Listener) fire(name string, payload map[string]any) {
	l.metrics.eventFired(name)
	if l.bus != nil {
		l.bus.Fire(name, payload)
	}
}

// scheduleStatusRequest enqueues frame after the settle delay without
// blocking the read loop.
func (l *Listener) scheduleStatusRequest(ctx context.Context, frame openwebnet.Frame) {
	l.settle.Add(1)
	go func() {
		defer l.settle.Done()
		if !sleepCtx(ctx, l.settleDelay) {
			return
		}
		enqueue(l.queue, l.metrics, Task{Message: frame, StatusRequest: true})
	}()
}
