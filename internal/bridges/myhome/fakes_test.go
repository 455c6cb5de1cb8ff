package myhome

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// fakeSession is an in-memory gateway session. Inbound items are
// openwebnet.Message values or errors.
type fakeSession struct {
	kind    openwebnet.SessionKind
	inbound chan any

	mu         sync.Mutex
	sent       []openwebnet.Frame
	closeCount int
	sendErr    func(openwebnet.Frame) error
}

func newFakeSession(kind openwebnet.SessionKind) *fakeSession {
	return &fakeSession{kind: kind, inbound: make(chan any, 64)}
}

func (s *fakeSession) Next(ctx context.Context) (openwebnet.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case item := <-s.inbound:
		if err, ok := item.(error); ok {
			return nil, err
		}
		return item.(openwebnet.Message), nil
	}
}

func (s *fakeSession) Send(_ context.Context, frame openwebnet.Frame, _ bool) error {
	s.mu.Lock()
	sendErr := s.sendErr
	s.mu.Unlock()

	// sendErr may block, so it runs outside the lock.
	if sendErr != nil {
		if err := sendErr(frame); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.sent = append(s.sent, frame)
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closeCount++
	s.mu.Unlock()
	return nil
}

func (s *fakeSession) Sent() []openwebnet.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]openwebnet.Frame(nil), s.sent...)
}

func (s *fakeSession) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}

// fakeDialer hands out fake sessions. Every event session shares the
// events channel so tests can feed frames across reconnects.
type fakeDialer struct {
	events chan any

	mu       sync.Mutex
	sessions []*fakeSession
	dialErr  map[openwebnet.SessionKind]error
	sendErr  func(openwebnet.Frame) error
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{events: make(chan any, 64), dialErr: map[openwebnet.SessionKind]error{}}
}

func (d *fakeDialer) Dial(ctx context.Context, kind openwebnet.SessionKind) (openwebnet.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.dialErr[kind]; err != nil {
		return nil, err
	}
	s := newFakeSession(kind)
	if kind == openwebnet.EventSession {
		s.inbound = d.events
	}
	s.sendErr = d.sendErr
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeDialer) failWith(kind openwebnet.SessionKind, err error) {
	d.mu.Lock()
	d.dialErr[kind] = err
	d.mu.Unlock()
}

func (d *fakeDialer) Sessions(kind openwebnet.SessionKind) []*fakeSession {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*fakeSession
	for _, s := range d.sessions {
		if s.kind == kind {
			out = append(out, s)
		}
	}
	return out
}

// fakeHandler records what the listener delivered.
type fakeHandler struct {
	key openwebnet.Key

	mu      sync.Mutex
	events  []openwebnet.Message
	updates int
	panics  bool
}

func newFakeHandler(key string) *fakeHandler {
	return &fakeHandler{key: openwebnet.Key(key)}
}

func (h *fakeHandler) Key() openwebnet.Key { return h.key }

func (h *fakeHandler) HandleEvent(msg openwebnet.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.panics {
		panic("handler exploded")
	}
	h.events = append(h.events, msg)
}

func (h *fakeHandler) AsyncUpdate() {
	h.mu.Lock()
	h.updates++
	h.mu.Unlock()
}

func (h *fakeHandler) Events() []openwebnet.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]openwebnet.Message(nil), h.events...)
}

func (h *fakeHandler) Updates() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.updates
}

type firedEvent struct {
	name    string
	payload map[string]any
}

// recordingBus is an EventBus that keeps every fired event.
type recordingBus struct {
	mu     sync.Mutex
	events []firedEvent
}

func (b *recordingBus) Fire(name string, payload map[string]any) {
	b.mu.Lock()
	b.events = append(b.events, firedEvent{name: name, payload: payload})
	b.mu.Unlock()
}

func (b *recordingBus) Events() []firedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]firedEvent(nil), b.events...)
}

type logEntry struct {
	level string
	msg   string
	args  []any
}

// recordingLogger captures log calls by level.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *recordingLogger) add(level, msg string, args []any) {
	l.mu.Lock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, args: args})
	l.mu.Unlock()
}

func (l *recordingLogger) Debug(msg string, args ...any) { l.add("debug", msg, args) }
func (l *recordingLogger) Info(msg string, args ...any)  { l.add("info", msg, args) }
func (l *recordingLogger) Warn(msg string, args ...any)  { l.add("warn", msg, args) }
func (l *recordingLogger) Error(msg string, args ...any) { l.add("error", msg, args) }

func (l *recordingLogger) Count(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

func (l *recordingLogger) Has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

// recordingObserver is a SessionObserver.
type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) RecordSession(kind, outcome, _ string) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, fmt.Sprintf("%s:%s", kind, outcome))
	o.mu.Unlock()
}

func (o *recordingObserver) Outcomes() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]string(nil), o.outcomes...)
}

func mustParse(t *testing.T, raw string) openwebnet.Message {
	t.Helper()
	msg, err := openwebnet.Parse(raw)
	require.NoError(t, err, raw)
	return msg
}

func frames(tasks []Task) []string {
	out := make([]string, 0, len(tasks))
	for _, t := range tasks {
		out = append(out, t.Message.String())
	}
	return out
}

func openwebnetFrame(s string) openwebnet.Frame { return openwebnet.Frame(s) }

// frameFor returns a distinct lighting frame per i.
func frameFor(i int) string { return fmt.Sprintf("*1*1*%d##", 1000+i) }
