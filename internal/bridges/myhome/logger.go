package myhome

import "sync"

// Logger is the logging surface used by the bridge.
// This is satisfied by logging.Logger.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// logRef is a logger shared by the gateway, listener and workers that can
// be swapped at runtime.
type logRef struct {
	mu sync.RWMutex
	l  Logger
}

func (r *logRef) set(l Logger) {
	r.mu.Lock()
	r.l = l
	r.mu.Unlock()
}

func (r *logRef) get() Logger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.l == nil {
		return nopLogger{}
	}
	return r.l
}

// SessionObserver records gateway session outcomes.
// This is satisfied by *audit.Journal.
type SessionObserver interface {
	RecordSession(kind, outcome, detail string)
}

// Session outcomes passed to SessionObserver.
const (
	OutcomeConnected  = "connected"
	OutcomeLost       = "lost"
	OutcomeAuthFailed = "auth_failed"
	OutcomeFailed     = "failed"
)
