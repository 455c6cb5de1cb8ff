package audit

import (
	"context"
	"sync"
	"time"
)

// writeTimeout bounds each journal insert.
const writeTimeout = 2 * time.Second

// Logger is the subset of logging used by the journal.
type Logger interface {
	Warn(msg string, args ...any)
}

// Journal adapts a Repository to the bridge's event, state and session
// hooks. Insert failures are logged and never propagated: journalling must
// not stall the bus.
type Journal struct {
	repo    Repository
	gateway string

	mu     sync.RWMutex
	logger Logger
}

// NewJournal creates a journal for one gateway.
func NewJournal(repo Repository, gateway string) *Journal {
	return &Journal{repo: repo, gateway: gateway}
}

// SetLogger sets the logger for insert failures.
func (j *Journal) SetLogger(logger Logger) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.logger = logger
}

func (j *Journal) warn(msg string, args ...any) {
	j.mu.RLock()
	l := j.logger
	j.mu.RUnlock()
	if l != nil {
		l.Warn(msg, args...)
	}
}

// Fire records a host event. The payload's "message" entry, when present,
// is stored in the message column.
func (j *Journal) Fire(name string, payload map[string]any) {
	msg, _ := payload["message"].(string) //nolint:errcheck // optional
	j.create(&Entry{Kind: KindEvent, Name: name, Message: msg, Payload: payload})
}

// RecordState records a device state update.
func (j *Journal) RecordState(key, platform, message string, state map[string]any) {
	j.create(&Entry{Kind: KindState, Name: platform, Key: key, Message: message, Payload: state})
}

// RecordSession records a gateway session outcome.
func (j *Journal) RecordSession(kind, outcome, detail string) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	rec := &SessionRecord{Gateway: j.gateway, Kind: kind, Outcome: outcome, Detail: detail}
	if err := j.repo.RecordSession(ctx, rec); err != nil {
		j.warn("journal session insert failed", "error", err, "outcome", outcome)
	}
}

func (j *Journal) create(e *Entry) {
	e.Gateway = j.gateway

	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := j.repo.Create(ctx, e); err != nil {
		j.warn("journal insert failed", "error", err, "name", e.Name)
	}
}
