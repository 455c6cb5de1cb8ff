// Package audit journals bus activity to SQLite: every host event fired by
// the listener, every device state update and gateway session outcomes.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entry kinds.
const (
	KindEvent = "event"
	KindState = "state"
)

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeLayout is fixed width so created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Entry is one row of the bus journal.
type Entry struct {
	ID      string         `json:"id"`
	Kind    string         `json:"kind"`              // "event" or "state"
	Name    string         `json:"name"`              // event name, or device platform for state rows
	Gateway string         `json:"gateway"`           // gateway MAC
	Key     string         `json:"key,omitempty"`     // handler key for state rows
	Message string         `json:"message,omitempty"` // raw frame that caused the entry
	Payload map[string]any `json:"payload,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Filter controls which entries List returns.
type Filter struct {
	Kind    string    // optional: "event" or "state"
	Name    string    // optional: exact event name or platform
	Key     string    // optional: handler key
	Gateway string    // optional: gateway MAC
	Since   time.Time // optional: only entries at or after this instant
	Limit   int       // default 50, max 200
	Offset  int       // pagination offset
}

// ListResult contains a page of journal entries.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}

// SessionRecord is one gateway connection outcome.
type SessionRecord struct {
	ID        string    `json:"id"`
	Gateway   string    `json:"gateway"`
	Kind      string    `json:"kind"`    // "event", "command" or "test"
	Outcome   string    `json:"outcome"` // "connected", "lost", "auth_failed", "failed"
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository defines the journal operations.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
	RecordSession(ctx context.Context, r *SessionRecord) error
	ListSessions(ctx context.Context, gateway string, limit int) ([]SessionRecord, error)
}

// SQLiteRepository stores the journal in the bus_events and
// gateway_sessions tables.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new journal repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a journal entry. ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, e *Entry) error {
	if e.Kind != KindEvent && e.Kind != KindState {
		return fmt.Errorf("inserting bus event: invalid kind %q", e.Kind)
	}
	if e.ID == "" {
		e.ID = "evt-" + uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.CreatedAt = e.CreatedAt.UTC()

	var payload any
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			return fmt.Errorf("marshalling bus event payload: %w", err)
		}
		payload = string(b)
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO bus_events (id, kind, name, gateway, key, message, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Kind, e.Name, e.Gateway,
		nullableString(e.Key), nullableString(e.Message),
		payload, e.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting bus event: %w", err)
	}
	return nil
}

// nullableString maps "" to SQL NULL.
func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// List returns entries matching the filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) { //nolint:gocognit // dynamic query builder
	filter.Limit = clampLimit(filter.Limit)
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	add := func(cond string, v any) {
		conditions = append(conditions, cond)
		args = append(args, v)
	}
	if filter.Kind != "" {
		add("kind = ?", filter.Kind)
	}
	if filter.Name != "" {
		add("name = ?", filter.Name)
	}
	if filter.Key != "" {
		add("key = ?", filter.Key)
	}
	if filter.Gateway != "" {
		add("gateway = ?", filter.Gateway)
	}
	if !filter.Since.IsZero() {
		add("created_at >= ?", filter.Since.UTC().Format(timeLayout))
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := "SELECT COUNT(*) FROM bus_events " + where //nolint:gosec // WHERE built from parameterised conditions
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting bus events: %w", err)
	}

	query := "SELECT id, kind, name, gateway, key, message, payload, created_at FROM bus_events " + //nolint:gosec // see above
		where + " ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?"
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying bus events: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var key, message, payload sql.NullString
		var createdAt string

		if err := rows.Scan(&e.ID, &e.Kind, &e.Name, &e.Gateway, &key, &message, &payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning bus event: %w", err)
		}
		e.Key = key.String
		e.Message = message.String
		if payload.Valid && payload.String != "" {
			var p map[string]any
			if json.Unmarshal([]byte(payload.String), &p) == nil {
				e.Payload = p
			}
		}
		if e.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing bus event timestamp %q: %w", createdAt, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating bus events: %w", err)
	}

	return &ListResult{
		Entries: entries,
		Total:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
	}, nil
}

// RecordSession stores a gateway connection outcome.
func (r *SQLiteRepository) RecordSession(ctx context.Context, rec *SessionRecord) error {
	if rec.ID == "" {
		rec.ID = "ses-" + uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO gateway_sessions (id, gateway, kind, outcome, detail, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Gateway, rec.Kind, rec.Outcome, nullableString(rec.Detail),
		rec.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting gateway session: %w", err)
	}
	return nil
}

// ListSessions returns the most recent session outcomes for a gateway.
func (r *SQLiteRepository) ListSessions(ctx context.Context, gateway string, limit int) ([]SessionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, gateway, kind, outcome, detail, created_at FROM gateway_sessions
		 WHERE gateway = ? ORDER BY created_at DESC, rowid DESC LIMIT ?`,
		gateway, clampLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying gateway sessions: %w", err)
	}
	defer rows.Close()

	records := []SessionRecord{}
	for rows.Next() {
		var rec SessionRecord
		var detail sql.NullString
		var createdAt string
		if err := rows.Scan(&rec.ID, &rec.Gateway, &rec.Kind, &rec.Outcome, &detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning gateway session: %w", err)
		}
		rec.Detail = detail.String
		if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
			return nil, fmt.Errorf("parsing gateway session timestamp %q: %w", createdAt, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating gateway sessions: %w", err)
	}
	return records, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultLimit
	case limit > maxLimit:
		return maxLimit
	default:
		return limit
	}
}
