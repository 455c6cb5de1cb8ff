package device

import (
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/nerrad567/myhome-bridge/internal/bridges/myhome"
	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// Entity is a configured device bound to one bus key.
type Entity interface {
	myhome.Handler

	// Config returns the device entry the entity was built from.
	Config() Config

	// State returns a copy of the current state.
	State() map[string]any

	// UpdatedAt returns when the state last changed, zero if never.
	UpdatedAt() time.Time

	// Command applies a host request, enqueueing the frames it needs.
	Command(cmd Command) error
}

// entity holds what every platform shares. Platform types embed it and
// guard their own fields with mu.
type entity struct {
	cfg    Config
	sender Sender
	out    *output

	mu      sync.Mutex
	state   map[string]any
	updated time.Time
}

func newEntity(cfg Config, sender Sender, out *output) entity {
	return entity{cfg: cfg, sender: sender, out: out, state: make(map[string]any)}
}

func (e *entity) Key() openwebnet.Key { return e.cfg.Key }

func (e *entity) Config() Config { return e.cfg }

func (e *entity) State() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return maps.Clone(e.state)
}

func (e *entity) UpdatedAt() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updated
}

// update runs mutate under the entity lock and publishes the resulting
// state. mutate returns false when the message changed nothing worth
// publishing.
func (e *entity) update(msg openwebnet.Message, mutate func(state map[string]any) bool) {
	e.mu.Lock()
	if !mutate(e.state) {
		e.mu.Unlock()
		return
	}
	now := e.out.now()
	e.updated = now
	snapshot := maps.Clone(e.state)
	e.mu.Unlock()

	e.out.log().Info("device state updated",
		"key", string(e.cfg.Key),
		"platform", string(e.cfg.Platform),
		"message", openwebnet.Describe(msg),
	)

	e.out.publish(StateMessage{
		Gateway:   e.out.gateway,
		Key:       string(e.cfg.Key),
		Platform:  e.cfg.Platform,
		Name:      e.cfg.Name,
		State:     snapshot,
		Message:   msg.Raw(),
		Timestamp: now,
	})
}

func (e *entity) unsupported(action string) error {
	return fmt.Errorf("%w: %s does not support %q", ErrInvalidCommand, e.cfg.Platform, action)
}
