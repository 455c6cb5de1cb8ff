package device

import (
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/nerrad567/myhome-bridge/internal/bridges/myhome"
	"github.com/nerrad567/myhome-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// Manager owns the entities of one gateway. It builds them from the device
// file, keeps them registered in the gateway's handler registry and routes
// host commands to them.
//
// All public methods are thread-safe.
type Manager struct {
	sender   Sender
	registry *myhome.Registry
	out      *output

	mu       sync.RWMutex
	entities map[openwebnet.Key]Entity
}

// NewManager creates a manager for the gateway identified by mac.
// Entities publish through sinks and send through sender; registry is the
// gateway's handler registry.
func NewManager(mac string, sender Sender, registry *myhome.Registry, sinks Sinks) *Manager {
	return &Manager{
		sender:   sender,
		registry: registry,
		out:      newOutput(mac, sinks),
		entities: make(map[openwebnet.Key]Entity),
	}
}

// SetLogger sets the logger for the manager and its entities.
func (m *Manager) SetLogger(logger Logger) {
	m.out.setLogger(logger)
}

// Load adds every device in cfgs. Devices that fail are skipped and their
// errors joined; the rest stay registered.
func (m *Manager) Load(cfgs []Config) error {
	var errs []error
	for _, cfg := range cfgs {
		if _, err := m.Add(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	m.out.log().Info("devices loaded", "count", m.Count(), "failed", len(errs))
	return errors.Join(errs...)
}

// Add builds the entity for cfg and registers it.
//
// Returns:
//   - Entity: the new entity
//   - error: validation errors, or ErrDeviceExists if the key is taken
func (m *Manager) Add(cfg Config) (Entity, error) {
	if err := Normalize(&cfg); err != nil {
		return nil, fmt.Errorf("%s %q: %w", cfg.Platform, cfg.ID, err)
	}

	e := m.build(cfg)

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entities[cfg.Key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDeviceExists, cfg.Key)
	}
	if err := m.registry.Add(e); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDeviceExists, cfg.Key, err)
	}
	m.entities[cfg.Key] = e

	m.out.log().Debug("device added", "key", string(cfg.Key), "platform", string(cfg.Platform), "name", cfg.Name)
	return e, nil
}

func (m *Manager) build(cfg Config) Entity {
	switch cfg.Platform {
	case PlatformLight:
		return newLight(cfg, m.sender, m.out)
	case PlatformSwitch:
		return newSwitch(cfg, m.sender, m.out)
	case PlatformCover:
		return newCover(cfg, m.sender, m.out)
	case PlatformBinarySensor:
		return newBinarySensor(cfg, m.sender, m.out)
	case PlatformSensor:
		return newSensor(cfg, m.sender, m.out)
	case PlatformButton:
		return newButton(cfg, m.sender, m.out)
	default:
		return newClimate(cfg, m.sender, m.out)
	}
}

// Remove unregisters the entity for key and reports whether one existed.
func (m *Manager) Remove(key openwebnet.Key) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entities[key]; !ok {
		return false
	}
	delete(m.entities, key)
	m.registry.Remove(key)
	return true
}

// Get returns the entity for key.
func (m *Manager) Get(key openwebnet.Key) (Entity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entities[key]
	return e, ok
}

// Count returns the number of entities.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entities)
}

// Entities returns all entities ordered by key.
func (m *Manager) Entities() []Entity {
	m.mu.RLock()
	out := make([]Entity, 0, len(m.entities))
	for _, e := range m.entities {
		out = append(out, e)
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b Entity) int {
		switch {
		case a.Key() < b.Key():
			return -1
		case a.Key() > b.Key():
			return 1
		default:
			return 0
		}
	})
	return out
}

// List returns the API view of every entity, optionally filtered by
// platform (empty matches all).
func (m *Manager) List(platform Platform) []Info {
	entities := m.Entities()
	out := make([]Info, 0, len(entities))
	for _, e := range entities {
		if platform != "" && e.Config().Platform != platform {
			continue
		}
		out = append(out, infoOf(e))
	}
	return out
}

// Info returns the API view of one entity.
func (m *Manager) Info(key openwebnet.Key) (Info, error) {
	e, ok := m.Get(key)
	if !ok {
		return Info{}, fmt.Errorf("%w: %s", ErrDeviceNotFound, key)
	}
	return infoOf(e), nil
}

func infoOf(e Entity) Info {
	info := Info{Config: e.Config(), State: e.State()}
	if t := e.UpdatedAt(); !t.IsZero() {
		info.UpdatedAt = &t
	}
	return info
}

// RefreshAll asks every entity to poll its device. Used after the event
// session (re)connects.
func (m *Manager) RefreshAll() {
	for _, e := range m.Entities() {
		e.AsyncUpdate()
	}
}

// HandleCommand routes a command to the entity owning key.
//
// Returns:
//   - error: ErrDeviceNotFound for an unknown key, ErrInvalidCommand when
//     the entity rejects the command
func (m *Manager) HandleCommand(key openwebnet.Key, cmd Command) error {
	e, ok := m.Get(key)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDeviceNotFound, key)
	}
	if err := e.Command(cmd); err != nil {
		return err
	}
	m.out.log().Debug("device command accepted", "key", string(key), "action", cmd.Action)
	return nil
}

// CommandHandler returns an MQTT handler for the command topics
// (myhome/command/<mac>/<key>). The payload is a JSON Command.
func (m *Manager) CommandHandler() mqtt.MessageHandler {
	return func(topic string, payload []byte) error {
		key := openwebnet.Key(mqtt.DecodeKey(mqtt.LastLevel(topic)))

		var cmd Command
		if err := json.Unmarshal(payload, &cmd); err != nil {
			m.out.log().Warn("invalid device command payload", "topic", topic, "error", err)
			return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
		}
		if err := m.HandleCommand(key, cmd); err != nil {
			m.out.log().Warn("device command rejected", "key", string(key), "action", cmd.Action, "error", err)
			return err
		}
		return nil
	}
}
