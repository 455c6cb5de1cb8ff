package myhome

import (
	"fmt"
	"slices"
	"sync"

	"github.com/nerrad567/myhome-bridge/internal/openwebnet"
)

// Handler is a device entity bound to one bus key.
type Handler interface {
	// Key returns the "<who>-<where>" key the handler owns.
	Key() openwebnet.Key

	// HandleEvent applies an inbound message to the handler's state.
	// Called synchronously from the listener goroutine.
	HandleEvent(msg openwebnet.Message)

	// AsyncUpdate asks the handler to poll its device, typically by
	// enqueueing a status request. It must not block.
	AsyncUpdate()
}

// KeySet is the read-only view of registered keys used by Classify.
type KeySet interface {
	Has(key openwebnet.Key) bool
}

// Registry maps handler keys to handlers. At most one handler is active
// per key. It is injected into the Gateway and mutated by device lifecycle
// code through Add and Remove.
type Registry struct {
	mu       sync.RWMutex
	handlers map[openwebnet.Key]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[openwebnet.Key]Handler)}
}

// Add registers h under h.Key(). Re-adding the same handler is a no-op.
func (r *Registry) Add(h Handler) error {
	key := h.Key()

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.handlers[key]; ok && existing != h {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, key)
	}
	r.handlers[key] = h
	return nil
}

// Remove unregisters the handler for key and reports whether one existed.
func (r *Registry) Remove(key openwebnet.Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.handlers[key]
	delete(r.handlers, key)
	return ok
}

// Get returns the handler for key.
func (r *Registry) Get(key openwebnet.Key) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[key]
	return h, ok
}

// Has reports whether a handler is registered for key.
func (r *Registry) Has(key openwebnet.Key) bool {
	_, ok := r.Get(key)
	return ok
}

// Len returns the number of registered handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []openwebnet.Key {
	r.mu.RLock()
	keys := make([]openwebnet.Key, 0, len(r.handlers))
	for k := range r.handlers {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	slices.Sort(keys)
	return keys
}

// Handlers returns the registered handlers ordered by key.
func (r *Registry) Handlers() []Handler {
	keys := r.Keys()
	out := make([]Handler, 0, len(keys))
	for _, k := range keys {
		if h, ok := r.Get(k); ok {
			out = append(out, h)
		}
	}
	return out
}
