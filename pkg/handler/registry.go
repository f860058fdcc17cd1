package handler

import (
	"context"
	"sort"
	"sync"

	"github.com/goran-ethernal/ChainRuntime/internal/common"
	"github.com/goran-ethernal/ChainRuntime/internal/logger"
)

// Func processes one item through its execution context.
type Func func(ctx context.Context, hc *Context) error

// EventHandler is the handler bound to a subscription key, with an optional loader
// that runs before it against the same context in read-only mode.
type EventHandler struct {
	Key     string
	Loader  Func
	Handler Func
}

// EventOption configures an event handler registration.
type EventOption func(*EventHandler)

// WithLoader sets the pre-fetch loader of an event handler.
func WithLoader(loader Func) EventOption {
	return func(h *EventHandler) {
		h.Loader = loader
	}
}

// Registry maps subscription keys ("Contract.Event") to event handlers and block job
// names to block callbacks.
type Registry struct {
	mu     sync.RWMutex
	events map[string]*EventHandler
	blocks map[string]Func
	log    *logger.Logger
}

// NewRegistry creates an empty handler registry.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Registry{
		events: make(map[string]*EventHandler),
		blocks: make(map[string]Func),
		log:    log.WithComponent(common.ComponentHandler),
	}
}

// OnEvent registers fn for a subscription key. A later registration for the same key
// replaces the earlier one.
func (r *Registry) OnEvent(key string, fn Func, opts ...EventOption) {
	h := &EventHandler{Key: key, Handler: fn}
	for _, opt := range opts {
		opt(h)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[key]; exists {
		r.log.Warnw("overwriting event handler", "key", key)
	}
	r.events[key] = h
}

// OnBlock registers the callback of a block job.
func (r *Registry) OnBlock(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.blocks[name]; exists {
		r.log.Warnw("overwriting block handler", "job", name)
	}
	r.blocks[name] = fn
}

// Event returns the handler registered for key.
func (r *Registry) Event(key string) (*EventHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.events[key]
	return h, ok
}

// Block returns the callback registered for a block job.
func (r *Registry) Block(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.blocks[name]
	return fn, ok
}

// EventKeys returns every registered subscription key, sorted.
func (r *Registry) EventKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.events))
	for k := range r.events {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BlockNames returns every registered block job name, sorted.
func (r *Registry) BlockNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.blocks))
	for n := range r.blocks {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
