// Package queue implements the durable offline operation queue: enqueueing
// with deduplication and TTL, the command registry, and the dispatcher that
// replays operations against their collaborators.
package queue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Mateo-Piedra22/gym-management-system-sub005/internal/store"
)

// HandlerFunc executes one replayed operation with its stored positional and
// named arguments.
type HandlerFunc func(ctx context.Context, args []any, kwargs map[string]any) error

// Registry maps (category, operation name) to the handler that executes it.
// Unknown names are rejected at enqueue time, not discovered at dispatch.
type Registry struct {
	mu       sync.RWMutex
	handlers map[store.Category]map[string]HandlerFunc
}

// NewRegistry creates an empty command registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[store.Category]map[string]HandlerFunc)}
}

// Register adds or replaces the handler for an operation name.
func (r *Registry) Register(category store.Category, name string, handler HandlerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byName := r.handlers[category]
	if byName == nil {
		byName = make(map[string]HandlerFunc)
		r.handlers[category] = byName
	}
	byName[name] = handler
	slog.Debug("Registry.Register", "category", category, "name", name)
}

// Lookup returns the handler for an operation name, if registered.
func (r *Registry) Lookup(category store.Category, name string) (HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[category][name]
	return handler, ok
}

// Known reports whether an operation name is registered for a category.
func (r *Registry) Known(category store.Category, name string) bool {
	_, ok := r.Lookup(category, name)
	return ok
}
