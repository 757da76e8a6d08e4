// Package provider implements the registry and shared plumbing for LLM
// tool adapters. Each adapter subpackage translates the neutral message
// shape to one upstream wire format.
package provider

import (
	"maps"
	"slices"
	"sync"

	core "github.com/switchboard-ai/switchboard/internal"
)

// Registry holds the configured tool adapters keyed by tool name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]core.Adapter
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]core.Adapter)}
}

// Register adds an adapter under its own name, replacing any previous
// adapter with the same name.
func (r *Registry) Register(a core.Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns the adapter for a tool name.
func (r *Registry) Get(name string) (core.Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// List returns the registered tool names in sorted order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.adapters))
}

// All returns the registered adapters sorted by tool name.
func (r *Registry) All() []core.Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.Adapter, 0, len(r.adapters))
	for _, name := range slices.Sorted(maps.Keys(r.adapters)) {
		out = append(out, r.adapters[name])
	}
	return out
}
