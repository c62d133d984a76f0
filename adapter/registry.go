package adapter

import (
	"fmt"
	"sort"
	"sync"
)

// Registry is a thread-safe registry of Adapters keyed by provider tag,
// generalized directly from the teacher's llm/registry.go
// ProviderRegistry.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds or replaces the adapter for providerTag.
func (r *Registry) Register(providerTag string, a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[providerTag] = a
}

// Get retrieves the adapter registered for providerTag.
func (r *Registry) Get(providerTag string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[providerTag]
	return a, ok
}

// MustGet retrieves the adapter for providerTag or returns an error
// naming it, used by the router when a configured provider has no
// registered adapter.
func (r *Registry) MustGet(providerTag string) (Adapter, error) {
	a, ok := r.Get(providerTag)
	if !ok {
		return nil, fmt.Errorf("no adapter registered for provider %q", providerTag)
	}
	return a, nil
}

// List returns the sorted provider tags with a registered adapter.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tags := make([]string, 0, len(r.adapters))
	for tag := range r.adapters {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// Unregister removes providerTag's adapter, if any.
func (r *Registry) Unregister(providerTag string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, providerTag)
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}
