package backend

import (
	"fmt"
	"sort"
)

// Factory constructs a backend bound to a service client and the shared
// runner configuration.
type Factory func(client APIClient, cfg RunnerConfig) Backend

// Registry maps resource names to backend factories. It is populated once at
// process start and is read-only afterwards, so lookups need no locking.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a factory under a resource name. Registering the same name
// twice is a programmer error and panics, matching startup-time wiring.
func (r *Registry) Register(name string, factory Factory) {
	if _, exists := r.factories[name]; exists {
		panic(fmt.Sprintf("backend %q already registered", name))
	}
	r.factories[name] = factory
}

// Load constructs the backend registered under name. Lookup is case-exact.
// An unknown name returns nil rather than an error so the caller can compose
// its own message from Names; the full valid-name list belongs at the call
// site, not here.
func (r *Registry) Load(name string, client APIClient, cfg RunnerConfig) Backend {
	factory, ok := r.factories[name]
	if !ok {
		return nil
	}
	return factory(client, cfg)
}

// Names returns all registered resource names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
