package gateway

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates an uninitialized adapter instance.
type Factory func() Gateway

// Registry holds the known protocol families. Adapters register
// themselves in their package init, so importing an adapter package is
// what enables its kind.
type Registry struct {
	mu        sync.RWMutex
	factories map[Kind]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[Kind]Factory)}
}

// Register adds a protocol family. Registering the same kind twice
// panics: it is a programming error, not a runtime condition.
func (r *Registry) Register(kind Kind, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		panic(fmt.Sprintf("gateway: kind %q registered twice", kind))
	}
	r.factories[kind] = factory
}

// Known reports whether kind has a registered adapter.
func (r *Registry) Known(kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[kind]
	return ok
}

// Kinds returns the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kinds := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// New creates a fresh, uninitialized adapter for kind.
func (r *Registry) New(kind Kind) (Gateway, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("gateway: unknown kind: %s", kind)
	}
	return factory(), nil
}

// Resolve creates and initializes an adapter for kind with cfg.
func (r *Registry) Resolve(kind Kind, cfg Config) (Gateway, error) {
	gw, err := r.New(kind)
	if err != nil {
		return nil, err
	}
	if err := gw.Initialize(cfg); err != nil {
		return nil, err
	}
	return gw, nil
}

// DefaultRegistry is the process-wide registry the adapter packages
// register into.
var DefaultRegistry = NewRegistry()

// Register adds a kind to the default registry.
func Register(kind Kind, factory Factory) {
	DefaultRegistry.Register(kind, factory)
}

// Known reports whether the default registry knows kind.
func Known(kind Kind) bool {
	return DefaultRegistry.Known(kind)
}

// Resolve creates and initializes an adapter from the default registry.
func Resolve(kind Kind, cfg Config) (Gateway, error) {
	return DefaultRegistry.Resolve(kind, cfg)
}
