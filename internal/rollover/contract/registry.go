package contract

import (
	"fmt"
	"sort"
	"sync"
)

// AdapterConfig is passed to an adapter factory.
type AdapterConfig struct {
	GatewayURL string
	Address    string
}

// Factory builds the Client for one contract version.
type Factory func(cfg AdapterConfig) (Client, error)

// Registry maps contract versions to adapter factories. New contract versions
// register a new adapter rather than branching inside an existing one.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register installs the factory for version, replacing any previous one.
func (r *Registry) Register(version string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[version] = f
}

// New builds the adapter registered for version.
func (r *Registry) New(version string, cfg AdapterConfig) (Client, error) {
	r.mu.RLock()
	f, ok := r.factories[version]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownVersion, version)
	}
	return f(cfg)
}

// Versions lists registered versions in sorted order.
func (r *Registry) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for v := range r.factories {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
