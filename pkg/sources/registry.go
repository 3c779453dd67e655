package sources

import (
	"sort"
	"sync"

	"github.com/kumoreads/kumo/pkg/errcodes"
)

// Registry holds the registered adapters indexed by slug.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
	}
}

// Register adds an adapter. Registering two adapters under the same slug is a
// wiring bug, so it's reported as a conflict rather than silently replaced.
func (r *Registry) Register(adapter Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.adapters[adapter.ID()]; ok {
		return errcodes.Conflict("An adapter with this slug is already registered.")
	}
	r.adapters[adapter.ID()] = adapter
	return nil
}

func (r *Registry) Get(id string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapter, ok := r.adapters[id]
	return adapter, ok
}

// List returns all adapters ordered by slug.
func (r *Registry) List() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()

	adapters := make([]Adapter, 0, len(r.adapters))
	for _, adapter := range r.adapters {
		adapters = append(adapters, adapter)
	}
	sort.Slice(adapters, func(i, j int) bool {
		return adapters[i].ID() < adapters[j].ID()
	})
	return adapters
}
