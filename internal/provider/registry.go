package provider

import (
	"sort"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/contact-cli/internal/model"
)

// Registry holds the configured adapters.
type Registry struct {
	mu          sync.RWMutex
	adapters    map[string]Adapter
	discoverers map[string]Discoverer
	enrichers   map[string]Enricher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters:    make(map[string]Adapter),
		discoverers: make(map[string]Discoverer),
		enrichers:   make(map[string]Enricher),
	}
}

// Register adds an adapter. An adapter may implement both Discoverer and
// Enricher. Registering a name twice is an error.
func (r *Registry) Register(a Adapter) error {
	name := a.Metadata().Name
	if name == "" {
		return eris.New("provider: adapter has no name")
	}
	d, isD := a.(Discoverer)
	e, isE := a.(Enricher)
	if !isD && !isE {
		return eris.Errorf("provider: %s implements neither Discoverer nor Enricher", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[name]; ok {
		return eris.Errorf("provider: %s already registered", name)
	}
	r.adapters[name] = a
	if isD {
		r.discoverers[name] = d
	}
	if isE {
		r.enrichers[name] = e
	}
	return nil
}

// Get returns an adapter by name, or nil if not found.
func (r *Registry) Get(name string) Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.adapters[name]
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// Discoverers returns discovery adapters ordered by priority, then name.
func (r *Registry) Discoverers() []Discoverer {
	r.mu.RLock()
	out := make([]Discoverer, 0, len(r.discoverers))
	for _, d := range r.discoverers {
		out = append(out, d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Metadata(), out[j].Metadata()
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.Name < b.Name
	})
	return out
}

// EnrichersFor returns the enrichers that supply f, cheapest first. Ties
// are broken by priority, then name.
func (r *Registry) EnrichersFor(f model.Field) []Enricher {
	r.mu.RLock()
	var out []Enricher
	for _, e := range r.enrichers {
		if e.Metadata().Supplies(f) {
			out = append(out, e)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].Metadata(), out[j].Metadata()
		if a.UnitCostUSD != b.UnitCostUSD {
			return a.UnitCostUSD < b.UnitCostUSD
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.Name < b.Name
	})
	return out
}

// List returns the metadata of every adapter sorted by name.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	out := make([]Metadata, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a.Metadata())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Capabilities reports which interfaces the named adapter implements.
func (r *Registry) Capabilities(name string) (discover, enrich bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, discover = r.discoverers[name]
	_, enrich = r.enrichers[name]
	return discover, enrich
}
