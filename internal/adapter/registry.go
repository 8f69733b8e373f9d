package adapter

import (
	"fmt"

	"github.com/danielbodnar/ngfw.sh-sub000/internal/protocol"
)

// Registry maps a ConfigSection to the Adapter responsible for it.
type Registry struct {
	adapters map[protocol.ConfigSection]Adapter
}

// NewRegistry builds a Registry from a set of adapters. A later adapter
// with the same Section() overwrites an earlier one — callers should
// register each section at most once.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[protocol.ConfigSection]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Section()] = a
	}
	return r
}

// Get returns the adapter for section, if one is registered.
func (r *Registry) Get(section protocol.ConfigSection) (Adapter, bool) {
	a, ok := r.adapters[section]
	return a, ok
}

// MustGet is like Get but returns an error instead of a bool, for call
// sites that want to propagate "no adapter for this section" as a
// single error value.
func (r *Registry) MustGet(section protocol.ConfigSection) (Adapter, error) {
	a, ok := r.adapters[section]
	if !ok {
		return nil, fmt.Errorf("adapter: no adapter registered for section %q", section)
	}
	return a, nil
}

// Sections returns every concrete section with a registered adapter,
// in protocol.AllSections order. Used to expand a Full config push
// into its per-section cross product.
func (r *Registry) Sections() []protocol.ConfigSection {
	out := make([]protocol.ConfigSection, 0, len(r.adapters))
	for _, s := range protocol.AllSections {
		if _, ok := r.adapters[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// All returns every registered adapter in Sections order.
func (r *Registry) All() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, s := range r.Sections() {
		out = append(out, r.adapters[s])
	}
	return out
}
