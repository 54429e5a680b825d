package meta

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds schema metadata for all entities. Reads are safe for
// concurrent use; Replace swaps the whole set when schemas are reloaded.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*SchemaMeta
	order   []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{schemas: make(map[string]*SchemaMeta)}
}

// Register validates and adds a schema. A schema with the same name is
// replaced.
func (r *Registry) Register(s *SchemaMeta) error {
	if err := s.Validate(); err != nil {
		return fmt.Errorf("registering %s: %w", s.Name, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.schemas[s.Name]; !ok {
		r.order = append(r.order, s.Name)
		sort.Strings(r.order)
	}
	r.schemas[s.Name] = s
	return nil
}

// Replace validates every schema, then atomically swaps the registry
// content. On error the registry is left untouched.
func (r *Registry) Replace(schemas []*SchemaMeta) error {
	next := make(map[string]*SchemaMeta, len(schemas))
	order := make([]string, 0, len(schemas))
	for _, s := range schemas {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("registering %s: %w", s.Name, err)
		}
		if _, dup := next[s.Name]; !dup {
			order = append(order, s.Name)
		}
		next[s.Name] = s
	}
	sort.Strings(order)

	r.mu.Lock()
	r.schemas = next
	r.order = order
	r.mu.Unlock()
	return nil
}

// Schema returns the named schema or ErrUnknownSchema.
func (r *Registry) Schema(name string) (*SchemaMeta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSchema, name)
	}
	return s, nil
}

// ByEndpoint returns the schema served at the given API endpoint.
func (r *Registry) ByEndpoint(endpoint string) (*SchemaMeta, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.schemas {
		if s.APIEndpoint == endpoint {
			return s, true
		}
	}
	return nil, false
}

// Names returns all registered schema names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns every schema in name order.
func (r *Registry) All() []*SchemaMeta {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*SchemaMeta, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.schemas[n])
	}
	return out
}
