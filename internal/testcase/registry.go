package testcase

import (
	"fmt"
	"sync"

	"github.com/yoanbernabeu/testfleet/internal/security"
)

// Registry holds the cases known to the local runner, in registration order
type Registry struct {
	mu     sync.RWMutex
	cases  []*Case
	byName map[string]*Case
}

// NewRegistry creates an empty case registry
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Case)}
}

// Register adds c. Full names must be unique.
func (r *Registry) Register(c *Case) error {
	if c.Name == "" {
		return fmt.Errorf("case name cannot be empty")
	}
	if c.Run == nil {
		return fmt.Errorf("case %s has no body", c.FullName())
	}
	if c.Scope < ScopeFunction || c.Scope > ScopeModule {
		return fmt.Errorf("case %s: invalid scope %s", c.FullName(), c.Scope)
	}
	for _, f := range c.Features {
		if err := security.ValidateFeature(f); err != nil {
			return fmt.Errorf("case %s: %w", c.FullName(), err)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	name := c.FullName()
	if _, exists := r.byName[name]; exists {
		return fmt.Errorf("case %s already registered", name)
	}
	r.byName[name] = c
	r.cases = append(r.cases, c)
	return nil
}

// MustRegister registers every case and panics on the first error
func (r *Registry) MustRegister(cases ...*Case) {
	for _, c := range cases {
		if err := r.Register(c); err != nil {
			panic(err)
		}
	}
}

// Get returns the case registered under its full name
func (r *Registry) Get(fullName string) (*Case, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[fullName]
	return c, ok
}

// Cases returns every registered case in registration order
func (r *Registry) Cases() []*Case {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*Case(nil), r.cases...)
}

// Select returns the cases matched by at least one filter, in
// registration order and without duplicates.
func (r *Registry) Select(filters []*CriteriaFilter) []*Case {
	var out []*Case
	for _, c := range r.Cases() {
		for _, f := range filters {
			if f.Match(c) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}
