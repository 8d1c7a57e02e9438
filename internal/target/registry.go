package target

import (
	"fmt"
	"sort"
	"sync"

	"github.com/yoanbernabeu/testfleet/internal/constants"
	"github.com/yoanbernabeu/testfleet/internal/security"
)

// Registry maps platform names to implementations
type Registry struct {
	mu        sync.RWMutex
	platforms map[string]Platform
}

// NewRegistry creates an empty platform registry
func NewRegistry() *Registry {
	return &Registry{platforms: make(map[string]Platform)}
}

// RegisterPlatform adds a platform under name. Names are unique.
func (r *Registry) RegisterPlatform(name string, p Platform) error {
	if name == "" {
		return fmt.Errorf("platform name cannot be empty")
	}
	if p == nil {
		return fmt.Errorf("platform %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.platforms[name]; exists {
		return fmt.Errorf("platform %q already registered", name)
	}
	r.platforms[name] = p
	return nil
}

// Get returns the platform registered under name
func (r *Registry) Get(name string) (Platform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.platforms[name]
	return p, ok
}

// Names returns the registered platform names, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.platforms))
	for name := range r.platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Spec is a validated target entry: where tests should run
type Spec struct {
	Name     string
	Platform string
	Params   Params
}

// Resolve validates a raw target entry against its platform schema.
// The entry carries "name" and "platform" next to the platform fields.
func (r *Registry) Resolve(entry map[string]any) (Spec, error) {
	name, _ := entry["name"].(string)
	if err := security.ValidateTargetName(name); err != nil {
		return Spec{}, fmt.Errorf("invalid target entry: %w", err)
	}

	platformName, _ := entry["platform"].(string)
	if platformName == "" {
		return Spec{}, fmt.Errorf("target %q: platform is required", name)
	}
	p, ok := r.Get(platformName)
	if !ok {
		return Spec{}, fmt.Errorf("target %q: unknown platform %q (available: %v)", name, platformName, r.Names())
	}

	fields := make(map[string]any, len(entry))
	for k, v := range entry {
		if k == "name" || k == "platform" {
			continue
		}
		fields[k] = v
	}

	params, err := p.Schema().Validate(fields)
	if err != nil {
		return Spec{}, fmt.Errorf("target %q: %w", name, err)
	}

	return Spec{Name: name, Platform: platformName, Params: params}, nil
}

// DefaultSpec returns the target used when the runbook declares none:
// the default platform with its schema defaults.
func (r *Registry) DefaultSpec() (Spec, error) {
	return r.Resolve(map[string]any{
		"name":     constants.DefaultTargetName,
		"platform": constants.DefaultPlatform,
	})
}
