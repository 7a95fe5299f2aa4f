package tool

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// Registry is the read-only catalogue the resolver consults.
type Registry interface {
	Resolve(name string) (Tool, bool)
}

// DependencyProvider is implemented by registries that know which other
// tools a tool depends on.
type DependencyProvider interface {
	Dependencies(name string) []string
}

// StaticRegistry is an in-memory Registry. It is safe for concurrent use;
// registration is expected at startup.
type StaticRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	deps  map[string][]string
}

// NewStaticRegistry creates a registry holding tools.
func NewStaticRegistry(tools ...Tool) (*StaticRegistry, error) {
	r := &StaticRegistry{tools: map[string]Tool{}, deps: map[string][]string{}}
	if err := r.Register(tools...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register adds tools; a duplicate name is an error.
func (r *StaticRegistry) Register(tools ...Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		if t == nil || t.Name() == "" {
			return errors.New("tool with empty name")
		}
		if _, dup := r.tools[t.Name()]; dup {
			return fmt.Errorf("tool %q already registered", t.Name())
		}
		r.tools[t.Name()] = t
	}
	return nil
}

// SetDependencies records the tools name depends on.
func (r *StaticRegistry) SetDependencies(name string, deps ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deps[name] = slices.Clone(deps)
}

// Resolve implements Registry.
func (r *StaticRegistry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Dependencies implements DependencyProvider.
func (r *StaticRegistry) Dependencies(name string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.deps[name])
}

// Names returns the registered tool names in sorted order.
func (r *StaticRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
