package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/reconurge/flowsint"
)

// Registry holds named plugin instances.
//
// Plugins register under a unique name at load time: code plugins via static
// declaration, template plugins via loading declarative definitions from a
// directory at startup. Duplicate names are a load-time error, never a
// runtime one. After startup the registry is read-only; concurrent lookups
// require no synchronization beyond the internal read lock.
type Registry struct {
	mu      sync.RWMutex
	plugins map[string]Plugin
}

// NewRegistry creates an empty plugin registry.
func NewRegistry() *Registry {
	return &Registry{plugins: make(map[string]Plugin)}
}

// Register adds a plugin to the registry.
// A duplicate name is a configuration error and should abort startup.
func (r *Registry) Register(p Plugin) error {
	if p == nil {
		return flowsint.NewConfigurationError("Registry.Register",
			fmt.Errorf("plugin cannot be nil"))
	}
	if p.Name() == "" {
		return flowsint.NewConfigurationError("Registry.Register",
			fmt.Errorf("plugin name cannot be empty"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.plugins[p.Name()]; exists {
		return flowsint.NewConfigurationError("Registry.Register",
			fmt.Errorf("duplicate plugin name: %s", p.Name()))
	}

	r.plugins[p.Name()] = p
	return nil
}

// Get returns the plugin registered under the given name.
// Unknown names fail with a not_found error.
func (r *Registry) Get(name string) (Plugin, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.plugins[name]
	if !ok {
		return nil, flowsint.NewNotFoundError("Registry.Get",
			fmt.Errorf("%w: %s", flowsint.ErrPluginNotFound, name))
	}
	return p, nil
}

// Names returns the sorted names of all registered plugins.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}

	sort.Strings(names)
	return names
}

// ByCategory returns the registered plugins in the given category,
// sorted by name.
func (r *Registry) ByCategory(category string) []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []Plugin
	for _, p := range r.plugins {
		if p.Category() == category {
			matched = append(matched, p)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Name() < matched[j].Name()
	})
	return matched
}

// ByInputKind returns the registered plugins that consume the given entity
// kind, sorted by name. External orchestration uses this to present an
// analyst with the plugins applicable to a selection.
func (r *Registry) ByInputKind(kind string) []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []Plugin
	for _, p := range r.plugins {
		if p.InputKind() == kind {
			matched = append(matched, p)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Name() < matched[j].Name()
	})
	return matched
}
