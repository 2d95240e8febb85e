package plugin

import (
	"sync"

	pkgplugin "github.com/forgekit/forgeflow/pkg/plugin"
)

// State is the lifecycle position of a plugin instance. Transitions are
// driven exclusively by the Manager; StateError is absorbing until an
// explicit unload-and-reload cycle.
type State string

const (
	StateUnloaded State = "unloaded"
	StateLoaded   State = "loaded"
	StateEnabled  State = "enabled"
	StateDisabled State = "disabled"
	StateError    State = "error"
)

// Instance is the registry record for a loaded plugin. Created by
// Manager.Load; its State field is mutated only by the Manager.
type Instance struct {
	Plugin  pkgplugin.Plugin
	Meta    pkgplugin.Metadata
	Context *pkgplugin.Context
	State   State
	// Path is the plugin package's source directory, kept for Reload.
	Path string
}

// Registry is the authoritative in-memory map from plugin name to Instance,
// preserving registration order for All and for reverse-order shutdown.
//
// Pure bookkeeping, no I/O. Guarded by a RWMutex so HTTP handlers can read it
// while the single lifecycle goroutine mutates it.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Instance
	ordered []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Instance)}
}

// Get returns the instance registered under name, or nil.
func (r *Registry) Get(name string) *Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// Has reports whether a plugin is registered under name.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[name]
	return ok
}

// All returns every registered instance in registration order.
func (r *Registry) All() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Instance, 0, len(r.ordered))
	for _, name := range r.ordered {
		out = append(out, r.byName[name])
	}
	return out
}

// Enabled returns the registered instances currently in StateEnabled, in
// registration order.
func (r *Registry) Enabled() []*Instance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Instance
	for _, name := range r.ordered {
		if inst := r.byName[name]; inst.State == StateEnabled {
			out = append(out, inst)
		}
	}
	return out
}

// Register inserts inst under its metadata name, silently overwriting any
// existing entry with the same name. An overwrite keeps the original
// registration position.
func (r *Registry) Register(inst *Instance) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := inst.Meta.Name
	if _, exists := r.byName[name]; !exists {
		r.ordered = append(r.ordered, name)
	}
	r.byName[name] = inst
}

// Unregister removes the entry under name and reports whether one existed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byName[name]; !ok {
		return false
	}
	delete(r.byName, name)
	for i, n := range r.ordered {
		if n == name {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
	return true
}

// Names returns the registered plugin names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.ordered))
	copy(out, r.ordered)
	return out
}
