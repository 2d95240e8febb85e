// Package plugin implements the plugin lifecycle subsystem: the registry of
// loaded plugins, the state machine driving their hooks, and discovery of
// plugin packages on disk.
package plugin

import (
	"context"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/forgekit/forgeflow/internal/events"
	"github.com/forgekit/forgeflow/internal/realtime"
	pkgplugin "github.com/forgekit/forgeflow/pkg/plugin"
)

// Deps are the external collaborator handles injected into every plugin
// context. The manager never constructs or calls these itself; it only
// forwards them. Cache and Realtime may be nil (degraded mode / feature off).
type Deps struct {
	DB       *sqlx.DB
	Cache    *redis.Client
	Realtime *realtime.Hub
}

// Manager drives each plugin through unloaded → loaded → enabled ⇄ disabled,
// with StateError absorbing any hook failure.
//
// The manager assumes at most one lifecycle operation per plugin name is in
// flight at a time; concurrent Enable/Disable calls on the same name race on
// the instance state and must be serialized by the caller.
type Manager struct {
	registry *Registry
	bus      *events.Bus
	deps     Deps
	log      *slog.Logger
}

// Status is a read-only projection of one plugin's state and identity.
type Status struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
	Author      string `json:"author,omitempty"`
	State       State  `json:"state"`
	Path        string `json:"path,omitempty"`
}

// NewManager creates a lifecycle manager publishing to bus and injecting deps
// into plugin contexts. If logger is nil, slog.Default is used.
func NewManager(registry *Registry, bus *events.Bus, deps Deps, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		registry: registry,
		bus:      bus,
		deps:     deps,
		log:      logger.With("component", "plugin-manager"),
	}
}

// Registry exposes the manager's registry for read access.
func (m *Manager) Registry() *Registry { return m.registry }

// Bus exposes the event bus the manager publishes on.
func (m *Manager) Bus() *events.Bus { return m.bus }

// Load builds a fresh plugin context, runs the plugin's OnLoad hook if it has
// one, registers the instance and emits plugin:loaded. On hook failure the
// instance ends in StateError, is NOT registered, and a *LoadError is
// returned; the caller decides whether to retry or skip.
func (m *Manager) Load(ctx context.Context, p pkgplugin.Plugin, meta pkgplugin.Metadata, path string) (*Instance, error) {
	inst := &Instance{
		Plugin: p,
		Meta:   meta,
		Context: &pkgplugin.Context{
			DB:       m.deps.DB,
			Cache:    m.deps.Cache,
			Bus:      m.bus,
			Log:      m.log.With("plugin", meta.Name),
			Realtime: m.deps.Realtime,
			Meta:     meta,
		},
		State: StateUnloaded,
		Path:  path,
	}

	if init, ok := p.(pkgplugin.Initializer); ok {
		if err := init.OnLoad(ctx, inst.Context); err != nil {
			inst.State = StateError
			hookFailures.WithLabelValues(meta.Name, "onLoad").Inc()
			return nil, &LoadError{Plugin: meta.Name, Err: err}
		}
	}

	inst.State = StateLoaded
	m.registry.Register(inst)
	registered.Set(float64(len(m.registry.Names())))
	lifecycleTransitions.WithLabelValues(meta.Name, string(StateLoaded)).Inc()
	m.log.Info("plugin loaded", "name", meta.Name, "version", meta.Version)
	m.bus.Emit(events.EventPluginLoaded, events.PluginLoaded{Name: meta.Name, Version: meta.Version})
	return inst, nil
}

// Enable runs the plugin's OnEnable hook and moves it to StateEnabled,
// emitting plugin:enabled. Enabling an already-enabled plugin is a no-op with
// no duplicate hook call or event.
func (m *Manager) Enable(ctx context.Context, name string) error {
	inst := m.registry.Get(name)
	if inst == nil {
		return &NotFoundError{Plugin: name}
	}
	if inst.State == StateEnabled {
		return nil
	}

	if act, ok := inst.Plugin.(pkgplugin.Activator); ok {
		if err := act.OnEnable(ctx, inst.Context); err != nil {
			inst.State = StateError
			hookFailures.WithLabelValues(name, "onEnable").Inc()
			return &LifecycleError{Plugin: name, Hook: "onEnable", Err: err}
		}
	}

	inst.State = StateEnabled
	lifecycleTransitions.WithLabelValues(name, string(StateEnabled)).Inc()
	m.log.Info("plugin enabled", "name", name)
	m.bus.Emit(events.EventPluginEnabled, events.PluginEnabled{Name: name})
	return nil
}

// Disable runs the plugin's OnDisable hook and moves it to StateDisabled,
// emitting plugin:disabled. Disabling a plugin that is already disabled, or
// that was never enabled, is a no-op.
func (m *Manager) Disable(ctx context.Context, name string) error {
	inst := m.registry.Get(name)
	if inst == nil {
		return &NotFoundError{Plugin: name}
	}
	if inst.State == StateDisabled || inst.State == StateLoaded {
		return nil
	}

	if deact, ok := inst.Plugin.(pkgplugin.Deactivator); ok {
		if err := deact.OnDisable(ctx, inst.Context); err != nil {
			inst.State = StateError
			hookFailures.WithLabelValues(name, "onDisable").Inc()
			return &LifecycleError{Plugin: name, Hook: "onDisable", Err: err}
		}
	}

	inst.State = StateDisabled
	lifecycleTransitions.WithLabelValues(name, string(StateDisabled)).Inc()
	m.log.Info("plugin disabled", "name", name)
	m.bus.Emit(events.EventPluginDisabled, events.PluginDisabled{Name: name})
	return nil
}

// Unload disables the plugin if it is enabled, runs its OnUnload hook and
// removes it from the registry, emitting plugin:unloaded. Unloading a name
// that is not registered succeeds as a no-op.
//
// If the disable step fails, OnUnload is still attempted so the plugin gets a
// chance to release resources; the disable error is reported when the rest of
// the unload succeeds. If OnUnload itself fails, the instance remains
// registered in StateError and a *LifecycleError naming onUnload is returned.
func (m *Manager) Unload(ctx context.Context, name string) error {
	inst := m.registry.Get(name)
	if inst == nil {
		return nil
	}

	var disableErr error
	if inst.State == StateEnabled {
		disableErr = m.Disable(ctx, name)
	}

	if fin, ok := inst.Plugin.(pkgplugin.Finalizer); ok {
		if err := fin.OnUnload(ctx, inst.Context); err != nil {
			inst.State = StateError
			hookFailures.WithLabelValues(name, "onUnload").Inc()
			return &LifecycleError{Plugin: name, Hook: "onUnload", Err: err}
		}
	}

	inst.State = StateUnloaded
	m.registry.Unregister(name)
	registered.Set(float64(len(m.registry.Names())))
	lifecycleTransitions.WithLabelValues(name, string(StateUnloaded)).Inc()
	m.log.Info("plugin unloaded", "name", name)
	m.bus.Emit(events.EventPluginUnloaded, events.PluginUnloaded{Name: name})
	return disableErr
}

// UnloadAll unloads every registered plugin in reverse registration order.
// Individual failures are logged and do not stop the sweep; shutdown always
// runs to completion.
func (m *Manager) UnloadAll(ctx context.Context) {
	names := m.registry.Names()
	for i := len(names) - 1; i >= 0; i-- {
		if err := m.Unload(ctx, names[i]); err != nil {
			m.log.Error("unload during shutdown failed", "name", names[i], "error", err)
		}
	}
}

// Status returns the state projection for one plugin.
func (m *Manager) Status(name string) (Status, error) {
	inst := m.registry.Get(name)
	if inst == nil {
		return Status{}, &NotFoundError{Plugin: name}
	}
	return statusOf(inst), nil
}

// Statuses returns state projections for all registered plugins in
// registration order.
func (m *Manager) Statuses() []Status {
	instances := m.registry.All()
	out := make([]Status, 0, len(instances))
	for _, inst := range instances {
		out = append(out, statusOf(inst))
	}
	return out
}

func statusOf(inst *Instance) Status {
	return Status{
		Name:        inst.Meta.Name,
		Version:     inst.Meta.Version,
		Description: inst.Meta.Description,
		Author:      inst.Meta.Author,
		State:       inst.State,
		Path:        inst.Path,
	}
}
