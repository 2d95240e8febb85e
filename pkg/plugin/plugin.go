// Package plugin defines the contract between the forgeflow host and its
// plugins.
//
// A plugin is any value implementing Plugin. Lifecycle hooks, HTTP routes and
// scheduled jobs are all optional capabilities, declared by additionally
// implementing the corresponding interface below; the host discovers them
// with type assertions. A plugin that implements none of them is still valid.
package plugin

import (
	"context"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/forgekit/forgeflow/internal/events"
	"github.com/forgekit/forgeflow/internal/realtime"
)

// Metadata is the declared identity of a plugin package. It is read from the
// package descriptor at discovery time and must match what the plugin value
// itself reports via Manifest. Immutable once loaded.
type Metadata struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Author      string `json:"author,omitempty" yaml:"author,omitempty"`
	// Enabled defaults to true when absent from the descriptor. A descriptor
	// with enabled: false is skipped by discovery entirely.
	Enabled *bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// IsEnabled resolves the Enabled default.
func (m Metadata) IsEnabled() bool {
	return m.Enabled == nil || *m.Enabled
}

// Plugin is the minimal contract every plugin satisfies.
type Plugin interface {
	// Manifest returns the plugin's self-reported identity. Name and Version
	// must equal the package descriptor's or loading fails.
	Manifest() Metadata
}

// Initializer is implemented by plugins that need setup work at load time.
type Initializer interface {
	OnLoad(ctx context.Context, pc *Context) error
}

// Activator is implemented by plugins that do work when enabled.
type Activator interface {
	OnEnable(ctx context.Context, pc *Context) error
}

// Deactivator is implemented by plugins that do work when disabled.
type Deactivator interface {
	OnDisable(ctx context.Context, pc *Context) error
}

// Finalizer is implemented by plugins that release resources at unload time.
type Finalizer interface {
	OnUnload(ctx context.Context, pc *Context) error
}

// RouteProvider is implemented by plugins that expose HTTP endpoints. Routes
// is called synchronously with a fresh sub-router mounted at
// /api/v1/<plugin-name>; the plugin attaches its handlers to it.
type RouteProvider interface {
	Routes(r gin.IRouter)
}

// Job is a scheduled task declared by a plugin.
type Job struct {
	// ID must be unique within the plugin.
	ID string
	// Schedule is a standard cron expression, e.g. "0 * * * *".
	Schedule string
	Run      func(ctx context.Context) error
}

// JobProvider is implemented by plugins that declare scheduled jobs. Jobs of
// enabled plugins are registered with the host scheduler after loading.
type JobProvider interface {
	Jobs() []Job
}

// Context bundles the capability handles a plugin receives from the host. It
// is built once per plugin at load time, shared by reference into every hook
// invocation, and never mutated after creation.
type Context struct {
	// DB is the shared persistence handle. The host connects and owns it;
	// plugins only issue queries.
	DB *sqlx.DB
	// Cache is the shared redis client, possibly nil in degraded mode.
	Cache *redis.Client
	// Bus is the process-wide event bus used for lifecycle notifications and
	// inter-plugin messaging.
	Bus *events.Bus
	// Log is scoped to the plugin: every record carries its name.
	Log *slog.Logger
	// Realtime is the websocket transport, nil when the feature is disabled.
	Realtime *realtime.Hub
	// Meta is the plugin's own descriptor metadata.
	Meta Metadata
}
