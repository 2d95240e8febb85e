// Package example provides a builtin plugin used in tests and as a reference
// for plugin authors.
package example

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/forgekit/forgeflow/internal/broker"
	"github.com/forgekit/forgeflow/pkg/plugin"
)

// EchoPlugin is a small plugin demonstrating every optional capability:
// lifecycle hooks, HTTP routes, a scheduled job, and event bus usage.
type EchoPlugin struct {
	pc    *plugin.Context
	calls atomic.Int64
}

// New creates an echo plugin instance.
func New() *EchoPlugin {
	return &EchoPlugin{}
}

// Manifest implements plugin.Plugin.
func (p *EchoPlugin) Manifest() plugin.Metadata {
	return plugin.Metadata{
		Name:        "echo",
		Version:     "1.0.0",
		Description: "Echoes requests back and counts them",
		Author:      "ForgeKit Team",
	}
}

// OnLoad implements plugin.Initializer.
func (p *EchoPlugin) OnLoad(ctx context.Context, pc *plugin.Context) error {
	p.pc = pc
	pc.Log.Info("echo plugin loaded")
	return nil
}

// OnEnable implements plugin.Activator. It subscribes to a custom event so
// other plugins can ping it over the bus, and to the matching broker routing
// key so remote deployments can too.
func (p *EchoPlugin) OnEnable(ctx context.Context, pc *plugin.Context) error {
	pc.Bus.On("custom:echo-ping", func(payload any) {
		p.calls.Add(1)
		pc.Log.Info("ping received", "payload", payload)
	})
	return broker.Subscribe("custom.echo-ping", func(ctx context.Context, key string, body []byte) {
		p.calls.Add(1)
		pc.Log.Info("remote ping received", "routing_key", key)
	})
}

// OnDisable implements plugin.Deactivator.
func (p *EchoPlugin) OnDisable(ctx context.Context, pc *plugin.Context) error {
	pc.Log.Info("echo plugin disabled")
	return nil
}

// OnUnload implements plugin.Finalizer.
func (p *EchoPlugin) OnUnload(ctx context.Context, pc *plugin.Context) error {
	pc.Log.Info("echo plugin unloaded", "total_calls", p.calls.Load())
	return nil
}

// Routes implements plugin.RouteProvider. The group is mounted at
// /api/v1/echo by the host.
func (p *EchoPlugin) Routes(r gin.IRouter) {
	r.GET("/", func(c *gin.Context) {
		p.calls.Add(1)
		c.JSON(http.StatusOK, gin.H{
			"message":   "echo",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})
	r.POST("/say", func(c *gin.Context) {
		p.calls.Add(1)
		var req struct {
			Text string `json:"text"`
		}
		if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("you said: %s", req.Text)})
	})
	r.GET("/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"call_count": p.calls.Load()})
	})
}

// Jobs implements plugin.JobProvider. The heartbeat keeps the cache entry for
// this plugin fresh when a cache is available.
func (p *EchoPlugin) Jobs() []plugin.Job {
	return []plugin.Job{
		{
			ID:       "heartbeat",
			Schedule: "@every 1m",
			Run: func(ctx context.Context) error {
				if p.pc == nil {
					return nil
				}
				if p.pc.Cache != nil {
					if err := p.pc.Cache.Set(ctx, "echo:heartbeat", time.Now().Unix(), 2*time.Minute).Err(); err != nil {
						return err
					}
				}
				p.pc.Bus.Emit("custom:echo-heartbeat", p.calls.Load())
				return broker.Publish(ctx, "custom.echo-heartbeat", p.calls.Load())
			},
		},
	}
}
