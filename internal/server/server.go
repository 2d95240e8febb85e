// Package server wires the HTTP surface: health, metrics, the admin plugin
// API, the realtime feed and the per-plugin route groups.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/forgekit/forgeflow/internal/config"
	"github.com/forgekit/forgeflow/internal/events"
	"github.com/forgekit/forgeflow/internal/plugin"
	"github.com/forgekit/forgeflow/internal/realtime"
)

// Server owns the gin engine and the collaborators its handlers touch.
type Server struct {
	engine *gin.Engine
	cfg    config.ServerConfig
	mgr    *plugin.Manager
	loader *plugin.Loader
	bus    *events.Bus
	hub    *realtime.Hub
	db     *sqlx.DB
	cache  *redis.Client
	log    *slog.Logger
}

// Options collects the collaborators handed to New. DB, Cache and Hub may be
// nil when the matching subsystem is not configured.
type Options struct {
	Config config.ServerConfig
	Mgr    *plugin.Manager
	Loader *plugin.Loader
	Bus    *events.Bus
	Hub    *realtime.Hub
	DB     *sqlx.DB
	Cache  *redis.Client
	Logger *slog.Logger
}

// New builds the engine and registers every route. Plugin routes are mounted
// under /api/v1/<plugin-name> for the plugins enabled at call time.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	engine := gin.New()
	engine.Use(RequestID(), RequestLogger(opts.Logger), Recovery(opts.Logger))

	s := &Server{
		engine: engine,
		cfg:    opts.Config,
		mgr:    opts.Mgr,
		loader: opts.Loader,
		bus:    opts.Bus,
		hub:    opts.Hub,
		db:     opts.DB,
		cache:  opts.Cache,
		log:    opts.Logger.With("component", "server"),
	}

	engine.GET("/healthz", s.handleHealth)
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api/v1")

	admin := api.Group("/admin")
	admin.GET("/plugins", s.handlePluginList)
	admin.GET("/plugins/:name", s.handlePluginStatus)
	admin.POST("/plugins/:name/enable", s.handlePluginEnable)
	admin.POST("/plugins/:name/disable", s.handlePluginDisable)
	admin.POST("/plugins/:name/reload", s.handlePluginReload)

	if s.hub != nil {
		engine.GET("/ws", s.hub.Handler())
	}

	s.loader.MountRoutes(api)
	return s
}

// Engine exposes the router, mainly for tests.
func (s *Server) Engine() *gin.Engine { return s.engine }

// HTTPServer wraps the engine in an http.Server with the configured listen
// address and timeouts, ready for ListenAndServe and Shutdown.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.engine,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
}
