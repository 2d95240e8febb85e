// Command forgeflow runs the plugin host: it discovers and loads plugin
// packages, mounts their routes and serves the admin API.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/forgekit/forgeflow/internal/broker"
	"github.com/forgekit/forgeflow/internal/cache"
	"github.com/forgekit/forgeflow/internal/config"
	"github.com/forgekit/forgeflow/internal/database"
	"github.com/forgekit/forgeflow/internal/events"
	"github.com/forgekit/forgeflow/internal/logging"
	"github.com/forgekit/forgeflow/internal/plugin"
	"github.com/forgekit/forgeflow/internal/plugin/example"
	"github.com/forgekit/forgeflow/internal/realtime"
	"github.com/forgekit/forgeflow/internal/server"
	pkgplugin "github.com/forgekit/forgeflow/pkg/plugin"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "forgeflow",
		Short:         "Plugin host and admin API",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Load plugins and serve HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cfgPath)
		},
	}
	serve.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	root.AddCommand(serve)
	root.AddCommand(newPluginCmd())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("forgeflow", version)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	logger := logging.Setup(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer db.Close()
	go database.WatchPool(ctx, db, logger)

	// Cache and broker are optional collaborators; without them the host
	// runs degraded rather than refusing to start.
	redisClient, err := cache.Connect(ctx, cfg.Redis)
	if err != nil {
		logger.Warn("cache unavailable, continuing without it", "error", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
	}

	bus := events.NewBus(logger)

	var hub *realtime.Hub
	if cfg.Realtime.Enabled {
		hub = realtime.NewHub(logger)
		defer hub.Close()
		realtime.BindBus(hub, bus)
	}

	if err := broker.Connect(cfg.Broker, logger); err != nil {
		logger.Warn("broker unavailable, continuing without it", "error", err)
	} else {
		defer broker.Close()
	}
	broker.BindBus(bus)

	mgr := plugin.NewManager(plugin.NewRegistry(), bus, plugin.Deps{
		DB:       db,
		Cache:    redisClient,
		Realtime: hub,
	}, logger)

	loader := plugin.NewLoader(cfg.Plugins.Dir, mgr, cfg.Plugins.AutoEnable, logger)
	loader.RegisterBuiltin("echo", func() pkgplugin.Plugin { return example.New() })

	for _, res := range loader.LoadAll(ctx) {
		if !res.OK {
			logger.Error("plugin rejected", "name", res.Plugin, "error", res.Err)
		}
	}

	srv := server.New(server.Options{
		Config: cfg.Server,
		Mgr:    mgr,
		Loader: loader,
		Bus:    bus,
		Hub:    hub,
		DB:     db,
		Cache:  redisClient,
		Logger: logger,
	})

	scheduler := cron.New()
	jobs := plugin.RegisterJobs(mgr, scheduler, logger)
	scheduler.Start()
	logger.Info("scheduler started", "jobs", jobs)

	httpSrv := srv.HTTPServer()
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpSrv.Addr, "version", version)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	bus.Emit(events.EventShutdown, events.Shutdown{Reason: "signal"})

	cronCtx := scheduler.Stop()
	<-cronCtx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	mgr.UnloadAll(shutdownCtx)

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}

	// Wait a beat so in-flight websocket writes drain before handles close.
	time.Sleep(50 * time.Millisecond)
	return nil
}
