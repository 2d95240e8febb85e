// Package database manages the shared SQL connection pool handed to plugins.
package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/forgekit/forgeflow/internal/config"
)

var (
	openConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forgeflow_db_open_connections",
		Help: "Open connections in the shared pool.",
	})
	idleConns = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forgeflow_db_idle_connections",
		Help: "Idle connections in the shared pool.",
	})
	waitCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "forgeflow_db_wait_count",
		Help: "Cumulative number of waits for a free connection.",
	})
)

// Connect opens the pool described by cfg, applies pool limits and verifies
// connectivity with a ping bounded by ctx.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is empty")
	}

	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	return db, nil
}

// WatchPool samples pool statistics into the Prometheus gauges until ctx is
// done. Run it in its own goroutine.
func WatchPool(ctx context.Context, db *sqlx.DB, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			openConns.Set(float64(stats.OpenConnections))
			idleConns.Set(float64(stats.Idle))
			waitCount.Set(float64(stats.WaitCount))
			if stats.WaitDuration > time.Second {
				logger.Warn("database pool under pressure",
					"wait_count", stats.WaitCount,
					"wait_duration", stats.WaitDuration)
			}
		}
	}
}
