package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgekit/forgeflow/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	// Run from a directory without a config file so only defaults apply.
	t.Chdir(t.TempDir())

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "./plugins", cfg.Plugins.Dir)
	assert.True(t, cfg.Plugins.AutoEnable)
	assert.Equal(t, "mysql", cfg.Database.Driver)
	assert.Equal(t, 5*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, "forgeflow.events", cfg.Broker.Exchange)
	assert.True(t, cfg.Realtime.Enabled)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forgeflow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
log:
  level: debug
  format: json
plugins:
  dir: /opt/forgeflow/plugins
  auto_enable: false
database:
  driver: postgres
  dsn: "postgres://forgeflow@localhost/forgeflow?sslmode=disable"
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "/opt/forgeflow/plugins", cfg.Plugins.Dir)
	assert.False(t, cfg.Plugins.AutoEnable)
	assert.Equal(t, "postgres", cfg.Database.Driver)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("FORGEFLOW_SERVER_PORT", "7070")
	t.Setenv("FORGEFLOW_LOG_LEVEL", "warn")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Chdir(t.TempDir())

	t.Run("port out of range", func(t *testing.T) {
		t.Setenv("FORGEFLOW_SERVER_PORT", "70000")
		_, err := config.Load("")
		assert.ErrorContains(t, err, "server.port")
	})

	t.Run("unknown driver", func(t *testing.T) {
		t.Setenv("FORGEFLOW_DATABASE_DRIVER", "oracle")
		_, err := config.Load("")
		assert.ErrorContains(t, err, "database.driver")
	})
}
