package server_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgekit/forgeflow/internal/config"
	"github.com/forgekit/forgeflow/internal/events"
	"github.com/forgekit/forgeflow/internal/plugin"
	"github.com/forgekit/forgeflow/internal/server"
	pkgplugin "github.com/forgekit/forgeflow/pkg/plugin"
)

type pingPlugin struct {
	meta pkgplugin.Metadata
}

func (p *pingPlugin) Manifest() pkgplugin.Metadata { return p.meta }

func (p *pingPlugin) Routes(r gin.IRouter) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pong": true})
	})
}

func newTestServer(t *testing.T) (*server.Server, *plugin.Manager) {
	return newTestServerWith(t, nil)
}

func newTestServerWith(t *testing.T, mutate func(*server.Options)) (*server.Server, *plugin.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	dir := filepath.Join(root, "ping")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"),
		[]byte(`{"name":"ping","version":"1.0.0"}`), 0o644))

	bus := events.NewBus(nil)
	mgr := plugin.NewManager(plugin.NewRegistry(), bus, plugin.Deps{}, nil)
	ldr := plugin.NewLoader(root, mgr, true, nil)
	ldr.RegisterBuiltin("ping", func() pkgplugin.Plugin {
		return &pingPlugin{meta: pkgplugin.Metadata{Name: "ping", Version: "1.0.0"}}
	})
	results := ldr.LoadAll(context.Background())
	require.Len(t, results, 1)
	require.True(t, results[0].OK)

	opts := server.Options{
		Config: config.ServerConfig{Host: "127.0.0.1", Port: 8080},
		Mgr:    mgr,
		Loader: ldr,
		Bus:    bus,
	}
	if mutate != nil {
		mutate(&opts)
	}
	return server.New(opts), mgr
}

func do(srv *server.Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.Engine().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestPluginRoutesMounted(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(srv, http.MethodGet, "/api/v1/ping/ping")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"pong":true}`, rec.Body.String())
}

func TestHealthEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(srv, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"plugins":1`)
}

func TestHealthUnhealthyWhenDatabaseDown(t *testing.T) {
	// Port 1 is never listening; the ping fails at request time.
	db, err := sqlx.Open("mysql", "forgeflow:forgeflow@tcp(127.0.0.1:1)/forgeflow?timeout=200ms")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	srv, _ := newTestServerWith(t, func(o *server.Options) { o.DB = db })

	rec := do(srv, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"unhealthy"`)
}

func TestHealthDegradedWhenCacheDown(t *testing.T) {
	cacheClient := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { cacheClient.Close() })

	srv, _ := newTestServerWith(t, func(o *server.Options) { o.Cache = cacheClient })

	// A missing cache degrades the host but does not take it down.
	rec := do(srv, http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"degraded"`)
}

func TestHealthEmitsBusEvent(t *testing.T) {
	srv, mgr := newTestServer(t)

	var statuses []string
	mgr.Bus().On(events.EventHealthCheck, func(p any) {
		statuses = append(statuses, p.(events.HealthCheck).Status)
	})

	do(srv, http.MethodGet, "/healthz")
	assert.Equal(t, []string{"ok"}, statuses)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(srv, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "forgeflow_plugins_registered")
}

func TestAdminPluginList(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := do(srv, http.MethodGet, "/api/v1/admin/plugins")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"ping"`)
	assert.Contains(t, rec.Body.String(), `"state":"enabled"`)
}

func TestAdminPluginDisableEnableCycle(t *testing.T) {
	srv, mgr := newTestServer(t)

	rec := do(srv, http.MethodPost, "/api/v1/admin/plugins/ping/disable")
	require.Equal(t, http.StatusOK, rec.Code)
	st, err := mgr.Status("ping")
	require.NoError(t, err)
	assert.Equal(t, plugin.StateDisabled, st.State)

	rec = do(srv, http.MethodPost, "/api/v1/admin/plugins/ping/enable")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"enabled"`)
}

func TestAdminUnknownPluginIs404(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{
		"/api/v1/admin/plugins/ghost",
		"/api/v1/admin/plugins/ghost/enable",
		"/api/v1/admin/plugins/ghost/disable",
		"/api/v1/admin/plugins/ghost/reload",
	} {
		method := http.MethodPost
		if path == "/api/v1/admin/plugins/ghost" {
			method = http.MethodGet
		}
		rec := do(srv, method, path)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

func TestAdminPluginReload(t *testing.T) {
	srv, mgr := newTestServer(t)

	rec := do(srv, http.MethodPost, "/api/v1/admin/plugins/ping/reload")
	require.Equal(t, http.StatusOK, rec.Code)
	st, err := mgr.Status("ping")
	require.NoError(t, err)
	assert.Equal(t, plugin.StateEnabled, st.State)
}

func TestRequestIDPropagation(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(server.RequestIDHeader, "abc-123")
	srv.Engine().ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(server.RequestIDHeader))

	rec = do(srv, http.MethodGet, "/healthz")
	assert.NotEmpty(t, rec.Header().Get(server.RequestIDHeader))
}
