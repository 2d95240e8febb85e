package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/forgekit/forgeflow/internal/broker"
	"github.com/forgekit/forgeflow/internal/events"
)

// handleHealth reports the health of every attached collaborator. A failing
// database makes the host unhealthy (503); a failing cache or broker only
// degrades it (200), matching startup, which refuses to run without a
// database but tolerates the optional collaborators. The body always carries
// the per-check breakdown, and each invocation emits system:health-check on
// the bus so plugins can piggyback their own probes.
func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()

	checks := gin.H{}
	status := "ok"
	degrade := func() {
		if status == "ok" {
			status = "degraded"
		}
	}

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			checks["database"] = err.Error()
			status = "unhealthy"
		} else {
			checks["database"] = "ok"
		}
	}
	if s.cache != nil {
		if err := s.cache.Ping(ctx).Err(); err != nil {
			checks["cache"] = err.Error()
			degrade()
		} else {
			checks["cache"] = "ok"
		}
	}
	if broker.Enabled() {
		if err := broker.Check(); err != nil {
			checks["broker"] = err.Error()
			degrade()
		} else {
			checks["broker"] = "ok"
		}
	}
	checks["plugins"] = len(s.mgr.Statuses())

	code := http.StatusOK
	if status == "unhealthy" {
		code = http.StatusServiceUnavailable
	}

	s.bus.Emit(events.EventHealthCheck, events.HealthCheck{Status: status})

	c.JSON(code, gin.H{
		"status": status,
		"time":   time.Now().UTC().Format(time.RFC3339),
		"checks": checks,
	})
}
