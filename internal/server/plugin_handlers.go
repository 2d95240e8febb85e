package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/forgekit/forgeflow/internal/plugin"
)

// handlePluginList returns all registered plugins with their states.
// GET /api/v1/admin/plugins
func (s *Server) handlePluginList(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"plugins": s.mgr.Statuses()})
}

// handlePluginStatus returns one plugin's state projection.
// GET /api/v1/admin/plugins/:name
func (s *Server) handlePluginStatus(c *gin.Context) {
	st, err := s.mgr.Status(c.Param("name"))
	if err != nil {
		writePluginError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// handlePluginEnable enables a loaded plugin.
// POST /api/v1/admin/plugins/:name/enable
func (s *Server) handlePluginEnable(c *gin.Context) {
	name := c.Param("name")
	if err := s.mgr.Enable(c.Request.Context(), name); err != nil {
		writePluginError(c, err)
		return
	}
	st, _ := s.mgr.Status(name)
	c.JSON(http.StatusOK, st)
}

// handlePluginDisable disables an enabled plugin.
// POST /api/v1/admin/plugins/:name/disable
func (s *Server) handlePluginDisable(c *gin.Context) {
	name := c.Param("name")
	if err := s.mgr.Disable(c.Request.Context(), name); err != nil {
		writePluginError(c, err)
		return
	}
	st, _ := s.mgr.Status(name)
	c.JSON(http.StatusOK, st)
}

// handlePluginReload tears a plugin down and loads it again from its source
// directory. Routes mounted for the previous instance are not remounted.
// POST /api/v1/admin/plugins/:name/reload
func (s *Server) handlePluginReload(c *gin.Context) {
	name := c.Param("name")
	if err := s.loader.Reload(c.Request.Context(), name); err != nil {
		writePluginError(c, err)
		return
	}
	st, err := s.mgr.Status(name)
	if err != nil {
		// Reload of a descriptor-disabled plugin succeeds but leaves
		// nothing registered.
		c.JSON(http.StatusOK, gin.H{"name": name, "state": string(plugin.StateUnloaded)})
		return
	}
	c.JSON(http.StatusOK, st)
}

func writePluginError(c *gin.Context, err error) {
	var nf *plugin.NotFoundError
	if errors.As(err, &nf) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	var lce *plugin.LifecycleError
	if errors.As(err, &lce) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "plugin": lce.Plugin, "hook": lce.Hook})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
