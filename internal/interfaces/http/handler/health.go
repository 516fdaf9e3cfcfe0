package handler

import (
	"net/http"

	"github.com/enercompare/backend/internal/infrastructure/kv"
	"github.com/gin-gonic/gin"
)

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	store kv.Store
}

// NewHealthHandler creates a health handler
func NewHealthHandler(store kv.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

// Register registers the health endpoints directly on the engine, outside
// the versioned API group
func (h *HealthHandler) Register(engine *gin.Engine) {
	engine.GET("/health", h.Live)
	engine.GET("/ready", h.Ready)
}

// Live reports process liveness
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready reports readiness by probing the KV store
func (h *HealthHandler) Ready(c *gin.Context) {
	if _, err := h.store.Exists(c.Request.Context(), "health:probe"); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
