package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/amiyamandal-dev/feedsync/pkg/logger"
)

// HealthChecker reports whether a dependency is usable
type HealthChecker interface {
	HealthCheck() error
}

// HealthHandler handles health check requests
type HealthHandler struct {
	db     HealthChecker
	logger *logger.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db HealthChecker, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{
		db:     db,
		logger: logger.WithComponent("health-handler"),
	}
}

// Health returns basic health status
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(200, gin.H{
		"status": "ok",
	})
}

// Readiness checks if the message store can serve requests
func (h *HealthHandler) Readiness(c *gin.Context) {
	dbHealthy := h.db.HealthCheck() == nil

	status := "ready"
	code := 200
	if !dbHealthy {
		status = "not ready"
		code = 503
		h.logger.Warn("Readiness check failed", "database", dbHealthy)
	}

	c.JSON(code, gin.H{
		"status": status,
		"checks": map[string]interface{}{
			"database": map[string]interface{}{
				"healthy":  dbHealthy,
				"required": true,
			},
		},
	})
}

// Liveness checks if the service is alive
func (h *HealthHandler) Liveness(c *gin.Context) {
	c.JSON(200, gin.H{
		"status": "alive",
	})
}
