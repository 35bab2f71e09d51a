package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/osamaloay/TicketsBooking-sub000/internal/dto"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker func(ctx context.Context) error

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checks map[string]HealthChecker
}

// NewHealthHandler creates a new HealthHandler. Nil checkers are reported as not configured.
func NewHealthHandler(checks map[string]HealthChecker) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health returns a simple health check (liveness probe)
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{Status: "healthy"})
}

// Ready returns a readiness check (readiness probe)
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	results := make(map[string]string, len(h.checks))
	allHealthy := true
	for name, check := range h.checks {
		if check == nil {
			results[name] = "not configured"
			continue
		}
		if err := check(ctx); err != nil {
			results[name] = "unhealthy: " + err.Error()
			allHealthy = false
			continue
		}
		results[name] = "healthy"
	}

	if !allHealthy {
		c.JSON(http.StatusServiceUnavailable, dto.HealthResponse{Status: "not ready", Checks: results})
		return
	}
	c.JSON(http.StatusOK, dto.HealthResponse{Status: "ready", Checks: results})
}
