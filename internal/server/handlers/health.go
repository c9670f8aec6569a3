package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mozillians/internal/server/resp"
)

// Check is a named dependency probe.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

type HealthHandler struct {
	logger *zap.Logger
	checks []Check
}

func NewHealthHandler(logger *zap.Logger, checks ...Check) *HealthHandler {
	return &HealthHandler{logger: logger, checks: checks}
}

// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	for _, chk := range h.checks {
		if err := chk.Ping(ctx); err != nil {
			h.logger.Warn("health check failed", zap.String("check", chk.Name), zap.Error(err))
			resp.Error(c, http.StatusServiceUnavailable, "error.unavailable")
			return
		}
	}
	resp.OK(c, gin.H{"status": "ok"})
}
