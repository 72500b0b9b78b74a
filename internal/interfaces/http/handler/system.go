package handler

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stockroom/backend/internal/infrastructure/persistence/tenant"
	"github.com/stockroom/backend/internal/interfaces/http/dto"
)

// RegistryStatus reports the liveness of cached tenant handles
type RegistryStatus interface {
	Status(ctx context.Context) []tenant.HandleStatus
}

// SystemHandler serves health information
type SystemHandler struct {
	BaseHandler
	registry  RegistryStatus
	name      string
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(registry RegistryStatus, name string) *SystemHandler {
	return &SystemHandler{
		registry:  registry,
		name:      name,
		startTime: time.Now(),
	}
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string                `json:"status"`
	Name      string                `json:"name"`
	GoVersion string                `json:"go_version"`
	Uptime    string                `json:"uptime"`
	Tenants   []tenant.HandleStatus `json:"tenants"`
}

// Health godoc
// @Summary      Service health with per-tenant handle liveness
// @Description  Status is degraded when a cached tenant handle does not answer.
// @Tags         system
// @Router       /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	tenants := h.registry.Status(ctx)
	status := "ok"
	for _, t := range tenants {
		if !t.Live {
			status = "degraded"
			break
		}
	}

	c.JSON(http.StatusOK, dto.NewSuccessResponse(HealthResponse{
		Status:    status,
		Name:      h.name,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Tenants:   tenants,
	}))
}
