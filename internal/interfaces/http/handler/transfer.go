package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/stockroom/backend/internal/application/transfer"
	"github.com/stockroom/backend/internal/domain/identity"
	"github.com/stockroom/backend/internal/domain/shared"
	"github.com/stockroom/backend/internal/interfaces/http/dto"
	"github.com/stockroom/backend/internal/interfaces/http/middleware"
)

// TransferHandler moves products out of the request's tenant
type TransferHandler struct {
	BaseHandler
	orchestrator *transfer.Orchestrator
	resolver     middleware.TenantResolver
}

// NewTransferHandler creates a new TransferHandler. The resolver admits the
// caller to the destination tenant.
func NewTransferHandler(orchestrator *transfer.Orchestrator, resolver middleware.TenantResolver) *TransferHandler {
	return &TransferHandler{
		orchestrator: orchestrator,
		resolver:     resolver,
	}
}

// RegisterRoutes registers the transfer routes on a tenant-scoped group
func (h *TransferHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/transfers", h.Transfer)
	rg.GET("/transfers/partial", h.ListPartial)
}

// Transfer godoc
// @Summary      Move or copy a product to another tenant
// @Description  Answers 200 with outcome moved or copied, or 202 with outcome
// @Description  partial_transfer when the source could not be deleted.
// @Tags         transfer
// @Router       /transfers [post]
func (h *TransferHandler) Transfer(c *gin.Context) {
	src, ok := h.partition(c)
	if !ok {
		return
	}
	var req transfer.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, err)
		return
	}
	principal, _ := middleware.GetPrincipal(c)
	req.Actor = principal.ID

	dst, err := h.resolver.Resolve(c.Request.Context(), principal, req.DestinationTenant)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	result, err := h.orchestrator.Transfer(c.Request.Context(), src, dst, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if partial := result.Err(); partial != nil {
		code, status := dto.MapKind(shared.KindOf(partial))
		c.JSON(status, dto.Response{
			Success: false,
			Data:    result,
			Error: &dto.ErrorInfo{
				Code:    code,
				Message: "Product copied but the source could not be removed; queued for reconciliation",
			},
		})
		return
	}
	h.Success(c, result)
}

// ListPartial lists transfers awaiting reconciliation. Admins only.
func (h *TransferHandler) ListPartial(c *gin.Context) {
	principal, _ := middleware.GetPrincipal(c)
	if !principal.SuperAdmin && principal.Role != identity.RoleAdmin {
		h.Forbidden(c, "Administrator role required")
		return
	}
	entries, err := h.orchestrator.PartialTransfers(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, entries)
}
