// Package handler implements the HTTP endpoints of the inventory API.
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stockroom/backend/internal/domain/shared"
	"github.com/stockroom/backend/internal/infrastructure/logger"
	"github.com/stockroom/backend/internal/infrastructure/persistence/tenant"
	"github.com/stockroom/backend/internal/interfaces/http/dto"
	"github.com/stockroom/backend/internal/interfaces/http/middleware"
	"go.uber.org/zap"
)

// BaseHandler provides common handler utilities
type BaseHandler struct{}

// Success sends a success response
func (h *BaseHandler) Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, dto.NewSuccessResponse(data))
}

// Created sends a 201 created response
func (h *BaseHandler) Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, dto.NewSuccessResponse(data))
}

// NoContent sends a 204 no content response
func (h *BaseHandler) NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Page sends a success response with pagination meta
func Page[T any](c *gin.Context, page *shared.Paginated[T]) {
	c.JSON(http.StatusOK, dto.NewSuccessResponseWithMeta(page.Items, page.Total, page.Page, page.PageSize, page.TotalPages))
}

// Error sends an error response
func (h *BaseHandler) Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, dto.NewErrorResponse(code, message, logger.RequestID(c.Request.Context())))
}

// BadRequest sends a 400 response for a request that failed binding
func (h *BaseHandler) BadRequest(c *gin.Context, err error) {
	h.Error(c, http.StatusBadRequest, dto.ErrCodeValidation, err.Error())
}

// Forbidden sends a 403 response
func (h *BaseHandler) Forbidden(c *gin.Context, message string) {
	h.Error(c, http.StatusForbidden, dto.ErrCodeForbidden, message)
}

// HandleError converts domain errors to HTTP responses. Anything else is
// logged and answered with 500.
func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		code, status := dto.MapKind(domainErr.Kind)
		resp := dto.NewErrorResponse(code, domainErr.Message, logger.RequestID(c.Request.Context()))
		resp.Error.Retryable = shared.IsRetryable(err)
		c.JSON(status, resp)
		return
	}

	_ = c.Error(err)
	logger.L(c.Request.Context()).Error("Unhandled error", zap.Error(err))
	h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
}

// partition returns the tenant handle resolved by the tenant middleware
func (h *BaseHandler) partition(c *gin.Context) (*tenant.Handle, bool) {
	p, ok := middleware.GetPartition(c)
	if !ok {
		h.Error(c, http.StatusInternalServerError, dto.ErrCodeInternal, "Tenant context missing")
	}
	return p, ok
}

// actor returns the id of the authenticated caller
func actor(c *gin.Context) string {
	p, _ := middleware.GetPrincipal(c)
	return p.ID
}
