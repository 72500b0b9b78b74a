// Package middleware provides the HTTP middleware of the inventory API.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/stockroom/backend/internal/infrastructure/logger"
	"github.com/stockroom/backend/internal/interfaces/http/dto"
)

// abortWithError stops the chain with a standard error body
func abortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, dto.NewErrorResponse(code, message, logger.RequestID(c.Request.Context())))
}
