package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stockroom/backend/internal/domain/identity"
	"github.com/stockroom/backend/internal/infrastructure/auth"
	"github.com/stockroom/backend/internal/infrastructure/logger"
	"github.com/stockroom/backend/internal/interfaces/http/dto"
	"go.uber.org/zap"
)

// Authentication context keys
const (
	PrincipalKey  = "principal"
	AuthHeaderKey = "Authorization"
	BearerPrefix  = "Bearer "
)

// TokenValidator validates bearer tokens
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// JWTAuth authenticates the bearer token and stores the principal on the
// request. Requests without a valid token are answered with 401.
func JWTAuth(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(AuthHeaderKey)
		if !strings.HasPrefix(header, BearerPrefix) || strings.TrimPrefix(header, BearerPrefix) == "" {
			abortWithError(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Missing bearer token")
			return
		}

		claims, err := validator.ValidateToken(strings.TrimPrefix(header, BearerPrefix))
		if err != nil {
			logger.L(c.Request.Context()).Debug("Token rejected", zap.Error(err))
			if errors.Is(err, auth.ErrExpiredToken) {
				abortWithError(c, http.StatusUnauthorized, dto.ErrCodeTokenExpired, "Token has expired")
				return
			}
			abortWithError(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Invalid token")
			return
		}

		principal := claims.Principal()
		c.Set(PrincipalKey, principal)
		c.Request = c.Request.WithContext(logger.WithPrincipal(c.Request.Context(), principal.ID))
		c.Next()
	}
}

// GetPrincipal returns the authenticated principal
func GetPrincipal(c *gin.Context) (identity.Principal, bool) {
	v, ok := c.Get(PrincipalKey)
	if !ok {
		return identity.Principal{}, false
	}
	p, ok := v.(identity.Principal)
	return p, ok
}
