package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stockroom/backend/internal/domain/identity"
	"github.com/stockroom/backend/internal/domain/shared"
	"github.com/stockroom/backend/internal/infrastructure/logger"
	"github.com/stockroom/backend/internal/infrastructure/persistence/tenant"
	"github.com/stockroom/backend/internal/infrastructure/telemetry"
	"github.com/stockroom/backend/internal/interfaces/http/dto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Tenant context keys
const (
	TenantHeaderKey = "X-Tenant-ID"
	PartitionKey    = "tenant_partition"
)

// TenantResolver admits a principal to a tenant and returns its handle
type TenantResolver interface {
	Resolve(ctx context.Context, principal identity.Principal, requested string) (*tenant.Handle, error)
}

// TenantPartition resolves the tenant named by the X-Tenant-ID header, or the
// default tenant when absent, and stores its handle on the request. Must run
// after JWTAuth.
func TenantPartition(resolver TenantResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := GetPrincipal(c)
		if !ok {
			abortWithError(c, http.StatusUnauthorized, dto.ErrCodeUnauthorized, "Authentication required")
			return
		}

		handle, err := resolver.Resolve(c.Request.Context(), principal, c.GetHeader(TenantHeaderKey))
		if err != nil {
			var domainErr *shared.DomainError
			if !errors.As(err, &domainErr) {
				abortWithError(c, http.StatusInternalServerError, dto.ErrCodeInternal, "An unexpected error occurred")
				return
			}
			code, status := dto.MapKind(domainErr.Kind)
			abortWithError(c, status, code, domainErr.Message)
			return
		}

		ctx := logger.WithTenant(c.Request.Context(), handle.Tenant())
		trace.SpanFromContext(ctx).SetAttributes(
			telemetry.AttrTenant.String(handle.Tenant()),
			attribute.String("request_id", logger.RequestID(ctx)),
		)
		c.Request = c.Request.WithContext(ctx)
		c.Set(PartitionKey, handle)
		c.Next()
	}
}

// GetPartition returns the tenant handle resolved for the request
func GetPartition(c *gin.Context) (*tenant.Handle, bool) {
	v, ok := c.Get(PartitionKey)
	if !ok {
		return nil, false
	}
	h, ok := v.(*tenant.Handle)
	return h, ok
}
