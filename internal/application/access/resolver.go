// Package access decides which tenant partition a principal may work in and
// hands out the corresponding registry handle.
package access

import (
	"context"

	"github.com/stockroom/backend/internal/domain/identity"
	"github.com/stockroom/backend/internal/domain/shared"
	"github.com/stockroom/backend/internal/infrastructure/logger"
	"github.com/stockroom/backend/internal/infrastructure/persistence/tenant"
	"go.uber.org/zap"
)

// HandleAcquirer is the part of the tenant registry the resolver needs
type HandleAcquirer interface {
	Acquire(ctx context.Context, tenant string) (*tenant.Handle, error)
}

// Resolver maps a principal and a requested tenant to a live partition handle
type Resolver struct {
	registry      HandleAcquirer
	defaultTenant string
}

// NewResolver creates a new Resolver. Requests that name no tenant, and
// principals without grants, fall back to defaultTenant. The default is
// compared against normalized slugs, so it is normalized here as well.
func NewResolver(registry HandleAcquirer, defaultTenant string) *Resolver {
	if slug, err := identity.NormalizeTenantSlug(defaultTenant); err == nil {
		defaultTenant = slug
	}
	return &Resolver{
		registry:      registry,
		defaultTenant: defaultTenant,
	}
}

// DefaultTenant returns the tenant used when none is requested
func (r *Resolver) DefaultTenant() string {
	return r.defaultTenant
}

// Authorize returns the normalized tenant slug the principal is admitted to,
// without touching storage.
func (r *Resolver) Authorize(principal identity.Principal, requested string) (string, error) {
	if requested == "" {
		requested = r.defaultTenant
	}
	slug, err := identity.NormalizeTenantSlug(requested)
	if err != nil {
		return "", err
	}

	switch {
	case principal.SuperAdmin:
		return slug, nil
	case principal.IsLegacy():
		if slug == r.defaultTenant {
			return slug, nil
		}
	default:
		if _, ok := principal.GrantFor(slug); ok {
			return slug, nil
		}
	}
	return "", shared.NewKindError(shared.KindAccessDenied, "Access to tenant "+slug+" is denied")
}

// Resolve authorizes the request and acquires the tenant's handle. Registry
// failures are returned unchanged so connectivity errors stay retryable.
func (r *Resolver) Resolve(ctx context.Context, principal identity.Principal, requested string) (*tenant.Handle, error) {
	slug, err := r.Authorize(principal, requested)
	if err != nil {
		logger.L(ctx).Warn("Tenant access denied",
			zap.String("principal", principal.ID),
			zap.String("requested_tenant", requested),
			zap.Error(err),
		)
		return nil, err
	}
	return r.registry.Acquire(ctx, slug)
}
