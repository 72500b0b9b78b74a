package identity

import (
	"regexp"
	"strings"

	"github.com/stockroom/backend/internal/domain/shared"
)

// Role is the coarse role a principal holds globally or within a tenant
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// IsValid reports whether r is a known role
func (r Role) IsValid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Grant admits a principal to one tenant with a role
type Grant struct {
	Tenant string `json:"tenant"`
	Role   Role   `json:"role"`
}

// Principal is an already authenticated caller. A principal with no grants
// predates multi-tenancy and is implicitly granted the default tenant.
type Principal struct {
	ID         string  `json:"id"`
	Role       Role    `json:"role"`
	SuperAdmin bool    `json:"super_admin"`
	Grants     []Grant `json:"grants,omitempty"`
}

// IsLegacy reports whether the principal has no explicit grants
func (p Principal) IsLegacy() bool {
	return len(p.Grants) == 0
}

// GrantFor returns the grant for tenant, if any
func (p Principal) GrantFor(tenant string) (Grant, bool) {
	for _, g := range p.Grants {
		if g.Tenant == tenant {
			return g, true
		}
	}
	return Grant{}, false
}

var tenantSlugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// NormalizeTenantSlug lower-cases and validates a tenant identifier. Slugs
// become part of storage names, so the alphabet is deliberately narrow.
func NormalizeTenantSlug(slug string) (string, error) {
	slug = strings.ToLower(strings.TrimSpace(slug))
	if !tenantSlugPattern.MatchString(slug) {
		return "", shared.NewKindError(shared.KindInvalidInput, "Invalid tenant identifier: "+slug)
	}
	return slug, nil
}
