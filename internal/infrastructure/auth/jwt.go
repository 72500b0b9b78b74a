package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stockroom/backend/internal/domain/identity"
	"github.com/stockroom/backend/internal/infrastructure/config"
)

// Common errors
var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingUserID    = errors.New("missing user_id in claims")
)

// GrantClaim is one tenant grant carried in a token
type GrantClaim struct {
	Tenant string `json:"tenant"`
	Role   string `json:"role"`
}

// Claims carries an already authenticated principal. Tokens without grants
// belong to principals that predate multi-tenancy.
type Claims struct {
	jwt.RegisteredClaims
	UserID     string       `json:"user_id"`
	Role       string       `json:"role"`
	SuperAdmin bool         `json:"super_admin,omitempty"`
	Grants     []GrantClaim `json:"grants,omitempty"`
}

// Principal converts the claims into the domain principal
func (c *Claims) Principal() identity.Principal {
	p := identity.Principal{
		ID:         c.UserID,
		Role:       identity.Role(c.Role),
		SuperAdmin: c.SuperAdmin,
	}
	if !p.Role.IsValid() {
		p.Role = identity.RoleUser
	}
	for _, g := range c.Grants {
		slug, err := identity.NormalizeTenantSlug(g.Tenant)
		if err != nil {
			continue
		}
		role := identity.Role(g.Role)
		if !role.IsValid() {
			role = identity.RoleUser
		}
		p.Grants = append(p.Grants, identity.Grant{Tenant: slug, Role: role})
	}
	return p
}

// JWTService validates bearer tokens. Signing is provided for tooling and
// tests; tokens are normally issued by the identity provider.
type JWTService struct {
	secret     []byte
	issuer     string
	expiration time.Duration
}

// NewJWTService creates a new JWT service
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		expiration: cfg.AccessTokenExpiration,
	}
}

// GenerateToken signs an access token for principal
func (s *JWTService) GenerateToken(principal identity.Principal) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.expiration)

	grants := make([]GrantClaim, len(principal.Grants))
	for i, g := range principal.Grants {
		grants[i] = GrantClaim{Tenant: g.Tenant, Role: string(g.Role)}
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   principal.ID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		UserID:     principal.ID,
		Role:       string(principal.Role),
		SuperAdmin: principal.SuperAdmin,
		Grants:     grants,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// ValidateToken validates an access token and returns its claims
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.UserID == "" {
		return nil, ErrMissingUserID
	}
	return claims, nil
}
