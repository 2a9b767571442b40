package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Default lifetimes for the session credentials. Services may override them
// through configuration.
const (
	// DefaultAccessTokenTTL is the default lifetime for access tokens.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the default lifetime for refresh credentials.
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// DefaultRememberMeTTL is used for refresh credentials when the user asked
	// to be remembered on this device.
	DefaultRememberMeTTL = 30 * 24 * time.Hour
)

// Roles carried in the "role" claim.
const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// Claims are the access-token claims. Subject is the user id.
type Claims struct {
	jwt.RegisteredClaims

	// TenantID scopes every authorization decision made with this token.
	TenantID string `json:"tid"`

	// Role is either RoleAdmin or RoleMember.
	Role string `json:"role"`
}

// NewAccessClaims builds the identity part of an access token. Timestamps are
// stamped by Codec.Issue.
func NewAccessClaims(userID, tenantID, role string) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
		TenantID:         tenantID,
		Role:             role,
	}
}

// IsAdmin reports whether the token carries the administrator role.
func (c Claims) IsAdmin() bool { return c.Role == RoleAdmin }

// Expiry returns the exp claim, or the zero time when absent.
func (c Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// validateIdentity makes sure the identity fields every access token must
// carry are present.
func (c Claims) validateIdentity() error {
	if c.Subject == "" || c.TenantID == "" {
		return ErrInvalidClaim
	}
	if c.Role != RoleAdmin && c.Role != RoleMember {
		return ErrInvalidClaim
	}
	if c.ExpiresAt == nil || c.IssuedAt == nil {
		return ErrInvalidClaim
	}
	return nil
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}
