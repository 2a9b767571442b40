package httpx

import (
	"context"

	"github.com/aussiebroadwan/crm/pkg/jwtx"
)

// Identity is the verified caller of a request. It is placed in the request
// context by the Gate after the access token has been verified and is never
// taken from client-supplied input.
type Identity struct {
	UserID   string
	TenantID string
	Role     string
}

// IsAdmin reports whether the caller holds the administrator role.
func (i Identity) IsAdmin() bool { return i.Role == jwtx.RoleAdmin }

func identityFromClaims(c jwtx.Claims) Identity {
	return Identity{UserID: c.Subject, TenantID: c.TenantID, Role: c.Role}
}

type identityKey struct{}

// ContextWithIdentity returns a copy of ctx carrying id. A context that
// already carries an identity is returned unchanged, so downstream code can
// never replace what the Gate established.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	if _, ok := IdentityFromContext(ctx); ok {
		return ctx
	}
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the verified identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}
