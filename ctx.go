package authkit

import (
	"context"

	"github.com/goliatone/go-router"
)

var principalCtxKey = &contextKey{"principal"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithPrincipal sets the Principal in the given context.
func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, principal)
}

// PrincipalFromContext finds the principal from the context.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	raw, ok := ctx.Value(principalCtxKey).(Principal)
	return raw, ok
}

// WithClaims sets the Claims in the given context.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// ClaimsFromContext extracts the Claims from the standard context.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(*Claims)
	return raw, ok
}

// RouterClaims extracts the Claims stashed in the router context locals by
// the auth middleware.
func RouterClaims(c router.Context, key string) (*Claims, bool) {
	if key == "" {
		key = defaultContextKey
	}
	raw := c.Locals(key)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(*Claims)
	return claims, ok
}

// RouterPrincipal extracts the resolved principal stashed in the router
// context locals.
func RouterPrincipal(c router.Context, key string) (Principal, bool) {
	if key == "" {
		key = defaultContextKey + ":principal"
	}
	raw := c.Locals(key)
	if raw == nil {
		return nil, false
	}
	principal, ok := raw.(Principal)
	return principal, ok
}
