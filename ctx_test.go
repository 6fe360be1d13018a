package authkit_test

import (
	"context"
	"testing"

	authkit "github.com/mvarela/go-authkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrincipalContextRoundTrip(t *testing.T) {
	user := testPrincipal()

	ctx := authkit.WithPrincipal(context.Background(), user)

	got, ok := authkit.PrincipalFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, user.ID(), got.ID())

	_, ok = authkit.PrincipalFromContext(context.Background())
	assert.False(t, ok)
}

func TestClaimsContextRoundTrip(t *testing.T) {
	claims := &authkit.Claims{TokenType: string(authkit.TokenAccess)}

	ctx := authkit.WithClaims(context.Background(), claims)

	got, ok := authkit.ClaimsFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, authkit.TokenAccess, got.Kind())

	_, ok = authkit.ClaimsFromContext(context.Background())
	assert.False(t, ok)
}

func TestRouterLocalsUseCustomKey(t *testing.T) {
	ctx := newStubContext()
	ctx.locals["custom"] = &authkit.Claims{TokenType: string(authkit.TokenAccess)}
	ctx.locals["custom:principal"] = testPrincipal()

	claims, ok := authkit.RouterClaims(ctx, "custom")
	require.True(t, ok)
	assert.Equal(t, authkit.TokenAccess, claims.Kind())

	principal, ok := authkit.RouterPrincipal(ctx, "custom:principal")
	require.True(t, ok)
	assert.Equal(t, testPrincipal().ID(), principal.ID())

	_, ok = authkit.RouterClaims(ctx, "")
	assert.False(t, ok)
}
