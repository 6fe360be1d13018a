package authkit_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	authkit "github.com/mvarela/go-authkit"
	"github.com/stretchr/testify/assert"
)

func TestTokenKindIsValid(t *testing.T) {
	for _, kind := range authkit.TokenKinds() {
		assert.True(t, kind.IsValid(), "kind %q", kind)
	}

	assert.False(t, authkit.TokenKind("session").IsValid())
	assert.False(t, authkit.TokenKind("").IsValid())
}

func TestClaimsAccessors(t *testing.T) {
	issued := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	expires := issued.Add(time.Hour)

	claims := &authkit.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Audience:  jwt.ClaimStrings{"authkit:access"},
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		TokenType: "access",
	}

	assert.Equal(t, "user-1", claims.UserID())
	assert.Equal(t, authkit.TokenAccess, claims.Kind())
	assert.Equal(t, issued, claims.Issued())
	assert.Equal(t, expires, claims.Expires())
	assert.True(t, claims.HasAudience("authkit:access"))
	assert.False(t, claims.HasAudience("authkit:refresh"))
}

func TestClaimsZeroTimes(t *testing.T) {
	claims := &authkit.Claims{}
	assert.True(t, claims.Issued().IsZero())
	assert.True(t, claims.Expires().IsZero())
}
