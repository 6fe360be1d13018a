package authkit

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenKind discriminates what a token may be used for. Each kind carries
// its own audience and lifetime so tokens cannot be replayed across kinds.
type TokenKind string

const (
	// TokenAccess authorizes resource access.
	TokenAccess TokenKind = "access"
	// TokenRefresh authorizes only the token-refresh operation.
	TokenRefresh TokenKind = "refresh"
	// TokenVerify proves ownership of an email address.
	TokenVerify TokenKind = "verify"
	// TokenReset authorizes a password reset.
	TokenReset TokenKind = "reset"
	// TokenState protects the OAuth round trip.
	TokenState TokenKind = "state"
)

// TokenKinds returns every kind the toolkit issues.
func TokenKinds() []TokenKind {
	return []TokenKind{TokenAccess, TokenRefresh, TokenVerify, TokenReset, TokenState}
}

// IsValid reports whether k is a known token kind.
func (k TokenKind) IsValid() bool {
	switch k {
	case TokenAccess, TokenRefresh, TokenVerify, TokenReset, TokenState:
		return true
	default:
		return false
	}
}

// Claims is the signed token payload. A Claims value obtained from
// TokenCodec.Decode implies signature validity, audience match, and
// non-expiry.
type Claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"type,omitempty"`

	// Snapshot of safe user fields, embedded in access tokens (and
	// refresh tokens when configured). An optimization hint only: the
	// Manager re-verifies account state against the repository before
	// granting access.
	Email    string `json:"email,omitempty"`
	Username string `json:"username,omitempty"`
	Active   *bool  `json:"is_active,omitempty"`
	Verified *bool  `json:"is_verified,omitempty"`

	// PasswordFingerprint binds a reset token to the password state it
	// was issued against.
	PasswordFingerprint string `json:"password_fgpt,omitempty"`

	Extra map[string]any `json:"extra,omitempty"`
}

// Kind returns the token kind discriminator.
func (c *Claims) Kind() TokenKind {
	return TokenKind(c.TokenType)
}

// UserID returns the subject claim, the stringified principal id.
func (c *Claims) UserID() string {
	return c.RegisteredClaims.Subject
}

// Expires returns the expiry time, zero when the token does not expire.
func (c *Claims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// Issued returns the issued-at time, zero when absent.
func (c *Claims) Issued() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// HasAudience reports whether aud is present in the audience claim.
func (c *Claims) HasAudience(aud string) bool {
	for _, a := range c.RegisteredClaims.Audience {
		if a == aud {
			return true
		}
	}
	return false
}
