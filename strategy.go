package authkit

import (
	"context"
	"time"
)

// JWTStrategy is the stateless TokenStrategy: every kind is a signed claim
// set with a kind-scoped audience, so a verify token can never be replayed
// where an access token is expected.
type JWTStrategy struct {
	codec  *TokenCodec
	cfg    *Config
	logger Logger
}

var _ TokenStrategy = (*JWTStrategy)(nil)

// NewJWTStrategy builds the strategy and its codec from cfg.
func NewJWTStrategy(cfg *Config) *JWTStrategy {
	return &JWTStrategy{
		codec:  NewTokenCodec(cfg),
		cfg:    cfg,
		logger: defLogger{},
	}
}

func (s *JWTStrategy) WithLogger(logger Logger) *JWTStrategy {
	if logger != nil {
		s.logger = logger
		s.codec.WithLogger(logger)
	}
	return s
}

// WithClock pins the codec's time source, mostly for tests.
func (s *JWTStrategy) WithClock(clock Clock) *JWTStrategy {
	s.codec.WithClock(clock)
	return s
}

// Codec exposes the underlying codec for callers that sign claims directly.
func (s *JWTStrategy) Codec() *TokenCodec {
	return s.codec
}

// WriteToken mints a token of the given kind for principal. Extra entries
// become custom claims; the reserved keys "email" and "password_fgpt" land
// in their dedicated claim fields rather than the extra map. Access tokens
// (and refresh tokens when configured) additionally carry the identity
// snapshot so middleware can authorize without a user lookup.
func (s *JWTStrategy) WriteToken(_ context.Context, principal Principal, kind TokenKind, extra map[string]any) (string, error) {
	if principal == nil {
		return "", ErrUserNotFound
	}
	if !kind.IsValid() {
		return "", invalidToken("unknown token kind", nil)
	}

	claims := &Claims{TokenType: string(kind)}

	if s.embedsSnapshot(kind) {
		active := principal.IsActive()
		verified := principal.IsVerified()
		claims.Email = principal.Email()
		claims.Username = principal.Username()
		claims.Active = &active
		claims.Verified = &verified
	}

	for k, v := range extra {
		switch k {
		case "email":
			if email, ok := v.(string); ok {
				claims.Email = email
				continue
			}
		case "password_fgpt":
			if fgpt, ok := v.(string); ok {
				claims.PasswordFingerprint = fgpt
				continue
			}
		}
		if claims.Extra == nil {
			claims.Extra = map[string]any{}
		}
		claims.Extra[k] = v
	}

	ttl := s.cfg.GetLifetime(kind)
	var maxAge *time.Duration
	if ttl > 0 {
		maxAge = &ttl
	}

	return s.codec.Encode(claims, EncodeOptions{
		Subject:  principal.ID(),
		Audience: s.cfg.GetAudience(kind),
		MaxAge:   maxAge,
	})
}

// ReadToken verifies token against the audience for kind and checks the
// embedded kind claim. A token of a different kind fails even when its
// signature is valid.
func (s *JWTStrategy) ReadToken(_ context.Context, token string, kind TokenKind) (*Claims, error) {
	if !kind.IsValid() {
		return nil, invalidToken("unknown token kind", nil)
	}

	claims, err := s.codec.Decode(token, s.cfg.GetAudience(kind))
	if err != nil {
		return nil, err
	}

	if claims.Kind() != kind {
		s.logger.Warn("token kind mismatch", "want", kind, "got", claims.Kind())
		return nil, invalidToken("token kind mismatch", nil)
	}

	return claims, nil
}

// DestroyToken is a no-op: signed tokens expire on their own. Stateful
// strategies (denylist, session table) implement revocation here.
func (s *JWTStrategy) DestroyToken(_ context.Context, _ string) error {
	return nil
}

func (s *JWTStrategy) embedsSnapshot(kind TokenKind) bool {
	if kind == TokenAccess {
		return true
	}
	return kind == TokenRefresh && s.cfg.UserDataInRefreshToken()
}
