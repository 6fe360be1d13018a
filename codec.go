package authkit

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenCodec signs and verifies the compact token format. It knows nothing
// about token kinds or persistence; JWTStrategy layers that on top.
type TokenCodec struct {
	signingKey    []byte
	signingMethod jwt.SigningMethod
	issuer        string
	clock         Clock
	logger        Logger
}

// NewTokenCodec builds a codec from cfg. The signing method was validated
// at config construction, so unknown values fall back to HS256.
func NewTokenCodec(cfg *Config) *TokenCodec {
	method := jwt.GetSigningMethod(cfg.GetSigningMethod())
	if method == nil {
		method = jwt.SigningMethodHS256
	}
	return &TokenCodec{
		signingKey:    []byte(cfg.GetSigningKey()),
		signingMethod: method,
		issuer:        cfg.GetIssuer(),
		clock:         time.Now,
		logger:        defLogger{},
	}
}

func (c *TokenCodec) WithLogger(logger Logger) *TokenCodec {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// WithClock overrides the time source. Tests use this to cross expiry
// boundaries without sleeping.
func (c *TokenCodec) WithClock(clock Clock) *TokenCodec {
	if clock != nil {
		c.clock = clock
	}
	return c
}

// EncodeOptions control a single Encode call.
type EncodeOptions struct {
	// Subject is the principal ID, required.
	Subject string
	// Audience restricts where the token is honored.
	Audience string
	// MaxAge is the validity window. Nil means the token never expires;
	// zero or negative produces an already-expired token.
	MaxAge *time.Duration
	// Headers are merged into the JOSE header, e.g. a "kid".
	Headers map[string]any
}

// Encode signs claims into a compact token. Registered claims the codec
// owns (iss, iat, nbf, jti, aud, exp, sub) are stamped here; anything the
// caller set on claims beyond those is preserved.
func (c *TokenCodec) Encode(claims *Claims, opts EncodeOptions) (string, error) {
	if claims == nil {
		return "", errors.New("claims must not be nil", errors.CategoryInternal)
	}
	if opts.Subject == "" {
		return "", errors.New("token subject is required", errors.CategoryValidation).
			WithTextCode("MISSING_SUBJECT").
			WithCode(errors.CodeBadRequest)
	}

	now := c.clock().UTC()

	claims.Issuer = c.issuer
	claims.Subject = opts.Subject
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.NotBefore = jwt.NewNumericDate(now)
	claims.ID = uuid.NewString()
	if opts.Audience != "" {
		claims.Audience = jwt.ClaimStrings{opts.Audience}
	}
	if opts.MaxAge != nil {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(*opts.MaxAge))
	} else {
		claims.ExpiresAt = nil
	}

	token := jwt.NewWithClaims(c.signingMethod, claims)
	for k, v := range opts.Headers {
		token.Header[k] = v
	}

	signed, err := token.SignedString(c.signingKey)
	if err != nil {
		return "", errors.Wrap(err, errors.CategoryInternal, "failed to sign token")
	}

	return signed, nil
}

// Decode verifies signature, algorithm, issuer, expiry and, when audience
// is non-empty, the aud claim. Every failure maps to an invalid-token error
// with the underlying reason in metadata.
func (c *TokenCodec) Decode(tokenString, audience string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{c.signingMethod.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return c.clock() }),
		jwt.WithIssuedAt(),
	}
	if c.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(c.issuer))
	}
	if audience != "" {
		parserOptions = append(parserOptions, jwt.WithAudience(audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != c.signingMethod.Alg() {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.signingKey, nil
	}, parserOptions...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, invalidToken("token expired", err)
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return nil, invalidToken("audience mismatch", err)
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return nil, invalidToken("issuer mismatch", err)
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, invalidToken("signature invalid", err)
		default:
			return nil, invalidToken("token malformed", err)
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		c.logger.Error("token codec could not decode claims")
		return nil, invalidToken("claims not decodable", nil)
	}

	return claims, nil
}
