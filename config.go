package authkit

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
)

// Default lifetimes per token kind.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultVerifyTokenTTL  = 24 * time.Hour
	DefaultResetTokenTTL   = time.Hour
	DefaultStateTokenTTL   = 10 * time.Minute
)

const (
	defaultIssuer      = "authkit"
	defaultAuthScheme  = "Bearer"
	defaultContextKey  = "jwt"
	defaultCookieName  = "authkit_token"
	defaultSigningAlg  = "HS256"
	defaultDefaultRole = "viewer"
	defaultAdminRole   = "admin"
)

// CookieConfig controls the cookie written by the cookie transport.
type CookieConfig struct {
	Name     string `env:"NAME" envDefault:"authkit_token"`
	Path     string `env:"PATH" envDefault:"/"`
	Domain   string `env:"DOMAIN"`
	Secure   bool   `env:"SECURE" envDefault:"true"`
	HTTPOnly bool   `env:"HTTP_ONLY" envDefault:"true"`
	SameSite string `env:"SAME_SITE" envDefault:"Lax"`
}

// Config carries every knob the toolkit reads. Build one with NewConfig or
// ConfigFromEnv; the struct is immutable after construction.
type Config struct {
	signingKey    string
	signingMethod string
	issuer        string
	authScheme    string
	contextKey    string

	audiences map[TokenKind]string
	lifetimes map[TokenKind]time.Duration

	loginFields []string

	enableRefreshToken     bool
	userDataInRefreshToken bool

	defaultActive            bool
	defaultVerified          bool
	requireVerifiedForAccess bool

	defaultRole string
	adminRole   string

	associateByEmail       bool
	oauthVerifiedByDefault bool

	cookie CookieConfig
}

func (c *Config) GetSigningKey() string    { return c.signingKey }
func (c *Config) GetSigningMethod() string { return c.signingMethod }
func (c *Config) GetIssuer() string        { return c.issuer }
func (c *Config) GetAuthScheme() string    { return c.authScheme }
func (c *Config) GetContextKey() string    { return c.contextKey }

// GetAudience returns the audience claim value for the given token kind.
func (c *Config) GetAudience(kind TokenKind) string { return c.audiences[kind] }

// GetLifetime returns the configured validity window for the given kind.
func (c *Config) GetLifetime(kind TokenKind) time.Duration { return c.lifetimes[kind] }

func (c *Config) GetLoginFields() []string       { return c.loginFields }
func (c *Config) RefreshTokenEnabled() bool      { return c.enableRefreshToken }
func (c *Config) UserDataInRefreshToken() bool   { return c.userDataInRefreshToken }
func (c *Config) GetDefaultActive() bool         { return c.defaultActive }
func (c *Config) GetDefaultVerified() bool       { return c.defaultVerified }
func (c *Config) RequireVerifiedForAccess() bool { return c.requireVerifiedForAccess }
func (c *Config) GetDefaultRole() string         { return c.defaultRole }
func (c *Config) GetAdminRole() string           { return c.adminRole }
func (c *Config) AssociateByEmail() bool         { return c.associateByEmail }
func (c *Config) OAuthVerifiedByDefault() bool   { return c.oauthVerifiedByDefault }
func (c *Config) GetCookieConfig() CookieConfig  { return c.cookie }

// ConfigOption mutates a Config during construction.
type ConfigOption func(*Config)

func WithIssuer(issuer string) ConfigOption {
	return func(c *Config) {
		if issuer != "" {
			c.issuer = issuer
		}
	}
}

func WithSigningMethod(alg string) ConfigOption {
	return func(c *Config) {
		if alg != "" {
			c.signingMethod = alg
		}
	}
}

func WithAuthScheme(scheme string) ConfigOption {
	return func(c *Config) {
		if scheme != "" {
			c.authScheme = scheme
		}
	}
}

func WithContextKey(key string) ConfigOption {
	return func(c *Config) {
		if key != "" {
			c.contextKey = key
		}
	}
}

// WithAudience overrides the audience value for one token kind.
func WithAudience(kind TokenKind, audience string) ConfigOption {
	return func(c *Config) {
		if audience != "" {
			c.audiences[kind] = audience
		}
	}
}

// WithLifetime overrides the validity window for one token kind.
func WithLifetime(kind TokenKind, ttl time.Duration) ConfigOption {
	return func(c *Config) {
		if ttl > 0 {
			c.lifetimes[kind] = ttl
		}
	}
}

// WithLoginFields sets the principal fields tried, in order, when resolving
// the login identifier. Defaults to ["email"].
func WithLoginFields(fields ...string) ConfigOption {
	return func(c *Config) {
		if len(fields) > 0 {
			c.loginFields = fields
		}
	}
}

func WithRefreshToken(enabled bool) ConfigOption {
	return func(c *Config) { c.enableRefreshToken = enabled }
}

// WithUserDataInRefreshToken embeds the identity snapshot in refresh tokens
// too, not just access tokens.
func WithUserDataInRefreshToken(enabled bool) ConfigOption {
	return func(c *Config) { c.userDataInRefreshToken = enabled }
}

func WithDefaultActive(active bool) ConfigOption {
	return func(c *Config) { c.defaultActive = active }
}

func WithDefaultVerified(verified bool) ConfigOption {
	return func(c *Config) { c.defaultVerified = verified }
}

// WithRequireVerifiedForAccess makes ResolvePrincipal reject principals whose
// email has not been verified.
func WithRequireVerifiedForAccess(required bool) ConfigOption {
	return func(c *Config) { c.requireVerifiedForAccess = required }
}

func WithDefaultRole(codename string) ConfigOption {
	return func(c *Config) {
		if codename != "" {
			c.defaultRole = codename
		}
	}
}

func WithAdminRole(codename string) ConfigOption {
	return func(c *Config) {
		if codename != "" {
			c.adminRole = codename
		}
	}
}

// WithAssociateByEmail links incoming OAuth identities to existing local
// accounts that share the provider-asserted email. Off by default; turning
// it on trusts the provider's email verification.
func WithAssociateByEmail(enabled bool) ConfigOption {
	return func(c *Config) { c.associateByEmail = enabled }
}

// WithOAuthVerifiedByDefault marks accounts created through an OAuth
// callback as verified.
func WithOAuthVerifiedByDefault(enabled bool) ConfigOption {
	return func(c *Config) { c.oauthVerifiedByDefault = enabled }
}

func WithCookieConfig(cookie CookieConfig) ConfigOption {
	return func(c *Config) {
		if cookie.Name == "" {
			cookie.Name = c.cookie.Name
		}
		if cookie.Path == "" {
			cookie.Path = c.cookie.Path
		}
		if cookie.SameSite == "" {
			cookie.SameSite = c.cookie.SameSite
		}
		c.cookie = cookie
	}
}

// NewConfig builds a Config with defaults derived eagerly: every token kind
// gets an audience of "<issuer>:<kind>" and its default lifetime unless an
// option overrides it.
func NewConfig(signingKey string, opts ...ConfigOption) (*Config, error) {
	if signingKey == "" {
		return nil, goerrors.New("signing key is required", goerrors.CategoryValidation).
			WithTextCode("MISSING_SIGNING_KEY").
			WithCode(goerrors.CodeBadRequest)
	}

	cfg := &Config{
		signingKey:    signingKey,
		signingMethod: defaultSigningAlg,
		issuer:        defaultIssuer,
		authScheme:    defaultAuthScheme,
		contextKey:    defaultContextKey,
		audiences:     map[TokenKind]string{},
		lifetimes: map[TokenKind]time.Duration{
			TokenAccess:  DefaultAccessTokenTTL,
			TokenRefresh: DefaultRefreshTokenTTL,
			TokenVerify:  DefaultVerifyTokenTTL,
			TokenReset:   DefaultResetTokenTTL,
			TokenState:   DefaultStateTokenTTL,
		},
		loginFields:            []string{"email"},
		enableRefreshToken:     true,
		defaultActive:          true,
		defaultVerified:        false,
		defaultRole:            defaultDefaultRole,
		adminRole:              defaultAdminRole,
		oauthVerifiedByDefault: true,
		cookie: CookieConfig{
			Name:     defaultCookieName,
			Path:     "/",
			Secure:   true,
			HTTPOnly: true,
			SameSite: "Lax",
		},
	}

	for _, opt := range opts {
		opt(cfg)
	}

	for _, kind := range TokenKinds() {
		if cfg.audiences[kind] == "" {
			cfg.audiences[kind] = fmt.Sprintf("%s:%s", cfg.issuer, kind)
		}
	}

	if cfg.signingMethod != "HS256" && cfg.signingMethod != "HS384" && cfg.signingMethod != "HS512" {
		return nil, goerrors.New(
			fmt.Sprintf("unsupported signing method %q", cfg.signingMethod),
			goerrors.CategoryValidation,
		).WithTextCode("UNSUPPORTED_SIGNING_METHOD").WithCode(goerrors.CodeBadRequest)
	}

	return cfg, nil
}

type envConfig struct {
	SigningKey    string `env:"SIGNING_KEY,required"`
	SigningMethod string `env:"SIGNING_METHOD" envDefault:"HS256"`
	Issuer        string `env:"ISSUER" envDefault:"authkit"`
	AuthScheme    string `env:"AUTH_SCHEME" envDefault:"Bearer"`
	ContextKey    string `env:"CONTEXT_KEY" envDefault:"jwt"`

	AccessTTL  time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`
	VerifyTTL  time.Duration `env:"VERIFY_TOKEN_TTL" envDefault:"24h"`
	ResetTTL   time.Duration `env:"RESET_TOKEN_TTL" envDefault:"1h"`
	StateTTL   time.Duration `env:"STATE_TOKEN_TTL" envDefault:"10m"`

	LoginFields []string `env:"LOGIN_FIELDS" envSeparator:"," envDefault:"email"`

	EnableRefreshToken     bool `env:"ENABLE_REFRESH_TOKEN" envDefault:"true"`
	UserDataInRefreshToken bool `env:"USER_DATA_IN_REFRESH_TOKEN" envDefault:"false"`

	DefaultActive            bool `env:"DEFAULT_ACTIVE" envDefault:"true"`
	DefaultVerified          bool `env:"DEFAULT_VERIFIED" envDefault:"false"`
	RequireVerifiedForAccess bool `env:"REQUIRE_VERIFIED_FOR_ACCESS" envDefault:"false"`

	DefaultRole string `env:"DEFAULT_ROLE" envDefault:"viewer"`
	AdminRole   string `env:"ADMIN_ROLE" envDefault:"admin"`

	AssociateByEmail       bool `env:"ASSOCIATE_BY_EMAIL" envDefault:"false"`
	OAuthVerifiedByDefault bool `env:"OAUTH_VERIFIED_BY_DEFAULT" envDefault:"true"`

	Cookie CookieConfig `envPrefix:"COOKIE_"`
}

// ConfigFromEnv builds a Config from AUTHKIT_* environment variables.
func ConfigFromEnv() (*Config, error) {
	var ec envConfig
	if err := env.ParseWithOptions(&ec, env.Options{Prefix: "AUTHKIT_"}); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryBadInput, "failed to parse environment configuration")
	}

	return NewConfig(ec.SigningKey,
		WithSigningMethod(ec.SigningMethod),
		WithIssuer(ec.Issuer),
		WithAuthScheme(ec.AuthScheme),
		WithContextKey(ec.ContextKey),
		WithLifetime(TokenAccess, ec.AccessTTL),
		WithLifetime(TokenRefresh, ec.RefreshTTL),
		WithLifetime(TokenVerify, ec.VerifyTTL),
		WithLifetime(TokenReset, ec.ResetTTL),
		WithLifetime(TokenState, ec.StateTTL),
		WithLoginFields(ec.LoginFields...),
		WithRefreshToken(ec.EnableRefreshToken),
		WithUserDataInRefreshToken(ec.UserDataInRefreshToken),
		WithDefaultActive(ec.DefaultActive),
		WithDefaultVerified(ec.DefaultVerified),
		WithRequireVerifiedForAccess(ec.RequireVerifiedForAccess),
		WithDefaultRole(ec.DefaultRole),
		WithAdminRole(ec.AdminRole),
		WithAssociateByEmail(ec.AssociateByEmail),
		WithOAuthVerifiedByDefault(ec.OAuthVerifiedByDefault),
		WithCookieConfig(ec.Cookie),
	)
}
