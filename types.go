package authkit

import (
	"context"
	"fmt"
	"time"
)

// Logger is the minimal logging surface the toolkit needs. Callers inject
// their own implementation; defLogger writes to stdout.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Principal is the minimal identity contract the Manager operates on.
// Storage adapters return concrete types implementing it.
type Principal interface {
	ID() string
	Email() string
	Username() string
	PasswordHash() string
	IsActive() bool
	IsVerified() bool
}

// Role is a named set of permissions.
type Role interface {
	RoleID() string
	Codename() string
	Permissions() []Permission
}

// Permission is a grantable capability identified by codename, e.g.
// "user:read".
type Permission interface {
	PermissionID() string
	Codename() string
}

// RBACPrincipal is the optional capability a stored principal implements
// when it carries its grants. CheckAccess requires it; a principal without
// grants under RBAC restrictions is a wiring error, not a denial.
type RBACPrincipal interface {
	Principal
	Role() Role
	DirectPermissions() []Permission
}

// OAuthAccount is a provider account linked to a principal. The
// (Provider, AccountID) pair is globally unique.
type OAuthAccount interface {
	Provider() string
	AccountID() string
	AccountEmail() string
	OwnerID() string
}

// UserRepository is the persistence contract for principals. Lookups return
// a not-found error (goerrors.IsNotFound) on miss; Create and Update accept
// column-keyed patches and surface uniqueness violations as conflict
// errors so the Manager can translate them.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (Principal, error)
	GetByEmail(ctx context.Context, email string) (Principal, error)
	GetByUsername(ctx context.Context, username string) (Principal, error)
	GetByField(ctx context.Context, value, field string) (Principal, error)
	// GetByFields tries fields in order and returns the first match.
	GetByFields(ctx context.Context, value string, fields []string) (Principal, error)
	Create(ctx context.Context, fields map[string]any) (Principal, error)
	Update(ctx context.Context, principal Principal, fields map[string]any) (Principal, error)
	Delete(ctx context.Context, principal Principal) error
}

// RBACRepository persists roles and permissions.
type RBACRepository interface {
	GetRole(ctx context.Context, id string) (Role, error)
	GetRoleByCodename(ctx context.Context, codename string) (Role, error)
	CreateRole(ctx context.Context, fields map[string]any) (Role, error)
	UpdateRole(ctx context.Context, role Role, fields map[string]any) (Role, error)
	DeleteRole(ctx context.Context, role Role) error
	ListRoles(ctx context.Context) ([]Role, error)

	GetPermission(ctx context.Context, id string) (Permission, error)
	GetPermissionByCodename(ctx context.Context, codename string) (Permission, error)
	CreatePermission(ctx context.Context, fields map[string]any) (Permission, error)
	UpdatePermission(ctx context.Context, permission Permission, fields map[string]any) (Permission, error)
	DeletePermission(ctx context.Context, permission Permission) error
	ListPermissions(ctx context.Context) ([]Permission, error)
}

// OAuthRepository persists provider account links.
type OAuthRepository interface {
	GetUserByOAuth(ctx context.Context, provider, accountID string) (Principal, error)
	GetOAuthAccount(ctx context.Context, provider, accountID string) (OAuthAccount, error)
	AddOAuthAccount(ctx context.Context, principal Principal, fields map[string]any) (Principal, error)
	UpdateOAuthAccount(ctx context.Context, principal Principal, account OAuthAccount, fields map[string]any) (Principal, error)
}

// Hasher hashes and verifies passwords, upgrading digests produced under
// deprecated parameters.
type Hasher interface {
	Hash(plaintext string) (string, error)
	// VerifyAndUpgrade reports whether plaintext matches digest. When the
	// digest should be re-persisted under current parameters the second
	// value is the replacement digest, otherwise empty.
	VerifyAndUpgrade(plaintext, digest string) (bool, string)
	// Generate returns a cryptographically random URL-safe secret, used
	// for unusable placeholder passwords on OAuth-created accounts.
	Generate() (string, error)
}

// TokenStrategy translates between principals and opaque token strings.
type TokenStrategy interface {
	WriteToken(ctx context.Context, principal Principal, kind TokenKind, extra map[string]any) (string, error)
	ReadToken(ctx context.Context, token string, kind TokenKind) (*Claims, error)
	// DestroyToken is a no-op for stateless signed tokens; server-side
	// denylists hook in here.
	DestroyToken(ctx context.Context, token string) error
}

// TokenResponse is the login payload produced for bearer transports.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

// DefaultLogger returns the stdout fallback logger.
func DefaultLogger() Logger { return defLogger{} }

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTHKIT "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTHKIT "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTHKIT "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTHKIT "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

// Clock lets tests pin time. Codec and cookie transport accept one.
type Clock func() time.Time
