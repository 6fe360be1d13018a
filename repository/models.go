package repository

import (
	"time"

	"github.com/google/uuid"
	"github.com/mvarela/go-authkit"
	"github.com/uptrace/bun"
)

// User is the bun model backing principals.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID           uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email        string         `bun:"email,notnull,unique" json:"email,omitempty"`
	Username     string         `bun:"username,unique,nullzero" json:"username,omitempty"`
	PasswordHash string         `bun:"password_hash,notnull" json:"-"`
	Active       bool           `bun:"is_active" json:"is_active"`
	Verified     bool           `bun:"is_verified" json:"is_verified"`
	RoleID       *uuid.UUID     `bun:"role_id,nullzero,type:uuid" json:"role_id,omitempty"`
	Role         *Role          `bun:"rel:belongs-to,join:role_id=id" json:"role,omitempty"`
	Permissions  []*Permission  `bun:"m2m:user_permissions,join:User=Permission" json:"permissions,omitempty"`
	Metadata     map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt    *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt    *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt    *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Role is the bun model for roles.
type Role struct {
	bun.BaseModel `bun:"table:roles,alias:rol"`

	ID          uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Codename    string        `bun:"codename,notnull,unique" json:"codename,omitempty"`
	Name        string        `bun:"name" json:"name,omitempty"`
	Permissions []*Permission `bun:"m2m:role_permissions,join:Role=Permission" json:"permissions,omitempty"`
	CreatedAt   *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt   *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Permission is the bun model for permissions.
type Permission struct {
	bun.BaseModel `bun:"table:permissions,alias:perm"`

	ID        uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Codename  string     `bun:"codename,notnull,unique" json:"codename,omitempty"`
	Name      string     `bun:"name" json:"name,omitempty"`
	CreatedAt *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// RolePermission joins roles to permissions.
type RolePermission struct {
	bun.BaseModel `bun:"table:role_permissions,alias:rolperm"`

	RoleID       uuid.UUID   `bun:"role_id,pk,type:uuid"`
	Role         *Role       `bun:"rel:belongs-to,join:role_id=id"`
	PermissionID uuid.UUID   `bun:"permission_id,pk,type:uuid"`
	Permission   *Permission `bun:"rel:belongs-to,join:permission_id=id"`
}

// UserPermission joins users to their direct permission grants.
type UserPermission struct {
	bun.BaseModel `bun:"table:user_permissions,alias:usrperm"`

	UserID       uuid.UUID   `bun:"user_id,pk,type:uuid"`
	User         *User       `bun:"rel:belongs-to,join:user_id=id"`
	PermissionID uuid.UUID   `bun:"permission_id,pk,type:uuid"`
	Permission   *Permission `bun:"rel:belongs-to,join:permission_id=id"`
}

// OAuthAccount is the bun model for provider account links. The
// (provider, provider_account_id) pair carries a unique constraint; the
// manager's idempotent-linking guarantee rests on it.
type OAuthAccount struct {
	bun.BaseModel `bun:"table:oauth_accounts,alias:oauth"`

	ID           uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID       uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User         *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Provider     string     `bun:"provider,notnull,unique:oauth_provider_account" json:"provider,omitempty"`
	AccountID    string     `bun:"provider_account_id,notnull,unique:oauth_provider_account" json:"provider_account_id,omitempty"`
	Email        string     `bun:"account_email" json:"account_email,omitempty"`
	AccessToken  string     `bun:"access_token" json:"-"`
	RefreshToken string     `bun:"refresh_token" json:"-"`
	ExpiresAt    *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
	CreatedAt    *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt    *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// RegisterModels registers the m2m join models bun needs to resolve
// relation tags. Call it once on the *bun.DB before using the adapters.
func RegisterModels(db *bun.DB) {
	db.RegisterModel(
		(*RolePermission)(nil),
		(*UserPermission)(nil),
	)
}

// userPrincipal adapts a User row to the principal contract.
type userPrincipal struct {
	user *User
}

var (
	_ authkit.Principal     = (*userPrincipal)(nil)
	_ authkit.RBACPrincipal = (*userPrincipal)(nil)
)

// NewPrincipalFromUser wraps user for the manager. A nil user yields nil.
func NewPrincipalFromUser(user *User) authkit.Principal {
	if user == nil {
		return nil
	}
	return &userPrincipal{user: user}
}

// Unwrap exposes the underlying row for adapters that need column access.
func (p *userPrincipal) Unwrap() *User { return p.user }

func (p *userPrincipal) ID() string           { return p.user.ID.String() }
func (p *userPrincipal) Email() string        { return p.user.Email }
func (p *userPrincipal) Username() string     { return p.user.Username }
func (p *userPrincipal) PasswordHash() string { return p.user.PasswordHash }
func (p *userPrincipal) IsActive() bool       { return p.user.Active }
func (p *userPrincipal) IsVerified() bool     { return p.user.Verified }

func (p *userPrincipal) Role() authkit.Role {
	if p.user.Role == nil {
		return nil
	}
	return &roleAdapter{role: p.user.Role}
}

func (p *userPrincipal) DirectPermissions() []authkit.Permission {
	return adaptPermissions(p.user.Permissions)
}

type roleAdapter struct {
	role *Role
}

var _ authkit.Role = (*roleAdapter)(nil)

// NewRoleAdapter wraps role for the manager. A nil role yields nil.
func NewRoleAdapter(role *Role) authkit.Role {
	if role == nil {
		return nil
	}
	return &roleAdapter{role: role}
}

func (r *roleAdapter) Unwrap() *Role    { return r.role }
func (r *roleAdapter) RoleID() string   { return r.role.ID.String() }
func (r *roleAdapter) Codename() string { return r.role.Codename }

func (r *roleAdapter) Permissions() []authkit.Permission {
	return adaptPermissions(r.role.Permissions)
}

type permissionAdapter struct {
	permission *Permission
}

var _ authkit.Permission = (*permissionAdapter)(nil)

// NewPermissionAdapter wraps permission for the manager. A nil permission
// yields nil.
func NewPermissionAdapter(permission *Permission) authkit.Permission {
	if permission == nil {
		return nil
	}
	return &permissionAdapter{permission: permission}
}

func (p *permissionAdapter) Unwrap() *Permission  { return p.permission }
func (p *permissionAdapter) PermissionID() string { return p.permission.ID.String() }
func (p *permissionAdapter) Codename() string     { return p.permission.Codename }

func adaptPermissions(perms []*Permission) []authkit.Permission {
	if len(perms) == 0 {
		return nil
	}
	out := make([]authkit.Permission, 0, len(perms))
	for _, p := range perms {
		out = append(out, &permissionAdapter{permission: p})
	}
	return out
}

type oauthAccountAdapter struct {
	account *OAuthAccount
}

var _ authkit.OAuthAccount = (*oauthAccountAdapter)(nil)

func (a *oauthAccountAdapter) Unwrap() *OAuthAccount { return a.account }
func (a *oauthAccountAdapter) Provider() string      { return a.account.Provider }
func (a *oauthAccountAdapter) AccountID() string     { return a.account.AccountID }
func (a *oauthAccountAdapter) AccountEmail() string  { return a.account.Email }
func (a *oauthAccountAdapter) OwnerID() string       { return a.account.UserID.String() }
