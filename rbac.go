package authkit

import (
	"context"

	"github.com/goliatone/go-errors"
)

// AccessRequirements describe what CheckAccess demands. Empty requirements
// on both axes mean no restriction: any principal passes.
type AccessRequirements struct {
	// Roles grants access when the principal's role codename is one of
	// these.
	Roles []string
	// Permissions grants access when the principal's effective permission
	// set overlaps these. Effective permissions are the union of role
	// permissions and direct grants.
	Permissions []string
}

// CheckAccess authorizes principal against requirements. Role match and
// permission overlap are alternatives: either one grants. A Manager with no
// RBAC repository wired, or a principal that does not carry its grants,
// fails with a configuration error so miswiring never reads as a denial.
func (m *Manager) CheckAccess(ctx context.Context, principal Principal, req AccessRequirements) (Principal, error) {
	if len(req.Roles) == 0 && len(req.Permissions) == 0 {
		return principal, nil
	}

	if m.rbac == nil {
		return nil, ErrRBACNotConfigured
	}

	grants, ok := principal.(RBACPrincipal)
	if !ok {
		return nil, ErrRBACNotConfigured.Clone().WithMetadata(map[string]any{
			"reason": "principal does not carry role and permission grants",
		})
	}

	role := grants.Role()
	if role != nil {
		for _, want := range req.Roles {
			if role.Codename() == want {
				return principal, nil
			}
		}
	}

	if len(req.Permissions) > 0 {
		effective := map[string]bool{}
		if role != nil {
			for _, p := range role.Permissions() {
				effective[p.Codename()] = true
			}
		}
		for _, p := range grants.DirectPermissions() {
			effective[p.Codename()] = true
		}

		for _, want := range req.Permissions {
			if effective[want] {
				return principal, nil
			}
		}
	}

	m.logger.Debug("access denied",
		"user_id", principal.ID(),
		"required_roles", req.Roles,
		"required_permissions", req.Permissions,
	)

	return nil, ErrAccessDenied
}

// AssignRole points principal at the role with the given codename.
func (m *Manager) AssignRole(ctx context.Context, principal Principal, codename string) (Principal, error) {
	if m.rbac == nil {
		return nil, ErrRBACNotConfigured
	}

	role, err := m.rbac.GetRoleByCodename(ctx, codename)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrRoleNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "role lookup failed")
	}

	updated, err := m.users.Update(ctx, principal, map[string]any{"role_id": role.RoleID()})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to assign role")
	}

	return updated, nil
}

// CreateRole registers a role, translating uniqueness violations.
func (m *Manager) CreateRole(ctx context.Context, fields map[string]any) (Role, error) {
	if m.rbac == nil {
		return nil, ErrRBACNotConfigured
	}
	role, err := m.rbac.CreateRole(ctx, fields)
	if err != nil {
		if isConflict(err) {
			return nil, ErrRoleAlreadyExists
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create role")
	}
	return role, nil
}

// CreatePermission registers a permission, translating uniqueness
// violations.
func (m *Manager) CreatePermission(ctx context.Context, fields map[string]any) (Permission, error) {
	if m.rbac == nil {
		return nil, ErrRBACNotConfigured
	}
	permission, err := m.rbac.CreatePermission(ctx, fields)
	if err != nil {
		if isConflict(err) {
			return nil, ErrPermissionAlreadyExists
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create permission")
	}
	return permission, nil
}

// GetRole fetches a role by codename.
func (m *Manager) GetRole(ctx context.Context, codename string) (Role, error) {
	if m.rbac == nil {
		return nil, ErrRBACNotConfigured
	}
	role, err := m.rbac.GetRoleByCodename(ctx, codename)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrRoleNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "role lookup failed")
	}
	return role, nil
}

// ListRoles returns every known role.
func (m *Manager) ListRoles(ctx context.Context) ([]Role, error) {
	if m.rbac == nil {
		return nil, ErrRBACNotConfigured
	}
	return m.rbac.ListRoles(ctx)
}

// ListPermissions returns every known permission.
func (m *Manager) ListPermissions(ctx context.Context) ([]Permission, error) {
	if m.rbac == nil {
		return nil, ErrRBACNotConfigured
	}
	return m.rbac.ListPermissions(ctx)
}
