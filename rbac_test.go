package authkit_test

import (
	"context"
	"testing"

	authkit "github.com/mvarela/go-authkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRBACManager(t *testing.T) (*authkit.Manager, *memUsers, *memRBAC) {
	t.Helper()
	users := newMemUsers()
	rbac := newMemRBAC()
	users.roles = rbac
	manager := authkit.NewManager(testConfig(t), users).WithRBACRepository(rbac)
	return manager, users, rbac
}

func TestCheckAccessEmptyRequirements(t *testing.T) {
	manager, users, _ := newRBACManager(t)
	user := users.add(&testUser{email: "user@example.com", active: true})

	granted, err := manager.CheckAccess(context.Background(), user, authkit.AccessRequirements{})
	require.NoError(t, err)
	assert.Equal(t, user.ID(), granted.ID())
}

func TestCheckAccessRoleMatch(t *testing.T) {
	manager, users, rbac := newRBACManager(t)
	editor := rbac.addRole("editor")
	user := users.add(&testUser{email: "user@example.com", active: true, role: editor})

	_, err := manager.CheckAccess(context.Background(), user, authkit.AccessRequirements{
		Roles: []string{"admin", "editor"},
	})
	assert.NoError(t, err)

	_, err = manager.CheckAccess(context.Background(), user, authkit.AccessRequirements{
		Roles: []string{"admin"},
	})
	assert.ErrorIs(t, err, authkit.ErrAccessDenied)
}

func TestCheckAccessPermissionUnion(t *testing.T) {
	manager, users, rbac := newRBACManager(t)

	read := &testPermission{id: "p1", codename: "posts.read"}
	write := &testPermission{id: "p2", codename: "posts.write"}
	publish := &testPermission{id: "p3", codename: "posts.publish"}

	editor := rbac.addRole("editor", read, write)
	user := users.add(&testUser{
		email:  "user@example.com",
		active: true,
		role:   editor,
		perms:  []*testPermission{publish},
	})

	ctx := context.Background()

	// Role permissions grant.
	_, err := manager.CheckAccess(ctx, user, authkit.AccessRequirements{
		Permissions: []string{"posts.write"},
	})
	assert.NoError(t, err)

	// Direct grants count even when the role lacks them.
	_, err = manager.CheckAccess(ctx, user, authkit.AccessRequirements{
		Permissions: []string{"posts.publish"},
	})
	assert.NoError(t, err)

	_, err = manager.CheckAccess(ctx, user, authkit.AccessRequirements{
		Permissions: []string{"posts.delete"},
	})
	assert.ErrorIs(t, err, authkit.ErrAccessDenied)
}

func TestCheckAccessRoleAndPermissionAreAlternatives(t *testing.T) {
	manager, users, rbac := newRBACManager(t)

	read := &testPermission{id: "p1", codename: "posts.read"}
	viewer := rbac.addRole("viewer", read)
	user := users.add(&testUser{email: "user@example.com", active: true, role: viewer})

	// Wrong role, matching permission: still granted.
	_, err := manager.CheckAccess(context.Background(), user, authkit.AccessRequirements{
		Roles:       []string{"admin"},
		Permissions: []string{"posts.read"},
	})
	assert.NoError(t, err)
}

func TestCheckAccessWithoutRepositoryIsConfigurationError(t *testing.T) {
	manager, users := newTestManager(t)
	user := users.add(&testUser{email: "user@example.com", active: true})

	_, err := manager.CheckAccess(context.Background(), user, authkit.AccessRequirements{
		Roles: []string{"admin"},
	})
	require.Error(t, err)
	assert.True(t, authkit.IsConfigurationError(err))
	assert.False(t, authkit.HasTextCode(err, authkit.TextCodeAccessDenied))
}

func TestAssignRole(t *testing.T) {
	manager, users, rbac := newRBACManager(t)
	rbac.addRole("editor")
	user := users.add(&testUser{email: "user@example.com", active: true})

	updated, err := manager.AssignRole(context.Background(), user, "editor")
	require.NoError(t, err)
	require.NotNil(t, updated.(*testUser).Role())
	assert.Equal(t, "editor", updated.(*testUser).Role().Codename())

	_, err = manager.AssignRole(context.Background(), user, "missing")
	assert.ErrorIs(t, err, authkit.ErrRoleNotFound)
}

func TestCreateRoleAndPermission(t *testing.T) {
	manager, _, _ := newRBACManager(t)
	ctx := context.Background()

	role, err := manager.CreateRole(ctx, map[string]any{"codename": "editor"})
	require.NoError(t, err)
	assert.Equal(t, "editor", role.Codename())

	_, err = manager.CreateRole(ctx, map[string]any{"codename": "editor"})
	assert.ErrorIs(t, err, authkit.ErrRoleAlreadyExists)

	perm, err := manager.CreatePermission(ctx, map[string]any{"codename": "posts.read"})
	require.NoError(t, err)
	assert.Equal(t, "posts.read", perm.Codename())

	_, err = manager.CreatePermission(ctx, map[string]any{"codename": "posts.read"})
	assert.ErrorIs(t, err, authkit.ErrPermissionAlreadyExists)
}

func TestRoleLookupAndListing(t *testing.T) {
	manager, _, rbac := newRBACManager(t)
	ctx := context.Background()

	rbac.addRole("viewer")
	rbac.addRole("editor")

	role, err := manager.GetRole(ctx, "viewer")
	require.NoError(t, err)
	assert.Equal(t, "viewer", role.Codename())

	_, err = manager.GetRole(ctx, "missing")
	assert.ErrorIs(t, err, authkit.ErrRoleNotFound)

	roles, err := manager.ListRoles(ctx)
	require.NoError(t, err)
	assert.Len(t, roles, 2)
}

func TestRBACOperationsWithoutRepository(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	_, err := manager.AssignRole(ctx, testPrincipal(), "editor")
	assert.True(t, authkit.IsConfigurationError(err))

	_, err = manager.CreateRole(ctx, map[string]any{"codename": "editor"})
	assert.True(t, authkit.IsConfigurationError(err))

	_, err = manager.ListPermissions(ctx)
	assert.True(t, authkit.IsConfigurationError(err))
}
