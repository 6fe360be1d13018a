package repository

import (
	"context"
	"fmt"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/mvarela/go-authkit"
	"github.com/uptrace/bun"
)

// RBAC implements authkit.RBACRepository on bun.
type RBAC struct {
	db *bun.DB
}

var _ authkit.RBACRepository = (*RBAC)(nil)

func NewRBAC(db *bun.DB) *RBAC {
	return &RBAC{db: db}
}

func (r *RBAC) GetRole(ctx context.Context, id string) (authkit.Role, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, errors.New("invalid role id", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}
	return r.getRole(ctx, "id", uid)
}

func (r *RBAC) GetRoleByCodename(ctx context.Context, codename string) (authkit.Role, error) {
	return r.getRole(ctx, "codename", codename)
}

func (r *RBAC) CreateRole(ctx context.Context, fields map[string]any) (authkit.Role, error) {
	role := &Role{}
	applyNamedFields(fields, &role.Codename, &role.Name)
	if role.Codename == "" {
		return nil, errors.New("role codename is required", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest)
	}
	role.ID = uuid.New()

	if _, err := r.db.NewInsert().Model(role).Exec(ctx); err != nil {
		return nil, translateConstraint(err)
	}

	return NewRoleAdapter(role), nil
}

func (r *RBAC) UpdateRole(ctx context.Context, role authkit.Role, fields map[string]any) (authkit.Role, error) {
	row, err := r.roleRow(ctx, role)
	if err != nil {
		return nil, err
	}
	applyNamedFields(fields, &row.Codename, &row.Name)

	if _, err := r.db.NewUpdate().
		Model(row).
		Column("codename", "name").
		WherePK().
		Exec(ctx); err != nil {
		return nil, translateConstraint(err)
	}

	return r.getRole(ctx, "id", row.ID)
}

func (r *RBAC) DeleteRole(ctx context.Context, role authkit.Role) error {
	row, err := r.roleRow(ctx, role)
	if err != nil {
		return err
	}
	if _, err := r.db.NewDelete().
		Model((*RolePermission)(nil)).
		Where("role_id = ?", row.ID).
		Exec(ctx); err != nil {
		return err
	}
	_, err = r.db.NewDelete().Model(row).WherePK().Exec(ctx)
	return err
}

func (r *RBAC) ListRoles(ctx context.Context) ([]authkit.Role, error) {
	var rows []*Role
	if err := r.db.NewSelect().
		Model(&rows).
		Relation("Permissions").
		Order("codename ASC").
		Scan(ctx); err != nil {
		return nil, err
	}

	out := make([]authkit.Role, 0, len(rows))
	for _, row := range rows {
		out = append(out, NewRoleAdapter(row))
	}
	return out, nil
}

func (r *RBAC) GetPermission(ctx context.Context, id string) (authkit.Permission, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, errors.New("invalid permission id", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}
	return r.getPermission(ctx, "id", uid)
}

func (r *RBAC) GetPermissionByCodename(ctx context.Context, codename string) (authkit.Permission, error) {
	return r.getPermission(ctx, "codename", codename)
}

func (r *RBAC) CreatePermission(ctx context.Context, fields map[string]any) (authkit.Permission, error) {
	permission := &Permission{}
	applyNamedFields(fields, &permission.Codename, &permission.Name)
	if permission.Codename == "" {
		return nil, errors.New("permission codename is required", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest)
	}
	permission.ID = uuid.New()

	if _, err := r.db.NewInsert().Model(permission).Exec(ctx); err != nil {
		return nil, translateConstraint(err)
	}

	return NewPermissionAdapter(permission), nil
}

func (r *RBAC) UpdatePermission(ctx context.Context, permission authkit.Permission, fields map[string]any) (authkit.Permission, error) {
	row, err := r.permissionRow(ctx, permission)
	if err != nil {
		return nil, err
	}
	applyNamedFields(fields, &row.Codename, &row.Name)

	if _, err := r.db.NewUpdate().
		Model(row).
		Column("codename", "name").
		WherePK().
		Exec(ctx); err != nil {
		return nil, translateConstraint(err)
	}

	return NewPermissionAdapter(row), nil
}

func (r *RBAC) DeletePermission(ctx context.Context, permission authkit.Permission) error {
	row, err := r.permissionRow(ctx, permission)
	if err != nil {
		return err
	}
	if _, err := r.db.NewDelete().
		Model((*RolePermission)(nil)).
		Where("permission_id = ?", row.ID).
		Exec(ctx); err != nil {
		return err
	}
	if _, err := r.db.NewDelete().
		Model((*UserPermission)(nil)).
		Where("permission_id = ?", row.ID).
		Exec(ctx); err != nil {
		return err
	}
	_, err = r.db.NewDelete().Model(row).WherePK().Exec(ctx)
	return err
}

func (r *RBAC) ListPermissions(ctx context.Context) ([]authkit.Permission, error) {
	var rows []*Permission
	if err := r.db.NewSelect().
		Model(&rows).
		Order("codename ASC").
		Scan(ctx); err != nil {
		return nil, err
	}

	out := make([]authkit.Permission, 0, len(rows))
	for _, row := range rows {
		out = append(out, NewPermissionAdapter(row))
	}
	return out, nil
}

// GrantToRole links a permission to a role.
func (r *RBAC) GrantToRole(ctx context.Context, role authkit.Role, permission authkit.Permission) error {
	roleRow, err := r.roleRow(ctx, role)
	if err != nil {
		return err
	}
	permRow, err := r.permissionRow(ctx, permission)
	if err != nil {
		return err
	}

	_, err = r.db.NewInsert().
		Model(&RolePermission{RoleID: roleRow.ID, PermissionID: permRow.ID}).
		Exec(ctx)
	return translateConstraint(err)
}

// GrantToUser links a permission directly to a user.
func (r *RBAC) GrantToUser(ctx context.Context, principal authkit.Principal, permission authkit.Permission) error {
	uid, err := uuid.Parse(principal.ID())
	if err != nil {
		return errors.New("invalid user id", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}
	permRow, err := r.permissionRow(ctx, permission)
	if err != nil {
		return err
	}

	_, err = r.db.NewInsert().
		Model(&UserPermission{UserID: uid, PermissionID: permRow.ID}).
		Exec(ctx)
	return translateConstraint(err)
}

func (r *RBAC) getRole(ctx context.Context, column string, value any) (authkit.Role, error) {
	row := &Role{}
	err := r.db.NewSelect().
		Model(row).
		Relation("Permissions").
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isEmptyResult(err) {
			return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
				"field": column,
			})
		}
		return nil, err
	}
	return NewRoleAdapter(row), nil
}

func (r *RBAC) getPermission(ctx context.Context, column string, value any) (authkit.Permission, error) {
	row := &Permission{}
	err := r.db.NewSelect().
		Model(row).
		Where(fmt.Sprintf("?TableAlias.%s = ?", column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isEmptyResult(err) {
			return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
				"field": column,
			})
		}
		return nil, err
	}
	return NewPermissionAdapter(row), nil
}

func (r *RBAC) roleRow(ctx context.Context, role authkit.Role) (*Role, error) {
	if role == nil {
		return nil, repository.NewRecordNotFound()
	}
	if wrapped, ok := role.(interface{ Unwrap() *Role }); ok {
		return wrapped.Unwrap(), nil
	}
	uid, err := uuid.Parse(role.RoleID())
	if err != nil {
		return nil, errors.New("invalid role id", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}
	row := &Role{}
	if err := r.db.NewSelect().
		Model(row).
		Where("?TableAlias.id = ?", uid).
		Limit(1).
		Scan(ctx); err != nil {
		if isEmptyResult(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}
	return row, nil
}

func (r *RBAC) permissionRow(ctx context.Context, permission authkit.Permission) (*Permission, error) {
	if permission == nil {
		return nil, repository.NewRecordNotFound()
	}
	if wrapped, ok := permission.(interface{ Unwrap() *Permission }); ok {
		return wrapped.Unwrap(), nil
	}
	uid, err := uuid.Parse(permission.PermissionID())
	if err != nil {
		return nil, errors.New("invalid permission id", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}
	row := &Permission{}
	if err := r.db.NewSelect().
		Model(row).
		Where("?TableAlias.id = ?", uid).
		Limit(1).
		Scan(ctx); err != nil {
		if isEmptyResult(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}
	return row, nil
}

// applyNamedFields copies the codename/name entries from fields.
func applyNamedFields(fields map[string]any, codename, name *string) {
	if v, ok := fields["codename"].(string); ok {
		*codename = v
	}
	if v, ok := fields["name"].(string); ok {
		*name = v
	}
}
