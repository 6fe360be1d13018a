package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/mvarela/go-authkit"
	"github.com/uptrace/bun"
)

// userColumns are the patch keys Update accepts. Anything else lands in
// the metadata column.
var userColumns = map[string]bool{
	"email":         true,
	"username":      true,
	"password_hash": true,
	"is_active":     true,
	"is_verified":   true,
	"role_id":       true,
}

// Users implements authkit.UserRepository on bun.
type Users struct {
	repo   repository.Repository[*User]
	db     *bun.DB
	logger authkit.Logger
}

var _ authkit.UserRepository = (*Users)(nil)

// NewUsers builds the adapter. RegisterModels must have run on db.
func NewUsers(db *bun.DB) *Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
	})

	return &Users{
		repo:   repo,
		db:     db,
		logger: authkit.DefaultLogger(),
	}
}

func (r *Users) WithLogger(logger authkit.Logger) *Users {
	if logger != nil {
		r.logger = logger
	}
	return r
}

func (r *Users) GetByID(ctx context.Context, id string) (authkit.Principal, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, errors.New("invalid user id", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}
	return r.getOne(ctx, "id", uid)
}

func (r *Users) GetByEmail(ctx context.Context, email string) (authkit.Principal, error) {
	return r.getOne(ctx, "email", email)
}

func (r *Users) GetByUsername(ctx context.Context, username string) (authkit.Principal, error) {
	return r.getOne(ctx, "username", username)
}

func (r *Users) GetByField(ctx context.Context, value, field string) (authkit.Principal, error) {
	if !userColumns[field] && field != "id" {
		return nil, errors.New(
			fmt.Sprintf("unknown lookup field %q", field),
			errors.CategoryBadInput,
		).WithCode(errors.CodeBadRequest)
	}
	if field == "id" {
		return r.GetByID(ctx, value)
	}
	return r.getOne(ctx, field, value)
}

func (r *Users) GetByFields(ctx context.Context, value string, fields []string) (authkit.Principal, error) {
	for _, field := range fields {
		principal, err := r.GetByField(ctx, value, field)
		if err != nil {
			if authkit.IsNotFound(err) {
				continue
			}
			return nil, err
		}
		return principal, nil
	}
	return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
		"identifier": value,
		"fields":     fields,
	})
}

func (r *Users) Create(ctx context.Context, fields map[string]any) (authkit.Principal, error) {
	user := &User{}
	if err := applyUserFields(user, fields); err != nil {
		return nil, err
	}
	prepareUserDefaults(user)

	created, err := r.repo.CreateTx(ctx, r.db, user)
	if err != nil {
		return nil, translateConstraint(err)
	}

	// Re-read with relations so the principal carries its grants.
	return r.getOne(ctx, "id", created.ID)
}

func (r *Users) Update(ctx context.Context, principal authkit.Principal, fields map[string]any) (authkit.Principal, error) {
	user, err := r.rowFor(ctx, principal)
	if err != nil {
		return nil, err
	}

	if err := applyUserFields(user, fields); err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	columns := make([]string, 0, len(fields))
	for k := range fields {
		col := k
		if !userColumns[k] {
			col = "metadata"
		}
		if !seen[col] {
			seen[col] = true
			columns = append(columns, col)
		}
	}

	if _, err := r.db.NewUpdate().
		Model(user).
		Column(columns...).
		WherePK().
		Exec(ctx); err != nil {
		return nil, translateConstraint(err)
	}

	return r.getOne(ctx, "id", user.ID)
}

func (r *Users) Delete(ctx context.Context, principal authkit.Principal) error {
	user, err := r.rowFor(ctx, principal)
	if err != nil {
		return err
	}
	_, err = r.db.NewDelete().
		Model(user).
		WherePK().
		Exec(ctx)
	return err
}

func (r *Users) getOne(ctx context.Context, column string, value any) (authkit.Principal, error) {
	user := &User{}
	err := r.db.NewSelect().
		Model(user).
		Relation("Role").
		Relation("Role.Permissions").
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
	return NewPrincipalFromUser(user), nil
}

// rowFor recovers the bun row behind a principal, re-fetching when the
// principal came from elsewhere.
func (r *Users) rowFor(ctx context.Context, principal authkit.Principal) (*User, error) {
	if principal == nil {
		return nil, repository.NewRecordNotFound()
	}
	if wrapped, ok := principal.(interface{ Unwrap() *User }); ok {
		return wrapped.Unwrap(), nil
	}

	uid, err := uuid.Parse(principal.ID())
	if err != nil {
		return nil, errors.New("invalid user id", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}

	user := &User{}
	if err := r.db.NewSelect().
		Model(user).
		Where("?TableAlias.id = ?", uid).
		Limit(1).
		Scan(ctx); err != nil {
		if isEmptyResult(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}
	return user, nil
}

func applyUserFields(user *User, fields map[string]any) error {
	for k, v := range fields {
		switch k {
		case "email":
			user.Email, _ = v.(string)
		case "username":
			user.Username, _ = v.(string)
		case "password_hash":
			user.PasswordHash, _ = v.(string)
		case "is_active":
			user.Active, _ = v.(bool)
		case "is_verified":
			user.Verified, _ = v.(bool)
		case "role_id":
			switch id := v.(type) {
			case string:
				parsed, err := uuid.Parse(id)
				if err != nil {
					return errors.New("invalid role id", errors.CategoryBadInput).
						WithCode(errors.CodeBadRequest)
				}
				user.RoleID = &parsed
			case uuid.UUID:
				user.RoleID = &id
			default:
				return errors.New("invalid role id", errors.CategoryBadInput).
					WithCode(errors.CodeBadRequest)
			}
		default:
			if user.Metadata == nil {
				user.Metadata = map[string]any{}
			}
			user.Metadata[k] = v
		}
	}
	return nil
}

// prepareUserDefaults derives a deterministic ID from the email so repeated
// imports of the same account converge on one row; accounts without an
// email get a random ID.
func prepareUserDefaults(user *User) {
	if user == nil || user.ID != uuid.Nil {
		return
	}
	if user.Email != "" {
		if id, err := hashid.NewUUID(user.Email); err == nil {
			user.ID = id
			return
		}
	}
	user.ID = uuid.New()
}

// translateConstraint maps driver uniqueness violations to a conflict error
// the manager can recognize; everything else passes through.
func translateConstraint(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "23505") {
		return errors.Wrap(err, errors.CategoryConflict, "record already exists").
			WithTextCode("RECORD_ALREADY_EXISTS").
			WithCode(errors.CodeConflict)
	}
	return err
}

func isEmptyResult(err error) bool {
	return repository.IsRecordNotFound(err) || strings.Contains(err.Error(), "no rows in result set")
}
