package repository

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/mvarela/go-authkit"
	"github.com/uptrace/bun"
)

// OAuth implements authkit.OAuthRepository on bun.
type OAuth struct {
	db    *bun.DB
	users *Users
}

var _ authkit.OAuthRepository = (*OAuth)(nil)

func NewOAuth(db *bun.DB, users *Users) *OAuth {
	return &OAuth{db: db, users: users}
}

func (r *OAuth) GetUserByOAuth(ctx context.Context, provider, accountID string) (authkit.Principal, error) {
	account, err := r.getAccountRow(ctx, provider, accountID)
	if err != nil {
		return nil, err
	}
	return r.users.GetByID(ctx, account.UserID.String())
}

func (r *OAuth) GetOAuthAccount(ctx context.Context, provider, accountID string) (authkit.OAuthAccount, error) {
	account, err := r.getAccountRow(ctx, provider, accountID)
	if err != nil {
		return nil, err
	}
	return &oauthAccountAdapter{account: account}, nil
}

func (r *OAuth) AddOAuthAccount(ctx context.Context, principal authkit.Principal, fields map[string]any) (authkit.Principal, error) {
	uid, err := uuid.Parse(principal.ID())
	if err != nil {
		return nil, errors.New("invalid user id", errors.CategoryBadInput).
			WithCode(errors.CodeBadRequest)
	}

	account := &OAuthAccount{
		ID:     uuid.New(),
		UserID: uid,
	}
	applyOAuthFields(account, fields)

	if account.Provider == "" || account.AccountID == "" {
		return nil, errors.New("provider and account id are required", errors.CategoryValidation).
			WithCode(errors.CodeBadRequest)
	}

	if _, err := r.db.NewInsert().Model(account).Exec(ctx); err != nil {
		return nil, translateConstraint(err)
	}

	return principal, nil
}

func (r *OAuth) UpdateOAuthAccount(ctx context.Context, principal authkit.Principal, existing authkit.OAuthAccount, fields map[string]any) (authkit.Principal, error) {
	account, err := r.getAccountRow(ctx, existing.Provider(), existing.AccountID())
	if err != nil {
		return nil, err
	}

	applyOAuthFields(account, fields)
	now := time.Now()
	account.UpdatedAt = &now

	if _, err := r.db.NewUpdate().
		Model(account).
		Column("account_email", "access_token", "refresh_token", "expires_at", "updated_at").
		WherePK().
		Exec(ctx); err != nil {
		return nil, translateConstraint(err)
	}

	return principal, nil
}

func (r *OAuth) getAccountRow(ctx context.Context, provider, accountID string) (*OAuthAccount, error) {
	account := &OAuthAccount{}
	err := r.db.NewSelect().
		Model(account).
		Where("?TableAlias.provider = ? AND ?TableAlias.provider_account_id = ?", provider, accountID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isEmptyResult(err) {
			return nil, repository.NewRecordNotFound().WithMetadata(map[string]any{
				"provider": provider,
			})
		}
		return nil, err
	}
	return account, nil
}

func applyOAuthFields(account *OAuthAccount, fields map[string]any) {
	if v, ok := fields["provider"].(string); ok {
		account.Provider = v
	}
	if v, ok := fields["provider_account_id"].(string); ok {
		account.AccountID = v
	}
	if v, ok := fields["account_email"].(string); ok {
		account.Email = v
	}
	if v, ok := fields["access_token"].(string); ok {
		account.AccessToken = v
	}
	if v, ok := fields["refresh_token"].(string); ok {
		account.RefreshToken = v
	}
	if v, ok := fields["expires_at"].(time.Time); ok {
		account.ExpiresAt = &v
	}
}
