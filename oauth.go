package authkit

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
)

// OAuthCallbackInput is the normalized result of a provider exchange. The
// surrounding route handler performs the actual provider handshake; the
// Manager only decides what the identity maps to locally.
type OAuthCallbackInput struct {
	Provider     string
	AccountID    string
	AccountEmail string
	AccessToken  string
	RefreshToken string
	ExpiresAt    *time.Time
}

// OAuthCallback resolves a provider identity to a local principal:
//
//  1. A known (provider, account_id) link refreshes the stored provider
//     tokens and returns the linked principal.
//  2. An unknown link whose email matches an existing account attaches a
//     new link when email association is enabled, and fails with
//     UserAlreadyExists when it is not. Refusing is the default: an
//     attacker-controlled provider asserting a victim's email must not
//     take the account over.
//  3. Otherwise a new principal is created with an unusable random
//     password and the link is attached.
//
// Every branch leaves exactly one link per (provider, account_id); the
// result is re-fetched after mutation to guarantee it.
func (m *Manager) OAuthCallback(ctx context.Context, input OAuthCallbackInput) (Principal, error) {
	if m.oauth == nil {
		return nil, ErrOAuthNotConfigured
	}
	if input.Provider == "" || input.AccountID == "" {
		return nil, errors.New("provider and account id are required", errors.CategoryValidation).
			WithTextCode("MISSING_OAUTH_IDENTITY").
			WithCode(errors.CodeBadRequest)
	}

	tokenFields := map[string]any{
		"access_token":  input.AccessToken,
		"refresh_token": input.RefreshToken,
	}
	if input.ExpiresAt != nil {
		tokenFields["expires_at"] = *input.ExpiresAt
	}

	// Branch 1: known link.
	account, err := m.oauth.GetOAuthAccount(ctx, input.Provider, input.AccountID)
	if err == nil {
		principal, err := m.oauth.GetUserByOAuth(ctx, input.Provider, input.AccountID)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "linked user lookup failed")
		}
		if _, err := m.oauth.UpdateOAuthAccount(ctx, principal, account, tokenFields); err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to refresh oauth link")
		}
		return m.verifyLinked(ctx, input, principal)
	}
	if !IsNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "oauth link lookup failed")
	}

	linkFields := map[string]any{
		"provider":            input.Provider,
		"provider_account_id": input.AccountID,
		"account_email":       input.AccountEmail,
	}
	for k, v := range tokenFields {
		linkFields[k] = v
	}

	// Branch 2: email collision with an existing account.
	if input.AccountEmail != "" {
		existing, err := m.users.GetByEmail(ctx, input.AccountEmail)
		if err == nil {
			if !m.cfg.AssociateByEmail() {
				return nil, ErrUserAlreadyExists
			}
			principal, err := m.oauth.AddOAuthAccount(ctx, existing, linkFields)
			if err != nil {
				if isConflict(err) {
					return m.retryExistingLink(ctx, input, tokenFields)
				}
				return nil, errors.Wrap(err, errors.CategoryInternal, "failed to attach oauth link")
			}
			m.hooks.emit(ctx, HookPayload{Event: HookAfterOAuthLink, Principal: principal,
				Metadata: map[string]any{"provider": input.Provider}})
			return m.verifyLinked(ctx, input, principal)
		}
		if !IsNotFound(err) {
			return nil, errors.Wrap(err, errors.CategoryInternal, "oauth email lookup failed")
		}
	}

	// Branch 3: brand new principal with an unusable password.
	secret, err := m.hasher.Generate()
	if err != nil {
		return nil, err
	}
	digest, err := m.hasher.Hash(secret)
	if err != nil {
		return nil, err
	}

	userFields := map[string]any{
		"email":         input.AccountEmail,
		"password_hash": digest,
		"is_active":     m.cfg.GetDefaultActive(),
		"is_verified":   m.cfg.OAuthVerifiedByDefault(),
	}

	if m.rbac != nil && m.cfg.GetDefaultRole() != "" {
		role, err := m.rbac.GetRoleByCodename(ctx, m.cfg.GetDefaultRole())
		if err != nil {
			if !IsNotFound(err) {
				return nil, errors.Wrap(err, errors.CategoryInternal, "role lookup failed")
			}
		} else {
			userFields["role_id"] = role.RoleID()
		}
	}

	created, err := m.users.Create(ctx, userFields)
	if err != nil {
		if isConflict(err) {
			return nil, ErrUserAlreadyExists
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create oauth user")
	}

	principal, err := m.oauth.AddOAuthAccount(ctx, created, linkFields)
	if err != nil {
		if isConflict(err) {
			return m.retryExistingLink(ctx, input, tokenFields)
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to attach oauth link")
	}

	m.hooks.emit(ctx, HookPayload{Event: HookAfterRegister, Principal: principal})
	m.hooks.emit(ctx, HookPayload{Event: HookAfterOAuthLink, Principal: principal,
		Metadata: map[string]any{"provider": input.Provider}})

	return m.verifyLinked(ctx, input, principal)
}

// retryExistingLink handles a losing race: another request linked the same
// (provider, account_id) between our lookup and insert. The winner's row is
// authoritative; refresh its tokens and return its principal.
func (m *Manager) retryExistingLink(ctx context.Context, input OAuthCallbackInput, tokenFields map[string]any) (Principal, error) {
	account, err := m.oauth.GetOAuthAccount(ctx, input.Provider, input.AccountID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "oauth link re-lookup failed")
	}
	principal, err := m.oauth.GetUserByOAuth(ctx, input.Provider, input.AccountID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "linked user lookup failed")
	}
	if _, err := m.oauth.UpdateOAuthAccount(ctx, principal, account, tokenFields); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to refresh oauth link")
	}
	return m.verifyLinked(ctx, input, principal)
}

// verifyLinked round-trips the link after mutation, asserting exactly one
// row answers for the (provider, account_id) pair.
func (m *Manager) verifyLinked(ctx context.Context, input OAuthCallbackInput, principal Principal) (Principal, error) {
	account, err := m.oauth.GetOAuthAccount(ctx, input.Provider, input.AccountID)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "oauth link verification failed")
	}
	if account.OwnerID() != principal.ID() {
		m.logger.Error("oauth link owner mismatch",
			"provider", input.Provider,
			"expected", principal.ID(),
			"actual", account.OwnerID(),
		)
		return nil, errors.New("oauth link owner mismatch", errors.CategoryInternal)
	}
	return principal, nil
}

// OAuthState mints a state-kind token carrying redirect metadata for the
// round-trip to the provider.
func (m *Manager) OAuthState(ctx context.Context, principal Principal, extra map[string]any) (string, error) {
	return m.strategy.WriteToken(ctx, principal, TokenState, extra)
}

// VerifyOAuthState validates a state token returned by the provider.
func (m *Manager) VerifyOAuthState(ctx context.Context, token string) (*Claims, error) {
	return m.strategy.ReadToken(ctx, token, TokenState)
}
