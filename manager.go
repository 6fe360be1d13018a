package authkit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/goliatone/go-errors"
)

// Manager orchestrates registration, login, verification, password reset,
// RBAC checks, and OAuth linking over the injected repositories. It holds
// no mutable state of its own; construct one per dependency scope and share
// it freely.
type Manager struct {
	cfg      *Config
	users    UserRepository
	rbac     RBACRepository
	oauth    OAuthRepository
	hasher   Hasher
	strategy TokenStrategy
	logger   Logger
	hooks    *hookRegistry
}

// NewManager wires a Manager with the default hasher and JWT strategy.
// RBAC and OAuth repositories are optional; operations that need a missing
// one fail with a configuration error, never silently.
func NewManager(cfg *Config, users UserRepository) *Manager {
	logger := defLogger{}
	return &Manager{
		cfg:      cfg,
		users:    users,
		hasher:   NewArgon2Hasher(),
		strategy: NewJWTStrategy(cfg),
		logger:   logger,
		hooks:    newHookRegistry(logger),
	}
}

func (m *Manager) WithLogger(logger Logger) *Manager {
	if logger != nil {
		m.logger = logger
		m.hooks.logger = logger
	}
	return m
}

func (m *Manager) WithHasher(hasher Hasher) *Manager {
	if hasher != nil {
		m.hasher = hasher
	}
	return m
}

func (m *Manager) WithTokenStrategy(strategy TokenStrategy) *Manager {
	if strategy != nil {
		m.strategy = strategy
	}
	return m
}

func (m *Manager) WithRBACRepository(repo RBACRepository) *Manager {
	m.rbac = repo
	return m
}

func (m *Manager) WithOAuthRepository(repo OAuthRepository) *Manager {
	m.oauth = repo
	return m
}

// OnEvent registers a hook for a lifecycle event. Hooks run synchronously
// after the operation commits; their errors are logged, not propagated.
func (m *Manager) OnEvent(event HookEvent, hook Hook) *Manager {
	m.hooks.register(event, hook)
	return m
}

// Strategy exposes the token strategy for route wiring.
func (m *Manager) Strategy() TokenStrategy {
	return m.strategy
}

// Config exposes the read-only configuration.
func (m *Manager) Config() *Config {
	return m.cfg
}

// Login resolves identifier through the configured login fields and checks
// password. Lookup misses still burn a password verification so response
// timing does not reveal whether the account exists, and both failure modes
// share the same client-facing message.
func (m *Manager) Login(ctx context.Context, identifier, password string) (Principal, error) {
	principal, err := m.users.GetByFields(ctx, identifier, m.cfg.GetLoginFields())
	if err != nil {
		if IsNotFound(err) {
			m.hasher.VerifyAndUpgrade(password, "")
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "login lookup failed")
	}

	ok, upgraded := m.hasher.VerifyAndUpgrade(password, principal.PasswordHash())
	if !ok {
		return nil, ErrInvalidCredentials
	}

	if upgraded != "" {
		// Best effort; a failed upgrade never blocks the login.
		if refreshed, err := m.users.Update(ctx, principal, map[string]any{"password_hash": upgraded}); err != nil {
			m.logger.Warn("password hash upgrade failed", "user_id", principal.ID(), "error", err)
		} else {
			principal = refreshed
		}
	}

	m.hooks.emit(ctx, HookPayload{Event: HookAfterLogin, Principal: principal})

	return principal, nil
}

// RegisterInput carries the fields accepted at registration. Extra entries
// pass through to the repository untouched.
type RegisterInput struct {
	Email    string
	Username string
	Password string
	Active   *bool
	Verified *bool
	Role     string
	Extra    map[string]any
}

// Register creates a principal. In safe mode caller-supplied active,
// verified, and role values are discarded: the account gets the configured
// defaults and the default registration role. Unsafe mode is for
// administrative creation and honors them.
func (m *Manager) Register(ctx context.Context, input RegisterInput, safe bool) (Principal, error) {
	if input.Email == "" {
		return nil, errors.New("email is required", errors.CategoryValidation).
			WithTextCode("MISSING_EMAIL").
			WithCode(errors.CodeBadRequest)
	}
	if input.Password == "" {
		return nil, ErrNoEmptyString
	}

	if err := m.ensureIdentifierFree(ctx, input.Email, input.Username); err != nil {
		return nil, err
	}

	digest, err := m.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	fields := map[string]any{}
	for k, v := range input.Extra {
		fields[k] = v
	}
	fields["email"] = input.Email
	fields["password_hash"] = digest
	if input.Username != "" {
		fields["username"] = input.Username
	}

	role := input.Role
	if safe {
		fields["is_active"] = m.cfg.GetDefaultActive()
		fields["is_verified"] = false
		role = m.cfg.GetDefaultRole()
	} else {
		if input.Active != nil {
			fields["is_active"] = *input.Active
		}
		if input.Verified != nil {
			fields["is_verified"] = *input.Verified
		}
	}

	if m.rbac != nil && role != "" {
		stored, err := m.rbac.GetRoleByCodename(ctx, role)
		if err != nil {
			if !IsNotFound(err) {
				return nil, errors.Wrap(err, errors.CategoryInternal, "role lookup failed")
			}
			return nil, ErrRoleNotFound
		}
		fields["role_id"] = stored.RoleID()
	}

	principal, err := m.users.Create(ctx, fields)
	if err != nil {
		if isConflict(err) {
			return nil, ErrUserAlreadyExists
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create user")
	}

	m.hooks.emit(ctx, HookPayload{Event: HookAfterRegister, Principal: principal})

	return principal, nil
}

// RequestVerification issues a verify-kind token for an unverified account.
// Repeated requests for an already verified account are rejected rather
// than silently re-issued.
func (m *Manager) RequestVerification(ctx context.Context, email string) (string, error) {
	principal, err := m.getActiveByEmail(ctx, email)
	if err != nil {
		return "", err
	}
	if principal.IsVerified() {
		return "", ErrUserAlreadyVerified
	}

	token, err := m.strategy.WriteToken(ctx, principal, TokenVerify, map[string]any{
		"email": principal.Email(),
	})
	if err != nil {
		return "", err
	}

	m.hooks.emit(ctx, HookPayload{Event: HookAfterVerifyRequest, Principal: principal, Token: token})

	return token, nil
}

// Verify consumes a verify-kind token and marks the account verified. The
// user is re-fetched by the embedded email and the token subject must match
// their current ID, so a token issued before an email change is useless.
func (m *Manager) Verify(ctx context.Context, token string) (Principal, error) {
	claims, err := m.strategy.ReadToken(ctx, token, TokenVerify)
	if err != nil {
		return nil, err
	}
	if claims.UserID() == "" || claims.Email == "" {
		return nil, invalidToken("missing subject or email claim", nil)
	}

	principal, err := m.users.GetByEmail(ctx, claims.Email)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "verification lookup failed")
	}

	if principal.ID() != claims.UserID() {
		return nil, invalidToken("subject does not match account", nil)
	}
	if principal.IsVerified() {
		return nil, ErrUserAlreadyVerified
	}

	updated, err := m.users.Update(ctx, principal, map[string]any{"is_verified": true})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist verification")
	}

	m.hooks.emit(ctx, HookPayload{Event: HookAfterVerify, Principal: updated})

	return updated, nil
}

// ForgotPassword issues a reset-kind token bound to the current password
// state: the token embeds a fingerprint of the live password hash, so any
// password change made before redemption invalidates it.
func (m *Manager) ForgotPassword(ctx context.Context, email string) (string, error) {
	principal, err := m.getActiveByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	token, err := m.strategy.WriteToken(ctx, principal, TokenReset, map[string]any{
		"email":         principal.Email(),
		"password_fgpt": passwordFingerprint(principal.PasswordHash()),
	})
	if err != nil {
		return "", err
	}

	m.hooks.emit(ctx, HookPayload{Event: HookAfterResetRequest, Principal: principal, Token: token})

	return token, nil
}

// ResetPassword redeems a reset-kind token. A fingerprint mismatch is
// reported exactly like a forged token; a stale token and an invalid one
// are indistinguishable to the caller.
func (m *Manager) ResetPassword(ctx context.Context, token, newPassword string) (Principal, error) {
	if newPassword == "" {
		return nil, ErrNoEmptyString
	}

	claims, err := m.strategy.ReadToken(ctx, token, TokenReset)
	if err != nil {
		return nil, err
	}
	if claims.UserID() == "" || claims.PasswordFingerprint == "" {
		return nil, invalidToken("missing subject or fingerprint claim", nil)
	}

	principal, err := m.users.GetByID(ctx, claims.UserID())
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "reset lookup failed")
	}
	if !principal.IsActive() {
		return nil, ErrUserInactive
	}

	if passwordFingerprint(principal.PasswordHash()) != claims.PasswordFingerprint {
		return nil, invalidToken("stale reset token", nil)
	}

	digest, err := m.hasher.Hash(newPassword)
	if err != nil {
		return nil, err
	}

	updated, err := m.users.Update(ctx, principal, map[string]any{"password_hash": digest})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to persist password")
	}

	m.hooks.emit(ctx, HookPayload{Event: HookAfterPasswordChange, Principal: updated})

	return updated, nil
}

// Update applies a field patch. Email changes re-check uniqueness and force
// re-verification; password changes are re-hashed and never stored in the
// clear. Everything else passes through.
func (m *Manager) Update(ctx context.Context, principal Principal, patch map[string]any) (Principal, error) {
	if principal == nil {
		return nil, ErrUserNotFound
	}

	fields := map[string]any{}
	passwordChanged := false

	for k, v := range patch {
		switch k {
		case "email":
			email, ok := v.(string)
			if !ok || email == "" {
				return nil, errors.New("email must be a non-empty string", errors.CategoryValidation).
					WithTextCode("INVALID_EMAIL").
					WithCode(errors.CodeBadRequest)
			}
			if email != principal.Email() {
				if err := m.ensureIdentifierFree(ctx, email, ""); err != nil {
					return nil, err
				}
				fields["email"] = email
				fields["is_verified"] = false
			}
		case "password":
			password, ok := v.(string)
			if !ok || password == "" {
				return nil, ErrNoEmptyString
			}
			digest, err := m.hasher.Hash(password)
			if err != nil {
				return nil, err
			}
			fields["password_hash"] = digest
			passwordChanged = true
		default:
			fields[k] = v
		}
	}

	if len(fields) == 0 {
		return principal, nil
	}

	updated, err := m.users.Update(ctx, principal, fields)
	if err != nil {
		if isConflict(err) {
			return nil, ErrUserAlreadyExists
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to update user")
	}

	if passwordChanged {
		m.hooks.emit(ctx, HookPayload{Event: HookAfterPasswordChange, Principal: updated})
	}

	return updated, nil
}

// Delete removes a principal.
func (m *Manager) Delete(ctx context.Context, principal Principal) error {
	if principal == nil {
		return ErrUserNotFound
	}
	if err := m.users.Delete(ctx, principal); err != nil {
		if IsNotFound(err) {
			return ErrUserNotFound
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete user")
	}
	m.hooks.emit(ctx, HookPayload{Event: HookAfterDelete, Principal: principal})
	return nil
}

// IssueTokens mints the login token pair for principal: an access token and,
// when enabled, a refresh token.
func (m *Manager) IssueTokens(ctx context.Context, principal Principal) (*TokenResponse, error) {
	access, err := m.strategy.WriteToken(ctx, principal, TokenAccess, nil)
	if err != nil {
		return nil, err
	}

	resp := &TokenResponse{
		AccessToken: access,
		TokenType:   "bearer",
	}

	if m.cfg.RefreshTokenEnabled() {
		refresh, err := m.strategy.WriteToken(ctx, principal, TokenRefresh, nil)
		if err != nil {
			return nil, err
		}
		resp.RefreshToken = refresh
	}

	return resp, nil
}

// Refresh redeems a refresh token for a fresh pair. The principal is
// re-fetched so revoked or deactivated accounts cannot keep rotating.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	claims, err := m.strategy.ReadToken(ctx, refreshToken, TokenRefresh)
	if err != nil {
		return nil, err
	}

	principal, err := m.ResolvePrincipal(ctx, claims)
	if err != nil {
		return nil, err
	}

	return m.IssueTokens(ctx, principal)
}

// TokenOptions parametrize CreateToken for callers minting arbitrary kinds.
type TokenOptions struct {
	Kind  TokenKind
	Extra map[string]any
}

// CreateToken mints a single token of any kind for principal. State-kind
// tokens for OAuth round-trips go through here.
func (m *Manager) CreateToken(ctx context.Context, principal Principal, opts TokenOptions) (string, error) {
	return m.strategy.WriteToken(ctx, principal, opts.Kind, opts.Extra)
}

// ResolvePrincipal turns validated claims back into a live principal and
// re-checks account state. Inactive accounts always fail; unverified ones
// fail when the configuration requires verified access.
func (m *Manager) ResolvePrincipal(ctx context.Context, claims *Claims) (Principal, error) {
	if claims == nil || claims.UserID() == "" {
		return nil, invalidToken("missing subject claim", nil)
	}

	principal, err := m.users.GetByID(ctx, claims.UserID())
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "principal lookup failed")
	}

	if !principal.IsActive() {
		return nil, ErrUserInactive
	}
	if m.cfg.RequireVerifiedForAccess() && !principal.IsVerified() {
		return nil, ErrAccessDenied.Clone().WithMetadata(map[string]any{
			"reason": "account not verified",
		})
	}

	return principal, nil
}

func (m *Manager) getActiveByEmail(ctx context.Context, email string) (Principal, error) {
	principal, err := m.users.GetByEmail(ctx, email)
	if err != nil {
		if IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "user lookup failed")
	}
	if !principal.IsActive() {
		return nil, ErrUserInactive
	}
	return principal, nil
}

// ensureIdentifierFree fails with UserAlreadyExists when email or username
// is already taken.
func (m *Manager) ensureIdentifierFree(ctx context.Context, email, username string) error {
	if email != "" {
		if _, err := m.users.GetByEmail(ctx, email); err == nil {
			return ErrUserAlreadyExists
		} else if !IsNotFound(err) {
			return errors.Wrap(err, errors.CategoryInternal, "email uniqueness check failed")
		}
	}
	if username != "" {
		if _, err := m.users.GetByUsername(ctx, username); err == nil {
			return ErrUserAlreadyExists
		} else if !IsNotFound(err) {
			return errors.Wrap(err, errors.CategoryInternal, "username uniqueness check failed")
		}
	}
	return nil
}

// passwordFingerprint hashes a password digest. Reset tokens embed it so a
// token issued against one password state cannot reset a later one.
func passwordFingerprint(passwordHash string) string {
	sum := sha256.Sum256([]byte(passwordHash))
	return hex.EncodeToString(sum[:])
}
