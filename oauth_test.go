package authkit_test

import (
	"context"
	"strings"
	"testing"

	authkit "github.com/mvarela/go-authkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOAuthManager(t *testing.T, opts ...authkit.ConfigOption) (*authkit.Manager, *memUsers, *memOAuth) {
	t.Helper()
	users := newMemUsers()
	oauth := newMemOAuth(users)
	manager := authkit.NewManager(testConfig(t, opts...), users).WithOAuthRepository(oauth)
	return manager, users, oauth
}

func TestOAuthCallbackCreatesNewPrincipal(t *testing.T) {
	manager, _, oauth := newOAuthManager(t)

	principal, err := manager.OAuthCallback(context.Background(), authkit.OAuthCallbackInput{
		Provider:     "github",
		AccountID:    "gh-1001",
		AccountEmail: "dev@example.com",
		AccessToken:  "provider-access",
		RefreshToken: "provider-refresh",
	})
	require.NoError(t, err)

	assert.Equal(t, "dev@example.com", principal.Email())
	assert.True(t, principal.IsActive())
	assert.True(t, principal.IsVerified())
	assert.True(t, strings.HasPrefix(principal.PasswordHash(), "$argon2id$"))

	require.Len(t, oauth.accounts, 1)
	account := oauth.accounts[0]
	assert.Equal(t, "github", account.provider)
	assert.Equal(t, "gh-1001", account.accountID)
	assert.Equal(t, principal.ID(), account.ownerID)
	assert.Equal(t, "provider-access", account.access)
}

func TestOAuthCallbackKnownLinkRefreshesTokens(t *testing.T) {
	manager, _, oauth := newOAuthManager(t)
	ctx := context.Background()

	first, err := manager.OAuthCallback(ctx, authkit.OAuthCallbackInput{
		Provider:     "github",
		AccountID:    "gh-1001",
		AccountEmail: "dev@example.com",
		AccessToken:  "token-v1",
	})
	require.NoError(t, err)

	second, err := manager.OAuthCallback(ctx, authkit.OAuthCallbackInput{
		Provider:     "github",
		AccountID:    "gh-1001",
		AccountEmail: "dev@example.com",
		AccessToken:  "token-v2",
	})
	require.NoError(t, err)

	assert.Equal(t, first.ID(), second.ID())
	require.Len(t, oauth.accounts, 1)
	assert.Equal(t, "token-v2", oauth.accounts[0].access)
}

func TestOAuthCallbackEmailCollision(t *testing.T) {
	ctx := context.Background()

	input := authkit.OAuthCallbackInput{
		Provider:     "google",
		AccountID:    "goog-7",
		AccountEmail: "local@example.com",
	}

	t.Run("refused by default", func(t *testing.T) {
		manager, users, oauth := newOAuthManager(t)
		users.add(&testUser{email: "local@example.com", active: true})

		_, err := manager.OAuthCallback(ctx, input)
		assert.ErrorIs(t, err, authkit.ErrUserAlreadyExists)
		assert.Empty(t, oauth.accounts)
	})

	t.Run("attaches when association is enabled", func(t *testing.T) {
		manager, users, oauth := newOAuthManager(t, authkit.WithAssociateByEmail(true))
		local := users.add(&testUser{email: "local@example.com", active: true})

		principal, err := manager.OAuthCallback(ctx, input)
		require.NoError(t, err)
		assert.Equal(t, local.ID(), principal.ID())
		require.Len(t, oauth.accounts, 1)
		assert.Equal(t, local.ID(), oauth.accounts[0].ownerID)
	})
}

func TestOAuthCallbackUnverifiedByConfig(t *testing.T) {
	manager, _, _ := newOAuthManager(t, authkit.WithOAuthVerifiedByDefault(false))

	principal, err := manager.OAuthCallback(context.Background(), authkit.OAuthCallbackInput{
		Provider:     "github",
		AccountID:    "gh-1001",
		AccountEmail: "dev@example.com",
	})
	require.NoError(t, err)
	assert.False(t, principal.IsVerified())
}

func TestOAuthCallbackValidation(t *testing.T) {
	manager, _, _ := newOAuthManager(t)
	ctx := context.Background()

	_, err := manager.OAuthCallback(ctx, authkit.OAuthCallbackInput{AccountID: "gh-1001"})
	assert.Error(t, err)

	_, err = manager.OAuthCallback(ctx, authkit.OAuthCallbackInput{Provider: "github"})
	assert.Error(t, err)
}

func TestOAuthCallbackWithoutRepository(t *testing.T) {
	manager, _ := newTestManager(t)

	_, err := manager.OAuthCallback(context.Background(), authkit.OAuthCallbackInput{
		Provider:  "github",
		AccountID: "gh-1001",
	})
	require.Error(t, err)
	assert.True(t, authkit.IsConfigurationError(err))
}

func TestOAuthLinkEmitsHook(t *testing.T) {
	manager, _, _ := newOAuthManager(t)

	var provider string
	manager.OnEvent(authkit.HookAfterOAuthLink, func(_ context.Context, payload authkit.HookPayload) error {
		provider, _ = payload.Metadata["provider"].(string)
		return nil
	})

	_, err := manager.OAuthCallback(context.Background(), authkit.OAuthCallbackInput{
		Provider:     "github",
		AccountID:    "gh-1001",
		AccountEmail: "dev@example.com",
	})
	require.NoError(t, err)
	assert.Equal(t, "github", provider)
}

func TestOAuthStateRoundTrip(t *testing.T) {
	manager, users := newTestManager(t)
	ctx := context.Background()

	user := users.add(&testUser{email: "user@example.com", active: true})

	state, err := manager.OAuthState(ctx, user, map[string]any{"redirect": "/dashboard"})
	require.NoError(t, err)

	claims, err := manager.VerifyOAuthState(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, user.ID(), claims.UserID())
	assert.Equal(t, "/dashboard", claims.Extra["redirect"])

	// An access token is not a state token.
	access, err := manager.CreateToken(ctx, user, authkit.TokenOptions{Kind: authkit.TokenAccess})
	require.NoError(t, err)
	_, err = manager.VerifyOAuthState(ctx, access)
	assert.Error(t, err)
}
