package auth_test

import (
	"context"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oidc-demo/oidc-demo-web/internal/auth"
	"github.com/oidc-demo/oidc-demo-web/internal/auth/authtest"
	"github.com/oidc-demo/oidc-demo-web/internal/config"
	"github.com/oidc-demo/oidc-demo-web/internal/web/session"
)

var alice = authtest.User{
	Subject:    "0b7c-alice",
	Username:   "alice",
	Email:      "alice@example.com",
	Name:       "Alice Example",
	RealmRoles: []string{"user", "admin"},
}

func newManager(t *testing.T, opts ...auth.Option) (*auth.Manager, *authtest.Provider, *session.Store) {
	t.Helper()

	provider := authtest.NewProvider(t, "demo-realm", "demo-frontend")
	store := session.New(nil, time.Hour)

	m := auth.NewManager(config.OIDC{
		URL:                   provider.URL(),
		Realm:                 "demo-realm",
		ClientID:              "demo-frontend",
		RolesClaim:            "roles",
		RedirectURL:           "http://localhost:3000",
		PostLogoutRedirectURL: "http://localhost:3000",
	}, store, opts...)

	require.NoError(t, m.Discover(context.Background()))

	return m, provider, store
}

func login(t *testing.T, m *auth.Manager, provider *authtest.Provider, u authtest.User) (string, *session.Data) {
	t.Helper()

	authURL, err := m.Begin()
	require.NoError(t, err)

	state, code, err := provider.Authorize(authURL, u)
	require.NoError(t, err)

	id, data, err := m.Complete(context.Background(), state, code)
	require.NoError(t, err)

	return id, data
}

func TestBeginBuildsPKCERequest(t *testing.T) {
	m, provider, _ := newManager(t)

	authURL, err := m.Begin()
	require.NoError(t, err)

	u, err := url.Parse(authURL)
	require.NoError(t, err)

	q := u.Query()
	assert.Equal(t, provider.Issuer()+"/protocol/openid-connect/auth", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "demo-frontend", q.Get("client_id"))
	assert.Equal(t, "http://localhost:3000", q.Get("redirect_uri"))
	assert.Equal(t, "openid profile email", q.Get("scope"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.NotEmpty(t, q.Get("code_challenge"))
	assert.NotEmpty(t, q.Get("state"))
	assert.NotEmpty(t, q.Get("nonce"))
}

func TestNotReadyBeforeDiscovery(t *testing.T) {
	m := auth.NewManager(config.OIDC{URL: "http://127.0.0.1:1", Realm: "r", ClientID: "c"}, session.New(nil, time.Hour))

	assert.False(t, m.Ready())

	_, err := m.Begin()
	require.ErrorIs(t, err, auth.ErrNotReady)

	_, _, err = m.Complete(context.Background(), "s", "c")
	require.ErrorIs(t, err, auth.ErrNotReady)

	assert.Empty(t, m.LogoutURL("x"))
}

func TestStartRetriesUntilReady(t *testing.T) {
	provider := authtest.NewProvider(t, "demo-realm", "demo-frontend")

	m := auth.NewManager(config.OIDC{
		URL:      provider.URL(),
		Realm:    "demo-realm",
		ClientID: "demo-frontend",
	}, session.New(nil, time.Hour), auth.WithDiscoveryRetry(10*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.Start(ctx)

	assert.Eventually(t, m.Ready, 2*time.Second, 10*time.Millisecond)
}

func TestCompleteCreatesSession(t *testing.T) {
	m, provider, store := newManager(t)

	id, data := login(t, m, provider, alice)

	assert.NotEmpty(t, id)
	assert.Equal(t, "alice", data.Identity.Username)
	assert.Equal(t, "alice@example.com", data.Identity.Email)
	assert.Equal(t, "Alice Example", data.Identity.Name)
	assert.Equal(t, alice.Subject, data.Identity.Subject)
	assert.Equal(t, []string{"user", "admin"}, data.Identity.Roles, "falls back to realm_access.roles")
	assert.NotEmpty(t, data.IDToken)
	assert.Equal(t, "Bearer", data.Token.TokenType)

	stored, err := store.Read(id)
	require.NoError(t, err)
	assert.Equal(t, data.Token.AccessToken, stored.Token.AccessToken)

	tokenUser, ok := provider.UserOf(stored.Token.AccessToken)
	require.True(t, ok)
	assert.Equal(t, "alice", tokenUser.Username)
}

func TestCompleteRolesClaimWins(t *testing.T) {
	m, provider, _ := newManager(t)

	u := alice
	u.Roles = []string{"auditor"}

	_, data := login(t, m, provider, u)
	assert.Equal(t, []string{"auditor"}, data.Identity.Roles)
}

func TestCompleteRejectsReplayedState(t *testing.T) {
	m, provider, _ := newManager(t)

	authURL, err := m.Begin()
	require.NoError(t, err)

	state, code, err := provider.Authorize(authURL, alice)
	require.NoError(t, err)

	_, _, err = m.Complete(context.Background(), state, code)
	require.NoError(t, err)

	_, _, err = m.Complete(context.Background(), state, code)
	require.ErrorIs(t, err, auth.ErrInvalidState)
}

func TestCompleteErrors(t *testing.T) {
	m, _, _ := newManager(t)

	tests := []struct {
		name  string
		state string
		code  string
		want  error
	}{
		{name: "missing state", code: "c", want: auth.ErrInvalidState},
		{name: "missing code", state: "s", want: auth.ErrInvalidState},
		{name: "unknown state", state: "nope", code: "c", want: auth.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := m.Complete(context.Background(), tt.state, tt.code)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestCompleteBadCode(t *testing.T) {
	m, provider, _ := newManager(t)

	authURL, err := m.Begin()
	require.NoError(t, err)

	state, _, err := provider.Authorize(authURL, alice)
	require.NoError(t, err)

	_, _, err = m.Complete(context.Background(), state, "forged")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to exchange token")
}

func TestResolveWithoutRenewal(t *testing.T) {
	m, provider, _ := newManager(t)

	id, data := login(t, m, provider, alice)

	got, err := m.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, data.Token.AccessToken, got.Token.AccessToken)
	assert.Zero(t, provider.RefreshCalls())

	_, err = m.Resolve(context.Background(), "unknown")
	require.ErrorIs(t, err, auth.ErrNoSession)

	_, err = m.Resolve(context.Background(), "")
	require.ErrorIs(t, err, auth.ErrNoSession)
}

func TestResolveRenewsExpiringToken(t *testing.T) {
	m, provider, store := newManager(t)

	provider.SetExpiresIn(10 * time.Second)
	id, data := login(t, m, provider, alice)

	provider.SetExpiresIn(5 * time.Minute)

	got, err := m.Resolve(context.Background(), id)
	require.NoError(t, err)
	assert.NotEqual(t, data.Token.AccessToken, got.Token.AccessToken)
	assert.NotEqual(t, data.Token.RefreshToken, got.Token.RefreshToken)
	assert.Equal(t, 1, provider.RefreshCalls())

	stored, err := store.Read(id)
	require.NoError(t, err)
	assert.Equal(t, got.Token.AccessToken, stored.Token.AccessToken)
}

func TestResolveCollapsesConcurrentRenewals(t *testing.T) {
	m, provider, _ := newManager(t)

	provider.SetExpiresIn(10 * time.Second)
	id, _ := login(t, m, provider, alice)
	provider.SetExpiresIn(5 * time.Minute)

	var (
		wg     sync.WaitGroup
		tokens sync.Map
	)

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			data, err := m.Resolve(context.Background(), id)
			if assert.NoError(t, err) {
				tokens.Store(data.Token.AccessToken, true)
			}
		}()
	}

	wg.Wait()

	count := 0
	tokens.Range(func(_, _ any) bool {
		count++
		return true
	})

	assert.Equal(t, 1, count, "all callers see the same renewed token")
	assert.Equal(t, 1, provider.RefreshCalls())
}

func TestResolveRenewalFailureDestroysSession(t *testing.T) {
	m, provider, store := newManager(t)

	provider.SetExpiresIn(10 * time.Second)
	id, _ := login(t, m, provider, alice)
	provider.FailRefresh(true)

	_, err := m.Resolve(context.Background(), id)
	require.ErrorIs(t, err, auth.ErrSessionExpired)

	_, err = store.Read(id)
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestResolveRenewalIsBounded(t *testing.T) {
	m, provider, store := newManager(t, auth.WithRenewTimeout(100*time.Millisecond))

	provider.SetExpiresIn(10 * time.Second)
	id, _ := login(t, m, provider, alice)
	provider.DelayRefresh(time.Minute)

	start := time.Now()

	_, err := m.Resolve(context.Background(), id)
	require.ErrorIs(t, err, auth.ErrSessionExpired)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.Equal(t, 1, provider.RefreshCalls())

	_, err = store.Read(id)
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestResolveRejectsSubjectChange(t *testing.T) {
	m, provider, store := newManager(t)

	provider.SetExpiresIn(10 * time.Second)
	id, _ := login(t, m, provider, alice)
	provider.SwapUserOnRefresh(authtest.User{Subject: "mallory", Username: "mallory"})

	_, err := m.Resolve(context.Background(), id)
	require.ErrorIs(t, err, auth.ErrSubjectChanged)
	require.ErrorIs(t, err, auth.ErrSessionExpired)

	_, err = store.Read(id)
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestAccessTokenFromContext(t *testing.T) {
	m, provider, _ := newManager(t)

	id, data := login(t, m, provider, alice)

	token, err := m.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Empty(t, token, "no session id means no token")

	token, err = m.AccessToken(auth.WithSessionID(context.Background(), id))
	require.NoError(t, err)
	assert.Equal(t, data.Token.AccessToken, token)

	m.EndSession(auth.WithSessionID(context.Background(), id))

	_, err = m.AccessToken(auth.WithSessionID(context.Background(), id))
	require.ErrorIs(t, err, auth.ErrNoSession)
}

func TestLogoutURL(t *testing.T) {
	m, provider, _ := newManager(t)

	u, err := url.Parse(m.LogoutURL("the-id-token"))
	require.NoError(t, err)

	assert.Equal(t, provider.Issuer()+"/protocol/openid-connect/logout", u.Scheme+"://"+u.Host+u.Path)
	assert.Equal(t, "the-id-token", u.Query().Get("id_token_hint"))
	assert.Equal(t, "http://localhost:3000", u.Query().Get("post_logout_redirect_uri"))
	assert.Equal(t, "demo-frontend", u.Query().Get("client_id"))

	u, err = url.Parse(m.LogoutURL(""))
	require.NoError(t, err)
	assert.False(t, u.Query().Has("id_token_hint"))
}

func TestGenerateStateToken(t *testing.T) {
	a, err := auth.GenerateStateToken()
	require.NoError(t, err)

	b, err := auth.GenerateStateToken()
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 43)
}
