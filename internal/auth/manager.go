package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/oidc-demo/oidc-demo-web/internal/config"
	"github.com/oidc-demo/oidc-demo-web/internal/web/session"
)

const (
	// RenewBefore is how long before its expiry an access token gets renewed.
	RenewBefore = 30 * time.Second

	// PendingLoginTTL limits the time between Begin and Complete.
	PendingLoginTTL = 5 * time.Minute

	// RenewTimeout bounds one token request to the provider, a code exchange or a silent
	// renewal, including the ID token verification.
	RenewTimeout = 10 * time.Second

	defaultDiscoveryRetry = 5 * time.Second
)

// Option configures a Manager.
type Option func(*Manager)

// WithHTTPClient sets the client used for discovery, key sets and token requests.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		m.client = c
	}
}

// WithClock replaces time.Now, used for expiry checks and ID token verification.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithRenewTimeout replaces RenewTimeout for code exchanges and renewals.
func WithRenewTimeout(d time.Duration) Option {
	return func(m *Manager) {
		m.renewTimeout = d
	}
}

// WithDiscoveryRetry sets the pause between failed discovery attempts.
func WithDiscoveryRetry(d time.Duration) Option {
	return func(m *Manager) {
		m.retry = d
	}
}

// provider is the discovered state of the identity provider.
type provider struct {
	verifier   *oidc.IDTokenVerifier
	oauth2     oauth2.Config
	endSession string
}

// Manager handles OIDC logins and the tokens of signed in sessions.
type Manager struct {
	cfg      config.OIDC
	store    *session.Store
	client   *http.Client
	now      func() time.Time
	retry    time.Duration
	provider atomic.Pointer[provider]
	renewals singleflight.Group

	renewTimeout time.Duration
}

// NewManager creates a Manager for the realm described by cfg.
// Nothing is fetched until Start or Discover is called.
func NewManager(cfg config.OIDC, store *session.Store, opts ...Option) *Manager {
	if store == nil {
		panic("session store is nil")
	}

	m := &Manager{
		cfg:    cfg,
		store:  store,
		client: cleanhttp.DefaultPooledClient(),
		now:    time.Now,
		retry:  defaultDiscoveryRetry,

		renewTimeout: RenewTimeout,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Start runs the provider discovery in the background until it succeeds or ctx is done.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.retry)
		defer ticker.Stop()

		for {
			err := m.Discover(ctx)
			if err == nil {
				return
			}

			log.Warn().Err(err).Str("issuer", m.cfg.Authority()).Msg("oidc discovery failed, retrying")

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
}

// Ready reports whether the provider discovery has completed.
func (m *Manager) Ready() bool {
	return m.provider.Load() != nil
}

// Discover fetches the provider metadata once. It is a no-op when already discovered.
func (m *Manager) Discover(ctx context.Context) error {
	if m.Ready() {
		return nil
	}

	p, err := oidc.NewProvider(m.clientContext(ctx), m.cfg.Authority())
	if err != nil {
		return fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	var claims struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}

	if err = p.Claims(&claims); err != nil {
		return fmt.Errorf("failed to read provider metadata: %w", err)
	}

	scopes := m.cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID, "profile", "email"}
	}

	m.provider.Store(&provider{
		verifier: p.Verifier(&oidc.Config{
			ClientID: m.cfg.ClientID,
			Now:      m.now,
		}),
		oauth2: oauth2.Config{
			ClientID:     m.cfg.ClientID,
			ClientSecret: m.cfg.ClientSecret,
			RedirectURL:  m.cfg.RedirectURL,
			Endpoint:     p.Endpoint(),
			Scopes:       scopes,
		},
		endSession: claims.EndSessionEndpoint,
	})

	log.Info().Str("issuer", m.cfg.Authority()).Msg("OIDC provider discovered")

	return nil
}

// Begin starts a login and returns the authorization URL to send the browser to.
func (m *Manager) Begin() (string, error) {
	p := m.provider.Load()
	if p == nil {
		return "", ErrNotReady
	}

	state, err := GenerateStateToken()
	if err != nil {
		return "", err
	}

	nonce, err := GenerateStateToken()
	if err != nil {
		return "", err
	}

	verifier := oauth2.GenerateVerifier()

	pending := session.Pending{Verifier: verifier, Nonce: nonce}
	if err = m.store.WritePending(state, pending, PendingLoginTTL); err != nil {
		return "", fmt.Errorf("failed to store pending login: %w", err)
	}

	return p.oauth2.AuthCodeURL(state, oidc.Nonce(nonce), oauth2.S256ChallengeOption(verifier)), nil
}

// Complete finishes the login started with state and creates a session.
// It returns the new session id and its data.
func (m *Manager) Complete(ctx context.Context, state, code string) (string, *session.Data, error) {
	p := m.provider.Load()
	if p == nil {
		return "", nil, ErrNotReady
	}

	if state == "" || code == "" {
		return "", nil, ErrInvalidState
	}

	pending, err := m.store.TakePending(state)
	if errors.Is(err, session.ErrNotFound) {
		return "", nil, ErrInvalidState
	}

	if err != nil {
		return "", nil, fmt.Errorf("failed to read pending login: %w", err)
	}

	ctx, cancel := context.WithTimeout(m.clientContext(ctx), m.renewTimeout)
	defer cancel()

	tok, err := p.oauth2.Exchange(ctx, code, oauth2.VerifierOption(pending.Verifier))
	if err != nil {
		return "", nil, fmt.Errorf("failed to exchange token: %w", err)
	}

	rawIDToken, ok := tok.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return "", nil, ErrNoIDToken
	}

	idToken, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return "", nil, fmt.Errorf("failed to verify ID token: %w", err)
	}

	if idToken.Nonce != pending.Nonce {
		return "", nil, ErrNonceMismatch
	}

	identity, err := identityFromToken(idToken, m.cfg.RolesClaim)
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse claims: %w", err)
	}

	data := &session.Data{
		Identity: identity,
		Token:    tokenOf(tok),
		IDToken:  rawIDToken,
	}

	id, err := session.GenerateSessionID()
	if err != nil {
		return "", nil, err
	}

	if err = m.store.Write(id, data); err != nil {
		return "", nil, fmt.Errorf("failed to write session: %w", err)
	}

	log.Info().Str("username", identity.Username).Msg("user logged in via OIDC")

	return id, data, nil
}

// Resolve returns the session id and renews its tokens when they are about to expire.
func (m *Manager) Resolve(ctx context.Context, id string) (*session.Data, error) {
	data, err := m.read(id)
	if err != nil {
		return nil, err
	}

	if !data.Token.ExpiresWithin(m.now(), RenewBefore) {
		return data, nil
	}

	// shared by every waiting request, so one caller going away must not cancel it
	v, err, _ := m.renewals.Do(id, func() (any, error) {
		renewCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.renewTimeout)
		defer cancel()

		return m.renew(renewCtx, id)
	})
	if err != nil {
		return nil, err
	}

	renewed := *v.(*session.Data) //nolint:forcetypeassert // renew only returns *session.Data

	return &renewed, nil
}

// AccessToken returns the access token of the session carried by ctx.
// Without a session id in ctx it returns an empty token and no error.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	id := SessionIDFromContext(ctx)
	if id == "" {
		return "", nil
	}

	data, err := m.Resolve(ctx, id)
	if err != nil {
		return "", err
	}

	return data.Token.AccessToken, nil
}

// EndSession destroys the session carried by ctx.
func (m *Manager) EndSession(ctx context.Context) {
	if id := SessionIDFromContext(ctx); id != "" {
		m.Destroy(id)
	}
}

// Destroy removes a session.
func (m *Manager) Destroy(id string) {
	if id == "" {
		return
	}

	if err := m.store.Delete(id); err != nil {
		log.Error().Err(err).Msg("failed to delete session")
	}
}

// LogoutURL returns the end session URL of the provider or "" if it has none.
func (m *Manager) LogoutURL(idTokenHint string) string {
	p := m.provider.Load()
	if p == nil || p.endSession == "" {
		return ""
	}

	u, err := url.Parse(p.endSession)
	if err != nil {
		log.Warn().Err(err).Str("endpoint", p.endSession).Msg("invalid end_session_endpoint")
		return ""
	}

	q := u.Query()
	if idTokenHint != "" {
		q.Set("id_token_hint", idTokenHint)
	}

	q.Set("post_logout_redirect_uri", m.cfg.PostLogoutRedirectURL)
	q.Set("client_id", m.cfg.ClientID)
	u.RawQuery = q.Encode()

	return u.String()
}

func (m *Manager) read(id string) (*session.Data, error) {
	if id == "" {
		return nil, ErrNoSession
	}

	data, err := m.store.Read(id)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrNoSession
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read session: %w", err)
	}

	return data, nil
}

// renew refreshes the tokens of session id. Every failure except a storage error ends the session.
func (m *Manager) renew(ctx context.Context, id string) (*session.Data, error) {
	// a renewal that finished while this call waited already did the work
	data, err := m.read(id)
	if err != nil {
		return nil, err
	}

	if !data.Token.ExpiresWithin(m.now(), RenewBefore) {
		return data, nil
	}

	p := m.provider.Load()
	if p == nil {
		return nil, ErrNotReady
	}

	if data.Token.RefreshToken == "" {
		m.Destroy(id)
		return nil, ErrSessionExpired
	}

	ctx = m.clientContext(ctx)

	tok, err := p.oauth2.TokenSource(ctx, &oauth2.Token{RefreshToken: data.Token.RefreshToken}).Token()
	if err != nil {
		log.Warn().Err(err).Str("username", data.Identity.Username).Msg("silent renewal failed")
		m.Destroy(id)

		return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	if rawIDToken, ok := tok.Extra("id_token").(string); ok && rawIDToken != "" {
		idToken, errVerify := p.verifier.Verify(ctx, rawIDToken)
		if errVerify != nil {
			m.Destroy(id)
			return nil, fmt.Errorf("%w: %w", ErrSessionExpired, errVerify)
		}

		if idToken.Subject != data.Identity.Subject {
			m.Destroy(id)
			return nil, fmt.Errorf("%w: %w", ErrSessionExpired, ErrSubjectChanged)
		}

		if identity, errClaims := identityFromToken(idToken, m.cfg.RolesClaim); errClaims == nil {
			data.Identity = identity
		}

		data.IDToken = rawIDToken
	}

	refreshToken := data.Token.RefreshToken
	data.Token = tokenOf(tok)

	if data.Token.RefreshToken == "" {
		data.Token.RefreshToken = refreshToken
	}

	if err = m.store.Write(id, data); err != nil {
		return nil, fmt.Errorf("failed to write session: %w", err)
	}

	log.Debug().Str("username", data.Identity.Username).Time("expiry", data.Token.Expiry).Msg("tokens renewed")

	return data, nil
}

func (m *Manager) clientContext(ctx context.Context) context.Context {
	if m.client == nil {
		return ctx
	}

	return oidc.ClientContext(ctx, m.client)
}

func tokenOf(tok *oauth2.Token) session.Token {
	return session.Token{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.Type(),
		Expiry:       tok.Expiry,
	}
}

// GenerateStateToken generates a random state token for CSRF protection.
func GenerateStateToken() (string, error) {
	b := make([]byte, 32) //nolint:mnd
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}
