// Package authtest runs a minimal Keycloak compatible OpenID provider for tests.
package authtest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const keyID = "authtest"

var (
	// ErrUnexpectedAuthURL is returned by Authorize for URLs not pointing at this provider.
	ErrUnexpectedAuthURL = errors.New("authorization url does not belong to the provider")

	// ErrMissingPKCE is returned by Authorize for requests without a S256 code challenge.
	ErrMissingPKCE = errors.New("authorization request without S256 code challenge")
)

// User is the identity the provider signs in.
type User struct {
	Subject    string
	Username   string
	Email      string
	Name       string
	Roles      []string // top level "roles" claim
	RealmRoles []string // "realm_access.roles"
}

type grant struct {
	user      User
	nonce     string
	challenge string
}

// Provider is a fake identity provider serving one realm.
type Provider struct {
	Server   *httptest.Server
	Realm    string
	ClientID string

	key *rsa.PrivateKey

	mu       sync.Mutex
	codes    map[string]grant
	refresh  map[string]User
	access   map[string]User
	swapUser *User

	expiresIn    atomic.Int64
	failRefresh  atomic.Bool
	refreshDelay atomic.Int64
	refreshCalls atomic.Int32
	seq          atomic.Int64
}

// NewProvider starts a provider for realm. It is closed with the test.
func NewProvider(t testing.TB, realm, clientID string) *Provider {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048) //nolint:mnd
	if err != nil {
		t.Fatalf("generate rsa key: %v", err)
	}

	p := &Provider{
		Realm:    realm,
		ClientID: clientID,
		key:      key,
		codes:    make(map[string]grant),
		refresh:  make(map[string]User),
		access:   make(map[string]User),
	}
	p.expiresIn.Store(300) //nolint:mnd

	mux := http.NewServeMux()
	base := "/realms/" + realm

	mux.HandleFunc("GET "+base+"/.well-known/openid-configuration", p.discovery)
	mux.HandleFunc("GET "+base+"/protocol/openid-connect/certs", p.certs)
	mux.HandleFunc("POST "+base+"/protocol/openid-connect/token", p.token)

	p.Server = httptest.NewServer(mux)
	t.Cleanup(p.Server.Close)

	return p
}

// URL returns the base url of the provider, without the realm path.
func (p *Provider) URL() string {
	return p.Server.URL
}

// Issuer returns the issuer of the realm.
func (p *Provider) Issuer() string {
	return p.Server.URL + "/realms/" + p.Realm
}

// SetExpiresIn sets the lifetime of access tokens issued from now on.
func (p *Provider) SetExpiresIn(d time.Duration) {
	p.expiresIn.Store(int64(d.Seconds()))
}

// FailRefresh makes every refresh token request fail with invalid_grant.
func (p *Provider) FailRefresh(fail bool) {
	p.failRefresh.Store(fail)
}

// DelayRefresh holds every refresh token request for d or until the client gives up.
func (p *Provider) DelayRefresh(d time.Duration) {
	p.refreshDelay.Store(int64(d))
}

// SwapUserOnRefresh makes refreshes return ID tokens for u instead of the signed in user.
func (p *Provider) SwapUserOnRefresh(u User) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.swapUser = &u
}

// RefreshCalls returns the number of refresh token requests served.
func (p *Provider) RefreshCalls() int {
	return int(p.refreshCalls.Load())
}

// UserOf returns the user an access token was issued to.
func (p *Provider) UserOf(accessToken string) (User, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.access[accessToken]

	return u, ok
}

// Authorize plays the browser part of the login: it accepts the authorization url built by the
// client and returns the state and the code the provider would redirect back with.
func (p *Provider) Authorize(authURL string, u User) (state, code string, err error) {
	parsed, err := url.Parse(authURL)
	if err != nil {
		return "", "", err
	}

	if parsed.Host != p.Server.Listener.Addr().String() {
		return "", "", ErrUnexpectedAuthURL
	}

	q := parsed.Query()
	if q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		return "", "", ErrMissingPKCE
	}

	code = p.next("code")

	p.mu.Lock()
	p.codes[code] = grant{user: u, nonce: q.Get("nonce"), challenge: q.Get("code_challenge")}
	p.mu.Unlock()

	return q.Get("state"), code, nil
}

func (p *Provider) discovery(w http.ResponseWriter, _ *http.Request) {
	base := p.Issuer() + "/protocol/openid-connect"

	writeJSON(w, http.StatusOK, map[string]any{
		"issuer":                                p.Issuer(),
		"authorization_endpoint":                base + "/auth",
		"token_endpoint":                        base + "/token",
		"jwks_uri":                              base + "/certs",
		"userinfo_endpoint":                     base + "/userinfo",
		"end_session_endpoint":                  base + "/logout",
		"id_token_signing_alg_values_supported": []string{"RS256"},
		"code_challenge_methods_supported":      []string{"plain", "S256"},
	})
}

func (p *Provider) certs(w http.ResponseWriter, _ *http.Request) {
	pub := p.key.PublicKey

	writeJSON(w, http.StatusOK, map[string]any{
		"keys": []map[string]string{{
			"kty": "RSA",
			"alg": "RS256",
			"use": "sig",
			"kid": keyID,
			"n":   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

func (p *Provider) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		oauthError(w, "invalid_request")
		return
	}

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		p.exchange(w, r)
	case "refresh_token":
		p.refreshToken(w, r)
	default:
		oauthError(w, "unsupported_grant_type")
	}
}

func (p *Provider) exchange(w http.ResponseWriter, r *http.Request) {
	code := r.PostForm.Get("code")

	p.mu.Lock()
	g, ok := p.codes[code]
	delete(p.codes, code)
	p.mu.Unlock()

	if !ok {
		oauthError(w, "invalid_grant")
		return
	}

	sum := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
	if base64.RawURLEncoding.EncodeToString(sum[:]) != g.challenge {
		oauthError(w, "invalid_grant")
		return
	}

	p.issue(w, g.user, g.nonce)
}

func (p *Provider) refreshToken(w http.ResponseWriter, r *http.Request) {
	p.refreshCalls.Add(1)

	if d := time.Duration(p.refreshDelay.Load()); d > 0 {
		select {
		case <-time.After(d):
		case <-r.Context().Done():
			return
		}
	}

	if p.failRefresh.Load() {
		oauthError(w, "invalid_grant")
		return
	}

	rt := r.PostForm.Get("refresh_token")

	p.mu.Lock()
	u, ok := p.refresh[rt]
	delete(p.refresh, rt)

	if p.swapUser != nil {
		u = *p.swapUser
	}
	p.mu.Unlock()

	if !ok {
		oauthError(w, "invalid_grant")
		return
	}

	p.issue(w, u, "")
}

func (p *Provider) issue(w http.ResponseWriter, u User, nonce string) {
	expiresIn := p.expiresIn.Load()

	idToken, err := p.SignIDToken(u, nonce, time.Duration(expiresIn)*time.Second)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	accessToken := p.next("access")
	refreshToken := p.next("refresh")

	p.mu.Lock()
	p.access[accessToken] = u
	p.refresh[refreshToken] = u
	p.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token":  accessToken,
		"token_type":    "Bearer",
		"expires_in":    expiresIn,
		"refresh_token": refreshToken,
		"id_token":      idToken,
	})
}

// SignIDToken returns an RS256 ID token for u signed with the provider key.
func (p *Provider) SignIDToken(u User, nonce string, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := jwt.MapClaims{
		"iss":                p.Issuer(),
		"aud":                p.ClientID,
		"azp":                p.ClientID,
		"sub":                u.Subject,
		"iat":                now.Unix(),
		"exp":                now.Add(ttl).Unix(),
		"preferred_username": u.Username,
		"email":              u.Email,
		"name":               u.Name,
	}

	if nonce != "" {
		claims["nonce"] = nonce
	}

	if u.Roles != nil {
		claims["roles"] = u.Roles
	}

	if u.RealmRoles != nil {
		claims["realm_access"] = map[string]any{"roles": u.RealmRoles}
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = keyID

	return tok.SignedString(p.key)
}

func (p *Provider) next(prefix string) string {
	return fmt.Sprintf("%s-%d", prefix, p.seq.Add(1))
}

func oauthError(w http.ResponseWriter, code string) {
	writeJSON(w, http.StatusBadRequest, map[string]string{"error": code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errchkjson
}
