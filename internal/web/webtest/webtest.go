// Package webtest wires a fiber app the way the web service does, against a fake identity
// provider and a fake backend, so handler tests can drive complete requests.
package webtest

import (
	"context"
	"io"
	"maps"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"

	"github.com/oidc-demo/oidc-demo-web/internal/api"
	"github.com/oidc-demo/oidc-demo-web/internal/api/apitest"
	"github.com/oidc-demo/oidc-demo-web/internal/auth"
	"github.com/oidc-demo/oidc-demo-web/internal/auth/authtest"
	"github.com/oidc-demo/oidc-demo-web/internal/config"
	"github.com/oidc-demo/oidc-demo-web/internal/gateway"
	"github.com/oidc-demo/oidc-demo-web/internal/web/handler"
	"github.com/oidc-demo/oidc-demo-web/internal/web/middleware/guard"
	"github.com/oidc-demo/oidc-demo-web/internal/web/session"
)

const (
	// Realm of the fake provider.
	Realm = "demo-realm"
	// ClientID registered at the fake provider.
	ClientID = "demo-frontend"
	// AppURL is the public origin the app believes it runs at.
	AppURL = "http://localhost:3000"
)

// Alice is an admin.
var Alice = authtest.User{
	Subject:    "0b7c-alice",
	Username:   "alice",
	Email:      "alice@example.com",
	Name:       "Alice Example",
	RealmRoles: []string{"user", "admin"},
}

// Bob is a regular user.
var Bob = authtest.User{
	Subject:    "51e2-bob",
	Username:   "bob",
	Email:      "bob@example.com",
	Name:       "Bob Example",
	RealmRoles: []string{"user"},
}

// Rendered is one call of the view engine.
type Rendered struct {
	Name string
	Data fiber.Map
}

// Views records renders. Each render writes the template name followed by one line per
// banner, form error and error page message.
type Views struct {
	mu       sync.Mutex
	rendered []Rendered
}

// Load is a no-op.
func (*Views) Load() error { return nil }

// Render records the call.
func (v *Views) Render(w io.Writer, name string, data any, _ ...string) error {
	m, _ := data.(fiber.Map)

	v.mu.Lock()
	v.rendered = append(v.rendered, Rendered{Name: name, Data: m})
	v.mu.Unlock()

	_, _ = io.WriteString(w, name)

	lines, _ := m["Banners"].([]string)

	if errs, ok := m["Errors"].(map[string]string); ok {
		for _, field := range slices.Sorted(maps.Keys(errs)) {
			lines = append(lines, errs[field])
		}
	}

	if page, ok := m["Error"].(handler.ErrorPage); ok {
		lines = append(lines, page.Title, page.Message)
	}

	for _, line := range lines {
		_, _ = io.WriteString(w, "\n"+line)
	}

	return nil
}

// Last returns the latest render. It fails the test if nothing was rendered.
func (v *Views) Last(t testing.TB) Rendered {
	t.Helper()

	v.mu.Lock()
	defer v.mu.Unlock()

	require.NotEmpty(t, v.rendered, "nothing rendered")

	return v.rendered[len(v.rendered)-1]
}

// Env is a wired app with its fakes.
type Env struct {
	App      *fiber.App
	Cfg      *config.Config
	Deps     *handler.Deps
	Views    *Views
	Provider *authtest.Provider
	Backend  *apitest.Backend
	Manager  *auth.Manager
	Store    *session.Store
}

// New returns an Env whose identity provider is already discovered.
// Handlers are not registered, tests call Init on the ones they need.
func New(t testing.TB) *Env {
	t.Helper()

	provider := authtest.NewProvider(t, Realm, ClientID)
	backend := apitest.NewBackend(t)
	backend.RequireToken(func(token string) (string, bool) {
		u, ok := provider.UserOf(token)
		return u.Username, ok
	})

	cfg := &config.Config{
		Title: "OIDC Demo",
		Webserver: config.Webserver{
			Port:    3000, //nolint:mnd
			URL:     AppURL,
			Session: config.Session{ExpiryTime: time.Hour},
		},
		OIDC: config.OIDC{
			URL:                   provider.URL(),
			Realm:                 Realm,
			ClientID:              ClientID,
			Scopes:                []string{"openid", "profile", "email"},
			RolesClaim:            "roles",
			RedirectURL:           AppURL,
			PostLogoutRedirectURL: AppURL,
		},
		Backend: config.Backend{URL: backend.URL(), APIPrefix: "/api", Timeout: 5 * time.Second},
	}

	store := session.New(nil, cfg.Webserver.Session.ExpiryTime)
	manager := auth.NewManager(cfg.OIDC, store)
	require.NoError(t, manager.Discover(context.Background()))

	gw, err := gateway.New(cfg.Backend.BaseURL(),
		gateway.WithTimeout(cfg.Backend.Timeout),
		gateway.WithRequestID(),
		gateway.WithBearerToken(manager.AccessToken),
		gateway.WithUnauthorizedHandler(manager.EndSession),
	)
	require.NoError(t, err)

	views := &Views{}
	app := fiber.New(fiber.Config{Views: views, ErrorHandler: handler.ErrorHandler})

	return &Env{
		App:   app,
		Cfg:   cfg,
		Views: views,
		Deps: &handler.Deps{
			Auth:          manager,
			Guard:         guard.New(guard.Config{Resolver: manager}),
			Products:      api.NewProducts(gw),
			Users:         api.NewUsers(gw),
			Introspection: api.NewIntrospection(gw),
		},
		Provider: provider,
		Backend:  backend,
		Manager:  manager,
		Store:    store,
	}
}

// Login signs u in without going through the handlers and returns the session id.
func (e *Env) Login(t testing.TB, u authtest.User) string {
	t.Helper()

	authURL, err := e.Manager.Begin()
	require.NoError(t, err)

	state, code, err := e.Provider.Authorize(authURL, u)
	require.NoError(t, err)

	id, _, err := e.Manager.Complete(context.Background(), state, code)
	require.NoError(t, err)

	return id
}

// Response is a finished request.
type Response struct {
	Status int
	Header http.Header
	Body   string
}

// Location returns the redirect target.
func (r Response) Location() string {
	return r.Header.Get(fiber.HeaderLocation)
}

// Get sends a GET request carrying the session cookie when sessionID is not empty.
func (e *Env) Get(t testing.TB, path, sessionID string) Response {
	t.Helper()

	return e.Do(t, httptest.NewRequest(fiber.MethodGet, path, nil), sessionID)
}

// PostForm sends a form POST request.
func (e *Env) PostForm(t testing.TB, path, sessionID string, form url.Values) Response {
	t.Helper()

	req := httptest.NewRequest(fiber.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationForm)

	return e.Do(t, req, sessionID)
}

// Do sends req through the app.
func (e *Env) Do(t testing.TB, req *http.Request, sessionID string) Response {
	t.Helper()

	if sessionID != "" {
		req.AddCookie(&http.Cookie{Name: session.CookieName, Value: sessionID})
	}

	resp, err := e.App.Test(req, -1)
	require.NoError(t, err)

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return Response{Status: resp.StatusCode, Header: resp.Header, Body: string(body)}
}

// Cookie returns the value of the session cookie set by resp, "" if none.
func (r Response) Cookie() string {
	for _, c := range (&http.Response{Header: r.Header}).Cookies() {
		if c.Name == session.CookieName {
			return c.Value
		}
	}

	return ""
}

// ClearsCookie reports whether resp expires the session cookie on the path it was set with.
func (r Response) ClearsCookie() bool {
	for _, c := range (&http.Response{Header: r.Header}).Cookies() {
		if c.Name != session.CookieName || c.Path != session.CookiePath {
			continue
		}

		if c.Value == "" && (c.MaxAge < 0 || c.Expires.Before(time.Now())) {
			return true
		}
	}

	return false
}
