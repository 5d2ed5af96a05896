// Package guard protects pages that need a signed in session.
package guard

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/oidc-demo/oidc-demo-web/internal/auth"
	accesslog "github.com/oidc-demo/oidc-demo-web/internal/logger/adapter/fiber"
	"github.com/oidc-demo/oidc-demo-web/internal/web/session"
)

// State is the outcome of checking a request.
type State int

const (
	// Loading means the identity provider has not been discovered yet.
	Loading State = iota
	// Authenticated means the request carries a valid session.
	Authenticated
	// Unauthenticated means there is no usable session.
	Unauthenticated
)

func (s State) String() string {
	switch s {
	case Loading:
		return "loading"
	case Authenticated:
		return "authenticated"
	default:
		return "unauthenticated"
	}
}

// LocalsSession is the fiber.Locals key of the *session.Data of an authenticated request.
const LocalsSession = "Session"

// SessionResolver resolves the session behind a cookie, see auth.Manager.
type SessionResolver interface {
	Ready() bool
	Resolve(ctx context.Context, id string) (*session.Data, error)
}

// Config for the guard middleware.
type Config struct {
	Resolver SessionResolver

	// RedirectTo is where unauthenticated requests are sent. Default "/".
	RedirectTo string

	// Loading renders the placeholder shown while the provider is not discovered.
	// Default: a minimal page refreshing itself.
	Loading fiber.Handler
}

func configDefault(cfg Config) Config {
	if cfg.Resolver == nil {
		panic("guard: resolver is nil")
	}

	if cfg.RedirectTo == "" {
		cfg.RedirectTo = "/"
	}

	if cfg.Loading == nil {
		cfg.Loading = loadingPage
	}

	return cfg
}

// New returns the middleware for protected routes.
// Loading renders the placeholder, Unauthenticated redirects and Authenticated runs the route.
func New(cfg Config) fiber.Handler {
	cfg = configDefault(cfg)

	return func(c *fiber.Ctx) error {
		switch Evaluate(c, cfg.Resolver) {
		case Loading:
			c.Set(fiber.HeaderRetryAfter, "1")
			return cfg.Loading(c)
		case Unauthenticated:
			return c.Redirect(cfg.RedirectTo, fiber.StatusSeeOther)
		default:
			return c.Next()
		}
	}
}

// Identify resolves the session for public pages and never redirects.
func Identify(r SessionResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		Evaluate(c, r)
		return c.Next()
	}
}

// Evaluate determines the state of the request. For authenticated requests the session is put
// into the locals and its id into the user context.
func Evaluate(c *fiber.Ctx, r SessionResolver) State {
	if !r.Ready() {
		return Loading
	}

	id := c.Cookies(session.CookieName)
	if id == "" {
		return Unauthenticated
	}

	data, err := r.Resolve(c.UserContext(), id)
	if err != nil {
		if !errors.Is(err, auth.ErrNoSession) && !errors.Is(err, auth.ErrSessionExpired) {
			log.Warn().Err(err).Msg("failed to resolve session")
		}

		session.ClearCookie(c)

		return Unauthenticated
	}

	c.Locals(LocalsSession, data)
	c.Locals(accesslog.LocalsUsername, data.Identity.Username)
	c.SetUserContext(auth.WithSessionID(c.UserContext(), id))

	return Authenticated
}

// Current returns the session of an authenticated request or nil.
func Current(c *fiber.Ctx) *session.Data {
	data, _ := c.Locals(LocalsSession).(*session.Data)

	return data
}

func loadingPage(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, fiber.MIMETextHTMLCharsetUTF8)

	return c.SendString(`<!doctype html><html><head><meta http-equiv="refresh" content="1"><title>Loading</title></head>` +
		`<body><p>Loading...</p></body></html>`)
}
