// Package logout ends the local session and the session at the identity provider.
package logout

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/oidc-demo/oidc-demo-web/internal/config"
	"github.com/oidc-demo/oidc-demo-web/internal/web/handler"
	"github.com/oidc-demo/oidc-demo-web/internal/web/middleware/guard"
	"github.com/oidc-demo/oidc-demo-web/internal/web/session"
)

// Path is the logout path.
const Path = handler.RootPath + "logout"

// Service is the logout handler service.
type Service struct {
	handler.Service
	cfg  *config.Config
	deps *handler.Deps
}

// Handler is the logout handler.
var Handler = Service{}

// Init initializes the logout handler.
func (s *Service) Init(app *fiber.App, cfg *config.Config, deps *handler.Deps) error {
	if app == nil || cfg == nil || deps == nil {
		return handler.ErrNilDependency
	}

	s.cfg = cfg
	s.deps = deps

	// reachable without a session, a stale cookie is cleared all the same
	app.Get(Path, guard.Identify(deps.Auth), s.Logout)
	app.Post(Path, guard.Identify(deps.Auth), s.Logout)

	return nil
}

// Logout destroys the session and redirects to the provider's end session endpoint.
func (s *Service) Logout(c *fiber.Ctx) error {
	var idToken string

	if data := guard.Current(c); data != nil {
		idToken = data.IDToken

		log.Info().Str("username", data.Identity.Username).Msg("user logged out")
	}

	s.deps.Auth.Destroy(c.Cookies(session.CookieName))
	session.ClearCookie(c)

	if target := s.deps.Auth.LogoutURL(idToken); target != "" {
		return c.Redirect(target, fiber.StatusSeeOther)
	}

	return c.Redirect(handler.RootPath, fiber.StatusSeeOther)
}
