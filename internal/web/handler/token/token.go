// Package token checks the access token of the session against the introspection endpoint.
// Nothing of the result is kept, every check is a new backend call.
package token

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/oidc-demo/oidc-demo-web/internal/api"
	"github.com/oidc-demo/oidc-demo-web/internal/config"
	"github.com/oidc-demo/oidc-demo-web/internal/web/handler"
	"github.com/oidc-demo/oidc-demo-web/internal/web/middleware/guard"
	"github.com/oidc-demo/oidc-demo-web/internal/web/navigation"
)

const (
	// Path is the path the "Check Token" button posts to.
	Path = handler.RootPath + "token/check"

	// TemplateName is the name of the result template.
	TemplateName = "token/result"

	// MsgNoToken is shown when there is no session to check.
	MsgNoToken = "No token available. Please login first."
)

// Service is the token check handler service.
type Service struct {
	handler.Service
	deps *handler.Deps
}

// Handler is the token check handler.
var Handler = Service{}

// Init initializes the token check handler.
func (s *Service) Init(app *fiber.App, cfg *config.Config, deps *handler.Deps) error {
	if app == nil || cfg == nil || deps == nil {
		return handler.ErrNilDependency
	}

	s.deps = deps

	app.Post(Path, guard.Identify(deps.Auth), s.Check)

	return nil
}

// Check introspects the access token and renders Active or Inactive with the raw payload.
func (s *Service) Check(c *fiber.Ctx) error {
	nav := navigation.NewContext("Token Introspection", "token", "check").
		AddBreadcrumb("Home", handler.RootPath, false).
		AddBreadcrumb("Token Introspection", "", true)

	current := guard.Current(c)
	if current == nil || current.Token.AccessToken == "" {
		return handler.Render(c.Status(fiber.StatusUnauthorized), TemplateName, nav, fiber.Map{
			"Banners": []string{MsgNoToken},
		})
	}

	result, err := s.deps.Introspection.Introspect(c.UserContext())
	if err != nil {
		if handler.Escalate(err) {
			return err
		}

		log.Error().Err(err).Msg("token introspection failed")

		return handler.Render(c.Status(handler.StatusOf(err)), TemplateName, nav, fiber.Map{
			"Banners": []string{api.Message(err, api.MsgIntrospect)},
		})
	}

	log.Debug().Bool("active", result.Active).Msg("token introspected")

	return handler.Render(c, TemplateName, nav, fiber.Map{
		"Result": result,
		"Status": status(result.Active),
	})
}

func status(active bool) string {
	if active {
		return "Active"
	}

	return "Inactive"
}
