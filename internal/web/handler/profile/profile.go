// Package profile shows the backend's record of the signed in user.
package profile

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/oidc-demo/oidc-demo-web/internal/api"
	"github.com/oidc-demo/oidc-demo-web/internal/config"
	"github.com/oidc-demo/oidc-demo-web/internal/web/handler"
	"github.com/oidc-demo/oidc-demo-web/internal/web/navigation"
)

const (
	// Path is the path of the profile page.
	Path = handler.RootPath + "profile"

	// TemplateName is the name of the profile template.
	TemplateName = "profile"
)

// Service is the profile handler service.
type Service struct {
	handler.Service
	deps *handler.Deps
}

// Handler is the profile handler.
var Handler = Service{}

// Init initializes the profile handler.
func (s *Service) Init(app *fiber.App, cfg *config.Config, deps *handler.Deps) error {
	if app == nil || cfg == nil || deps == nil {
		return handler.ErrNilDependency
	}

	s.deps = deps

	app.Get(Path, deps.Guard, s.Get)

	return nil
}

// Get renders the current user.
func (s *Service) Get(c *fiber.Ctx) error {
	nav := navigation.NewContext("Profile", "profile", "profile").
		AddBreadcrumb("Home", handler.RootPath, false).
		AddBreadcrumb("Profile", Path, true)

	user, err := s.deps.Users.Current(c.UserContext())
	if err != nil {
		if handler.Escalate(err) {
			return err
		}

		log.Error().Err(err).Msg("failed to load current user")

		return handler.Render(c.Status(handler.StatusOf(err)), TemplateName, nav, fiber.Map{
			"Banners": []string{api.Message(err, api.MsgOperationFailed)},
		})
	}

	return handler.Render(c, TemplateName, nav, fiber.Map{"User": user})
}
