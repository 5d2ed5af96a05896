// Package home renders the public landing page.
package home

import (
	"github.com/gofiber/fiber/v2"

	"github.com/oidc-demo/oidc-demo-web/internal/config"
	"github.com/oidc-demo/oidc-demo-web/internal/web/handler"
	"github.com/oidc-demo/oidc-demo-web/internal/web/handler/auth/oidc"
	"github.com/oidc-demo/oidc-demo-web/internal/web/middleware/guard"
	"github.com/oidc-demo/oidc-demo-web/internal/web/navigation"
)

const (
	// Path is the path of the home page.
	Path = handler.RootPath

	// TemplateName is the name of the home template.
	TemplateName = "home"
)

// Service is the home handler service.
type Service struct {
	handler.Service
	deps *handler.Deps
}

// Handler is the home handler.
var Handler = Service{}

// Init initializes the home handler.
func (s *Service) Init(app *fiber.App, cfg *config.Config, deps *handler.Deps) error {
	if app == nil || cfg == nil || deps == nil {
		return handler.ErrNilDependency
	}

	s.deps = deps

	app.Get(Path, guard.Identify(deps.Auth), s.Get)

	return nil
}

// Get renders the welcome page, or the claims of the signed in user.
func (s *Service) Get(c *fiber.Ctx) error {
	// the redirect URI defaults to the application origin
	if (c.Query("code") != "" && c.Query("state") != "") || c.Query("error") != "" {
		return c.Redirect(oidc.CallbackPath+"?"+string(c.Request().URI().QueryString()), fiber.StatusSeeOther)
	}

	nav := navigation.NewContext("Home", "home", "home").
		AddBreadcrumb("Home", Path, true)

	data := fiber.Map{
		"Ready":     s.deps.Auth.Ready(),
		"LoginPath": oidc.LoginPath,
	}

	if current := guard.Current(c); current != nil {
		data["Identity"] = current.Identity
		data["TokenKind"] = current.TokenKind()
		data["Expiry"] = current.Token.Expiry
	}

	return handler.Render(c, TemplateName, nav, data)
}
