package oidc

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/oidc-demo/oidc-demo-web/internal/auth"
	"github.com/oidc-demo/oidc-demo-web/internal/config"
	"github.com/oidc-demo/oidc-demo-web/internal/web/handler"
	"github.com/oidc-demo/oidc-demo-web/internal/web/handler/products"
	"github.com/oidc-demo/oidc-demo-web/internal/web/navigation"
)

const (
	// LoginPath is the path to initiate OIDC login.
	LoginPath = handler.RootPath + "login"

	// CallbackPath is the path for the OIDC callback.
	CallbackPath = handler.RootPath + "callback"

	errorTitle  = "Authentication Error"
	backToHome  = "Back to Home"
	msgFailed   = "Authentication failed. Please try again."
	msgExpired  = "The login request expired or was already used. Please try again."
	msgInternal = "Internal server error"
)

// Service is the OIDC handler service.
type Service struct {
	handler.Service
	cfg  *config.Config
	deps *handler.Deps
}

// Handler is the OIDC handler.
var Handler = Service{}

// Init initializes the OIDC handler.
func (s *Service) Init(app *fiber.App, cfg *config.Config, deps *handler.Deps) error {
	if app == nil || cfg == nil || deps == nil {
		return handler.ErrNilDependency
	}

	s.cfg = cfg
	s.deps = deps

	app.Get(LoginPath, s.Login)
	app.Get(CallbackPath, s.Callback)

	return nil
}

// Login sends the browser to the identity provider.
func (s *Service) Login(c *fiber.Ctx) error {
	authURL, err := s.deps.Auth.Begin()
	if errors.Is(err, auth.ErrNotReady) {
		c.Set(fiber.HeaderRetryAfter, "1")

		return handler.Render(c.Status(fiber.StatusServiceUnavailable), handler.LoadingTemplate,
			navigation.NewContext("Loading", "", ""), nil)
	}

	if err != nil {
		log.Error().Err(err).Msg("failed to start OIDC login")

		return handler.RenderError(c, fiber.StatusInternalServerError, failure(msgInternal))
	}

	return c.Redirect(authURL, fiber.StatusSeeOther)
}

// Callback finishes the login and sets the session cookie.
func (s *Service) Callback(c *fiber.Ctx) error {
	if providerErr := c.Query("error"); providerErr != "" {
		log.Warn().
			Str("error", providerErr).
			Str("description", c.Query("error_description")).
			Msg("identity provider returned an error")

		msg := c.Query("error_description")
		if msg == "" {
			msg = msgFailed
		}

		return handler.RenderError(c, fiber.StatusUnauthorized, failure(msg))
	}

	id, data, err := s.deps.Auth.Complete(c.UserContext(), c.Query("state"), c.Query("code"))
	if err != nil {
		log.Error().Err(err).Msg("OIDC authentication failed")

		switch {
		case errors.Is(err, auth.ErrInvalidState):
			return handler.RenderError(c, fiber.StatusBadRequest, failure(msgExpired))
		case errors.Is(err, auth.ErrNotReady):
			return handler.RenderError(c, fiber.StatusServiceUnavailable, failure(msgFailed))
		default:
			return handler.RenderError(c, fiber.StatusUnauthorized, failure(msgFailed))
		}
	}

	handler.SetSessionCookie(c, s.cfg, id)

	log.Debug().Str("username", data.Identity.Username).Strs("roles", data.Identity.Roles).Msg("session created")

	return c.Redirect(products.Path, fiber.StatusSeeOther)
}

func failure(msg string) handler.ErrorPage {
	return handler.ErrorPage{
		Title:       errorTitle,
		Message:     msg,
		ActionLabel: backToHome,
		ActionURL:   handler.RootPath,
	}
}
