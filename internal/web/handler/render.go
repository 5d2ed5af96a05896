// Package handler holds what the page handlers share: their dependencies, the page renderer,
// the session cookie and the error handler of the fiber app.
package handler

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/oidc-demo/oidc-demo-web/internal/config"
	"github.com/oidc-demo/oidc-demo-web/internal/gateway"
	"github.com/oidc-demo/oidc-demo-web/internal/web/middleware/guard"
	"github.com/oidc-demo/oidc-demo-web/internal/web/navigation"
	"github.com/oidc-demo/oidc-demo-web/internal/web/session"
)

// Render renders tpl inside the base layout. Navigation and Session are added to data.
func Render(c *fiber.Ctx, tpl string, nav *navigation.Context, data fiber.Map) error {
	current := guard.Current(c)

	if data == nil {
		data = fiber.Map{}
	}

	data["Navigation"] = nav.WithMenu(current)
	data["Session"] = current

	return c.Render(tpl, data, BaseLayout)
}

// ErrorPage is the data of ErrorTemplate.
type ErrorPage struct {
	Title       string
	Message     string
	ActionLabel string
	ActionURL   string
}

// RenderError renders a full page error with status.
func RenderError(c *fiber.Ctx, status int, page ErrorPage) error {
	nav := navigation.NewContext(page.Title, "", "")

	return Render(c.Status(status), ErrorTemplate, nav, fiber.Map{"Error": page})
}

// SetSessionCookie hands the session id to the browser.
func SetSessionCookie(c *fiber.Ctx, cfg *config.Config, id string) {
	c.Cookie(&fiber.Cookie{
		Name:     session.CookieName,
		Value:    id,
		Path:     session.CookiePath,
		MaxAge:   int(cfg.Webserver.Session.ExpiryTime.Seconds()),
		Secure:   strings.HasPrefix(cfg.Webserver.URL, "https://"),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// ErrorHandler is the fiber error handler of the web service.
// A backend 401 ends the session and sends the browser to the home page, whatever page it was on.
func ErrorHandler(c *fiber.Ctx, err error) error {
	if errors.Is(err, gateway.ErrUnauthorized) {
		log.Info().Str("path", c.Path()).Msg("backend rejected the session, signing out")

		session.ClearCookie(c)

		return c.Redirect(RootPath, fiber.StatusSeeOther)
	}

	return fiber.DefaultErrorHandler(c, err)
}

// Escalate reports whether err has to go to ErrorHandler instead of being shown inline.
func Escalate(err error) bool {
	return errors.Is(err, gateway.ErrUnauthorized)
}

// StatusOf is the status of a page showing the failed backend call err inline.
// Client errors of the backend are passed on, everything else is a bad gateway.
func StatusOf(err error) int {
	var statusErr *gateway.StatusError
	if errors.As(err, &statusErr) && statusErr.Status >= fiber.StatusBadRequest && statusErr.Status < fiber.StatusInternalServerError {
		return statusErr.Status
	}

	return fiber.StatusBadGateway
}
