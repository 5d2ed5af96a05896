// Package users provides the user administration page.
// The menu only links it for admins; the backend decides who may read or change users.
package users

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/oidc-demo/oidc-demo-web/internal/api"
	"github.com/oidc-demo/oidc-demo-web/internal/config"
	"github.com/oidc-demo/oidc-demo-web/internal/web/handler"
	"github.com/oidc-demo/oidc-demo-web/internal/web/navigation"
)

const (
	// Path is the path to the user list.
	Path = handler.RootPath + "users"

	// TemplateName is the name of the user list template.
	TemplateName = "users/list"
)

// Service is the users handler service.
type Service struct {
	handler.Service
	deps *handler.Deps
}

// Handler is the users handler.
var Handler = Service{}

// Init initializes the users handler.
func (s *Service) Init(app *fiber.App, cfg *config.Config, deps *handler.Deps) error {
	if app == nil || cfg == nil || deps == nil {
		return handler.ErrNilDependency
	}

	s.deps = deps

	app.Get(Path, deps.Guard, s.List)
	app.Post(Path+"/:id/delete", deps.Guard, s.Delete)
	app.Post(Path+"/:id/active", deps.Guard, s.SetActive)

	return nil
}

// List renders all users.
func (s *Service) List(c *fiber.Ctx) error {
	return s.render(c, fiber.StatusOK, "")
}

// Delete removes a user.
func (s *Service) Delete(c *fiber.Ctx) error {
	id, err := userID(c)
	if err != nil {
		return err
	}

	if err = s.deps.Users.Delete(c.UserContext(), id); err != nil {
		return s.failed(c, err, api.MsgDeleteFailed)
	}

	log.Info().Int64("id", id).Msg("user deleted")

	return c.Redirect(Path, fiber.StatusSeeOther)
}

// SetActive enables or disables a user, the form field "active" carries the new state.
func (s *Service) SetActive(c *fiber.Ctx) error {
	id, err := userID(c)
	if err != nil {
		return err
	}

	active, err := strconv.ParseBool(c.FormValue("active"))
	if err != nil {
		return fiber.ErrBadRequest
	}

	if _, err = s.deps.Users.Update(c.UserContext(), id, api.UserUpdate{Active: &active}); err != nil {
		return s.failed(c, err, api.MsgOperationFailed)
	}

	log.Info().Int64("id", id).Bool("active", active).Msg("user updated")

	return c.Redirect(Path, fiber.StatusSeeOther)
}

func (s *Service) failed(c *fiber.Ctx, err error, fallback string) error {
	if handler.Escalate(err) {
		return err
	}

	log.Error().Err(err).Str("path", c.Path()).Msg("user operation failed")

	return s.render(c, handler.StatusOf(err), api.Message(err, fallback))
}

func (s *Service) render(c *fiber.Ctx, status int, banner string) error {
	nav := navigation.NewContext("Users", "users", "list").
		AddBreadcrumb("Home", handler.RootPath, false).
		AddBreadcrumb("Users", Path, true)

	var banners []string
	if banner != "" {
		banners = append(banners, banner)
	}

	list, err := s.deps.Users.List(c.UserContext())
	if err != nil {
		if handler.Escalate(err) {
			return err
		}

		log.Error().Err(err).Msg("failed to load users")

		list = nil
		banners = append(banners, api.Message(err, api.MsgLoadUsers))

		if status == fiber.StatusOK {
			status = handler.StatusOf(err)
		}
	}

	return handler.Render(c.Status(status), TemplateName, nav, fiber.Map{
		"Users":   list,
		"Loaded":  err == nil,
		"Banners": banners,
	})
}

func userID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.ErrNotFound
	}

	return id, nil
}
