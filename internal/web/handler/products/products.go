// Package products provides the product list and the product form.
// Every change is followed by a redirect to the list, so the list is always reloaded from the backend.
package products

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/oidc-demo/oidc-demo-web/internal/api"
	"github.com/oidc-demo/oidc-demo-web/internal/config"
	"github.com/oidc-demo/oidc-demo-web/internal/web/handler"
	"github.com/oidc-demo/oidc-demo-web/internal/web/navigation"
)

const (
	// Path is the path to the product list.
	Path = handler.RootPath + "products"

	// NewPath shows the form for a new product.
	NewPath = Path + "/new"

	// ListTemplate is the name of the product list template.
	ListTemplate = "products/list"

	// FormTemplate is the name of the product form template.
	FormTemplate = "products/form"

	section = "products"
)

// Service is the products handler service.
type Service struct {
	handler.Service
	cfg  *config.Config
	deps *handler.Deps
}

// Handler is the products handler.
var Handler = Service{}

// Init initializes the products handler.
func (s *Service) Init(app *fiber.App, cfg *config.Config, deps *handler.Deps) error {
	if app == nil || cfg == nil || deps == nil {
		return handler.ErrNilDependency
	}

	s.cfg = cfg
	s.deps = deps

	app.Get(Path, deps.Guard, s.List)
	app.Get(NewPath, deps.Guard, s.New)
	app.Get(Path+"/:id/edit", deps.Guard, s.Edit)
	app.Post(Path, deps.Guard, s.Create)
	app.Post(Path+"/:id", deps.Guard, s.Update)
	app.Post(Path+"/:id/delete", deps.Guard, s.Delete)
	app.Post(Path+"/:id/quantity", deps.Guard, s.UpdateQuantity)

	return nil
}

// List renders the products, filtered by ?search= or ?category=.
func (s *Service) List(c *fiber.Ctx) error {
	return s.renderList(c, fiber.StatusOK, "")
}

// New renders an empty form.
func (s *Service) New(c *fiber.Ctx) error {
	return s.renderForm(c, fiber.StatusOK, NewDraft(), nil)
}

// Edit renders the form filled with the product.
func (s *Service) Edit(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return err
	}

	product, err := s.deps.Products.GetByID(c.UserContext(), id)
	if err != nil {
		return s.failed(c, err, "failed to load product", api.MsgOperationFailed)
	}

	return s.renderForm(c, fiber.StatusOK, DraftOf(product), nil)
}

// Create submits a new product.
func (s *Service) Create(c *fiber.Ctx) error {
	draft := NewDraft()
	if err := c.BodyParser(&draft); err != nil {
		log.Error().Err(err).Msg("failed to parse product form")
		return fiber.ErrBadRequest
	}

	if errs := draft.Validate(); errs != nil {
		return s.renderForm(c, fiber.StatusUnprocessableEntity, draft, errs)
	}

	product, err := s.deps.Products.Create(c.UserContext(), draft.Input())
	if err != nil {
		return s.rejected(c, err, draft, "failed to create product")
	}

	log.Info().Int64("id", product.ID).Str("name", product.Name).Msg("product created")

	return c.Redirect(Path, fiber.StatusSeeOther)
}

// Update submits the whole draft of an existing product.
func (s *Service) Update(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return err
	}

	draft := Draft{}
	if err = c.BodyParser(&draft); err != nil {
		log.Error().Err(err).Msg("failed to parse product form")
		return fiber.ErrBadRequest
	}

	draft.ID = id

	if errs := draft.Validate(); errs != nil {
		return s.renderForm(c, fiber.StatusUnprocessableEntity, draft, errs)
	}

	if _, err = s.deps.Products.Update(c.UserContext(), id, draft.Input()); err != nil {
		return s.rejected(c, err, draft, "failed to update product")
	}

	log.Info().Int64("id", id).Msg("product updated")

	return c.Redirect(Path, fiber.StatusSeeOther)
}

// Delete removes a product.
func (s *Service) Delete(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return err
	}

	if err = s.deps.Products.Delete(c.UserContext(), id); err != nil {
		return s.failed(c, err, "failed to delete product", api.MsgDeleteFailed)
	}

	log.Info().Int64("id", id).Msg("product deleted")

	return c.Redirect(Path, fiber.StatusSeeOther)
}

// UpdateQuantity sets the stock of a product.
func (s *Service) UpdateQuantity(c *fiber.Ctx) error {
	id, err := productID(c)
	if err != nil {
		return err
	}

	quantity, ok := parseQuantity(strings.TrimSpace(c.FormValue("quantity")))
	if !ok {
		return s.renderList(c, fiber.StatusUnprocessableEntity, MsgInvalidQuantity)
	}

	if err = s.deps.Products.UpdateQuantity(c.UserContext(), id, quantity); err != nil {
		return s.failed(c, err, "failed to update quantity", api.MsgOperationFailed)
	}

	return c.Redirect(Path, fiber.StatusSeeOther)
}

// failed shows a failed backend call as a banner above the reloaded list.
func (s *Service) failed(c *fiber.Ctx, err error, logMsg, fallback string) error {
	if handler.Escalate(err) {
		return err
	}

	log.Error().Err(err).Str("path", c.Path()).Msg(logMsg)

	return s.renderList(c, handler.StatusOf(err), api.Message(err, fallback))
}

// rejected shows a create or update the backend refused above the form, keeping what was typed.
func (s *Service) rejected(c *fiber.Ctx, err error, draft Draft, logMsg string) error {
	if handler.Escalate(err) {
		return err
	}

	log.Error().Err(err).Str("path", c.Path()).Msg(logMsg)

	return s.renderForm(c, handler.StatusOf(err), draft, map[string]string{
		"": api.Message(err, api.MsgOperationFailed),
	})
}

func (s *Service) renderList(c *fiber.Ctx, status int, banner string) error {
	nav := navigation.NewContext("Products", section, "list").
		AddBreadcrumb("Home", handler.RootPath, false).
		AddBreadcrumb("Products", Path, true)

	search := strings.TrimSpace(c.Query("search"))
	category := strings.TrimSpace(c.Query("category"))

	var (
		list []api.Product
		err  error
	)

	switch {
	case search != "":
		list, err = s.deps.Products.SearchByName(c.UserContext(), search)
	case category != "":
		list, err = s.deps.Products.ByCategory(c.UserContext(), category)
	default:
		list, err = s.deps.Products.List(c.UserContext())
	}

	banners := make([]string, 0, 2) //nolint:mnd
	if banner != "" {
		banners = append(banners, banner)
	}

	if err != nil {
		if handler.Escalate(err) {
			return err
		}

		log.Error().Err(err).Msg("failed to load products")

		list = nil
		banners = append(banners, api.Message(err, api.MsgLoadProducts))

		if status == fiber.StatusOK {
			status = handler.StatusOf(err)
		}
	}

	log.Debug().
		Int("products", len(list)).
		Str("search", search).
		Str("category", category).
		Msg("products retrieved")

	return handler.Render(c.Status(status), ListTemplate, nav, fiber.Map{
		"Products": list,
		"Loaded":   err == nil,
		"Search":   search,
		"Category": category,
		"Banners":  banners,
	})
}

func (s *Service) renderForm(c *fiber.Ctx, status int, draft Draft, errs map[string]string) error {
	title, action := "Create Product", Path
	if draft.Editing() {
		title, action = "Edit Product", Path+"/"+strconv.FormatInt(draft.ID, 10)
	}

	nav := navigation.NewContext(title, section, "form").
		AddBreadcrumb("Home", handler.RootPath, false).
		AddBreadcrumb("Products", Path, false).
		AddBreadcrumb(title, "", true)

	return handler.Render(c.Status(status), FormTemplate, nav, fiber.Map{
		"Draft":  draft,
		"Errors": errs,
		"Action": action,
		"Cancel": Path,
	})
}

func productID(c *fiber.Ctx) (int64, error) {
	id, err := strconv.ParseInt(c.Params("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fiber.ErrNotFound
	}

	return id, nil
}
