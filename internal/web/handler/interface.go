package handler

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/oidc-demo/oidc-demo-web/internal/api"
	"github.com/oidc-demo/oidc-demo-web/internal/config"
	"github.com/oidc-demo/oidc-demo-web/internal/web/session"
)

// Service is the interface for a web handler service.
type Service interface {
	Init(app *fiber.App, cfg *config.Config, deps *Deps) error
}

// Authenticator is the part of auth.Manager the handlers use.
type Authenticator interface {
	Ready() bool
	Begin() (string, error)
	Complete(ctx context.Context, state, code string) (string, *session.Data, error)
	Resolve(ctx context.Context, id string) (*session.Data, error)
	Destroy(id string)
	LogoutURL(idTokenHint string) string
}

// Deps are the collaborators shared by all handlers.
type Deps struct {
	Auth Authenticator

	// Guard protects routes that need a signed in session.
	Guard fiber.Handler

	Products      *api.Products
	Users         *api.Users
	Introspection *api.Introspection
}
