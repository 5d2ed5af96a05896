// Package daemon wires the configuration into the running web service.
package daemon

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/storage/mysql/v2"
	"github.com/gofiber/storage/postgres/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/oidc-demo/oidc-demo-web/internal/api"
	"github.com/oidc-demo/oidc-demo-web/internal/auth"
	"github.com/oidc-demo/oidc-demo-web/internal/config"
	"github.com/oidc-demo/oidc-demo-web/internal/gateway"
	"github.com/oidc-demo/oidc-demo-web/internal/web"
	"github.com/oidc-demo/oidc-demo-web/internal/web/handler"
	"github.com/oidc-demo/oidc-demo-web/internal/web/session"
)

// Daemon represents the main application daemon.
type Daemon struct {
	cfg        *config.Config
	cancel     context.CancelFunc
	webService *web.Service
}

// Start serves until a termination signal arrives.
func (d *Daemon) Start() error {
	defer d.cancel()

	go d.webService.WaitShutdown()

	return d.webService.Start(fmt.Sprintf(":%d", d.cfg.Webserver.Port))
}

// New creates a new Daemon instance with the provided configuration.
// The identity provider is discovered in the background, pages answer with a loading view until then.
func New(cfg *config.Config) (*Daemon, error) {
	if cfg == nil {
		return nil, handler.ErrNilDependency
	}

	storage, err := newStorage(cfg.Webserver.Session.Storage)
	if err != nil {
		return nil, err
	}

	store := session.New(storage, cfg.Webserver.Session.ExpiryTime)

	ctx, cancel := context.WithCancel(context.Background())

	manager := auth.NewManager(cfg.OIDC, store)
	manager.Start(ctx)

	gw, err := gateway.New(cfg.Backend.BaseURL(),
		gateway.WithTimeout(cfg.Backend.Timeout),
		gateway.WithRequestID(),
		gateway.WithBearerToken(manager.AccessToken),
		gateway.WithUnauthorizedHandler(manager.EndSession),
	)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to create backend gateway")
	}

	webService, err := web.New(cfg, &handler.Deps{
		Auth:          manager,
		Products:      api.NewProducts(gw),
		Users:         api.NewUsers(gw),
		Introspection: api.NewIntrospection(gw),
	})
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "failed to create web service")
	}

	log.Info().
		Str("issuer", cfg.OIDC.Authority()).
		Str("backend", cfg.Backend.BaseURL()).
		Str("sessions", cfg.Webserver.Session.Storage.Driver).
		Msg("daemon initialized")

	return &Daemon{
		cfg:        cfg,
		cancel:     cancel,
		webService: webService,
	}, nil
}

// newStorage returns the session storage for s, nil selects the in-memory default.
func newStorage(s config.SessionStorage) (fiber.Storage, error) {
	switch s.Driver {
	case "", config.StorageMemory:
		return nil, nil //nolint:nilnil
	case config.StorageMySQL:
		return mysql.New(mysql.Config{
			ConnectionURI: s.ConnectionURI,
			Table:         s.Table,
		}), nil
	case config.StoragePostgres:
		return postgres.New(postgres.Config{
			ConnectionURI: s.ConnectionURI,
			Table:         s.Table,
		}), nil
	default:
		return nil, errors.Errorf("unknown session storage driver %q", s.Driver)
	}
}
