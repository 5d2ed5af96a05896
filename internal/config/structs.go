package config

import (
	"strings"
	"time"

	"github.com/oidc-demo/oidc-demo-web/internal/logger"
)

const (
	// StorageMemory keeps sessions in process memory.
	StorageMemory = "memory"

	// StorageMySQL keeps sessions in a MySQL table.
	StorageMySQL = "mysql"

	// StoragePostgres keeps sessions in a PostgreSQL table.
	StoragePostgres = "postgres"
)

// SessionStorage selects where server-side sessions are persisted.
type SessionStorage struct {
	Driver        string `validate:"oneof=memory mysql postgres"` // memory, mysql or postgres
	ConnectionURI string // DSN for mysql/postgres
	Table         string // table name for mysql/postgres
}

// Session settings.
type Session struct {
	ExpiryTime time.Duration
	Storage    SessionStorage
}

// Config overall data structure.
type Config struct {
	DevMode   bool // enable dev mode for development
	Log       logger.Log
	Title     string
	Webserver Webserver
	OIDC      OIDC
	Backend   Backend
}

// Webserver implement webserver settings.
type Webserver struct {
	BrowseStatic   bool    // enable static file browsing (for development purposes only)
	DisableRecover bool    // disable recover middleware
	Port           int     // listening port for the webserver
	ShutDownTime   int     // wait time for shutdown
	URL            string  // public origin of the webserver, e.g. http://localhost:3000
	Session        Session // session settings
}

// OIDC holds the identity provider settings.
type OIDC struct {
	URL                   string   `validate:"required,url"` // identity provider base url
	Realm                 string   `validate:"required"`
	ClientID              string   `validate:"required"`
	ClientSecret          string   // empty for public clients
	Scopes                []string // defaults to openid, profile, email
	RolesClaim            string   // claim holding role names
	RedirectURL           string   // defaults to Webserver.URL
	PostLogoutRedirectURL string   // defaults to Webserver.URL
}

// Authority returns the issuer url of the configured realm.
func (o OIDC) Authority() string {
	return strings.TrimSuffix(o.URL, "/") + "/realms/" + o.Realm
}

// Backend holds the REST API settings.
type Backend struct {
	URL       string        `validate:"required,url"`
	APIPrefix string        // path prefix of all endpoints, default /api
	Timeout   time.Duration // per request timeout
}

// BaseURL returns the backend url including the api prefix.
func (b Backend) BaseURL() string {
	return strings.TrimSuffix(b.URL, "/") + "/" + strings.Trim(b.APIPrefix, "/")
}
