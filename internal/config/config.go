// Package config reads the service configuration from etc/main.toml and the environment.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	// JSONOverrideEnv holds a JSON document merged over the file and env configuration.
	JSONOverrideEnv = "OIDC_DEMO_CONFIG_JSON"

	defaultConfigPath = "./etc/"
	configFileName    = "main.toml"
)

// envBindings maps config keys to the environment variables documented for the frontend.
var envBindings = map[string]string{
	"oidc.url":       "KEYCLOAK_URL",
	"oidc.realm":     "KEYCLOAK_REALM",
	"oidc.clientid":  "KEYCLOAK_CLIENT_ID",
	"backend.url":    "BACKEND_URL",
	"webserver.port": "FRONTEND_PORT",
}

// ReadConfig from config file and environment.
// A missing main.toml is not an error, the defaults and the environment are used instead.
func ReadConfig(path string) (Config, error) {
	var (
		c             Config
		JSONConfigEnv string
		err           error
	)

	if path == "" {
		path = defaultConfigPath
	}

	v := viper.New()
	v.SetConfigType("toml")
	setDefaults(v)

	for key, env := range envBindings {
		if err = v.BindEnv(key, env); err != nil {
			return Config{}, errors.Wrap(err, "failed to bind env "+env)
		}
	}

	file := filepath.Join(path, configFileName)
	if _, err = os.Stat(file); err == nil {
		v.SetConfigFile(file)

		if err = v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, "failed to read main config file")
		}
	}

	if err = v.Unmarshal(&c); err != nil {
		return Config{}, errors.Wrap(err, "failed to decode config")
	}

	// override it from env
	JSONConfigEnv = os.Getenv(JSONOverrideEnv)

	if JSONConfigEnv != "" {
		c, err = decodeAndMergeConfig(c, JSONConfigEnv)
		if err != nil {
			return c, err
		}
	}

	applyDerived(&c)

	return c, validate(&c)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("title", "OIDC Demo")

	v.SetDefault("log.loglevel", "info")
	v.SetDefault("log.appname", "oidc-demo")
	v.SetDefault("log.servicename", "web")
	v.SetDefault("log.console.enabled", true)

	v.SetDefault("webserver.port", 3000)
	v.SetDefault("webserver.shutdowntime", 5)
	v.SetDefault("webserver.session.expirytime", 8*time.Hour)
	v.SetDefault("webserver.session.storage.driver", StorageMemory)
	v.SetDefault("webserver.session.storage.table", "sessions")

	v.SetDefault("oidc.url", "http://localhost:8080")
	v.SetDefault("oidc.realm", "demo-realm")
	v.SetDefault("oidc.clientid", "demo-frontend")
	v.SetDefault("oidc.scopes", []string{"openid", "profile", "email"})
	v.SetDefault("oidc.rolesclaim", "roles")

	v.SetDefault("backend.url", "http://localhost:21301")
	v.SetDefault("backend.apiprefix", "/api")
	v.SetDefault("backend.timeout", 30*time.Second)
}

// applyDerived fills the settings that default to other settings.
func applyDerived(c *Config) {
	if c.Webserver.URL == "" && c.Webserver.Port != 0 {
		c.Webserver.URL = fmt.Sprintf("http://localhost:%d", c.Webserver.Port)
	}

	if c.OIDC.RedirectURL == "" {
		c.OIDC.RedirectURL = c.Webserver.URL
	}

	if c.OIDC.PostLogoutRedirectURL == "" {
		c.OIDC.PostLogoutRedirectURL = c.Webserver.URL
	}
}

func decodeAndMergeConfig(c Config, configAsJSON string) (Config, error) {
	err := json.Unmarshal([]byte(configAsJSON), &c)
	if err != nil {
		return Config{}, errors.Wrap(err, "failed to read json config override")
	}

	return c, nil
}

// DumpConfig config as TOML String.
func DumpConfig(c *Config) (string, error) {
	var buffer bytes.Buffer
	t := toml.NewEncoder(&buffer)

	if err := t.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// DumpConfigJSON config as JSON String.
func DumpConfigJSON(c *Config) (string, error) {
	var buffer bytes.Buffer
	j := json.NewEncoder(&buffer)
	j.SetIndent("", "  ")

	if err := j.Encode(c); err != nil {
		return "", err //nolint: wrapcheck
	}

	return buffer.String(), nil
}

// validate the settings the service can not start without.
func validate(c *Config) error {
	invalidErrMessage := "invalid config"

	if c.Webserver.Port == 0 {
		return errors.Wrap(ErrWebServerPortCanNotBeZero, invalidErrMessage)
	}

	if c.Webserver.URL == "" {
		return errors.Wrap(ErrEmptyURL, invalidErrMessage)
	}

	if c.Webserver.ShutDownTime == 0 {
		c.Webserver.ShutDownTime = 5 // set default of 5 seconds
	}

	if c.Webserver.Session.Storage.Driver == "" {
		c.Webserver.Session.Storage.Driver = StorageMemory
	}

	if c.Webserver.Session.Storage.Driver != StorageMemory && c.Webserver.Session.Storage.ConnectionURI == "" {
		return errors.Wrap(ErrStorageURIEmpty, invalidErrMessage)
	}

	if err := validator.New().Struct(c); err != nil {
		return errors.Wrap(err, invalidErrMessage)
	}

	return nil
}
