// Package fiber provides a zerolog based access log middleware for fiber.
package fiber

import (
	"io"
	"os"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/oidc-demo/oidc-demo-web/internal/logger"
)

const (
	// LocalsUsername is the fiber.Locals key the access log reads the signed in username from.
	LocalsUsername = "access_log_username"

	// HeaderPerformance carries the handling time in seconds.
	HeaderPerformance = "X-Performance"
)

// Config of the access log middleware.
type Config struct {
	// Next skips the middleware when it returns true.
	//
	// Optional. Default: nil
	Next func(c *fiber.Ctx) bool

	// Config of the logger.
	Config logger.Log

	// CacheControlError is sent with responses the error handler could not produce.
	//
	// Optional. Default: "max-age=0"
	CacheControlError string

	// CheckAliveURI is not logged when Config.DisableCheckAlive is set.
	CheckAliveURI string

	// QuietURIs are never logged, e.g. the metrics endpoint scraped every few seconds.
	QuietURIs []string
}

// ConfigDefault is the default config.
var ConfigDefault = Config{
	CacheControlError: "max-age=0",
}

func configDefault(config ...Config) Config {
	if len(config) < 1 {
		return ConfigDefault
	}

	cfg := config[0]

	if cfg.CacheControlError == "" {
		cfg.CacheControlError = ConfigDefault.CacheControlError
	}

	if cfg.Config.DisableCheckAlive && cfg.CheckAliveURI != "" {
		cfg.QuietURIs = append(slices.Clone(cfg.QuietURIs), cfg.CheckAliveURI)
	}

	return cfg
}

// New creates the access log middleware. Every request produces one line without level,
// written to the access log file and, if enabled, to stdout.
func New(config ...Config) fiber.Handler {
	var (
		cfg        = configDefault(config...)
		once       sync.Once
		errHandler fiber.ErrorHandler
	)

	accessLogger := zerolog.New(zerolog.MultiLevelWriter(writers(cfg.Config)...)).
		With().
		Timestamp().
		Logger().
		Level(zerolog.NoLevel)

	return func(ctx *fiber.Ctx) error {
		if cfg.Next != nil && cfg.Next(ctx) {
			return ctx.Next()
		}

		once.Do(func() {
			errHandler = ctx.App().ErrorHandler
		})

		start := time.Now()

		// the error handler runs here so the logged status is the one the client gets
		chainErr := ctx.Next()
		if chainErr != nil {
			if err := errHandler(ctx, chainErr); err != nil {
				_ = ctx.SendStatus(fiber.StatusInternalServerError) //nolint:errcheck // ok here
				ctx.Response().Header.Set(fiber.HeaderCacheControl, cfg.CacheControlError)
			}
		}

		elapsed := time.Since(start).Seconds()
		ctx.Set(HeaderPerformance, strconv.FormatFloat(elapsed, 'f', 6, 64))

		if slices.Contains(cfg.QuietURIs, string(ctx.Request().RequestURI())) {
			return nil
		}

		event := accessLogger.Log().
			Str("IP", ctx.IP()).
			Int("status", ctx.Response().StatusCode()).
			Float64(HeaderPerformance, elapsed).
			Str("URI", requestURI(ctx)).
			Str("method", ctx.Method()).
			Bytes("host", ctx.Request().Host()).
			Str(fiber.HeaderXForwardedFor, ctx.Get(fiber.HeaderXForwardedFor)).
			Str(fiber.HeaderUserAgent, ctx.Get(fiber.HeaderUserAgent)).
			Str(fiber.HeaderReferer, ctx.Get(fiber.HeaderReferer))

		if route := ctx.Route(); route != nil && route.Path != "" {
			event.Str("route", route.Path)
		}

		if username, ok := ctx.Locals(LocalsUsername).(string); ok && username != "" {
			event.Str("username", username)
		}

		if chainErr != nil {
			event.Err(chainErr)
		}

		event.Send()

		return nil
	}
}

// requestURI is the path as sent by the client, fasthttp normalizes //a to /a.
func requestURI(ctx *fiber.Ctx) string {
	p := ctx.Path()

	if q := ctx.Request().URI().QueryString(); len(q) > 0 {
		p += "?" + string(q)
	}

	return p
}

// writers returns the access log outputs. Console.Enabled is the master switch for stdout,
// EnableAccessLogToConsole opts the access log in.
func writers(cfg logger.Log) []io.Writer {
	var out []io.Writer

	if cfg.File.Enabled {
		out = append(out, logger.NewRollingFile(cfg.File.Path, cfg.File.Access()))
	}

	if !cfg.Console.Enabled || !cfg.EnableAccessLogToConsole {
		return out
	}

	if cfg.Console.UseConsoleWriter {
		return append(out, zerolog.ConsoleWriter{
			Out:          os.Stdout,
			TimeFormat:   zerolog.TimeFieldFormat,
			PartsExclude: []string{zerolog.LevelFieldName},
		})
	}

	return append(out, os.Stdout)
}
