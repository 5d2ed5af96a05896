package gateway

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// HeaderRequestID correlates a backend request with the log lines of both sides.
const HeaderRequestID = "X-Request-ID"

// TokenLookup returns the access token for the request context, "" when there is none.
type TokenLookup func(ctx context.Context) (string, error)

// RequestDecorator may modify or replace an outgoing request.
type RequestDecorator func(*http.Request) (*http.Request, error)

// ResponseHandler inspects a response before the caller sees it.
// A handler returning an error owns the response body.
type ResponseHandler func(*http.Response) (*http.Response, error)

// Option configures a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the pooled default client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) {
		g.client = c
	}
}

// WithTimeout bounds every request including reading the response body.
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		g.timeout = d
	}
}

// WithRequestDecorator appends d to the request decorators. Decorators run in the order given.
func WithRequestDecorator(d RequestDecorator) Option {
	return func(g *Gateway) {
		g.decorators = append(g.decorators, d)
	}
}

// WithResponseHandler appends h to the response handlers. Handlers run in the order given.
func WithResponseHandler(h ResponseHandler) Option {
	return func(g *Gateway) {
		g.handlers = append(g.handlers, h)
	}
}

// WithBearerToken sets the Authorization header from lookup.
// A failing lookup is logged and the request goes out without credentials.
func WithBearerToken(lookup TokenLookup) Option {
	return WithRequestDecorator(func(req *http.Request) (*http.Request, error) {
		token, err := lookup(req.Context())
		if err != nil {
			log.Warn().Err(err).Str("path", req.URL.Path).Msg("token lookup failed, sending request without credentials")
			return req, nil
		}

		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		return req, nil
	})
}

// WithUnauthorizedHandler calls fn for every 401 response and turns it into ErrUnauthorized.
// The request is not retried.
func WithUnauthorizedHandler(fn func(ctx context.Context)) Option {
	return WithResponseHandler(func(resp *http.Response) (*http.Response, error) {
		if resp.StatusCode != http.StatusUnauthorized {
			return resp, nil
		}

		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		log.Info().Str("path", resp.Request.URL.Path).Msg("backend answered 401, ending session")
		fn(resp.Request.Context())

		return nil, ErrUnauthorized
	})
}

// WithRequestID stamps a random X-Request-ID on requests that carry none.
func WithRequestID() Option {
	return WithRequestDecorator(func(req *http.Request) (*http.Request, error) {
		if req.Header.Get(HeaderRequestID) == "" {
			req.Header.Set(HeaderRequestID, uuid.NewString())
		}

		return req, nil
	})
}
