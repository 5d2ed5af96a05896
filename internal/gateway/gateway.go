// Package gateway is the single HTTP client of the backend REST API.
// It attaches the bearer token of the current session to every request and ends the
// session when the backend answers 401.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/zerolog/log"
)

const (
	defaultTimeout = 30 * time.Second

	// maxBodySize limits how much of a backend response is read.
	maxBodySize = 10 << 20
)

// Gateway sends requests to the backend API.
type Gateway struct {
	baseURL    *url.URL
	client     *http.Client
	timeout    time.Duration
	decorators []RequestDecorator
	handlers   []ResponseHandler
}

// New creates a gateway for the API below baseURL, e.g. http://localhost:21301/api.
func New(baseURL string, opts ...Option) (*Gateway, error) {
	if baseURL == "" {
		return nil, ErrEmptyBaseURL
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway base url: %w", err)
	}

	g := &Gateway{
		baseURL: u,
		client:  cleanhttp.DefaultPooledClient(),
		timeout: defaultTimeout,
	}

	for _, opt := range opts {
		opt(g)
	}

	// the client may be shared with other callers, the timeout goes on a copy
	if g.timeout > 0 {
		client := *g.client
		client.Timeout = g.timeout
		g.client = &client
	}

	return g, nil
}

// URL returns the absolute url of path below the base url.
// path is taken as escaped, callers escape dynamic segments with url.PathEscape.
func (g *Gateway) URL(path string, query url.Values) string {
	u := g.baseURL.JoinPath(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	return u.String()
}

// NewRequest builds a request for path with body encoded as JSON.
func (g *Gateway) NewRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	var reader io.Reader

	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}

		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.URL(path, query), reader)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

// Send runs the decorators, sends req and runs the response handlers.
// Statuses other than those handled by a response handler pass through unmodified.
func (g *Gateway) Send(req *http.Request) (*http.Response, error) {
	var err error

	for _, decorate := range g.decorators {
		if req, err = decorate(req); err != nil {
			return nil, err
		}
	}

	start := time.Now()

	resp, err := g.client.Do(req)
	if err != nil {
		observe(req.Method, 0, start)
		log.Error().Err(err).Str("method", req.Method).Str("url", req.URL.String()).
			Str("request_id", req.Header.Get(HeaderRequestID)).Msg("backend request failed")

		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}

	observe(req.Method, resp.StatusCode, start)
	log.Debug().Str("method", req.Method).Str("url", req.URL.String()).Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).Str("request_id", req.Header.Get(HeaderRequestID)).Msg("backend request")

	for _, handle := range g.handlers {
		if resp, err = handle(resp); err != nil {
			return nil, err
		}
	}

	return resp, nil
}

// Do sends a JSON request and decodes a 2xx JSON answer into out, which may be nil.
// Other statuses are returned as *StatusError, 401 as ErrUnauthorized when an unauthorized handler is set.
func (g *Gateway) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	req, err := g.NewRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}

	resp, err := g.Send(req)
	if err != nil {
		return err
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return newStatusError(resp.StatusCode, raw)
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}

	if err = json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}

	return nil
}
