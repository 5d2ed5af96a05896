// Package api contains typed clients for the resources of the backend REST API.
// The clients add no validation, retries or caching, every call is one backend request.
package api

import (
	"context"
	"errors"
	"net/url"

	"github.com/oidc-demo/oidc-demo-web/internal/gateway"
)

// Generic failure messages, used when the backend sends no message of its own.
const (
	MsgOperationFailed = "Operation failed"
	MsgLoadProducts    = "Failed to load products"
	MsgLoadUsers       = "Failed to load users"
	MsgDeleteFailed    = "Delete failed"
	MsgIntrospect      = "Token check failed"
)

// Doer sends one JSON request, see gateway.Gateway.Do.
type Doer interface {
	Do(ctx context.Context, method, path string, query url.Values, body, out any) error
}

// Message returns the message the backend attached to err, or fallback.
func Message(err error, fallback string) string {
	var statusErr *gateway.StatusError
	if errors.As(err, &statusErr) && statusErr.Message != "" {
		return statusErr.Message
	}

	return fallback
}
