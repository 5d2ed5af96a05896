package api

import (
	"context"
	"net/http"
)

// Introspection asks the backend whether the current access token is active.
type Introspection struct {
	d Doer
}

// NewIntrospection creates an introspection client.
func NewIntrospection(d Doer) *Introspection {
	return &Introspection{d: d}
}

// Introspect checks the access token the gateway attaches to the request.
func (i *Introspection) Introspect(ctx context.Context) (*IntrospectionResult, error) {
	out := new(IntrospectionResult)
	if err := i.d.Do(ctx, http.MethodPost, "/introspect", nil, nil, out); err != nil {
		return nil, err
	}

	return out, nil
}
