package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	// ErrUnauthorized is returned when the backend rejected the credentials of a request.
	// The unauthorized handler has already run when a caller sees it.
	ErrUnauthorized = errors.New("backend rejected the credentials")

	// ErrEmptyBaseURL is returned by New without a base url.
	ErrEmptyBaseURL = errors.New("gateway base url is empty")
)

// StatusError is a non 2xx backend response other than 401.
type StatusError struct {
	Status  int
	Message string // "message" field of a JSON error payload, if any
	Body    []byte
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
	}

	return fmt.Sprintf("backend returned %d", e.Status)
}

func newStatusError(status int, body []byte) *StatusError {
	var payload struct {
		Message string `json:"message"`
	}

	// non JSON bodies simply carry no message
	_ = json.Unmarshal(body, &payload)

	return &StatusError{
		Status:  status,
		Message: payload.Message,
		Body:    body,
	}
}
