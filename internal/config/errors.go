package config

import (
	"errors"
)

var (
	// ErrEmptyURL error if config webserver.URL is empty.
	ErrEmptyURL = errors.New("config webserver.url can not be empty")

	// ErrWebServerPortCanNotBeZero error if config webserver listening port is 0.
	ErrWebServerPortCanNotBeZero = errors.New("config webserver.port listening port can not be 0")

	// ErrStorageURIEmpty error if a database backed session storage has no connection uri.
	ErrStorageURIEmpty = errors.New("config webserver.session.storage.connectionURI can not be empty")
)
