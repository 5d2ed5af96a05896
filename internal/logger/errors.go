package logger

import (
	"errors"
	"fmt"
	"os"
)

var (
	// ErrAppNameIsEmpty is returned by Init without log.appName.
	ErrAppNameIsEmpty = errors.New("config log.appName can not be empty")

	// ErrServiceNameIsEmpty is returned by Init without log.serviceName.
	ErrServiceNameIsEmpty = errors.New("config log.serviceName can not be empty")
)

// ErrorHandler reports events zerolog could not write to stderr, the log itself is unusable then.
func ErrorHandler(err error) {
	fmt.Fprintf(os.Stderr, "zerolog: could not write event: %v\n", err) //nolint:errcheck
}
