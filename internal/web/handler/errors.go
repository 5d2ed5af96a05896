package handler

import "errors"

// ErrNilDependency is returned by Init when app, cfg or deps is nil.
var ErrNilDependency = errors.New(ErrNilACDFatalLogMsg)
