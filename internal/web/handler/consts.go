package handler

const (
	// BaseLayout is the default path for layout templates.
	BaseLayout = "layouts/base"

	// RootPath is the root path the route group.
	RootPath = "/"

	// ErrNilACDFatalLogMsg is used if app, cfg or deps is nil.
	ErrNilACDFatalLogMsg = "app, cfg or deps is nil"

	// ErrorTemplate renders a full page error with a single action.
	ErrorTemplate = "error"

	// LoadingTemplate is rendered while the identity provider is not discovered yet.
	LoadingTemplate = "loading"
)
