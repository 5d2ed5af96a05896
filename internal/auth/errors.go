package auth

import "errors"

var (
	// ErrNoIDToken is returned when the OAuth2 token response doesn't contain an ID token.
	// This typically indicates a misconfigured OIDC provider or an incomplete authentication flow.
	ErrNoIDToken = errors.New("no id_token in token response")

	// ErrNotReady is returned while the provider discovery has not completed.
	ErrNotReady = errors.New("identity provider not discovered yet")

	// ErrInvalidState is returned when a callback carries an unknown, used or expired state.
	ErrInvalidState = errors.New("invalid or expired state")

	// ErrNonceMismatch is returned when the ID token nonce differs from the one sent with the login.
	ErrNonceMismatch = errors.New("id token nonce mismatch")

	// ErrNoSession is returned when the session id is unknown.
	ErrNoSession = errors.New("no session")

	// ErrSessionExpired is returned when the tokens of a session could not be renewed.
	// The session is gone afterwards.
	ErrSessionExpired = errors.New("session expired")

	// ErrSubjectChanged is returned when a renewed ID token belongs to another subject.
	ErrSubjectChanged = errors.New("renewed id token has a different subject")
)
