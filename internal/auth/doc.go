// Package auth signs users in against an OpenID Connect provider (Keycloak) and keeps their
// tokens in the server side session store.
//
// # Login
//
// The Manager implements the authorization code flow with PKCE:
//   - Begin creates state, nonce and a S256 code challenge and returns the provider URL
//   - Complete exchanges the code, verifies the ID token and writes a new session
//
// The verifier and nonce of a started login live in the session storage for five minutes
// and are consumed by the callback, so a state can be used only once.
//
// # Silent renewal
//
// Resolve returns the session for an id and renews the tokens with the refresh token when
// the access token expires within RenewBefore. Concurrent renewals of one session share one
// token request. A session whose renewal fails is destroyed.
//
// # Outbound calls
//
// AccessToken reads the session id from the context (see WithSessionID) and is meant as
// the token lookup of the backend gateway. EndSession is its counterpart for a rejected token.
//
// Example usage:
//
//	manager := auth.NewManager(cfg, store)
//	manager.Start(ctx)
//
//	url, err := manager.Begin()
//	id, data, err := manager.Complete(ctx, state, code)
//	data, err = manager.Resolve(ctx, id)
package auth
