// Package oidc provides the handlers of the OpenID Connect login.
//
//	GET /login    - send the browser to the identity provider (code flow with PKCE)
//	GET /callback - exchange the code, create the session and continue to the products
//
// Failed callbacks render an "Authentication Error" page with a way back home.
package oidc
