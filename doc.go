// Package main provides the entry point of the oidc-demo web frontend.
// It signs users in at a Keycloak realm using the authorization code flow with PKCE,
// stores their tokens in a server-side session and renders pages with the Fiber
// framework that list, create, edit and delete products and users through a bearer
// token protected REST API.
package main
