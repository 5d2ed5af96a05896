// Package app implements the main application commands.
package app

import (
	"github.com/spf13/cobra"
)

func init() { //nolint: gochecknoinits
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "directory holding main.toml (default ./etc/)")
}

var rootCmd = &cobra.Command{
	Use:   "oidc-demo",
	Short: "oidc-demo is a server-rendered OpenID Connect demo frontend",
	Long: `oidc-demo signs users in at a Keycloak realm with the authorization code flow and PKCE,
keeps their tokens in a server-side session and renders product and user management pages
on top of a bearer token protected REST API.`,
	Args: cobra.OnlyValidArgs,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
