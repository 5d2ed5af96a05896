package main

import (
	"os"

	"github.com/oidc-demo/oidc-demo-web/app"
)

func main() {
	err := app.Execute()
	if err != nil {
		os.Exit(1)
	}
}
