package profile_test

import (
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oidc-demo/oidc-demo-web/internal/api"
	"github.com/oidc-demo/oidc-demo-web/internal/web/handler/profile"
	"github.com/oidc-demo/oidc-demo-web/internal/web/webtest"
)

func TestProfile(t *testing.T) {
	env := webtest.New(t)
	require.NoError(t, new(profile.Service).Init(env.App, env.Cfg, env.Deps))

	env.Backend.SeedUsers(api.User{ID: 7, Username: "bob", Email: "bob@example.com", Role: "user", Active: true})

	resp := env.Get(t, profile.Path, env.Login(t, webtest.Bob))
	require.Equal(t, fiber.StatusOK, resp.Status)

	last := env.Views.Last(t)
	assert.Equal(t, profile.TemplateName, last.Name)

	user, ok := last.Data["User"].(*api.User)
	require.True(t, ok)
	assert.Equal(t, int64(7), user.ID)
	assert.Equal(t, []string{"GET /api/users/current"}, env.Backend.Calls())
}

func TestProfileFailure(t *testing.T) {
	env := webtest.New(t)
	require.NoError(t, new(profile.Service).Init(env.App, env.Cfg, env.Deps))
	env.Backend.Fail(http.MethodGet, http.StatusInternalServerError, "")

	resp := env.Get(t, profile.Path, env.Login(t, webtest.Bob))

	assert.Equal(t, fiber.StatusBadGateway, resp.Status)
	assert.Contains(t, resp.Body, api.MsgOperationFailed)
}

func TestProfileNeedsSession(t *testing.T) {
	env := webtest.New(t)
	require.NoError(t, new(profile.Service).Init(env.App, env.Cfg, env.Deps))

	resp := env.Get(t, profile.Path, "")

	assert.Equal(t, fiber.StatusSeeOther, resp.Status)
	assert.Equal(t, "/", resp.Location())
}
