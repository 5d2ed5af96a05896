package logout_test

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oidc-demo/oidc-demo-web/internal/auth"
	"github.com/oidc-demo/oidc-demo-web/internal/web/handler/logout"
	"github.com/oidc-demo/oidc-demo-web/internal/web/webtest"
)

func TestLogoutEndsBothSessions(t *testing.T) {
	env := webtest.New(t)
	require.NoError(t, new(logout.Service).Init(env.App, env.Cfg, env.Deps))

	sid := env.Login(t, webtest.Alice)
	data, err := env.Manager.Resolve(context.Background(), sid)
	require.NoError(t, err)

	resp := env.PostForm(t, logout.Path, sid, url.Values{})
	require.Equal(t, fiber.StatusSeeOther, resp.Status)
	assert.True(t, resp.ClearsCookie())

	target, err := url.Parse(resp.Location())
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(target.Path, "/protocol/openid-connect/logout"))
	assert.Equal(t, data.IDToken, target.Query().Get("id_token_hint"))
	assert.Equal(t, webtest.AppURL, target.Query().Get("post_logout_redirect_uri"))

	_, err = env.Manager.Resolve(context.Background(), sid)
	assert.ErrorIs(t, err, auth.ErrNoSession)
}

func TestLogoutWithoutSession(t *testing.T) {
	env := webtest.New(t)
	require.NoError(t, new(logout.Service).Init(env.App, env.Cfg, env.Deps))

	resp := env.Get(t, logout.Path, "stale")

	require.Equal(t, fiber.StatusSeeOther, resp.Status)
	assert.True(t, resp.ClearsCookie())

	target, err := url.Parse(resp.Location())
	require.NoError(t, err)
	assert.Empty(t, target.Query().Get("id_token_hint"))
}
