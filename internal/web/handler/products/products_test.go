package products_test

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oidc-demo/oidc-demo-web/internal/api"
	"github.com/oidc-demo/oidc-demo-web/internal/web/handler/products"
	"github.com/oidc-demo/oidc-demo-web/internal/web/webtest"
)

func price(t *testing.T, s string) api.Price {
	t.Helper()

	p, err := api.NewPrice(s)
	require.NoError(t, err)

	return p
}

func setup(t *testing.T) (*webtest.Env, string) {
	t.Helper()

	env := webtest.New(t)
	require.NoError(t, new(products.Service).Init(env.App, env.Cfg, env.Deps))

	env.Backend.SeedProducts(
		api.Product{ID: 1, Name: "Hammer", Price: price(t, "12.50"), Quantity: 3, Category: "tools"},
		api.Product{ID: 2, Name: "Apple", Price: price(t, "0.40"), Quantity: 100, Category: "food"},
		api.Product{ID: 3, Name: "Saw", Price: price(t, "20"), Quantity: 1, Category: "tools"},
	)

	return env, env.Login(t, webtest.Alice)
}

func listed(t *testing.T, env *webtest.Env) []api.Product {
	t.Helper()

	last := env.Views.Last(t)
	require.Equal(t, products.ListTemplate, last.Name)

	list, _ := last.Data["Products"].([]api.Product)

	return list
}

func ids(list []api.Product) []int64 {
	out := make([]int64, 0, len(list))
	for _, p := range list {
		out = append(out, p.ID)
	}

	return out
}

func TestListRequiresSession(t *testing.T) {
	env, _ := setup(t)

	resp := env.Get(t, products.Path, "")

	assert.Equal(t, fiber.StatusSeeOther, resp.Status)
	assert.Equal(t, "/", resp.Location())
	assert.Empty(t, env.Backend.Calls())
}

func TestList(t *testing.T) {
	env, sid := setup(t)

	resp := env.Get(t, products.Path, sid)
	require.Equal(t, fiber.StatusOK, resp.Status)

	assert.Equal(t, []int64{1, 2, 3}, ids(listed(t, env)))
	assert.Equal(t, true, env.Views.Last(t).Data["Loaded"])
	assert.NotEmpty(t, env.Backend.Authorizations()[0], "backend call carries the bearer token")
}

func TestListFilters(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		wantIDs  []int64
		wantCall string
	}{
		{name: "category", query: "?category=tools", wantIDs: []int64{1, 3}, wantCall: "GET /api/products/category/tools"},
		{name: "search", query: "?search=app", wantIDs: []int64{2}, wantCall: "GET /api/products/search"},
		{name: "search wins over category", query: "?search=saw&category=food", wantIDs: []int64{3}, wantCall: "GET /api/products/search"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, sid := setup(t)

			resp := env.Get(t, products.Path+tt.query, sid)
			require.Equal(t, fiber.StatusOK, resp.Status)

			assert.Equal(t, tt.wantIDs, ids(listed(t, env)))
			assert.Equal(t, []string{tt.wantCall}, env.Backend.Calls())
		})
	}
}

func TestListFailureShowsNoPartialList(t *testing.T) {
	env, sid := setup(t)
	env.Backend.Fail(http.MethodGet, http.StatusInternalServerError, "database unavailable")

	resp := env.Get(t, products.Path, sid)

	assert.Equal(t, fiber.StatusBadGateway, resp.Status)
	assert.Contains(t, resp.Body, "database unavailable")
	assert.Empty(t, listed(t, env))
	assert.Equal(t, false, env.Views.Last(t).Data["Loaded"])

	env.Backend.Fail(http.MethodGet, http.StatusServiceUnavailable, "")

	resp = env.Get(t, products.Path, sid)
	assert.Contains(t, resp.Body, api.MsgLoadProducts)
}

func TestUnauthorizedRedirectsHome(t *testing.T) {
	env, _ := setup(t)
	env.Backend.RequireToken(func(string) (string, bool) { return "", false })

	for _, req := range []struct {
		method, path string
	}{
		{http.MethodGet, products.Path},
		{http.MethodGet, products.Path + "/1/edit"},
		{http.MethodPost, products.Path + "/1/delete"},
		{http.MethodPost, products.Path + "/1/quantity"},
	} {
		sid := env.Login(t, webtest.Alice)

		var resp webtest.Response
		if req.method == http.MethodGet {
			resp = env.Get(t, req.path, sid)
		} else {
			resp = env.PostForm(t, req.path, sid, url.Values{"quantity": {"1"}})
		}

		assert.Equal(t, fiber.StatusSeeOther, resp.Status, req.path)
		assert.Equal(t, "/", resp.Location(), req.path)
		assert.True(t, resp.ClearsCookie(), req.path)

		// the session is gone, the next request does not reach the backend
		calls := len(env.Backend.Calls())
		resp = env.Get(t, products.Path, sid)
		assert.Equal(t, "/", resp.Location())
		assert.Len(t, env.Backend.Calls(), calls)
	}
}

func TestCreateRoundTrip(t *testing.T) {
	env, sid := setup(t)

	resp := env.PostForm(t, products.Path, sid, url.Values{
		"name":     {"Widget"},
		"price":    {"9.99"},
		"quantity": {"5"},
		"category": {"tools"},
	})
	require.Equal(t, fiber.StatusSeeOther, resp.Status)
	assert.Equal(t, products.Path, resp.Location())

	env.Get(t, products.Path, sid)

	var widget *api.Product

	for _, p := range listed(t, env) {
		if p.Name == "Widget" {
			widget = &p
		}
	}

	require.NotNil(t, widget, "created product is listed after reload")
	assert.NotZero(t, widget.ID)
	assert.True(t, widget.Price.Equal(price(t, "9.99").Decimal))
	assert.Equal(t, 5, widget.Quantity)
	assert.Equal(t, "tools", widget.Category)
	assert.Equal(t, "alice", widget.CreatedBy)
}

func TestCreateValidation(t *testing.T) {
	tests := []struct {
		name string
		form url.Values
		want string
	}{
		{
			name: "empty name",
			form: url.Values{"name": {""}, "price": {"1"}, "quantity": {"1"}},
			want: products.MsgNameRequired,
		},
		{
			name: "blank name",
			form: url.Values{"name": {"   "}, "price": {"1"}, "quantity": {"1"}},
			want: products.MsgNameRequired,
		},
		{
			name: "negative price",
			form: url.Values{"name": {"Widget"}, "price": {"-1"}, "quantity": {"1"}},
			want: products.MsgInvalidPrice,
		},
		{
			name: "price not a number",
			form: url.Values{"name": {"Widget"}, "price": {"cheap"}, "quantity": {"1"}},
			want: products.MsgInvalidPrice,
		},
		{
			name: "fractional quantity",
			form: url.Values{"name": {"Widget"}, "price": {"1"}, "quantity": {"1.5"}},
			want: products.MsgInvalidQuantity,
		},
		{
			name: "negative quantity",
			form: url.Values{"name": {"Widget"}, "price": {"1"}, "quantity": {"-2"}},
			want: products.MsgInvalidQuantity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, sid := setup(t)

			resp := env.PostForm(t, products.Path, sid, tt.form)

			assert.Equal(t, fiber.StatusUnprocessableEntity, resp.Status)
			assert.Contains(t, resp.Body, products.FormTemplate)
			assert.Contains(t, resp.Body, tt.want)
			assert.Empty(t, env.Backend.Calls(), "invalid drafts never reach the backend")
		})
	}
}

func TestEditThenCancelIssuesNoMutation(t *testing.T) {
	env, sid := setup(t)

	resp := env.Get(t, products.Path+"/1/edit", sid)
	require.Equal(t, fiber.StatusOK, resp.Status)

	last := env.Views.Last(t)
	require.Equal(t, products.FormTemplate, last.Name)

	draft, ok := last.Data["Draft"].(products.Draft)
	require.True(t, ok)
	assert.Equal(t, "Hammer", draft.Name)
	assert.Equal(t, "/products/1", last.Data["Action"])

	// cancel is a plain link back to the list
	assert.Equal(t, products.Path, last.Data["Cancel"])
	env.Get(t, products.Path, sid)

	assert.Zero(t, env.Backend.Mutations())
	assert.Equal(t, []int64{1, 2, 3}, ids(listed(t, env)))
}

func TestUpdate(t *testing.T) {
	env, sid := setup(t)

	resp := env.PostForm(t, products.Path+"/1", sid, url.Values{
		"name":        {"Claw Hammer"},
		"description": {"steel"},
		"price":       {"13"},
		"quantity":    {"4"},
		"category":    {"tools"},
	})
	require.Equal(t, fiber.StatusSeeOther, resp.Status)

	for _, p := range env.Backend.Products() {
		if p.ID == 1 {
			assert.Equal(t, "Claw Hammer", p.Name)
			assert.Equal(t, "steel", p.Description)
			assert.Equal(t, 4, p.Quantity)
		}
	}
}

func TestUpdateInvalidKeepsInput(t *testing.T) {
	env, sid := setup(t)

	resp := env.PostForm(t, products.Path+"/1", sid, url.Values{
		"name": {"Claw Hammer"}, "price": {"-3"}, "quantity": {"4"},
	})
	require.Equal(t, fiber.StatusUnprocessableEntity, resp.Status)

	draft, _ := env.Views.Last(t).Data["Draft"].(products.Draft)
	assert.Equal(t, "Claw Hammer", draft.Name)
	assert.Equal(t, "-3", draft.Price)
	assert.Equal(t, "/products/1", env.Views.Last(t).Data["Action"])
	assert.Zero(t, env.Backend.Mutations())
}

func TestDeleteRemovesExactlyOne(t *testing.T) {
	env, sid := setup(t)

	resp := env.PostForm(t, products.Path+"/2/delete", sid, url.Values{})
	require.Equal(t, fiber.StatusSeeOther, resp.Status)

	env.Get(t, products.Path, sid)
	assert.Equal(t, []int64{1, 3}, ids(listed(t, env)))
}

func TestDeleteFailureShowsBannerAndList(t *testing.T) {
	env, sid := setup(t)
	env.Backend.Fail(http.MethodDelete, http.StatusConflict, "")

	resp := env.PostForm(t, products.Path+"/2/delete", sid, url.Values{})

	assert.Equal(t, fiber.StatusConflict, resp.Status)
	assert.Contains(t, resp.Body, api.MsgDeleteFailed)
	assert.Equal(t, []int64{1, 2, 3}, ids(listed(t, env)), "list is reloaded below the banner")
}

func TestMutationFailureCarriesServerMessage(t *testing.T) {
	env, sid := setup(t)

	resp := env.PostForm(t, products.Path+"/99", sid, url.Values{
		"name": {"Ghost"}, "price": {"1"}, "quantity": {"1"},
	})

	assert.Equal(t, fiber.StatusNotFound, resp.Status)
	assert.Contains(t, resp.Body, "Product not found")
}

func TestRejectedSubmitKeepsForm(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		path       string
		wantAction string
	}{
		{name: "create", method: http.MethodPost, path: products.Path, wantAction: products.Path},
		{name: "update", method: http.MethodPut, path: products.Path + "/1", wantAction: products.Path + "/1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, sid := setup(t)
			env.Backend.Fail(tt.method, http.StatusBadRequest, "name taken")

			resp := env.PostForm(t, tt.path, sid, url.Values{
				"name": {"Widget"}, "price": {"9.99"}, "quantity": {"5"}, "category": {"tools"},
			})
			require.Equal(t, fiber.StatusBadRequest, resp.Status)
			assert.Contains(t, resp.Body, "name taken")

			last := env.Views.Last(t)
			require.Equal(t, products.FormTemplate, last.Name)
			assert.Equal(t, tt.wantAction, last.Data["Action"])

			draft, _ := last.Data["Draft"].(products.Draft)
			assert.Equal(t, "Widget", draft.Name)
			assert.Equal(t, "9.99", draft.Price)
			assert.Equal(t, "5", draft.Quantity)
			assert.Equal(t, "tools", draft.Category)

			errs, _ := last.Data["Errors"].(map[string]string)
			assert.Equal(t, map[string]string{"": "name taken"}, errs)
		})
	}
}

func TestRejectedSubmitFallbackMessage(t *testing.T) {
	env, sid := setup(t)
	env.Backend.Fail(http.MethodPost, http.StatusInternalServerError, "")

	resp := env.PostForm(t, products.Path, sid, url.Values{"name": {"Widget"}, "price": {"1"}, "quantity": {"1"}})

	assert.Equal(t, fiber.StatusBadGateway, resp.Status)
	assert.Equal(t, products.FormTemplate, env.Views.Last(t).Name)
	assert.Contains(t, resp.Body, api.MsgOperationFailed)
}

func TestUpdateQuantity(t *testing.T) {
	env, sid := setup(t)

	resp := env.PostForm(t, products.Path+"/3/quantity", sid, url.Values{"quantity": {"7"}})
	require.Equal(t, fiber.StatusSeeOther, resp.Status)
	assert.Contains(t, env.Backend.Calls(), "PATCH /api/products/3/quantity")

	resp = env.PostForm(t, products.Path+"/3/quantity", sid, url.Values{"quantity": {"-1"}})
	assert.Equal(t, fiber.StatusUnprocessableEntity, resp.Status)
	assert.Contains(t, resp.Body, products.MsgInvalidQuantity)
	assert.Equal(t, 1, env.Backend.Mutations())
}

func TestNewForm(t *testing.T) {
	env, sid := setup(t)

	resp := env.Get(t, products.NewPath, sid)
	require.Equal(t, fiber.StatusOK, resp.Status)

	last := env.Views.Last(t)
	assert.Equal(t, products.FormTemplate, last.Name)
	assert.Equal(t, products.Path, last.Data["Action"])
	assert.Empty(t, env.Backend.Calls())
}

func TestBadID(t *testing.T) {
	env, sid := setup(t)

	resp := env.Get(t, products.Path+"/abc/edit", sid)
	assert.Equal(t, fiber.StatusNotFound, resp.Status)
}
