// Package apitest runs an in-memory stand-in of the backend REST API for tests.
package apitest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/oidc-demo/oidc-demo-web/internal/api"
)

// TokenCheck maps a bearer token to a username, ok is false for rejected tokens.
type TokenCheck func(token string) (username string, ok bool)

type failure struct {
	method  string
	status  int
	message string
}

// Backend is a fake of the products, users and introspection API below /api.
type Backend struct {
	Server *httptest.Server

	mu       sync.Mutex
	products map[int64]api.Product
	users    map[int64]api.User
	nextID   int64
	calls    []string
	auth     []string
	fail     *failure
	check    TokenCheck
}

// NewBackend starts a backend. It is closed with the test.
func NewBackend(t testing.TB) *Backend {
	t.Helper()

	b := &Backend{
		products: make(map[int64]api.Product),
		users:    make(map[int64]api.User),
		nextID:   100, //nolint:mnd
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/products", b.listProducts)
	mux.HandleFunc("GET /api/products/{id}", b.getProduct)
	mux.HandleFunc("GET /api/products/category/{category}", b.productsByCategory)
	mux.HandleFunc("GET /api/products/search", b.searchProducts)
	mux.HandleFunc("POST /api/products", b.createProduct)
	mux.HandleFunc("PUT /api/products/{id}", b.updateProduct)
	mux.HandleFunc("DELETE /api/products/{id}", b.deleteProduct)
	mux.HandleFunc("PATCH /api/products/{id}/quantity", b.updateQuantity)
	mux.HandleFunc("GET /api/users", b.listUsers)
	mux.HandleFunc("GET /api/users/current", b.currentUser)
	mux.HandleFunc("GET /api/users/{id}", b.getUser)
	mux.HandleFunc("PUT /api/users/{id}", b.updateUser)
	mux.HandleFunc("DELETE /api/users/{id}", b.deleteUser)
	mux.HandleFunc("POST /api/introspect", b.introspect)

	b.Server = httptest.NewServer(b.middleware(mux))
	t.Cleanup(b.Server.Close)

	return b
}

// URL returns the backend origin, without the /api prefix.
func (b *Backend) URL() string {
	return b.Server.URL
}

// RequireToken rejects requests whose bearer token check does not accept with 401.
func (b *Backend) RequireToken(check TokenCheck) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.check = check
}

// Fail answers every request with method ("" for any) with status and message until Recover.
func (b *Backend) Fail(method string, status int, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fail = &failure{method: method, status: status, message: message}
}

// Recover ends Fail.
func (b *Backend) Recover() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.fail = nil
}

// SeedProducts stores products, keeping their ids.
func (b *Backend) SeedProducts(products ...api.Product) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, p := range products {
		b.products[p.ID] = p
	}
}

// SeedUsers stores users, keeping their ids.
func (b *Backend) SeedUsers(users ...api.User) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, u := range users {
		b.users[u.ID] = u
	}
}

// Products returns the stored products ordered by id.
func (b *Backend) Products() []api.Product {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.sortedProducts()
}

// Users returns the stored users ordered by id.
func (b *Backend) Users() []api.User {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]api.User, 0, len(b.users))
	for _, u := range b.users {
		out = append(out, u)
	}

	slices.SortFunc(out, func(a, c api.User) int { return int(a.ID - c.ID) })

	return out
}

// Calls returns every request received as "METHOD /path".
func (b *Backend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.Clone(b.calls)
}

// Mutations returns the number of requests other than GET.
func (b *Backend) Mutations() int {
	n := 0

	for _, c := range b.Calls() {
		if !strings.HasPrefix(c, http.MethodGet+" ") {
			n++
		}
	}

	return n
}

// Authorizations returns the Authorization headers received, in order.
func (b *Backend) Authorizations() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return slices.Clone(b.auth)
}

type userKey struct{}

func (b *Backend) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		b.calls = append(b.calls, r.Method+" "+r.URL.Path)
		b.auth = append(b.auth, r.Header.Get("Authorization"))
		fail, check := b.fail, b.check
		b.mu.Unlock()

		if fail != nil && (fail.method == "" || fail.method == r.Method) {
			writeJSON(w, fail.status, map[string]any{"status": fail.status, "message": fail.message})
			return
		}

		username := "anonymous"

		if check != nil {
			token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")

			name, ok := check(token)
			if !found || !ok {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			username = name
		}

		next.ServeHTTP(w, r.WithContext(withUser(r, username)))
	})
}

func withUser(r *http.Request, username string) context.Context {
	return context.WithValue(r.Context(), userKey{}, username)
}

func userFrom(r *http.Request) string {
	username, _ := r.Context().Value(userKey{}).(string)

	return username
}

func (b *Backend) listProducts(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, b.Products())
}

func (b *Backend) getProduct(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	p, ok := b.products[pathID(r)]
	b.mu.Unlock()

	if !ok {
		notFound(w, "Product not found")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (b *Backend) productsByCategory(w http.ResponseWriter, r *http.Request) {
	category := r.PathValue("category")

	writeJSON(w, http.StatusOK, b.filterProducts(func(p api.Product) bool {
		return strings.EqualFold(p.Category, category)
	}))
}

func (b *Backend) searchProducts(w http.ResponseWriter, r *http.Request) {
	name := strings.ToLower(r.URL.Query().Get("name"))

	writeJSON(w, http.StatusOK, b.filterProducts(func(p api.Product) bool {
		return strings.Contains(strings.ToLower(p.Name), name)
	}))
}

func (b *Backend) createProduct(w http.ResponseWriter, r *http.Request) {
	var in api.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badRequest(w, "Invalid product")
		return
	}

	if strings.TrimSpace(in.Name) == "" {
		badRequest(w, "Product name is required")
		return
	}

	b.mu.Lock()
	b.nextID++
	p := product(b.nextID, in, userFrom(r))
	b.products[p.ID] = p
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, p)
}

func (b *Backend) updateProduct(w http.ResponseWriter, r *http.Request) {
	var in api.ProductInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badRequest(w, "Invalid product")
		return
	}

	id := pathID(r)

	b.mu.Lock()
	old, ok := b.products[id]

	if ok {
		b.products[id] = product(id, in, old.CreatedBy)
	}
	b.mu.Unlock()

	if !ok {
		notFound(w, "Product not found")
		return
	}

	writeJSON(w, http.StatusOK, product(id, in, old.CreatedBy))
}

func (b *Backend) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)

	b.mu.Lock()
	_, ok := b.products[id]
	delete(b.products, id)
	b.mu.Unlock()

	if !ok {
		notFound(w, "Product not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) updateQuantity(w http.ResponseWriter, r *http.Request) {
	quantity, err := strconv.Atoi(r.URL.Query().Get("quantity"))
	if err != nil || quantity < 0 {
		badRequest(w, "Quantity cannot be negative")
		return
	}

	id := pathID(r)

	b.mu.Lock()
	p, ok := b.products[id]
	if ok {
		p.Quantity = quantity
		b.products[id] = p
	}
	b.mu.Unlock()

	if !ok {
		notFound(w, "Product not found")
		return
	}

	writeJSON(w, http.StatusOK, p)
}

func (b *Backend) listUsers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, b.Users())
}

func (b *Backend) currentUser(w http.ResponseWriter, r *http.Request) {
	username := userFrom(r)

	for _, u := range b.Users() {
		if u.Username == username {
			writeJSON(w, http.StatusOK, u)
			return
		}
	}

	writeJSON(w, http.StatusOK, api.User{Username: username, Role: "user", Active: true})
}

func (b *Backend) getUser(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	u, ok := b.users[pathID(r)]
	b.mu.Unlock()

	if !ok {
		notFound(w, "User not found")
		return
	}

	writeJSON(w, http.StatusOK, u)
}

func (b *Backend) updateUser(w http.ResponseWriter, r *http.Request) {
	var in api.UserUpdate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		badRequest(w, "Invalid user")
		return
	}

	id := pathID(r)

	b.mu.Lock()
	u, ok := b.users[id]

	if ok {
		applyUserUpdate(&u, in)
		b.users[id] = u
	}
	b.mu.Unlock()

	if !ok {
		notFound(w, "User not found")
		return
	}

	writeJSON(w, http.StatusOK, u)
}

func (b *Backend) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)

	b.mu.Lock()
	_, ok := b.users[id]
	delete(b.users, id)
	b.mu.Unlock()

	if !ok {
		notFound(w, "User not found")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (b *Backend) introspect(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"active":    true,
		"username":  userFrom(r),
		"client_id": "demo-frontend",
		"scope":     "openid profile email",
	})
}

func (b *Backend) filterProducts(keep func(api.Product) bool) []api.Product {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]api.Product, 0)

	for _, p := range b.sortedProducts() {
		if keep(p) {
			out = append(out, p)
		}
	}

	return out
}

func (b *Backend) sortedProducts() []api.Product {
	out := make([]api.Product, 0, len(b.products))
	for _, p := range b.products {
		out = append(out, p)
	}

	slices.SortFunc(out, func(a, c api.Product) int { return int(a.ID - c.ID) })

	return out
}

func product(id int64, in api.ProductInput, createdBy string) api.Product {
	return api.Product{
		ID:          id,
		Name:        in.Name,
		Description: in.Description,
		Price:       in.Price,
		Quantity:    in.Quantity,
		Category:    in.Category,
		CreatedBy:   createdBy,
	}
}

func applyUserUpdate(u *api.User, in api.UserUpdate) {
	if in.Email != nil {
		u.Email = *in.Email
	}

	if in.FirstName != nil {
		u.FirstName = *in.FirstName
	}

	if in.LastName != nil {
		u.LastName = *in.LastName
	}

	if in.Role != nil {
		u.Role = *in.Role
	}

	if in.Active != nil {
		u.Active = *in.Active
	}
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(r.PathValue("id"), 10, 64)

	return id
}

func notFound(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusNotFound, map[string]any{"status": http.StatusNotFound, "message": message})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{"status": http.StatusBadRequest, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v) //nolint:errchkjson
}
