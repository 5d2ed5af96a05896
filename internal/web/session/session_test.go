package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreReadWriteDelete(t *testing.T) {
	store := New(nil, time.Hour)

	id, err := GenerateSessionID()
	require.NoError(t, err)
	assert.Len(t, id, 64)

	_, err = store.Read(id)
	require.ErrorIs(t, err, ErrNotFound)

	want := &Data{
		Identity: Identity{Subject: "sub-1", Username: "alice", Roles: []string{"user", "admin"}},
		Token:    Token{AccessToken: "at", RefreshToken: "rt", TokenType: "Bearer"},
		IDToken:  "idt",
	}
	require.NoError(t, store.Write(id, want))

	got, err := store.Read(id)
	require.NoError(t, err)
	assert.Equal(t, want.Identity, got.Identity)
	assert.Equal(t, "at", got.Token.AccessToken)
	assert.True(t, got.Identity.HasRole("admin"))
	assert.False(t, got.Identity.HasRole("auditor"))

	require.NoError(t, store.Delete(id))

	_, err = store.Read(id)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestStoreEmptyID(t *testing.T) {
	store := New(nil, time.Hour)

	_, err := store.Read("")
	require.ErrorIs(t, err, ErrEmptyID)
	require.ErrorIs(t, store.Write("", &Data{}), ErrEmptyID)
	require.ErrorIs(t, store.Delete(""), ErrEmptyID)
	require.ErrorIs(t, store.WritePending("", Pending{}, time.Minute), ErrEmptyID)
}

func TestPendingIsSingleUse(t *testing.T) {
	store := New(nil, time.Hour)

	require.NoError(t, store.WritePending("state-1", Pending{Verifier: "v", Nonce: "n"}, time.Minute))

	p, err := store.TakePending("state-1")
	require.NoError(t, err)
	assert.Equal(t, "v", p.Verifier)
	assert.Equal(t, "n", p.Nonce)

	_, err = store.TakePending("state-1")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = store.Read("state-1")
	require.ErrorIs(t, err, ErrNotFound, "pending logins must not be readable as sessions")
}

func TestTokenExpiresWithin(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		expiry time.Time
		want   bool
	}{
		{"no expiry", time.Time{}, false},
		{"far away", now.Add(10 * time.Minute), false},
		{"inside window", now.Add(10 * time.Second), true},
		{"already expired", now.Add(-time.Second), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Token{Expiry: tt.expiry}.ExpiresWithin(now, 30*time.Second))
		})
	}
}

func TestTokenKind(t *testing.T) {
	assert.Equal(t, "ID Token + Access Token", (&Data{IDToken: "x"}).TokenKind())
	assert.Equal(t, "Access Token Only", (&Data{}).TokenKind())
}

func TestClearCookie(t *testing.T) {
	app := fiber.New()
	app.Post("/products/:id/delete", func(c *fiber.Ctx) error {
		ClearCookie(c)
		return nil
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/products/7/delete", nil))
	require.NoError(t, err)

	cookies := resp.Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, CookieName, cookies[0].Name)
	assert.Empty(t, cookies[0].Value)
	assert.Equal(t, CookiePath, cookies[0].Path)
	assert.True(t, cookies[0].Expires.Before(time.Now()))
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookies[0].SameSite)
}
