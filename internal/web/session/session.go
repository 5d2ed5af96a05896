// Package session keeps the server side state of a signed in browser.
// The browser only ever sees the opaque session id in the cookie CookieName.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/session"
)

const (
	// CookieName is the name of the browser cookie carrying the session id.
	CookieName = "session"

	// CookiePath is the path the session cookie is set and cleared on.
	CookiePath = "/"

	pendingPrefix = "oidc_state:"
)

var (
	// ErrNotFound is returned when no data is stored for a key.
	ErrNotFound = errors.New("session not found")

	// ErrEmptyID is returned for read or write calls without an id.
	ErrEmptyID = errors.New("session id is empty")
)

// Identity holds the identity claims of the signed in user.
type Identity struct {
	Subject  string
	Username string
	Email    string
	Name     string
	Roles    []string
}

// HasRole reports whether the identity carries role.
func (i Identity) HasRole(role string) bool {
	return slices.Contains(i.Roles, role)
}

// Token is the oauth2 token set of a session.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
}

// ExpiresWithin reports whether the access token is expired or expires within d.
// A zero expiry never expires.
func (t Token) ExpiresWithin(now time.Time, d time.Duration) bool {
	if t.Expiry.IsZero() {
		return false
	}

	return !now.Add(d).Before(t.Expiry)
}

// Data represents the session data structure.
type Data struct {
	Identity Identity
	Token    Token
	IDToken  string
}

// TokenKind is the label the UI shows for the credentials held by the session.
func (d *Data) TokenKind() string {
	if d.IDToken != "" {
		return "ID Token + Access Token"
	}

	return "Access Token Only"
}

// Pending is a login that was started but not yet completed.
type Pending struct {
	Verifier string
	Nonce    string
}

// Store persists sessions in a fiber storage backend.
type Store struct {
	storage fiber.Storage
	expiry  time.Duration
}

// New creates a session store. A nil storage selects the in-memory storage of the fiber session middleware.
func New(storage fiber.Storage, expiry time.Duration) *Store {
	if storage == nil {
		storage = session.New().Storage
	}

	return &Store{
		storage: storage,
		expiry:  expiry,
	}
}

// Expiry returns the lifetime of a session.
func (s *Store) Expiry() time.Duration {
	return s.expiry
}

// Read reads the session data for the given session ID.
func (s *Store) Read(id string) (*Data, error) {
	d := new(Data)
	if err := s.get(id, d); err != nil {
		return nil, err
	}

	return d, nil
}

// Write writes the session data for the given session ID.
func (s *Store) Write(id string, d *Data) error {
	return s.set(id, d, s.expiry)
}

// Delete removes the session. Deleting an unknown id is not an error.
func (s *Store) Delete(id string) error {
	if id == "" {
		return ErrEmptyID
	}

	return s.storage.Delete(id)
}

// WritePending stores a started login under its state for ttl.
func (s *Store) WritePending(state string, p Pending, ttl time.Duration) error {
	return s.set(pendingPrefix+state, p, ttl)
}

// TakePending returns the login started with state and removes it, so every state is used once.
func (s *Store) TakePending(state string) (*Pending, error) {
	p := new(Pending)
	if err := s.get(pendingPrefix+state, p); err != nil {
		return nil, err
	}

	if err := s.storage.Delete(pendingPrefix + state); err != nil {
		return nil, fmt.Errorf("delete pending login: %w", err)
	}

	return p, nil
}

func (s *Store) set(key string, v any, exp time.Duration) error {
	if key == "" || key == pendingPrefix {
		return ErrEmptyID
	}

	out, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return s.storage.Set(key, out, exp)
}

func (s *Store) get(key string, v any) error {
	if key == "" || key == pendingPrefix {
		return ErrEmptyID
	}

	raw, err := s.storage.Get(key)
	if err != nil {
		return err
	}

	if len(raw) == 0 {
		return ErrNotFound
	}

	return json.Unmarshal(raw, v)
}

// ClearCookie expires the session cookie in the browser. The path has to match the one the
// cookie was set with, whatever page the response belongs to.
func ClearCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     CookieName,
		Path:     CookiePath,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HTTPOnly: true,
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// GenerateSessionID generates a new secure random session ID.
func GenerateSessionID() (string, error) {
	// 32 bytes = 256 bits
	b := make([]byte, 32) //nolint:mnd
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
