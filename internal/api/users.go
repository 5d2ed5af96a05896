package api

import (
	"context"
	"net/http"
	"strconv"
)

const usersPath = "/users"

// Users is the client of /users. All calls except Current need the admin role on the backend.
type Users struct {
	d Doer
}

// NewUsers creates a users client.
func NewUsers(d Doer) *Users {
	return &Users{d: d}
}

// List returns all users.
func (u *Users) List(ctx context.Context) ([]User, error) {
	var out []User
	if err := u.d.Do(ctx, http.MethodGet, usersPath, nil, nil, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// GetByID returns one user.
func (u *Users) GetByID(ctx context.Context, id int64) (*User, error) {
	out := new(User)
	if err := u.d.Do(ctx, http.MethodGet, userPath(id), nil, nil, out); err != nil {
		return nil, err
	}

	return out, nil
}

// Current returns the backend's record of the signed in user.
func (u *Users) Current(ctx context.Context) (*User, error) {
	out := new(User)
	if err := u.d.Do(ctx, http.MethodGet, usersPath+"/current", nil, nil, out); err != nil {
		return nil, err
	}

	return out, nil
}

// Update applies a partial update to user id.
func (u *Users) Update(ctx context.Context, id int64, in UserUpdate) (*User, error) {
	out := new(User)
	if err := u.d.Do(ctx, http.MethodPut, userPath(id), nil, in, out); err != nil {
		return nil, err
	}

	return out, nil
}

// Delete deletes user id.
func (u *Users) Delete(ctx context.Context, id int64) error {
	return u.d.Do(ctx, http.MethodDelete, userPath(id), nil, nil, nil)
}

func userPath(id int64) string {
	return usersPath + "/" + strconv.FormatInt(id, 10)
}
