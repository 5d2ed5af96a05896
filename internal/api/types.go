package api

import (
	"bytes"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Price is a decimal amount sent as a plain JSON number.
type Price struct {
	decimal.Decimal
}

// NewPrice parses s, e.g. "9.99".
func NewPrice(s string) (Price, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Price{}, err
	}

	return Price{d}, nil
}

// MarshalJSON encodes the price as a number instead of decimal's default string.
func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

// Display formats the price with two decimals.
func (p Price) Display() string {
	return p.StringFixed(2) //nolint:mnd
}

// Product is a product record as served by the backend.
type Product struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       Price  `json:"price"`
	Quantity    int    `json:"quantity"`
	Category    string `json:"category"`
	CreatedBy   string `json:"createdBy,omitempty"`
}

// Input returns the writable fields of p.
func (p Product) Input() ProductInput {
	return ProductInput{
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price,
		Quantity:    p.Quantity,
		Category:    p.Category,
	}
}

// ProductInput is the body of create and update calls.
type ProductInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       Price  `json:"price"`
	Quantity    int    `json:"quantity"`
	Category    string `json:"category"`
}

// User is a user record as served by the backend.
type User struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
}

// UserUpdate is a partial user update, nil fields are left out of the request.
type UserUpdate struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"firstName,omitempty"`
	LastName  *string `json:"lastName,omitempty"`
	Role      *string `json:"role,omitempty"`
	Active    *bool   `json:"active,omitempty"`
}

// IntrospectionResult is the answer of the token introspection endpoint.
type IntrospectionResult struct {
	Active bool
	Raw    map[string]any
}

// UnmarshalJSON keeps the complete payload next to the active flag.
func (r *IntrospectionResult) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	active, _ := raw["active"].(bool)
	r.Active = active
	r.Raw = raw

	return nil
}

// Pretty returns the payload as indented JSON.
func (r *IntrospectionResult) Pretty() string {
	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")

	if err := enc.Encode(r.Raw); err != nil {
		return "{}"
	}

	return buf.String()
}
