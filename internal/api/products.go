package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

const productsPath = "/products"

// Products is the client of /products.
type Products struct {
	d Doer
}

// NewProducts creates a products client.
func NewProducts(d Doer) *Products {
	return &Products{d: d}
}

// List returns all products.
func (p *Products) List(ctx context.Context) ([]Product, error) {
	var out []Product
	if err := p.d.Do(ctx, http.MethodGet, productsPath, nil, nil, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// GetByID returns one product.
func (p *Products) GetByID(ctx context.Context, id int64) (*Product, error) {
	out := new(Product)
	if err := p.d.Do(ctx, http.MethodGet, productPath(id), nil, nil, out); err != nil {
		return nil, err
	}

	return out, nil
}

// ByCategory returns the products of category.
func (p *Products) ByCategory(ctx context.Context, category string) ([]Product, error) {
	var out []Product

	path := productsPath + "/category/" + url.PathEscape(category)
	if err := p.d.Do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// SearchByName returns the products whose name matches name.
func (p *Products) SearchByName(ctx context.Context, name string) ([]Product, error) {
	var out []Product

	query := url.Values{"name": {name}}
	if err := p.d.Do(ctx, http.MethodGet, productsPath+"/search", query, nil, &out); err != nil {
		return nil, err
	}

	return out, nil
}

// Create creates a product and returns it with its server assigned id.
func (p *Products) Create(ctx context.Context, in ProductInput) (*Product, error) {
	out := new(Product)
	if err := p.d.Do(ctx, http.MethodPost, productsPath, nil, in, out); err != nil {
		return nil, err
	}

	return out, nil
}

// Update replaces the writable fields of product id.
func (p *Products) Update(ctx context.Context, id int64, in ProductInput) (*Product, error) {
	out := new(Product)
	if err := p.d.Do(ctx, http.MethodPut, productPath(id), nil, in, out); err != nil {
		return nil, err
	}

	return out, nil
}

// Delete deletes product id.
func (p *Products) Delete(ctx context.Context, id int64) error {
	return p.d.Do(ctx, http.MethodDelete, productPath(id), nil, nil, nil)
}

// UpdateQuantity sets the stock quantity of product id.
func (p *Products) UpdateQuantity(ctx context.Context, id int64, quantity int) error {
	query := url.Values{"quantity": {strconv.Itoa(quantity)}}

	return p.d.Do(ctx, http.MethodPatch, productPath(id)+"/quantity", query, nil, nil)
}

func productPath(id int64) string {
	return productsPath + "/" + strconv.FormatInt(id, 10)
}
