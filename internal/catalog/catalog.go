// Package catalog supplies immutable product records to the cart.
package catalog

import (
	"context"

	"github.com/mlionhart/hartmart/internal/domain"
)

// Provider resolves products by id. GetProduct returns an error wrapping
// domain.ErrNotFound for unknown ids.
type Provider interface {
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
}
