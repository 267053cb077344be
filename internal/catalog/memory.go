package catalog

import (
	"context"
	"fmt"
	"sort"

	"github.com/mlionhart/hartmart/internal/domain"
)

// Memory is a fixed, in-process catalog.
type Memory struct {
	byID     map[string]domain.Product
	products []domain.Product
}

func NewMemory(products ...domain.Product) (*Memory, error) {
	m := &Memory{byID: make(map[string]domain.Product, len(products))}
	for _, p := range products {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, exists := m.byID[p.ID]; exists {
			return nil, fmt.Errorf("%w: duplicate product id %s", domain.ErrInvalidProduct, p.ID)
		}
		m.byID[p.ID] = p
		m.products = append(m.products, p)
	}
	sort.Slice(m.products, func(i, j int) bool { return m.products[i].ID < m.products[j].ID })
	return m, nil
}

func (m *Memory) GetProduct(_ context.Context, id string) (domain.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

func (m *Memory) ListProducts(context.Context) ([]domain.Product, error) {
	out := make([]domain.Product, len(m.products))
	copy(out, m.products)
	return out, nil
}
