// Package cart holds the line items a shopper has selected.
package cart

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mlionhart/hartmart/internal/catalog"
	"github.com/mlionhart/hartmart/internal/domain"
)

// Store is one shopper's cart. Entries are unique per product id and keep
// insertion order; every quantity is at least 1.
type Store struct {
	catalog catalog.Provider

	mu    sync.RWMutex
	items []domain.LineItem
	index map[string]int // productID -> position in items
}

func NewStore(c catalog.Provider) *Store {
	return &Store{
		catalog: c,
		index:   make(map[string]int),
	}
}

// Restore rebuilds a store from persisted items. Duplicate ids are merged and
// items whose product is gone from the catalog are dropped; snapshot prices
// are kept as persisted.
func Restore(ctx context.Context, c catalog.Provider, items []domain.LineItem) (*Store, error) {
	s := NewStore(c)
	for _, item := range items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("restore product %s: %w, got %d", item.ProductID, domain.ErrInvalidQuantity, item.Quantity)
		}
		if _, err := c.GetProduct(ctx, item.ProductID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return nil, fmt.Errorf("restore product %s: %w", item.ProductID, err)
		}
		if i, ok := s.index[item.ProductID]; ok {
			s.items[i].Quantity += item.Quantity
			continue
		}
		s.index[item.ProductID] = len(s.items)
		s.items = append(s.items, item)
	}
	return s, nil
}

// Add puts quantity units of a product in the cart. An existing entry is
// incremented; a new one snapshots the current catalog price.
func (s *Store) Add(ctx context.Context, productID string, quantity int) error {
	if quantity < 1 {
		return fmt.Errorf("add product %s: %w, got %d", productID, domain.ErrInvalidQuantity, quantity)
	}

	s.mu.Lock()
	if i, ok := s.index[productID]; ok {
		s.items[i].Quantity += quantity
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	product, err := s.catalog.GetProduct(ctx, productID)
	if err != nil {
		return fmt.Errorf("add product %s: %w", productID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// re-check: the lock was released during the catalog lookup
	if i, ok := s.index[productID]; ok {
		s.items[i].Quantity += quantity
		return nil
	}
	s.index[productID] = len(s.items)
	s.items = append(s.items, domain.LineItem{
		ProductID:      product.ID,
		Title:          product.Title,
		Quantity:       quantity,
		UnitPriceCents: product.PriceCents,
	})
	return nil
}

// Remove deletes the entry for productID. Removing an absent product is a no-op.
func (s *Store) Remove(productID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(productID)
}

// SetQuantity sets an entry's quantity. Zero removes the entry.
func (s *Store) SetQuantity(productID string, quantity int) error {
	if quantity < 0 {
		return fmt.Errorf("set quantity of product %s: %w, got %d", productID, domain.ErrInvalidQuantity, quantity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.index[productID]
	if !ok {
		return fmt.Errorf("product %s is not in the cart: %w", productID, domain.ErrNotFound)
	}
	if quantity == 0 {
		s.removeLocked(productID)
		return nil
	}
	s.items[i].Quantity = quantity
	return nil
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
	s.index = make(map[string]int)
}

// List returns a snapshot of the cart's entries in insertion order.
func (s *Store) List() []domain.LineItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.LineItem, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) removeLocked(productID string) {
	i, ok := s.index[productID]
	if !ok {
		return
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	delete(s.index, productID)
	for j := i; j < len(s.items); j++ {
		s.index[s.items[j].ProductID] = j
	}
}
