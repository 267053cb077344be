package session

import (
	"context"
	"sync"
	"time"

	"github.com/mlionhart/hartmart/internal/domain"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	carts map[string]Cart
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{carts: make(map[string]Cart)}
}

func (r *MemoryRepository) Get(_ context.Context, sessionID string) (*Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.carts[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	c.Items = domain.CopyItems(c.Items)
	return &c, nil
}

func (r *MemoryRepository) Upsert(_ context.Context, cart *Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	stored, ok := r.carts[cart.SessionID]
	if !ok {
		stored = Cart{SessionID: cart.SessionID, CreatedAt: now}
	}
	stored.Items = domain.CopyItems(cart.Items)
	stored.UpdatedAt = now
	r.carts[cart.SessionID] = stored
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.carts[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(r.carts, sessionID)
	return nil
}
