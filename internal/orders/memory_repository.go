package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mlionhart/hartmart/internal/domain"
)

// MemoryRepository keeps orders in process. It implements Repository and
// Outbox.
type MemoryRepository struct {
	mu        sync.RWMutex
	orders    map[uuid.UUID]domain.Order
	bySession map[string]uuid.UUID
	outbox    []OutboxEvent
	published map[int64]bool
	nextEvent int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders:    make(map[uuid.UUID]domain.Order),
		bySession: make(map[string]uuid.UUID),
		published: make(map[int64]bool),
	}
}

func (r *MemoryRepository) Save(_ context.Context, order domain.Order) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("marshal order: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.orders[order.ID]; exists {
		return ErrDuplicateOrder
	}
	if _, exists := r.bySession[order.PaymentSessionID]; exists {
		return ErrDuplicateOrder
	}
	r.orders[order.ID] = order.Clone()
	r.bySession[order.PaymentSessionID] = order.ID

	r.nextEvent++
	r.outbox = append(r.outbox, OutboxEvent{
		ID:          r.nextEvent,
		AggregateID: order.ID.String(),
		EventType:   EventOrderCreated,
		Payload:     payload,
		CreatedAt:   order.CreatedAt,
	})
	return nil
}

func (r *MemoryRepository) GetByID(_ context.Context, id uuid.UUID) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[id]
	if !ok {
		return domain.Order{}, ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (r *MemoryRepository) ListByBuyer(_ context.Context, buyerEmail string) ([]domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Order
	for _, order := range r.orders {
		if order.BuyerEmail == buyerEmail {
			out = append(out, order.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *MemoryRepository) GetUnpublishedEvents(_ context.Context, limit int) ([]OutboxEvent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []OutboxEvent
	for _, e := range r.outbox {
		if len(out) == limit {
			break
		}
		if !r.published[e.ID] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *MemoryRepository) MarkEventPublished(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 1 || id > r.nextEvent {
		return fmt.Errorf("outbox event %d: %w", id, domain.ErrNotFound)
	}
	r.published[id] = true
	return nil
}

func (r *MemoryRepository) Close() error {
	return nil
}
