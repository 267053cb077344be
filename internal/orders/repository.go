// Package orders stores completed orders and the outbox of events announcing
// them.
package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mlionhart/hartmart/internal/domain"
)

var (
	ErrOrderNotFound  = errors.New("order not found")
	ErrDuplicateOrder = errors.New("order for this payment session already exists")
)

// EventOrderCreated is the outbox event type written with every saved order.
const EventOrderCreated = "order.created"

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}

type Repository interface {
	Save(ctx context.Context, order domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (domain.Order, error)
	// ListByBuyer returns the buyer's orders, newest first.
	ListByBuyer(ctx context.Context, buyerEmail string) ([]domain.Order, error)
	Close() error
}

type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// Outbox exposes events that still have to be published.
type Outbox interface {
	GetUnpublishedEvents(ctx context.Context, limit int) ([]OutboxEvent, error)
	MarkEventPublished(ctx context.Context, id int64) error
}
