package checkout

import (
	"context"
	"time"

	"github.com/mlionhart/hartmart/internal/domain"
)

type SessionLineItem struct {
	ProductID  string
	Quantity   int
	PriceCents int64
}

// SessionRequest is what the payment provider needs to open a session.
type SessionRequest struct {
	LineItems  []SessionLineItem
	BuyerEmail string
}

type SessionResponse struct {
	SessionID string
	// RedirectURL is where the shopper continues to pay. It may be empty when
	// the provider resumes the session by id alone.
	RedirectURL string
}

// Gateway creates payment sessions.
type Gateway interface {
	CreateSession(ctx context.Context, req SessionRequest) (SessionResponse, error)
}

// OrderStore persists completed orders.
type OrderStore interface {
	Save(ctx context.Context, order domain.Order) error
}

// Cart is the part of a cart store checkout needs. *cart.Store satisfies it.
type Cart interface {
	List() []domain.LineItem
	Clear()
}

// Escalator is told about orders that were paid for but could not be saved.
type Escalator interface {
	Escalate(ctx context.Context, order domain.Order, cause error)
}

// Observer records checkout outcomes and how long they took by the builder's
// clock. *metrics.Registry satisfies it.
type Observer interface {
	ObserveCheckout(result string, elapsed time.Duration)
}
