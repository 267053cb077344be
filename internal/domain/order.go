package domain

import (
	"time"

	"github.com/google/uuid"
)

const DefaultCurrency = "USD"

// Order is the immutable record of a completed checkout.
type Order struct {
	ID               uuid.UUID  `json:"id"`
	PaymentSessionID string     `json:"payment_session_id"`
	BuyerEmail       string     `json:"buyer_email"`
	Items            []LineItem `json:"items"`
	SubtotalCents    int64      `json:"subtotal_cents"`
	ShippingCents    int64      `json:"shipping_cents"`
	TotalCents       int64      `json:"total_cents"`
	Currency         string     `json:"currency"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Clone returns a deep copy so callers cannot reach the original's items.
func (o Order) Clone() Order {
	o.Items = CopyItems(o.Items)
	return o
}
