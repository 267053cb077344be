// Package session persists a shopper's cart between requests.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/mlionhart/hartmart/internal/domain"
)

var ErrSessionNotFound = errors.New("cart session not found")

// Cart is the stored form of one session's cart.
type Cart struct {
	SessionID string            `json:"session_id" bson:"session_id"`
	Items     []domain.LineItem `json:"items" bson:"items"`
	CreatedAt time.Time         `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time         `json:"updated_at" bson:"updated_at"`
}

// Repository is the durable store for cart sessions.
type Repository interface {
	Get(ctx context.Context, sessionID string) (*Cart, error)
	Upsert(ctx context.Context, cart *Cart) error
	Delete(ctx context.Context, sessionID string) error
}
