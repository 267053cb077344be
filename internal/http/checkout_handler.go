package http

import (
	"context"
	"net/http"
	"time"

	"github.com/mlionhart/hartmart/internal/checkout"
	"github.com/mlionhart/hartmart/internal/pricing"
	"github.com/mlionhart/hartmart/pkg/logger"
	"go.uber.org/zap"
)

// sessionClearTimeout bounds emptying the cart session once the order is
// saved. It runs detached from the request, which may already have timed out.
const sessionClearTimeout = 5 * time.Second

type CheckoutResponseDTO struct {
	OrderID     string `json:"order_id"`
	SessionID   string `json:"session_id"`
	RedirectURL string `json:"redirect_url,omitempty"`
	Total       string `json:"total"`
	TotalCents  int64  `json:"total_cents"`
	// CartCleared is false when the paid items are still in the session;
	// clients must not offer the same cart for checkout again.
	CartCleared bool `json:"cart_cleared"`
}

// POST /api/checkout
func (s *Server) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := sessionFromContext(ctx)
	unlock := s.lockSession(sessionID)
	defer unlock()

	c, err := s.loadCart(ctx, sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	b := checkout.New(s.gateway, s.orders, s.opts...)
	conf, err := b.Checkout(ctx, c, buyerFromContext(ctx))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	cleared := s.clearAfterCheckout(ctx, sessionID, conf)

	respondJSON(w, http.StatusCreated, CheckoutResponseDTO{
		OrderID:     conf.Order.ID.String(),
		SessionID:   conf.Order.PaymentSessionID,
		RedirectURL: conf.RedirectURL,
		Total:       pricing.Format(conf.Order.TotalCents, conf.Order.Currency),
		TotalCents:  conf.Order.TotalCents,
		CartCleared: cleared,
	})
}

// clearAfterCheckout empties the session of a paid cart. The order is already
// saved, so a failure is reported rather than turned into an error response.
func (s *Server) clearAfterCheckout(ctx context.Context, sessionID string, conf checkout.Confirmation) bool {
	clearCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionClearTimeout)
	defer cancel()

	err := s.sessions.Clear(clearCtx, sessionID)
	if err == nil {
		return true
	}
	logger.WithContext(ctx, s.log).Error("paid cart left in session after checkout",
		zap.String("session_id", sessionID),
		zap.String("order_id", conf.Order.ID.String()),
		zap.String("payment_session_id", conf.Order.PaymentSessionID),
		zap.Error(err))
	if s.metrics != nil {
		s.metrics.SessionClearFailures.Inc()
	}
	return false
}
