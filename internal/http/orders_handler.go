package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/mlionhart/hartmart/internal/domain"
	"github.com/mlionhart/hartmart/internal/pricing"
)

type OrderResponseDTO struct {
	ID               string            `json:"id"`
	PaymentSessionID string            `json:"payment_session_id"`
	Items            []domain.LineItem `json:"items"`
	SubtotalCents    int64             `json:"subtotal_cents"`
	ShippingCents    int64             `json:"shipping_cents"`
	TotalCents       int64             `json:"total_cents"`
	Total            string            `json:"total"`
	Currency         string            `json:"currency"`
	CreatedAt        string            `json:"created_at"`
}

func toOrderResponse(o domain.Order) OrderResponseDTO {
	return OrderResponseDTO{
		ID:               o.ID.String(),
		PaymentSessionID: o.PaymentSessionID,
		Items:            o.Items,
		SubtotalCents:    o.SubtotalCents,
		ShippingCents:    o.ShippingCents,
		TotalCents:       o.TotalCents,
		Total:            pricing.Format(o.TotalCents, o.Currency),
		Currency:         o.Currency,
		CreatedAt:        o.CreatedAt.Format(time.RFC3339),
	}
}

// GET /api/orders
func (s *Server) ListOrders(w http.ResponseWriter, r *http.Request) {
	buyer := buyerFromContext(r.Context())
	if buyer == "" {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing buyer authentication")
		return
	}

	list, err := s.orders.ListByBuyer(r.Context(), buyer)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]OrderResponseDTO, 0, len(list))
	for _, o := range list {
		out = append(out, toOrderResponse(o))
	}
	respondJSON(w, http.StatusOK, out)
}

// GET /api/orders/{id}
func (s *Server) GetOrder(w http.ResponseWriter, r *http.Request) {
	buyer := buyerFromContext(r.Context())
	if buyer == "" {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "missing buyer authentication")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order id must be a uuid")
		return
	}

	o, err := s.orders.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// other buyers' orders are reported as missing
	if o.BuyerEmail != buyer {
		respondError(w, http.StatusNotFound, "not_found", "order not found")
		return
	}
	respondJSON(w, http.StatusOK, toOrderResponse(o))
}
