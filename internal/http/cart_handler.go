package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/mlionhart/hartmart/internal/cart"
	"github.com/mlionhart/hartmart/internal/domain"
	"github.com/mlionhart/hartmart/internal/pricing"
)

const maxQuantity = 99

type AddItemRequestDTO struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity"`
}

type CartItemDTO struct {
	domain.LineItem
	LineTotalCents int64 `json:"line_total_cents"`
}

type CartResponseDTO struct {
	SessionID string         `json:"session_id"`
	Items     []CartItemDTO  `json:"items"`
	Totals    pricing.Totals `json:"totals"`
	Formatted struct {
		Subtotal string `json:"subtotal"`
		Shipping string `json:"shipping"`
		Total    string `json:"total"`
	} `json:"formatted"`
}

func (s *Server) cartResponse(sessionID string, items []domain.LineItem) CartResponseDTO {
	resp := CartResponseDTO{
		SessionID: sessionID,
		Items:     make([]CartItemDTO, 0, len(items)),
		Totals:    s.policy.Totals(items),
	}
	for _, item := range items {
		resp.Items = append(resp.Items, CartItemDTO{LineItem: item, LineTotalCents: pricing.LineTotal(item)})
	}
	resp.Formatted.Subtotal = pricing.Format(resp.Totals.Subtotal, s.currency)
	resp.Formatted.Shipping = pricing.Format(resp.Totals.Shipping, s.currency)
	resp.Formatted.Total = pricing.Format(resp.Totals.Grand, s.currency)
	return resp
}

// loadCart rebuilds the session's cart store. The caller holds the session
// lock.
func (s *Server) loadCart(ctx context.Context, sessionID string) (*cart.Store, error) {
	items, err := s.sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return cart.Restore(ctx, s.catalog, items)
}

// mutateCart runs fn against the session's cart and saves the result.
func (s *Server) mutateCart(w http.ResponseWriter, r *http.Request, op string, status int, fn func(ctx context.Context, c *cart.Store) error) {
	ctx := r.Context()
	sessionID := sessionFromContext(ctx)
	unlock := s.lockSession(sessionID)
	defer unlock()

	c, err := s.loadCart(ctx, sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := fn(ctx, c); err != nil {
		s.writeError(w, r, err)
		return
	}

	items := c.List()
	if len(items) == 0 {
		err = s.sessions.Clear(ctx, sessionID)
	} else {
		err = s.sessions.Save(ctx, sessionID, items)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.countMutation(op)
	respondJSON(w, status, s.cartResponse(sessionID, items))
}

// GET /api/cart
func (s *Server) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := sessionFromContext(ctx)
	c, err := s.loadCart(ctx, sessionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, s.cartResponse(sessionID, c.List()))
}

// POST /api/cart/items
func (s *Server) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 1 || req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 1 and 99")
		return
	}

	s.mutateCart(w, r, "add", http.StatusCreated, func(ctx context.Context, c *cart.Store) error {
		return c.Add(ctx, req.ProductID, req.Quantity)
	})
}

// PUT /api/cart/items/{product_id}
func (s *Server) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "quantity is required")
		return
	}
	if *req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 0 and 99")
		return
	}
	productID := chi.URLParam(r, "product_id")

	s.mutateCart(w, r, "set_quantity", http.StatusOK, func(_ context.Context, c *cart.Store) error {
		return c.SetQuantity(productID, *req.Quantity)
	})
}

// DELETE /api/cart/items/{product_id}
func (s *Server) RemoveItem(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")
	s.mutateCart(w, r, "remove", http.StatusOK, func(_ context.Context, c *cart.Store) error {
		c.Remove(productID)
		return nil
	})
}

// DELETE /api/cart
func (s *Server) ClearCart(w http.ResponseWriter, r *http.Request) {
	s.mutateCart(w, r, "clear", http.StatusOK, func(_ context.Context, c *cart.Store) error {
		c.Clear()
		return nil
	})
}
