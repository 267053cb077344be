package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/mlionhart/hartmart/internal/checkout"
)

// StubPaymentPath is where the storefront mounts Stub.Handler.
const StubPaymentPath = "/pay"

// Stub opens fake sessions for local runs without a payment provider. It
// declines FailurePercent of requests at random. Redirects point at
// RedirectBase + session id, which Handler serves when mounted under
// StubPaymentPath.
type Stub struct {
	RedirectBase   string
	FailurePercent int

	seq      atomic.Int64
	mu       sync.RWMutex
	sessions map[string]checkout.SessionRequest
}

func (s *Stub) CreateSession(ctx context.Context, req checkout.SessionRequest) (checkout.SessionResponse, error) {
	if err := ctx.Err(); err != nil {
		return checkout.SessionResponse{}, err
	}
	if s.FailurePercent > 0 && rand.Intn(100) < s.FailurePercent {
		return checkout.SessionResponse{}, &StatusError{StatusCode: 503, Body: "stub gateway declined"}
	}
	id := fmt.Sprintf("cs_stub_%d", s.seq.Add(1))

	s.mu.Lock()
	if s.sessions == nil {
		s.sessions = make(map[string]checkout.SessionRequest)
	}
	s.sessions[id] = req
	s.mu.Unlock()

	return checkout.SessionResponse{SessionID: id, RedirectURL: s.RedirectBase + id}, nil
}

type stubPayment struct {
	SessionID   string `json:"session_id"`
	Status      string `json:"status"`
	BuyerEmail  string `json:"buyer_email"`
	AmountCents int64  `json:"amount_cents"`
}

// Handler serves the page a shopper lands on after checkout with the stub.
// Every issued session reads as paid.
func (s *Stub) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/{session_id}", func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "session_id")
		s.mu.RLock()
		req, ok := s.sessions[id]
		s.mu.RUnlock()

		w.Header().Set("Content-Type", "application/json")
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "unknown payment session", "code": "not_found"})
			return
		}
		var amount int64
		for _, item := range req.LineItems {
			amount += item.PriceCents * int64(item.Quantity)
		}
		_ = json.NewEncoder(w).Encode(stubPayment{
			SessionID:   id,
			Status:      "paid",
			BuyerEmail:  req.BuyerEmail,
			AmountCents: amount,
		})
	})
	return r
}
