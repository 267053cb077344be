package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type contextKey string

const (
	sessionKey contextKey = "session_id"
	buyerKey   contextKey = "buyer_email"

	SessionHeader = "X-Session-ID"
	BuyerHeader   = "X-User-Email"

	maxSessionIDLen = 128
)

// SessionMiddleware attaches the cart session id to the request, generating
// one when the client did not send it, and echoes it back.
func SessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sessionID := strings.TrimSpace(r.Header.Get(SessionHeader))
		if len(sessionID) > maxSessionIDLen {
			respondError(w, http.StatusBadRequest, "invalid_session", "session id is too long")
			return
		}
		if sessionID == "" {
			sessionID = uuid.NewString()
		}

		w.Header().Set(SessionHeader, sessionID)
		ctx := context.WithValue(r.Context(), sessionKey, sessionID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// BuyerMiddleware reads the buyer email set by the authenticating proxy in
// front of the storefront.
func BuyerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buyer := strings.ToLower(strings.TrimSpace(r.Header.Get(BuyerHeader)))
		ctx := context.WithValue(r.Context(), buyerKey, buyer)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionKey).(string); ok {
		return id
	}
	return ""
}

func buyerFromContext(ctx context.Context) string {
	if buyer, ok := ctx.Value(buyerKey).(string); ok {
		return buyer
	}
	return ""
}
