// Package http exposes the storefront over a JSON API.
package http

import (
	"context"
	"hash/fnv"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mlionhart/hartmart/internal/catalog"
	"github.com/mlionhart/hartmart/internal/checkout"
	"github.com/mlionhart/hartmart/internal/domain"
	"github.com/mlionhart/hartmart/internal/gateway"
	"github.com/mlionhart/hartmart/internal/metrics"
	"github.com/mlionhart/hartmart/internal/orders"
	"github.com/mlionhart/hartmart/internal/pricing"
	"github.com/mlionhart/hartmart/pkg/logger"
	"go.uber.org/zap"
)

// CartSessions persists cart contents between requests. *session.Service
// satisfies it.
type CartSessions interface {
	Load(ctx context.Context, sessionID string) ([]domain.LineItem, error)
	Save(ctx context.Context, sessionID string, items []domain.LineItem) error
	Clear(ctx context.Context, sessionID string) error
}

type Deps struct {
	Catalog  catalog.Provider
	Sessions CartSessions
	Orders   orders.Repository
	Gateway  checkout.Gateway
	Metrics  *metrics.Registry
	Logger   *zap.Logger
	Policy   pricing.Policy
	Currency string
	// CheckoutOptions are passed to every checkout.Builder.
	CheckoutOptions []checkout.Option
	// PaymentPage, when set, is mounted at gateway.StubPaymentPath.
	PaymentPage http.Handler
}

// BreakerReporter is implemented by gateways that sit behind a circuit
// breaker.
type BreakerReporter interface {
	BreakerState() string
}

type Server struct {
	catalog  catalog.Provider
	sessions CartSessions
	orders   orders.Repository
	gateway  checkout.Gateway
	metrics  *metrics.Registry
	log      *zap.Logger
	policy   pricing.Policy
	currency string
	opts     []checkout.Option
	payPage  http.Handler

	// one writer per session at a time; striped to keep memory bounded
	locks [64]sync.Mutex
}

func NewServer(d Deps) *Server {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	currency := d.Currency
	if currency == "" {
		currency = domain.DefaultCurrency
	}
	opts := []checkout.Option{
		checkout.WithPolicy(d.Policy),
		checkout.WithCurrency(currency),
		checkout.WithLogger(log),
	}
	if d.Metrics != nil {
		opts = append(opts, checkout.WithObserver(d.Metrics))
	}
	return &Server{
		catalog:  d.Catalog,
		sessions: d.Sessions,
		orders:   d.Orders,
		gateway:  d.Gateway,
		metrics:  d.Metrics,
		log:      log,
		policy:   d.Policy,
		currency: currency,
		opts:     append(opts, d.CheckoutOptions...),
		payPage:  d.PaymentPage,
	}
}

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

func (s *Server) Router(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
	}
	if cfg.MaxRequestBodySize > 0 {
		r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
	}
	r.Use(middleware.Compress(5))

	r.Get("/health", s.Health)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}
	if s.payPage != nil {
		r.Mount(gateway.StubPaymentPath, s.payPage)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(SessionMiddleware)
		r.Use(BuyerMiddleware)

		r.Get("/products", s.ListProducts)
		r.Get("/products/{id}", s.GetProduct)

		r.Route("/cart", func(r chi.Router) {
			r.Get("/", s.GetCart)
			r.Delete("/", s.ClearCart)
			r.Post("/items", s.AddItem)
			r.Put("/items/{product_id}", s.UpdateQuantity)
			r.Delete("/items/{product_id}", s.RemoveItem)
		})

		r.Post("/checkout", s.Checkout)

		r.Get("/orders", s.ListOrders)
		r.Get("/orders/{id}", s.GetOrder)
	})

	return r
}

// GET /health
//
// An open payment breaker reports "degraded" with 200: the catalog and carts
// still work, only checkout is failing fast.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	body := map[string]string{"status": "ok"}
	if br, ok := s.gateway.(BreakerReporter); ok {
		state := br.BreakerState()
		body["payment_gateway"] = state
		if state == "open" {
			body["status"] = "degraded"
		}
	}
	respondJSON(w, http.StatusOK, body)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		started := time.Now()
		next.ServeHTTP(ww, r)
		logger.WithContext(r.Context(), s.log).Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(started)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *Server) lockSession(sessionID string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sessionID))
	mu := &s.locks[h.Sum32()%uint32(len(s.locks))]
	mu.Lock()
	return mu.Unlock
}

// writeError logs server-side failures and writes the mapped response.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.WithContext(r.Context(), s.log).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("session_id", sessionFromContext(r.Context())),
			zap.Error(err))
		if code == "internal_error" {
			msg = "internal server error"
		}
	}
	respondError(w, status, code, msg)
}

func (s *Server) countMutation(op string) {
	if s.metrics != nil {
		s.metrics.CartMutations.WithLabelValues(op).Inc()
	}
}
