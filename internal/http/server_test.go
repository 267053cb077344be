package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mlionhart/hartmart/internal/catalog"
	"github.com/mlionhart/hartmart/internal/checkout"
	"github.com/mlionhart/hartmart/internal/domain"
	"github.com/mlionhart/hartmart/internal/gateway"
	"github.com/mlionhart/hartmart/internal/metrics"
	"github.com/mlionhart/hartmart/internal/orders"
	"github.com/mlionhart/hartmart/internal/pricing"
	"github.com/mlionhart/hartmart/internal/session"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gatewayMock struct {
	err   error
	n     int
	delay time.Duration
}

func (g *gatewayMock) CreateSession(_ context.Context, _ checkout.SessionRequest) (checkout.SessionResponse, error) {
	time.Sleep(g.delay)
	if g.err != nil {
		return checkout.SessionResponse{}, g.err
	}
	g.n++
	id := fmt.Sprintf("cs_test_%d", g.n)
	return checkout.SessionResponse{SessionID: id, RedirectURL: "https://pay.example/" + id}, nil
}

type failingOrders struct {
	*orders.MemoryRepository
}

func (failingOrders) Save(context.Context, domain.Order) error {
	return errors.New("disk full")
}

// ctxSessions fails like a network-backed store once the caller's context is
// done, and can be made to fail deletes.
type ctxSessions struct {
	*session.MemoryRepository
	deleteErr error
}

func (r *ctxSessions) Get(ctx context.Context, id string) (*session.Cart, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.MemoryRepository.Get(ctx, id)
}

func (r *ctxSessions) Upsert(ctx context.Context, c *session.Cart) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.MemoryRepository.Upsert(ctx, c)
}

func (r *ctxSessions) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.deleteErr != nil {
		return r.deleteErr
	}
	return r.MemoryRepository.Delete(ctx, id)
}

type breakerGateway struct {
	*gatewayMock
	state string
}

func (g breakerGateway) BreakerState() string { return g.state }

type testEnv struct {
	handler  http.Handler
	gateway  *gatewayMock
	orders   *orders.MemoryRepository
	sessions *session.Service
	metrics  *metrics.Registry
}

type envOptions struct {
	orders      orders.Repository
	sessionRepo session.Repository
	gateway     checkout.Gateway
	payPage     http.Handler
	router      RouterConfig
}

func newTestEnv(t *testing.T, repo orders.Repository) *testEnv {
	t.Helper()
	return newTestEnvWith(t, envOptions{orders: repo})
}

func newTestEnvWith(t *testing.T, o envOptions) *testEnv {
	t.Helper()
	c, err := catalog.NewMemory(
		domain.Product{ID: "1", Title: "Classic Denim Jacket", PriceCents: 8000, OldPriceCents: 10000, Rating: 4, Category: "men"},
		domain.Product{ID: "2", Title: "Summer Dress", PriceCents: 4500, Rating: 5, Category: "women"},
	)
	require.NoError(t, err)

	mem := orders.NewMemoryRepository()
	repo := o.orders
	if repo == nil {
		repo = mem
	}
	sessionRepo := o.sessionRepo
	if sessionRepo == nil {
		sessionRepo = session.NewMemoryRepository()
	}
	env := &testEnv{
		gateway:  &gatewayMock{},
		orders:   mem,
		sessions: session.NewService(sessionRepo, nil, nil),
		metrics:  metrics.NewRegistry(),
	}
	gw := o.gateway
	if gw == nil {
		gw = env.gateway
	}
	srv := NewServer(Deps{
		Catalog:     c,
		Sessions:    env.sessions,
		Orders:      repo,
		Gateway:     gw,
		Metrics:     env.metrics,
		Policy:      pricing.DefaultPolicy(),
		PaymentPage: o.payPage,
	})
	router := o.router
	if router.MaxRequestBodySize == 0 {
		router.MaxRequestBodySize = 1 << 20
	}
	env.handler = srv.Router(router)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, body, sessionID, buyer string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	if buyer != "" {
		req.Header.Set(BuyerHeader, buyer)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), rr.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/health", "", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
}

func TestHealth_ReportsPaymentBreaker(t *testing.T) {
	tests := []struct {
		state  string
		status string
	}{
		{"closed", "ok"},
		{"half-open", "ok"},
		{"open", "degraded"},
	}
	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			env := newTestEnvWith(t, envOptions{gateway: breakerGateway{gatewayMock: &gatewayMock{}, state: tt.state}})
			rr := env.do(t, http.MethodGet, "/health", "", "", "")
			assert.Equal(t, http.StatusOK, rr.Code)
			body := decode[map[string]string](t, rr)
			assert.Equal(t, tt.status, body["status"])
			assert.Equal(t, tt.state, body["payment_gateway"])
		})
	}
}

func TestListProducts(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/api/products", "", "", "")
	require.Equal(t, http.StatusOK, rr.Code)

	products := decode[[]ProductDTO](t, rr)
	require.Len(t, products, 2)
	assert.Equal(t, "1", products[0].ID)
	assert.Equal(t, 20, products[0].DiscountPercent)
	assert.Equal(t, "$80.00", products[0].Price)
	assert.Equal(t, "$100.00", products[0].OldPrice)
	assert.Equal(t, 0, products[1].DiscountPercent)
	assert.Empty(t, products[1].OldPrice)
}

func TestGetProduct_NotFound(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/api/products/404", "", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "not_found", decode[ErrorResponse](t, rr).Code)
}

func TestSessionHeader_GeneratedAndEchoed(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/cart", "", "", "")
	generated := rr.Header().Get(SessionHeader)
	assert.NotEmpty(t, generated)

	rr = env.do(t, http.MethodGet, "/api/cart", "", "mine", "")
	assert.Equal(t, "mine", rr.Header().Get(SessionHeader))

	rr = env.do(t, http.MethodGet, "/api/cart", "", strings.Repeat("x", 200), "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCart_AddUpdateRemove(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/cart/items", `{"product_id":"1"}`, "s1", "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	c := decode[CartResponseDTO](t, rr)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 1, c.Items[0].Quantity)

	rr = env.do(t, http.MethodPost, "/api/cart/items", `{"product_id":"2","quantity":2}`, "s1", "")
	require.Equal(t, http.StatusCreated, rr.Code)
	c = decode[CartResponseDTO](t, rr)
	assert.Equal(t, int64(17000), c.Totals.Subtotal)
	assert.Equal(t, int64(2000), c.Totals.Shipping)
	assert.Equal(t, int64(19000), c.Totals.Grand)
	assert.Equal(t, "$190.00", c.Formatted.Total)
	assert.Equal(t, int64(9000), c.Items[1].LineTotalCents)

	rr = env.do(t, http.MethodPut, "/api/cart/items/1", `{"quantity":3}`, "s1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 3, decode[CartResponseDTO](t, rr).Items[0].Quantity)

	rr = env.do(t, http.MethodDelete, "/api/cart/items/1", "", "s1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	c = decode[CartResponseDTO](t, rr)
	require.Len(t, c.Items, 1)
	assert.Equal(t, "2", c.Items[0].ProductID)

	// persisted across requests
	rr = env.do(t, http.MethodGet, "/api/cart", "", "s1", "")
	assert.Len(t, decode[CartResponseDTO](t, rr).Items, 1)

	// other sessions are separate
	rr = env.do(t, http.MethodGet, "/api/cart", "", "s2", "")
	c = decode[CartResponseDTO](t, rr)
	assert.Empty(t, c.Items)
	assert.Equal(t, int64(0), c.Totals.Grand)

	assert.Equal(t, float64(2), testutil.ToFloat64(env.metrics.CartMutations.WithLabelValues("add")))
}

func TestCart_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{"bad json", http.MethodPost, "/api/cart/items", `{`, http.StatusBadRequest, "invalid_request"},
		{"missing product", http.MethodPost, "/api/cart/items", `{"quantity":1}`, http.StatusBadRequest, "invalid_product_id"},
		{"too many", http.MethodPost, "/api/cart/items", `{"product_id":"1","quantity":100}`, http.StatusBadRequest, "invalid_quantity"},
		{"negative add", http.MethodPost, "/api/cart/items", `{"product_id":"1","quantity":-1}`, http.StatusBadRequest, "invalid_quantity"},
		{"unknown product", http.MethodPost, "/api/cart/items", `{"product_id":"9"}`, http.StatusNotFound, "not_found"},
		{"missing quantity", http.MethodPut, "/api/cart/items/1", `{}`, http.StatusBadRequest, "invalid_request"},
		{"negative set", http.MethodPut, "/api/cart/items/1", `{"quantity":-2}`, http.StatusBadRequest, "invalid_quantity"},
		{"set absent", http.MethodPut, "/api/cart/items/1", `{"quantity":2}`, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, tt.method, tt.path, tt.body, "validation", "")
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			assert.Equal(t, tt.code, decode[ErrorResponse](t, rr).Code)
		})
	}
}

func TestCart_SetZeroRemovesAndClear(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/cart/items", `{"product_id":"1"}`, "s1", "")
	env.do(t, http.MethodPost, "/api/cart/items", `{"product_id":"2"}`, "s1", "")

	rr := env.do(t, http.MethodPut, "/api/cart/items/1", `{"quantity":0}`, "s1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Len(t, decode[CartResponseDTO](t, rr).Items, 1)

	rr = env.do(t, http.MethodDelete, "/api/cart", "", "s1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, decode[CartResponseDTO](t, rr).Items)

	items, err := env.sessions.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCheckout_Success(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/cart/items", `{"product_id":"1"}`, "s1", "")
	env.do(t, http.MethodPost, "/api/cart/items", `{"product_id":"2","quantity":2}`, "s1", "")

	rr := env.do(t, http.MethodPost, "/api/checkout", "", "s1", "Buyer@Example.com")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decode[CheckoutResponseDTO](t, rr)
	assert.Equal(t, "cs_test_1", resp.SessionID)
	assert.Equal(t, "https://pay.example/cs_test_1", resp.RedirectURL)
	assert.Equal(t, int64(19000), resp.TotalCents)
	assert.Equal(t, "$190.00", resp.Total)
	assert.True(t, resp.CartCleared)

	rr = env.do(t, http.MethodGet, "/api/cart", "", "s1", "")
	assert.Empty(t, decode[CartResponseDTO](t, rr).Items)

	rr = env.do(t, http.MethodGet, "/api/orders", "", "s1", "buyer@example.com")
	require.Equal(t, http.StatusOK, rr.Code)
	list := decode[[]OrderResponseDTO](t, rr)
	require.Len(t, list, 1)
	assert.Equal(t, resp.OrderID, list[0].ID)
	assert.Len(t, list[0].Items, 2)

	rr = env.do(t, http.MethodGet, "/api/orders/"+resp.OrderID, "", "", "buyer@example.com")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "$190.00", decode[OrderResponseDTO](t, rr).Total)

	rr = env.do(t, http.MethodGet, "/api/orders/"+resp.OrderID, "", "", "someone@example.com")
	assert.Equal(t, http.StatusNotFound, rr.Code)

	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.Checkouts.WithLabelValues(metrics.ResultCompleted)))
}

func TestCheckout_ClearsSessionWhenRequestTimesOutDuringPayment(t *testing.T) {
	env := newTestEnvWith(t, envOptions{
		sessionRepo: &ctxSessions{MemoryRepository: session.NewMemoryRepository()},
		router:      RouterConfig{RequestTimeout: 50 * time.Millisecond},
	})
	env.do(t, http.MethodPost, "/api/cart/items", `{"product_id":"1"}`, "s1", "")
	env.gateway.delay = 80 * time.Millisecond

	rr := env.do(t, http.MethodPost, "/api/checkout", "", "s1", "buyer@example.com")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.True(t, decode[CheckoutResponseDTO](t, rr).CartCleared)

	env.gateway.delay = 0
	rr = env.do(t, http.MethodGet, "/api/cart", "", "s1", "")
	assert.Empty(t, decode[CartResponseDTO](t, rr).Items)

	rr = env.do(t, http.MethodPost, "/api/checkout", "", "s1", "buyer@example.com")
	assert.Equal(t, http.StatusConflict, rr.Code)

	list, err := env.orders.ListByBuyer(context.Background(), "buyer@example.com")
	require.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, 1, env.gateway.n)
}

func TestCheckout_ReportsSessionLeftUncleared(t *testing.T) {
	sessions := &ctxSessions{MemoryRepository: session.NewMemoryRepository()}
	env := newTestEnvWith(t, envOptions{sessionRepo: sessions})
	env.do(t, http.MethodPost, "/api/cart/items", `{"product_id":"1"}`, "s1", "")
	sessions.deleteErr = errors.New("mongo unavailable")

	rr := env.do(t, http.MethodPost, "/api/checkout", "", "s1", "buyer@example.com")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	resp := decode[CheckoutResponseDTO](t, rr)
	assert.False(t, resp.CartCleared)
	assert.NotEmpty(t, resp.OrderID)
	assert.Equal(t, float64(1), testutil.ToFloat64(env.metrics.SessionClearFailures))
}

func TestCheckout_StubPaymentPage(t *testing.T) {
	stub := &gateway.Stub{RedirectBase: "http://localhost" + gateway.StubPaymentPath + "/"}
	env := newTestEnvWith(t, envOptions{gateway: stub, payPage: stub.Handler()})
	env.do(t, http.MethodPost, "/api/cart/items", `{"product_id":"2","quantity":2}`, "s1", "")

	rr := env.do(t, http.MethodPost, "/api/checkout", "", "s1", "buyer@example.com")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	redirect := decode[CheckoutResponseDTO](t, rr).RedirectURL

	rr = env.do(t, http.MethodGet, strings.TrimPrefix(redirect, "http://localhost"), "", "", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	page := decode[map[string]any](t, rr)
	assert.Equal(t, "paid", page["status"])
	assert.Equal(t, float64(9000), page["amount_cents"])
}

func TestCheckout_EmptyCart(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodPost, "/api/checkout", "", "s1", "buyer@example.com")
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, "empty_cart", decode[ErrorResponse](t, rr).Code)
}

func TestCheckout_Unauthenticated(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/cart/items", `{"product_id":"1"}`, "s1", "")

	rr := env.do(t, http.MethodPost, "/api/checkout", "", "s1", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestCheckout_GatewayFailureKeepsCart(t *testing.T) {
	env := newTestEnv(t, nil)
	env.gateway.err = errors.New("provider down")
	env.do(t, http.MethodPost, "/api/cart/items", `{"product_id":"1","quantity":2}`, "s1", "")

	rr := env.do(t, http.MethodPost, "/api/checkout", "", "s1", "buyer@example.com")
	assert.Equal(t, http.StatusBadGateway, rr.Code)
	assert.Equal(t, "checkout_failed", decode[ErrorResponse](t, rr).Code)

	rr = env.do(t, http.MethodGet, "/api/cart", "", "s1", "")
	c := decode[CartResponseDTO](t, rr)
	require.Len(t, c.Items, 1)
	assert.Equal(t, 2, c.Items[0].Quantity)

	env.gateway.err = nil
	rr = env.do(t, http.MethodPost, "/api/checkout", "", "s1", "buyer@example.com")
	assert.Equal(t, http.StatusCreated, rr.Code)
}

func TestCheckout_PersistenceFailure(t *testing.T) {
	env := newTestEnv(t, failingOrders{orders.NewMemoryRepository()})
	env.do(t, http.MethodPost, "/api/cart/items", `{"product_id":"1"}`, "s1", "")

	rr := env.do(t, http.MethodPost, "/api/checkout", "", "s1", "buyer@example.com")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "persistence_failed", decode[ErrorResponse](t, rr).Code)

	rr = env.do(t, http.MethodGet, "/api/cart", "", "s1", "")
	assert.Len(t, decode[CartResponseDTO](t, rr).Items, 1)
}

func TestOrders_RequiresBuyer(t *testing.T) {
	env := newTestEnv(t, nil)
	assert.Equal(t, http.StatusUnauthorized, env.do(t, http.MethodGet, "/api/orders", "", "", "").Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/orders/not-a-uuid", "", "", "a@example.com").Code)
	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/orders/6f1c1c8e-4d7a-4f55-9a5e-2b1d5e0c9d11", "", "", "a@example.com").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, nil)
	env.do(t, http.MethodPost, "/api/cart/items", `{"product_id":"1"}`, "s1", "")

	rr := env.do(t, http.MethodGet, "/metrics", "", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `storefront_cart_mutations_total{op="add"} 1`)
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{domain.ErrNotFound, http.StatusNotFound, "not_found"},
		{orders.ErrOrderNotFound, http.StatusNotFound, "not_found"},
		{domain.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
		{domain.ErrEmptyCart, http.StatusConflict, "empty_cart"},
		{domain.ErrUnauthenticated, http.StatusUnauthorized, "unauthenticated"},
		{domain.ErrCheckoutFailed, http.StatusBadGateway, "checkout_failed"},
		{domain.ErrPersistenceFailed, http.StatusInternalServerError, "persistence_failed"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			status, code := errorStatus(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, code)
		})
	}
}
