// Package checkout turns a finalized cart into an immutable order by way of
// an external payment session.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mlionhart/hartmart/internal/domain"
	"github.com/mlionhart/hartmart/internal/metrics"
	"github.com/mlionhart/hartmart/internal/pricing"
	"github.com/mlionhart/hartmart/pkg/logger"
	"go.uber.org/zap"
)

const DefaultGatewayTimeout = 10 * time.Second

// Confirmation is the result of a successful checkout.
type Confirmation struct {
	Order       domain.Order
	RedirectURL string
}

type Builder struct {
	gateway   Gateway
	orders    OrderStore
	policy    pricing.Policy
	timeout   time.Duration
	currency  string
	now       func() time.Time
	log       *zap.Logger
	escalator Escalator
	observer  Observer

	mu    sync.Mutex
	state State
}

type Option func(*Builder)

func WithPolicy(p pricing.Policy) Option {
	return func(b *Builder) { b.policy = p }
}

// WithTimeout bounds the gateway call. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(b *Builder) {
		if d > 0 {
			b.timeout = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.log = l }
}

func WithEscalator(e Escalator) Option {
	return func(b *Builder) { b.escalator = e }
}

func WithObserver(o Observer) Option {
	return func(b *Builder) { b.observer = o }
}

func WithCurrency(currency string) Option {
	return func(b *Builder) { b.currency = currency }
}

func New(gateway Gateway, orders OrderStore, opts ...Option) *Builder {
	b := &Builder{
		gateway:  gateway,
		orders:   orders,
		policy:   pricing.DefaultPolicy(),
		timeout:  DefaultGatewayTimeout,
		currency: domain.DefaultCurrency,
		now:      time.Now,
		log:      zap.NewNop(),
		state:    StateEmpty,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.escalator == nil {
		b.escalator = LogEscalator{Logger: b.log}
	}
	return b
}

func (b *Builder) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Checkout pays for the contents of c on behalf of buyerEmail. The steps run
// in order and stop at the first failure: create the payment session, save
// the order, clear the cart. A failed gateway call leaves the cart as it was
// and returns an error wrapping domain.ErrCheckoutFailed. A failed save after
// payment is escalated and returned as domain.ErrPersistenceFailed, also with
// the cart intact.
func (b *Builder) Checkout(ctx context.Context, c Cart, buyerEmail string) (Confirmation, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	started := b.now()
	log := logger.WithContext(ctx, b.log)

	buyerEmail = strings.TrimSpace(buyerEmail)
	if buyerEmail == "" {
		b.observe(metrics.ResultRejected, started)
		return Confirmation{}, domain.ErrUnauthenticated
	}
	items := c.List()
	if len(items) == 0 {
		b.observe(metrics.ResultRejected, started)
		return Confirmation{}, domain.ErrEmptyCart
	}

	if err := ctx.Err(); err != nil {
		b.observe(metrics.ResultRejected, started)
		return Confirmation{}, fmt.Errorf("%w: %w", domain.ErrCheckoutFailed, err)
	}

	if err := b.transition(StatePending); err != nil {
		return Confirmation{}, err
	}

	// once the gateway call is dispatched the sequence runs to completion;
	// only the gateway timeout can cut it short
	ctx = context.WithoutCancel(ctx)

	session, err := b.createSession(ctx, items, buyerEmail)
	if err != nil {
		b.state = StateEmpty
		b.observe(metrics.ResultCheckoutFailed, started)
		log.Warn("checkout failed at payment gateway",
			zap.String("buyer", buyerEmail),
			zap.Int("items", len(items)),
			zap.Error(err))
		return Confirmation{}, fmt.Errorf("%w: %w", domain.ErrCheckoutFailed, err)
	}

	order := b.buildOrder(items, buyerEmail, session.SessionID)

	if err := b.orders.Save(ctx, order); err != nil {
		b.state = StateEmpty
		b.observe(metrics.ResultPersistenceFailed, started)
		b.escalator.Escalate(ctx, order.Clone(), err)
		return Confirmation{}, fmt.Errorf("%w: order %s, payment session %s: %w",
			domain.ErrPersistenceFailed, order.ID, order.PaymentSessionID, err)
	}

	c.Clear()
	if err := b.transition(StateCompleted); err != nil {
		return Confirmation{}, err
	}
	b.observe(metrics.ResultCompleted, started)

	log.Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.String("payment_session_id", order.PaymentSessionID),
		zap.String("buyer", buyerEmail),
		zap.Int64("total_cents", order.TotalCents))

	return Confirmation{Order: order.Clone(), RedirectURL: session.RedirectURL}, nil
}

func (b *Builder) createSession(ctx context.Context, items []domain.LineItem, buyerEmail string) (SessionResponse, error) {
	req := SessionRequest{
		LineItems:  make([]SessionLineItem, 0, len(items)),
		BuyerEmail: buyerEmail,
	}
	for _, item := range items {
		req.LineItems = append(req.LineItems, SessionLineItem{
			ProductID:  item.ProductID,
			Quantity:   item.Quantity,
			PriceCents: item.UnitPriceCents,
		})
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	resp, err := b.gateway.CreateSession(gatewayCtx, req)
	if err != nil {
		return SessionResponse{}, err
	}
	if resp.SessionID == "" {
		return SessionResponse{}, errors.New("gateway returned an empty session id")
	}
	return resp, nil
}

func (b *Builder) buildOrder(items []domain.LineItem, buyerEmail, sessionID string) domain.Order {
	totals := b.policy.Totals(items)
	return domain.Order{
		ID:               uuid.New(),
		PaymentSessionID: sessionID,
		BuyerEmail:       buyerEmail,
		Items:            domain.CopyItems(items),
		SubtotalCents:    totals.Subtotal,
		ShippingCents:    totals.Shipping,
		TotalCents:       totals.Grand,
		Currency:         b.currency,
		CreatedAt:        b.now().UTC(),
	}
}

// transition must be called with b.mu held.
func (b *Builder) transition(next State) error {
	if !b.state.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", IllegalTransitionError, b.state, next)
	}
	b.state = next
	return nil
}

func (b *Builder) observe(result string, started time.Time) {
	if b.observer != nil {
		b.observer.ObserveCheckout(result, b.now().Sub(started))
	}
}

// LogEscalator reports unsaved paid orders in the log only.
type LogEscalator struct {
	Logger *zap.Logger
}

func (e LogEscalator) Escalate(ctx context.Context, order domain.Order, cause error) {
	logger.WithContext(ctx, e.Logger).Error("paid order could not be saved, manual reconciliation required",
		zap.String("order_id", order.ID.String()),
		zap.String("payment_session_id", order.PaymentSessionID),
		zap.String("buyer", order.BuyerEmail),
		zap.Int64("total_cents", order.TotalCents),
		zap.Error(cause))
}
