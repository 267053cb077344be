package checkout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mlionhart/hartmart/internal/cart"
	"github.com/mlionhart/hartmart/internal/catalog"
	"github.com/mlionhart/hartmart/internal/domain"
	"github.com/stretchr/testify/require"
)

// MockGateway implements Gateway for testing
type MockGateway struct {
	mu       sync.Mutex
	Response SessionResponse
	Err      error
	Requests []SessionRequest
	// Block makes CreateSession wait for its context to end
	Block bool
	// OnCall runs inside CreateSession before it returns
	OnCall func()
}

func (m *MockGateway) CreateSession(ctx context.Context, req SessionRequest) (SessionResponse, error) {
	m.mu.Lock()
	m.Requests = append(m.Requests, req)
	resp, err, block, onCall := m.Response, m.Err, m.Block, m.OnCall
	m.mu.Unlock()

	if onCall != nil {
		onCall()
	}
	if block {
		<-ctx.Done()
		return SessionResponse{}, ctx.Err()
	}
	return resp, err
}

func (m *MockGateway) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Requests)
}

// MockOrderStore implements OrderStore for testing
type MockOrderStore struct {
	mu     sync.Mutex
	Orders []domain.Order
	Err    error
	ctxErr error
}

func (m *MockOrderStore) Save(ctx context.Context, order domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ctxErr = ctx.Err()
	if m.Err != nil {
		return m.Err
	}
	m.Orders = append(m.Orders, order.Clone())
	return nil
}

// MockEscalator implements Escalator for testing
type MockEscalator struct {
	Orders []domain.Order
	Causes []error
}

func (m *MockEscalator) Escalate(_ context.Context, order domain.Order, cause error) {
	m.Orders = append(m.Orders, order)
	m.Causes = append(m.Causes, cause)
}

// MockObserver implements Observer for testing
type MockObserver struct {
	Results []string
	Elapsed []time.Duration
}

func (m *MockObserver) ObserveCheckout(result string, elapsed time.Duration) {
	m.Results = append(m.Results, result)
	m.Elapsed = append(m.Elapsed, elapsed)
}

func newTestCart(t *testing.T, adds map[string]int) *cart.Store {
	t.Helper()
	c, err := catalog.NewMemory(
		domain.Product{ID: "p1", Title: "Jacket", PriceCents: 8000, OldPriceCents: 10000, Rating: 4},
		domain.Product{ID: "p2", Title: "Dress", PriceCents: 4500, Rating: 5},
	)
	require.NoError(t, err)

	s := cart.NewStore(c)
	for _, id := range []string{"p1", "p2"} {
		if q, ok := adds[id]; ok {
			require.NoError(t, s.Add(context.Background(), id, q))
		}
	}
	return s
}
