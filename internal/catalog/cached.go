package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/mlionhart/hartmart/internal/domain"
	"golang.org/x/sync/singleflight"
)

type cachedProduct struct {
	product   domain.Product
	expiresAt time.Time
}

// Cached keeps product lookups of another Provider for ttl. Concurrent misses
// for the same id share one upstream call.
type Cached struct {
	next Provider
	ttl  time.Duration
	now  func() time.Time

	mu    sync.RWMutex
	items map[string]cachedProduct
	sfg   singleflight.Group
}

func NewCached(next Provider, ttl time.Duration) *Cached {
	return &Cached{
		next:  next,
		ttl:   ttl,
		now:   time.Now,
		items: make(map[string]cachedProduct),
	}
}

func (c *Cached) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	c.mu.RLock()
	entry, ok := c.items[id]
	c.mu.RUnlock()
	if ok && c.now().Before(entry.expiresAt) {
		return entry.product, nil
	}

	v, err, _ := c.sfg.Do(id, func() (interface{}, error) {
		p, err := c.next.GetProduct(ctx, id)
		if err != nil {
			return domain.Product{}, err
		}
		c.mu.Lock()
		c.items[id] = cachedProduct{product: p, expiresAt: c.now().Add(c.ttl)}
		c.mu.Unlock()
		return p, nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return v.(domain.Product), nil
}

// ListProducts always reads through.
func (c *Cached) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return c.next.ListProducts(ctx)
}
