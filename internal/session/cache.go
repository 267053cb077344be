package session

import (
	"context"
	"errors"
)

var ErrCacheMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, sessionID string) (*Cart, error)
	Set(ctx context.Context, sessionID string, cart *Cart) error
	Delete(ctx context.Context, sessionID string) error
}

// NoopCache always misses.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (*Cart, error) { return nil, ErrCacheMiss }

func (NoopCache) Set(context.Context, string, *Cart) error { return nil }

func (NoopCache) Delete(context.Context, string) error { return nil }
