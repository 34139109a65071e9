package cache

import (
	"context"
	"errors"

	"github.com/fjod/storefront/internal/domain"
)

type CartCache interface {
	Get(ctx context.Context, sessionKey string) (*domain.Cart, error)
	Set(ctx context.Context, sessionKey string, cart *domain.Cart) error
	Delete(ctx context.Context, sessionKey string) error
}

var ErrCacheMiss = errors.New("cache miss")

// NoopCache always misses. It stands in when Redis is not configured.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) (*domain.Cart, error) { return nil, ErrCacheMiss }

func (NoopCache) Set(context.Context, string, *domain.Cart) error { return nil }

func (NoopCache) Delete(context.Context, string) error { return nil }
