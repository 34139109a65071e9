package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/fjod/storefront/internal/domain"
)

var (
	ErrCartNotFound    = errors.New("cart not found")
	ErrVersionConflict = errors.New("cart was modified concurrently")
	ErrOrderNotFound   = errors.New("order not found")
	ErrDuplicateOrder  = errors.New("order already exists")
)

// CartRepository persists whole carts keyed by session. SaveCart is a
// compare-and-swap on Version: a cart with Version 0 is inserted, any other
// cart replaces the stored one only if the stored version still matches.
// On success the cart's Version is advanced in place.
type CartRepository interface {
	GetCart(ctx context.Context, sessionKey string) (*domain.Cart, error)
	SaveCart(ctx context.Context, cart *domain.Cart) error
}

type OrderRepository interface {
	CreateOrder(ctx context.Context, order *domain.Order) error
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	// ListOrdersBySession returns orders newest first.
	ListOrdersBySession(ctx context.Context, sessionKey string) ([]*domain.Order, error)
}

type Credentials struct {
	Host              string
	Port              int
	User              string
	Password          string
	DBName            string
	MigrationsDirPath string
}
