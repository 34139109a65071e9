package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/fjod/storefront/internal/domain"
)

// MemoryCartRepository keeps carts in process memory. Carts are cloned on the
// way in and out so callers never share state with the store.
type MemoryCartRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
}

func NewMemoryCartRepository() *MemoryCartRepository {
	return &MemoryCartRepository{carts: make(map[string]*domain.Cart)}
}

func (m *MemoryCartRepository) GetCart(_ context.Context, sessionKey string) (*domain.Cart, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cart, ok := m.carts[sessionKey]
	if !ok {
		return nil, ErrCartNotFound
	}
	return cart.Clone(), nil
}

func (m *MemoryCartRepository) SaveCart(_ context.Context, cart *domain.Cart) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored, ok := m.carts[cart.SessionKey]
	switch {
	case !ok && cart.Version != 0:
		return ErrVersionConflict
	case ok && stored.Version != cart.Version:
		return ErrVersionConflict
	}

	cart.Version++
	m.carts[cart.SessionKey] = cart.Clone()
	return nil
}

type MemoryOrderRepository struct {
	mu     sync.RWMutex
	orders map[uuid.UUID]*domain.Order
}

func NewMemoryOrderRepository() *MemoryOrderRepository {
	return &MemoryOrderRepository{orders: make(map[uuid.UUID]*domain.Order)}
}

func (m *MemoryOrderRepository) CreateOrder(_ context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[order.ID]; ok {
		return ErrDuplicateOrder
	}
	m.orders[order.ID] = copyOrder(order)
	return nil
}

func (m *MemoryOrderRepository) GetOrderByID(_ context.Context, id uuid.UUID) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return copyOrder(order), nil
}

func (m *MemoryOrderRepository) ListOrdersBySession(_ context.Context, sessionKey string) ([]*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	orders := []*domain.Order{}
	for _, order := range m.orders {
		if order.SessionKey == sessionKey {
			orders = append(orders, copyOrder(order))
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

func copyOrder(o *domain.Order) *domain.Order {
	out := *o
	out.Items = append([]domain.OrderItem(nil), o.Items...)
	return &out
}
