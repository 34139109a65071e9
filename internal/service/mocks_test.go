package service

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
)

// mockCartRepository wraps the in-memory store and lets tests inject
// failures.
type mockCartRepository struct {
	*repository.MemoryCartRepository

	m         sync.Mutex
	getErr    error
	saveErr   error
	conflicts int // SaveCart fails with ErrVersionConflict this many times
	gets      int
	saves     int
}

func newMockCartRepository() *mockCartRepository {
	return &mockCartRepository{MemoryCartRepository: repository.NewMemoryCartRepository()}
}

func (m *mockCartRepository) GetCart(ctx context.Context, sessionKey string) (*domain.Cart, error) {
	m.m.Lock()
	m.gets++
	err := m.getErr
	m.m.Unlock()
	if err != nil {
		return nil, err
	}
	return m.MemoryCartRepository.GetCart(ctx, sessionKey)
}

func (m *mockCartRepository) SaveCart(ctx context.Context, cart *domain.Cart) error {
	m.m.Lock()
	m.saves++
	if m.conflicts > 0 {
		m.conflicts--
		m.m.Unlock()
		return repository.ErrVersionConflict
	}
	err := m.saveErr
	m.m.Unlock()
	if err != nil {
		return err
	}
	return m.MemoryCartRepository.SaveCart(ctx, cart)
}

func (m *mockCartRepository) counts() (gets, saves int) {
	m.m.Lock()
	defer m.m.Unlock()
	return m.gets, m.saves
}

func (m *mockCartRepository) failSaves(err error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.saveErr = err
}

type mockCache struct {
	m      sync.RWMutex
	carts  map[string]*domain.Cart
	getErr error
	setErr error
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[string]*domain.Cart)}
}

func (c *mockCache) Get(_ context.Context, key string) (*domain.Cart, error) {
	c.m.RLock()
	defer c.m.RUnlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	cart, ok := c.carts[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cart.Clone(), nil
}

func (c *mockCache) Set(_ context.Context, key string, cart *domain.Cart) error {
	c.m.Lock()
	defer c.m.Unlock()
	if c.setErr != nil {
		return c.setErr
	}
	c.carts[key] = cart.Clone()
	return nil
}

func (c *mockCache) Delete(_ context.Context, key string) error {
	c.m.Lock()
	defer c.m.Unlock()
	delete(c.carts, key)
	return nil
}

func (c *mockCache) get(key string) *domain.Cart {
	c.m.RLock()
	defer c.m.RUnlock()
	return c.carts[key]
}

type mockFetcher struct {
	m        sync.Mutex
	products map[string]domain.ProductSnapshot
	errs     map[string]error
	delay    time.Duration
	calls    int
}

func newMockFetcher() *mockFetcher {
	return &mockFetcher{
		products: make(map[string]domain.ProductSnapshot),
		errs:     make(map[string]error),
	}
}

func (f *mockFetcher) FetchOne(ctx context.Context, id string) (domain.ProductSnapshot, error) {
	f.m.Lock()
	f.calls++
	p, ok := f.products[id]
	err := f.errs[id]
	delay := f.delay
	f.m.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return domain.ProductSnapshot{}, domain.Wrap(domain.KindCatalogUnavailable, "timeout", ctx.Err())
		}
	}
	if err != nil {
		return domain.ProductSnapshot{}, err
	}
	if !ok {
		return domain.ProductSnapshot{}, domain.ProductError(domain.KindNotFound, id, "product "+id+" not found")
	}
	return p, nil
}

func (f *mockFetcher) callCount() int {
	f.m.Lock()
	defer f.m.Unlock()
	return f.calls
}

type mockOrderRepository struct {
	*repository.MemoryOrderRepository

	m       sync.Mutex
	err     error
	created int
}

func newMockOrderRepository() *mockOrderRepository {
	return &mockOrderRepository{MemoryOrderRepository: repository.NewMemoryOrderRepository()}
}

func (m *mockOrderRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	m.m.Lock()
	err := m.err
	if err == nil {
		m.created++
	}
	m.m.Unlock()
	if err != nil {
		return err
	}
	return m.MemoryOrderRepository.CreateOrder(ctx, order)
}

func (m *mockOrderRepository) createdCount() int {
	m.m.Lock()
	defer m.m.Unlock()
	return m.created
}

type mockPublisher struct {
	m      sync.Mutex
	orders []uuid.UUID
	err    error
}

func (p *mockPublisher) OrderPlaced(_ context.Context, order *domain.Order) error {
	p.m.Lock()
	defer p.m.Unlock()
	p.orders = append(p.orders, order.ID)
	return p.err
}

func (p *mockPublisher) published() []uuid.UUID {
	p.m.Lock()
	defer p.m.Unlock()
	return append([]uuid.UUID(nil), p.orders...)
}

func snapshot(id, name, price string) *domain.ProductSnapshot {
	return &domain.ProductSnapshot{
		ID:      id,
		Name:    name,
		Price:   decimal.RequireFromString(price),
		InStock: true,
	}
}
