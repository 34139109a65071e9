package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/lock"
)

type checkoutFixture struct {
	carts     *CartService
	cartRepo  *mockCartRepository
	orders    *mockOrderRepository
	fetcher   *mockFetcher
	publisher *mockPublisher
	sut       *CheckoutService
}

func newCheckoutFixture(policy PricePolicy) *checkoutFixture {
	f := &checkoutFixture{
		cartRepo:  newMockCartRepository(),
		orders:    newMockOrderRepository(),
		fetcher:   newMockFetcher(),
		publisher: &mockPublisher{},
	}
	f.carts = NewCartService(f.cartRepo, nil, lock.NewLocalLocker(), zap.NewNop())
	f.sut = NewCheckoutService(f.carts, f.orders, f.fetcher, f.publisher, policy, zap.NewNop())
	f.sut.now = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
	return f
}

var validCustomer = domain.Customer{Name: "Ada", Email: "ada@example.com", Address: "1 Main St"}

func (f *checkoutFixture) add(t *testing.T, session, id, name, price string, qty int) {
	t.Helper()
	_, err := f.carts.AddItem(context.Background(), session, id, qty, snapshot(id, name, price))
	require.NoError(t, err)
}

func (f *checkoutFixture) cartItems(t *testing.T, session string) []domain.CartItem {
	t.Helper()
	cart, err := f.carts.Read(context.Background(), session)
	require.NoError(t, err)
	return cart.Items
}

func TestCheckout_PlacesOrderAndClearsCart(t *testing.T) {
	f := newCheckoutFixture(PriceLock)
	f.add(t, "s1", "1", "Classic Leather Tote", "89.99", 3)

	order, err := f.sut.Checkout(context.Background(), "s1", validCustomer)
	require.NoError(t, err)

	require.Len(t, order.Items, 1)
	assert.Equal(t, "Classic Leather Tote", order.Items[0].Name)
	assert.Equal(t, 3, order.Items[0].Quantity)
	assert.Equal(t, "269.97", order.Total.StringFixed(2))
	assert.Equal(t, "s1", order.SessionKey)
	assert.Equal(t, validCustomer, order.Customer)
	assert.NotEqual(t, uuid.Nil, order.ID)

	assert.Empty(t, f.cartItems(t, "s1"))

	stored, err := f.orders.GetOrderByID(context.Background(), order.ID)
	require.NoError(t, err)
	assert.True(t, stored.Total.Equal(order.Total))

	assert.Equal(t, []uuid.UUID{order.ID}, f.publisher.published())
	assert.Zero(t, f.fetcher.callCount(), "locked prices need no catalog lookups")
}

func TestCheckout_TotalSumsLines(t *testing.T) {
	f := newCheckoutFixture(PriceLock)
	f.add(t, "s1", "1", "Tote", "89.99", 2)
	f.add(t, "s1", "2", "Clutch", "0.10", 3)
	f.add(t, "s1", "3", "Wallet", "19.333", 1)

	order, err := f.sut.Checkout(context.Background(), "s1", validCustomer)
	require.NoError(t, err)

	assert.Len(t, order.Items, 3)
	// 179.98 + 0.30 + 19.333 rounded once
	assert.Equal(t, "199.61", order.Total.StringFixed(2))
}

func TestCheckout_TrimsCustomer(t *testing.T) {
	f := newCheckoutFixture(PriceLock)
	f.add(t, "s1", "1", "Tote", "10", 1)

	order, err := f.sut.Checkout(context.Background(), "s1", domain.Customer{
		Name: "  Ada ", Email: " ada@example.com", Address: "1 Main St  ",
	})
	require.NoError(t, err)
	assert.Equal(t, validCustomer, order.Customer)
}

func TestCheckout_ValidationErrors(t *testing.T) {
	tests := []struct {
		name     string
		customer domain.Customer
		contains string
	}{
		{"all missing", domain.Customer{}, "name, email, address"},
		{"blank name", domain.Customer{Name: "   ", Email: "a@b.c", Address: "x"}, "name"},
		{"missing address", domain.Customer{Name: "a", Email: "a@b.c"}, "address"},
		{"email without at", domain.Customer{Name: "a", Email: "ab.c", Address: "x"}, "email is invalid"},
		{"email without host", domain.Customer{Name: "a", Email: "a@", Address: "x"}, "email is invalid"},
		{"email with two ats", domain.Customer{Name: "a", Email: "a@b@c", Address: "x"}, "email is invalid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCheckoutFixture(PriceLock)
			f.add(t, "s1", "1", "Tote", "10", 1)

			order, err := f.sut.Checkout(context.Background(), "s1", tt.customer)
			assert.Nil(t, order)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.ErrorContains(t, err, tt.contains)
			assert.Len(t, f.cartItems(t, "s1"), 1)
		})
	}
}

func TestCheckout_EmptyCart(t *testing.T) {
	f := newCheckoutFixture(PriceLock)

	order, err := f.sut.Checkout(context.Background(), "s1", validCustomer)
	assert.Nil(t, order)
	assert.ErrorIs(t, err, domain.ErrEmptyCart)
	assert.Zero(t, f.orders.createdCount())
	assert.Empty(t, f.publisher.published())
}

func TestCheckout_IncompleteLineItem(t *testing.T) {
	f := newCheckoutFixture(PriceLock)
	f.add(t, "s1", "1", "Tote", "10", 1)

	// a line persisted without a snapshot, e.g. by an older writer
	cart, err := f.cartRepo.GetCart(context.Background(), "s1")
	require.NoError(t, err)
	cart.Items = append(cart.Items, domain.CartItem{ProductID: "9", Quantity: 1})
	require.NoError(t, f.cartRepo.SaveCart(context.Background(), cart))

	order, err := f.sut.Checkout(context.Background(), "s1", validCustomer)
	assert.Nil(t, order)
	require.ErrorIs(t, err, domain.ErrIncompleteLineItem)
	assert.Equal(t, "9", err.(*domain.Error).ProductID)

	assert.Zero(t, f.orders.createdCount())
	assert.Len(t, f.cartItems(t, "s1"), 2)
}

func TestCheckout_InvalidTotal(t *testing.T) {
	f := newCheckoutFixture(PriceLock)
	f.add(t, "s1", "1", "Freebie", "0", 2)

	order, err := f.sut.Checkout(context.Background(), "s1", validCustomer)
	assert.Nil(t, order)
	assert.ErrorIs(t, err, domain.ErrInvalidTotal)
	assert.Len(t, f.cartItems(t, "s1"), 1)
}

func TestCheckout_NormalizesLines(t *testing.T) {
	f := newCheckoutFixture(PriceLock)
	f.add(t, "s1", "1", "   ", "5.00", 1)
	f.add(t, "s1", "2", "Refund", "-3.00", 1)

	order, err := f.sut.Checkout(context.Background(), "s1", validCustomer)
	require.NoError(t, err)

	assert.Equal(t, unknownProductName, order.Items[0].Name)
	assert.True(t, order.Items[1].Price.IsZero())
	assert.Equal(t, "5.00", order.Total.StringFixed(2))
}

func TestCheckout_PersistFailureKeepsCart(t *testing.T) {
	f := newCheckoutFixture(PriceLock)
	f.add(t, "s1", "1", "Tote", "10", 1)
	f.orders.err = errors.New("connection refused")

	order, err := f.sut.Checkout(context.Background(), "s1", validCustomer)
	assert.Nil(t, order)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Len(t, f.cartItems(t, "s1"), 1)
	assert.Empty(t, f.publisher.published())
}

func TestCheckout_ClearFailureStillReturnsOrder(t *testing.T) {
	f := newCheckoutFixture(PriceLock)
	f.add(t, "s1", "1", "Tote", "10", 1)
	f.cartRepo.failSaves(errors.New("write failed"))

	order, err := f.sut.Checkout(context.Background(), "s1", validCustomer)
	require.NotNil(t, order)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.Equal(t, 1, f.orders.createdCount())
	assert.Equal(t, []uuid.UUID{order.ID}, f.publisher.published())
}

func TestCheckout_PublishFailureIsNotFatal(t *testing.T) {
	f := newCheckoutFixture(PriceLock)
	f.publisher.err = errors.New("broker down")
	f.add(t, "s1", "1", "Tote", "10", 1)

	order, err := f.sut.Checkout(context.Background(), "s1", validCustomer)
	require.NoError(t, err)
	assert.NotNil(t, order)
}

func TestCheckout_LockedPriceIgnoresCatalogDrift(t *testing.T) {
	f := newCheckoutFixture(PriceLock)
	f.add(t, "s1", "1", "Tote", "89.99", 1)
	f.fetcher.products["1"] = *snapshot("1", "Tote", "120.00")

	order, err := f.sut.Checkout(context.Background(), "s1", validCustomer)
	require.NoError(t, err)
	assert.Equal(t, "89.99", order.Total.StringFixed(2))
}

func TestCheckout_RejectOnDrift(t *testing.T) {
	tests := []struct {
		name    string
		catalog map[string]domain.ProductSnapshot
		errs    map[string]error
		wantErr error
		wantID  string
	}{
		{
			name:    "price unchanged",
			catalog: map[string]domain.ProductSnapshot{"1": {ID: "1", Price: decimal.RequireFromString("89.990")}},
		},
		{
			name:    "price moved",
			catalog: map[string]domain.ProductSnapshot{"1": {ID: "1", Price: decimal.RequireFromString("95.00")}},
			wantErr: domain.ErrPriceChanged,
			wantID:  "1",
		},
		{
			name:    "product gone",
			catalog: map[string]domain.ProductSnapshot{},
			wantErr: domain.ErrProductUnresolvable,
			wantID:  "1",
		},
		{
			name:    "catalog down",
			catalog: map[string]domain.ProductSnapshot{},
			errs:    map[string]error{"1": domain.Wrap(domain.KindCatalogUnavailable, "catalog timed out", nil)},
			wantErr: domain.ErrCatalogUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newCheckoutFixture(PriceRejectOnDrift)
			f.add(t, "s1", "1", "Tote", "89.99", 1)
			f.fetcher.products = tt.catalog
			if tt.errs != nil {
				f.fetcher.errs = tt.errs
			}

			order, err := f.sut.Checkout(context.Background(), "s1", validCustomer)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.Equal(t, "89.99", order.Total.StringFixed(2))
				assert.Empty(t, f.cartItems(t, "s1"))
				return
			}

			assert.Nil(t, order)
			require.ErrorIs(t, err, tt.wantErr)
			if tt.wantID != "" {
				var derr *domain.Error
				require.ErrorAs(t, err, &derr)
				assert.Equal(t, tt.wantID, derr.ProductID)
			}
			assert.Len(t, f.cartItems(t, "s1"), 1)
			assert.Zero(t, f.orders.createdCount())
		})
	}
}

func TestCheckout_SessionsAreIndependent(t *testing.T) {
	f := newCheckoutFixture(PriceLock)
	f.add(t, "s1", "1", "Tote", "10", 1)
	f.add(t, "s2", "2", "Clutch", "20", 1)

	_, err := f.sut.Checkout(context.Background(), "s1", validCustomer)
	require.NoError(t, err)

	assert.Empty(t, f.cartItems(t, "s1"))
	assert.Len(t, f.cartItems(t, "s2"), 1)
}

func TestCheckout_ConcurrentCheckoutsPlaceOneOrder(t *testing.T) {
	f := newCheckoutFixture(PriceLock)
	f.add(t, "s1", "1", "Tote", "10", 1)

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := f.sut.Checkout(context.Background(), "s1", validCustomer)
			results <- err
		}()
	}

	var succeeded, empty int
	for i := 0; i < 2; i++ {
		err := <-results
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrEmptyCart):
			empty++
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, empty)
	assert.Equal(t, 1, f.orders.createdCount())
}
