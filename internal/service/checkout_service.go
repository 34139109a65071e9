package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/logger"
)

const unknownProductName = "Unknown Product"

type PricePolicy string

const (
	// PriceLock charges the snapshot price captured when the item was added.
	PriceLock PricePolicy = "lock"
	// PriceRejectOnDrift refuses checkout when the catalog price has moved.
	PriceRejectOnDrift PricePolicy = "reject_on_drift"
)

type OrderPublisher interface {
	OrderPlaced(ctx context.Context, order *domain.Order) error
}

type CartConsumer interface {
	ConsumeCart(ctx context.Context, sessionKey string, fn func(cart *domain.Cart) error) error
}

type CheckoutService struct {
	carts     CartConsumer
	orders    repository.OrderRepository
	catalog   ProductFetcher
	publisher OrderPublisher
	policy    PricePolicy
	log       *zap.Logger
	now       func() time.Time
	newID     func() uuid.UUID
}

func NewCheckoutService(
	carts CartConsumer,
	orders repository.OrderRepository,
	catalog ProductFetcher,
	publisher OrderPublisher,
	policy PricePolicy,
	log *zap.Logger,
) *CheckoutService {
	if policy == "" {
		policy = PriceLock
	}
	return &CheckoutService{
		carts:     carts,
		orders:    orders,
		catalog:   catalog,
		publisher: publisher,
		policy:    policy,
		log:       log,
		now:       time.Now,
		newID:     uuid.New,
	}
}

// Checkout converts the session's cart into a persisted order and empties the
// cart. Order lines and the total come only from the cart's snapshots.
//
// If the order was persisted but the cart could not be cleared, both the
// order and a persistence error are returned; the order stands.
func (s *CheckoutService) Checkout(ctx context.Context, sessionKey string, customer domain.Customer) (*domain.Order, error) {
	customer, err := validateCustomer(customer)
	if err != nil {
		return nil, err
	}

	var order *domain.Order
	err = s.carts.ConsumeCart(ctx, sessionKey, func(cart *domain.Cart) error {
		if cart.IsEmpty() {
			return domain.ErrEmptyCart
		}

		items, err := buildOrderItems(cart)
		if err != nil {
			return err
		}

		if s.policy == PriceRejectOnDrift {
			if err := s.checkPrices(ctx, items); err != nil {
				return err
			}
		}

		total := domain.LineTotal(items)
		if !total.IsPositive() {
			return domain.ErrInvalidTotal
		}

		o := &domain.Order{
			ID:         s.newID(),
			SessionKey: sessionKey,
			Items:      items,
			Total:      total,
			Customer:   customer,
			CreatedAt:  s.now().UTC(),
		}
		if err := s.orders.CreateOrder(ctx, o); err != nil {
			return domain.Wrap(domain.KindPersistence, "failed to save order", err)
		}
		order = o
		return nil
	})

	if order == nil {
		return nil, err
	}

	log := logger.WithContext(ctx, s.log).With(
		zap.String("order_id", order.ID.String()),
		zap.String("total", order.Total.StringFixed(2)),
	)
	if err != nil {
		log.Error("order placed but cart was not cleared", zap.Error(err))
	} else {
		log.Info("order placed", zap.Int("items", len(order.Items)))
	}

	s.publish(ctx, order)
	return order, err
}

func (s *CheckoutService) publish(ctx context.Context, order *domain.Order) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.OrderPlaced(ctx, order); err != nil {
		logger.WithContext(ctx, s.log).Warn("failed to publish order placed event",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
	}
}

// checkPrices compares each snapshot price with the catalog's current price.
func (s *CheckoutService) checkPrices(ctx context.Context, items []domain.OrderItem) error {
	for _, item := range items {
		current, err := s.catalog.FetchOne(ctx, item.ProductID)
		if err != nil {
			var derr *domain.Error
			if errors.As(err, &derr) && derr.Kind == domain.KindNotFound {
				return domain.ProductError(domain.KindProductUnresolvable, item.ProductID,
					fmt.Sprintf("product %s is no longer available", item.ProductID))
			}
			return err
		}
		if !current.Price.Equal(item.Price) {
			return &domain.Error{
				Kind:      domain.KindPriceChanged,
				Message:   fmt.Sprintf("price of product %s changed from %s to %s", item.ProductID, item.Price.StringFixed(2), current.Price.StringFixed(2)),
				ProductID: item.ProductID,
			}
		}
	}
	return nil
}

func buildOrderItems(cart *domain.Cart) ([]domain.OrderItem, error) {
	items := make([]domain.OrderItem, 0, len(cart.Items))
	for _, line := range cart.Items {
		if line.Snapshot == nil {
			return nil, domain.ProductError(domain.KindIncompleteLineItem, line.ProductID,
				fmt.Sprintf("product data missing for item %s", line.ProductID))
		}

		price := line.Snapshot.Price
		if price.IsNegative() {
			price = decimal.Zero
		}
		quantity := line.Quantity
		if quantity < 1 {
			quantity = 1
		}
		name := strings.TrimSpace(line.Snapshot.Name)
		if name == "" {
			name = unknownProductName
		}

		items = append(items, domain.OrderItem{
			ProductID: line.ProductID,
			Name:      name,
			Price:     price,
			Quantity:  quantity,
		})
	}
	return items, nil
}

func validateCustomer(c domain.Customer) (domain.Customer, error) {
	c = domain.Customer{
		Name:    strings.TrimSpace(c.Name),
		Email:   strings.TrimSpace(c.Email),
		Address: strings.TrimSpace(c.Address),
	}

	var missing []string
	if c.Name == "" {
		missing = append(missing, "name")
	}
	if c.Email == "" {
		missing = append(missing, "email")
	}
	if c.Address == "" {
		missing = append(missing, "address")
	}
	if len(missing) > 0 {
		return c, domain.NewError(domain.KindValidation, "missing required fields: "+strings.Join(missing, ", "))
	}

	local, host, ok := strings.Cut(c.Email, "@")
	if !ok || local == "" || host == "" || strings.Contains(host, "@") {
		return c, domain.NewError(domain.KindValidation, "email is invalid")
	}
	return c, nil
}
