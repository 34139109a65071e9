package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/lock"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/logger"
)

// maxSaveAttempts bounds compare-and-swap retries on a version conflict.
const maxSaveAttempts = 3

// CartService owns per-session carts. Every mutation runs under the session
// lock and is persisted before it returns.
type CartService struct {
	repo   repository.CartRepository
	cache  cache.CartCache
	locker lock.Locker
	log    *zap.Logger
	now    func() time.Time
	sfg    singleflight.Group // Prevents cache stampede
}

func NewCartService(repo repository.CartRepository, c cache.CartCache, locker lock.Locker, log *zap.Logger) *CartService {
	if c == nil {
		c = cache.NoopCache{}
	}
	return &CartService{
		repo:   repo,
		cache:  c,
		locker: locker,
		log:    log,
		now:    time.Now,
	}
}

// Read returns the current cart without side effects. A session with no
// stored cart reads as an empty one.
func (s *CartService) Read(ctx context.Context, sessionKey string) (*domain.Cart, error) {
	cart, err := s.cache.Get(ctx, sessionKey)
	if err == nil {
		return cart, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		logger.WithContext(ctx, s.log).Warn("cache get error", zap.String("session", sessionKey), zap.Error(err))
	}

	v, err, _ := s.sfg.Do(sessionKey, func() (interface{}, error) {
		// held so a concurrent write cannot be overwritten in the cache by
		// the older cart loaded here
		unlock, err := s.lock(ctx, sessionKey)
		if err != nil {
			return nil, err
		}
		defer unlock()

		cart, err := s.repo.GetCart(ctx, sessionKey)
		if errors.Is(err, repository.ErrCartNotFound) {
			return domain.NewCart(sessionKey, s.now()), nil
		}
		if err != nil {
			return nil, domain.Wrap(domain.KindPersistence, "failed to load cart", err)
		}
		s.cacheSet(ctx, cart)
		return cart, nil
	})
	if err != nil {
		return nil, err
	}

	// singleflight hands the same pointer to every waiter
	return v.(*domain.Cart).Clone(), nil
}

// GetOrCreate returns the stored cart, creating and persisting an empty one
// on first access.
func (s *CartService) GetOrCreate(ctx context.Context, sessionKey string) (*domain.Cart, error) {
	return s.mutate(ctx, sessionKey, func(cart *domain.Cart) bool { return cart.Version == 0 })
}

// AddItem increments an existing line or appends a new one. snapshot must be
// present; a nil snapshot fails with domain.ErrProductUnresolvable.
func (s *CartService) AddItem(ctx context.Context, sessionKey, productID string, quantity int, snapshot *domain.ProductSnapshot) (*domain.Cart, error) {
	if productID == "" {
		return nil, domain.NewError(domain.KindValidation, "productId is required")
	}
	if quantity < 1 {
		return nil, domain.NewError(domain.KindValidation, "quantity must be at least 1")
	}
	if snapshot == nil {
		return nil, domain.ProductError(domain.KindProductUnresolvable, productID, "product "+productID+" could not be resolved")
	}

	snap := snapshot.Copy()
	return s.mutate(ctx, sessionKey, func(cart *domain.Cart) bool {
		cart.AddItem(productID, quantity, snap, s.now())
		return true
	})
}

// RemoveItem deletes the line for productID. Removing an absent product
// leaves the cart untouched.
func (s *CartService) RemoveItem(ctx context.Context, sessionKey, productID string) (*domain.Cart, error) {
	return s.mutate(ctx, sessionKey, func(cart *domain.Cart) bool {
		return cart.RemoveItem(productID, s.now())
	})
}

func (s *CartService) Clear(ctx context.Context, sessionKey string) (*domain.Cart, error) {
	return s.mutate(ctx, sessionKey, func(cart *domain.Cart) bool {
		if cart.IsEmpty() {
			return false
		}
		cart.Clear(s.now())
		return true
	})
}

// ConsumeCart runs fn on the stored cart inside the session lock and clears
// the cart only when fn succeeds. An error from fn is returned unchanged and
// leaves the cart as it was. A failure to clear after fn succeeded is
// returned as a persistence error.
func (s *CartService) ConsumeCart(ctx context.Context, sessionKey string, fn func(cart *domain.Cart) error) error {
	unlock, err := s.lock(ctx, sessionKey)
	if err != nil {
		return err
	}
	defer unlock()

	cart, err := s.load(ctx, sessionKey)
	if err != nil {
		return err
	}

	if err := fn(cart.Clone()); err != nil {
		return err
	}

	cart.Clear(s.now())
	if err := s.save(ctx, cart); err != nil {
		return domain.Wrap(domain.KindPersistence, "order placed but the cart could not be cleared", err)
	}
	return nil
}

// mutate applies change to the stored cart under the session lock. change
// reports whether the cart needs writing; nothing is saved otherwise.
func (s *CartService) mutate(ctx context.Context, sessionKey string, change func(cart *domain.Cart) bool) (*domain.Cart, error) {
	unlock, err := s.lock(ctx, sessionKey)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		cart, err := s.load(ctx, sessionKey)
		if err != nil {
			return nil, err
		}

		if !change(cart) {
			return cart.Clone(), nil
		}

		lastErr = s.save(ctx, cart)
		if lastErr == nil {
			return cart.Clone(), nil
		}
		if !errors.Is(lastErr, repository.ErrVersionConflict) {
			break
		}
		logger.WithContext(ctx, s.log).Warn("cart version conflict, retrying",
			zap.String("session", sessionKey),
			zap.Int("attempt", attempt+1),
		)
	}

	return nil, domain.Wrap(domain.KindPersistence, "failed to save cart", lastErr)
}

func (s *CartService) lock(ctx context.Context, sessionKey string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, sessionKey)
	if err != nil {
		return nil, domain.Wrap(domain.KindPersistence, "cart is busy, try again", err)
	}
	return unlock, nil
}

// load reads the authoritative cart from the store, bypassing the cache.
func (s *CartService) load(ctx context.Context, sessionKey string) (*domain.Cart, error) {
	cart, err := s.repo.GetCart(ctx, sessionKey)
	if errors.Is(err, repository.ErrCartNotFound) {
		return domain.NewCart(sessionKey, s.now()), nil
	}
	if err != nil {
		return nil, domain.Wrap(domain.KindPersistence, "failed to load cart", err)
	}
	return cart, nil
}

func (s *CartService) save(ctx context.Context, cart *domain.Cart) error {
	if err := s.repo.SaveCart(ctx, cart); err != nil {
		s.cacheDelete(ctx, cart.SessionKey)
		return err
	}
	s.cacheSet(ctx, cart)
	return nil
}

func (s *CartService) cacheSet(ctx context.Context, cart *domain.Cart) {
	if err := s.cache.Set(ctx, cart.SessionKey, cart); err != nil {
		logger.WithContext(ctx, s.log).Warn("cache set error", zap.String("session", cart.SessionKey), zap.Error(err))
	}
}

func (s *CartService) cacheDelete(ctx context.Context, sessionKey string) {
	if err := s.cache.Delete(ctx, sessionKey); err != nil {
		logger.WithContext(ctx, s.log).Warn("cache invalidate error", zap.String("session", sessionKey), zap.Error(err))
	}
}
