package service

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/logger"
)

// defaultFetchLimit caps concurrent catalog lookups for one cart view.
const defaultFetchLimit = 4

type ProductFetcher interface {
	FetchOne(ctx context.Context, id string) (domain.ProductSnapshot, error)
}

// PresentableItem is a cart line ready for rendering. A degraded item carries
// only its product id and quantity.
type PresentableItem struct {
	ProductID string                  `json:"productId"`
	Quantity  int                     `json:"quantity"`
	Product   *domain.ProductSnapshot `json:"product,omitempty"`
	Degraded  bool                    `json:"degraded,omitempty"`
}

type PresentableCart struct {
	SessionKey     string            `json:"sessionKey"`
	Items          []PresentableItem `json:"items"`
	ItemCount      int               `json:"itemCount"`
	EstimatedTotal decimal.Decimal   `json:"estimatedTotal"`
}

// Reconciler projects carts for display, backfilling missing snapshots from
// the catalog. It never persists and never fails.
type Reconciler struct {
	catalog ProductFetcher
	log     *zap.Logger
	limit   int
}

func NewReconciler(catalog ProductFetcher, log *zap.Logger) *Reconciler {
	return &Reconciler{catalog: catalog, log: log, limit: defaultFetchLimit}
}

func (r *Reconciler) Present(ctx context.Context, cart *domain.Cart) PresentableCart {
	out := PresentableCart{
		SessionKey:     cart.SessionKey,
		Items:          make([]PresentableItem, len(cart.Items)),
		EstimatedTotal: decimal.Zero,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.limit)

	for i, item := range cart.Items {
		out.Items[i] = PresentableItem{ProductID: item.ProductID, Quantity: item.Quantity}
		if item.Snapshot != nil {
			s := item.Snapshot.Copy()
			out.Items[i].Product = &s
			continue
		}

		g.Go(func() error {
			snapshot, err := r.catalog.FetchOne(gctx, item.ProductID)
			if err != nil {
				logger.WithContext(ctx, r.log).Warn("rendering degraded cart item",
					zap.String("product_id", item.ProductID),
					zap.String("kind", string(domain.KindOf(err))),
					zap.Error(err),
				)
				out.Items[i].Degraded = true
				return nil
			}
			out.Items[i].Product = &snapshot
			return nil
		})
	}
	_ = g.Wait()

	lines := make([]domain.OrderItem, 0, len(out.Items))
	for _, item := range out.Items {
		out.ItemCount += item.Quantity
		if item.Product != nil {
			lines = append(lines, domain.OrderItem{Price: item.Product.Price, Quantity: item.Quantity})
		}
	}
	out.EstimatedTotal = domain.LineTotal(lines)

	return out
}
