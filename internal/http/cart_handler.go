package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/service"
)

const maxQuantity = 99

type CartStore interface {
	Read(ctx context.Context, sessionKey string) (*domain.Cart, error)
	AddItem(ctx context.Context, sessionKey, productID string, quantity int, snapshot *domain.ProductSnapshot) (*domain.Cart, error)
	RemoveItem(ctx context.Context, sessionKey, productID string) (*domain.Cart, error)
}

type CartPresenter interface {
	Present(ctx context.Context, cart *domain.Cart) service.PresentableCart
}

type ProductLookup interface {
	FetchOne(ctx context.Context, id string) (domain.ProductSnapshot, error)
}

type CartHandler struct {
	carts     CartStore
	presenter CartPresenter
	catalog   ProductLookup
	log       *zap.Logger
}

func NewCartHandler(carts CartStore, presenter CartPresenter, catalog ProductLookup, log *zap.Logger) *CartHandler {
	return &CartHandler{
		carts:     carts,
		presenter: presenter,
		catalog:   catalog,
		log:       log,
	}
}

// productID accepts a JSON string or number.
type productID string

func (p *productID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = productID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*p = productID(n.String())
	return nil
}

type AddItemRequestDTO struct {
	ProductID productID `json:"productId"`
	Quantity  *int      `json:"quantity"`
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, string(domain.KindValidation), "invalid JSON body")
		return
	}

	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, string(domain.KindValidation), "productId is required")
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	if quantity < 1 || quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, string(domain.KindValidation), "quantity must be between 1 and 99")
		return
	}

	ctx := r.Context()
	id := string(req.ProductID)

	snapshot, err := h.catalog.FetchOne(ctx, id)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	// keyed by the catalog's id so aliases of one product share a line
	if snapshot.ID != "" {
		id = snapshot.ID
	}
	cart, err := h.carts.AddItem(ctx, getSessionKey(ctx), id, quantity, &snapshot)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, h.presenter.Present(ctx, cart))
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	cart, err := h.carts.Read(ctx, getSessionKey(ctx))
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, h.presenter.Present(ctx, cart))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := strings.TrimSpace(chi.URLParam(r, "productId"))
	if id == "" {
		respondError(w, http.StatusBadRequest, string(domain.KindValidation), "productId is required")
		return
	}

	cart, err := h.carts.RemoveItem(ctx, getSessionKey(ctx), id)
	if err != nil {
		handleError(w, r, h.log, err)
		return
	}

	respondJSON(w, http.StatusOK, h.presenter.Present(ctx, cart))
}
