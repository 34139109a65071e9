package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
)

type OrderReader interface {
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersBySession(ctx context.Context, sessionKey string) ([]*domain.Order, error)
}

type OrdersHandler struct {
	orders OrderReader
	log    *zap.Logger
}

func NewOrdersHandler(orders OrderReader, log *zap.Logger) *OrdersHandler {
	return &OrdersHandler{orders: orders, log: log}
}

type OrdersResponse struct {
	Orders []*domain.Order `json:"orders"`
}

func (h *OrdersHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, string(domain.KindValidation), "orderId must be a UUID")
		return
	}

	order, err := h.orders.GetOrderByID(ctx, id)
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, string(domain.KindNotFound), "order not found")
		return
	case err != nil:
		handleError(w, r, h.log, domain.Wrap(domain.KindPersistence, "failed to load order", err))
		return
	}

	// orders of other sessions are indistinguishable from missing ones
	if order.SessionKey != getSessionKey(ctx) {
		respondError(w, http.StatusNotFound, string(domain.KindNotFound), "order not found")
		return
	}

	respondJSON(w, http.StatusOK, order)
}

func (h *OrdersHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orders, err := h.orders.ListOrdersBySession(ctx, getSessionKey(ctx))
	if err != nil {
		handleError(w, r, h.log, domain.Wrap(domain.KindPersistence, "failed to list orders", err))
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}

	respondJSON(w, http.StatusOK, &OrdersResponse{Orders: orders})
}
