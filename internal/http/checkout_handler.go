package http

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/logger"
)

type Checkouter interface {
	Checkout(ctx context.Context, sessionKey string, customer domain.Customer) (*domain.Order, error)
}

type CheckoutHandler struct {
	checkout Checkouter
	log      *zap.Logger
}

func NewCheckoutHandler(checkout Checkouter, log *zap.Logger) *CheckoutHandler {
	return &CheckoutHandler{checkout: checkout, log: log}
}

type CheckoutRequestDTO struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
}

func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, string(domain.KindValidation), "invalid JSON body")
		return
	}

	ctx := r.Context()
	order, err := h.checkout.Checkout(ctx, getSessionKey(ctx), domain.Customer{
		Name:    req.Name,
		Email:   req.Email,
		Address: req.Address,
	})
	if order == nil {
		handleError(w, r, h.log, err)
		return
	}

	if err != nil {
		// the order stands; the cart still holds items until the next write
		logger.WithContext(ctx, h.log).Warn("checkout completed with stale cart",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		w.Header().Set("Warning", `199 - "order placed but the cart could not be cleared"`)
	}

	respondJSON(w, http.StatusCreated, order)
}
