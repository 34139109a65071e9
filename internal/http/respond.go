package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/logger"
)

// retryAfterSeconds is sent with every catalog_unavailable response.
const retryAfterSeconds = "5"

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// the status is already written; an encode failure means the client left
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleError renders err as a JSON error. Kinds that map to 5xx are logged
// with their cause and answered with a generic message.
func handleError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		logger.WithContext(r.Context(), log).Error("unhandled error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	status := statusFor(derr.Kind)
	message := derr.Message
	switch {
	case status == http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", retryAfterSeconds)
		logger.WithContext(r.Context(), log).Warn("catalog unavailable", zap.Error(err))
	case status >= http.StatusInternalServerError:
		logger.WithContext(r.Context(), log).Error("request failed",
			zap.String("kind", string(derr.Kind)),
			zap.Error(err),
		)
		message = "internal server error"
	}

	respondJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    string(derr.Kind),
		Details: derr.ProductID,
	})
}

func statusFor(kind domain.Kind) int {
	switch kind {
	case domain.KindValidation,
		domain.KindEmptyCart,
		domain.KindIncompleteLineItem,
		domain.KindInvalidTotal,
		domain.KindProductUnresolvable:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindPriceChanged:
		return http.StatusConflict
	case domain.KindCatalogUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
