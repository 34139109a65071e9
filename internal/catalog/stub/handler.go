package stub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type ProductStore interface {
	GetAllProducts(ctx context.Context) ([]Product, error)
	GetProduct(ctx context.Context, id int64) (Product, error)
}

type record struct {
	Product
	Price json.RawMessage `json:"price"`
}

type listResponse struct {
	Products []record `json:"products"`
	Total    int      `json:"total"`
}

type Handler struct {
	store ProductStore
	log   *zap.Logger
}

func NewHandler(store ProductStore, log *zap.Logger) *Handler {
	return &Handler{store: store, log: log}
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/products", h.List)
	r.Get("/products/{id}", h.Get)
	return r
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.GetAllProducts(r.Context())
	if err != nil {
		h.log.Error("list products failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "internal error"})
		return
	}

	records := make([]record, len(products))
	for i, p := range products {
		records[i] = toRecord(p)
	}
	writeJSON(w, http.StatusOK, listResponse{Products: records, Total: len(records)})
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	idParam := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Product with id '" + idParam + "' not found"})
		return
	}

	p, err := h.store.GetProduct(r.Context(), id)
	if errors.Is(err, ErrProductNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "Product with id '" + idParam + "' not found"})
		return
	}
	if err != nil {
		h.log.Error("get product failed", zap.Int64("id", id), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "internal error"})
		return
	}

	writeJSON(w, http.StatusOK, toRecord(p))
}

func toRecord(p Product) record {
	price := json.RawMessage(p.Price)
	if !json.Valid(price) {
		price = json.RawMessage("0")
	}
	return record{Product: p, Price: price}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
