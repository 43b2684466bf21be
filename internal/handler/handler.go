// Package handler exposes the order registration API over HTTP. Handlers are
// thin: they decode JSON, delegate to the order service, and map domain
// errors to status codes.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/WilcoLouwerse/orderregistratiecomponent/internal/domain/order"
)

// Handler serves the order endpoints.
type Handler struct {
	orders *order.Service
}

// New constructs a Handler around the order service.
func New(orders *order.Service) *Handler {
	return &Handler{orders: orders}
}

// Register mounts the order routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders", h.CreateOrder)
	mux.HandleFunc("GET /api/orders", h.ListOrders)
	mux.HandleFunc("GET /api/orders/{id}", h.GetOrder)
	mux.HandleFunc("PUT /api/orders/{id}", h.UpdateOrder)
}

// errorBody is the uniform JSON error payload.
type errorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zctx.From(r.Context()).Error("encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, errorBody{Code: status, Message: msg})
}
