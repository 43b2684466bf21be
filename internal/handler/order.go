package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/WilcoLouwerse/orderregistratiecomponent/internal/domain/order"
	"github.com/WilcoLouwerse/orderregistratiecomponent/internal/domain/organization"
)

// orderItemRequest carries one line item as sent by clients. Price is kept
// raw so order.ParseUnitPrice can apply the string/minor-unit normalization
// rule exactly once, at this boundary.
type orderItemRequest struct {
	Price         json.RawMessage `json:"price"`
	PriceCurrency string          `json:"priceCurrency"`
	Quantity      int64           `json:"quantity"`
	Taxes         []taxPayload    `json:"taxes"`
}

type taxPayload struct {
	Percentage decimal.Decimal `json:"percentage"`
}

type createOrderRequest struct {
	TargetOrganization string             `json:"targetOrganization"`
	Items              []orderItemRequest `json:"items"`
}

type updateOrderRequest struct {
	Items []orderItemRequest `json:"items"`
}

type orderResponse struct {
	ID                 string              `json:"id"`
	Reference          string              `json:"reference,omitempty"`
	ReferenceID        int64               `json:"referenceId,omitempty"`
	TargetOrganization string              `json:"targetOrganization"`
	Price              string              `json:"price"`
	PriceCurrency      string              `json:"priceCurrency"`
	Taxes              map[string]string   `json:"taxes"`
	Items              []orderItemResponse `json:"items"`
	CreatedAt          time.Time           `json:"createdAt"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

type orderItemResponse struct {
	Price         string       `json:"price"`
	PriceCurrency string       `json:"priceCurrency"`
	Quantity      int64        `json:"quantity"`
	Taxes         []taxPayload `json:"taxes"`
}

// CreateOrder registers a new order: POST /api/orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}

	items, err := decodeItems(req.Items)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	o, err := h.orders.Create(r.Context(), order.CreateOrderRequest{
		TargetOrganization: req.TargetOrganization,
		Items:              items,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusCreated, toOrderResponse(o))
}

// UpdateOrder replaces an order's items and recomputes its totals:
// PUT /api/orders/{id}. The reference is immutable on this path.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}

	items, err := decodeItems(req.Items)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	o, err := h.orders.Update(r.Context(), r.PathValue("id"), items)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderResponse(o))
}

// GetOrder fetches one order: GET /api/orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, toOrderResponse(o))
}

// ListOrders returns all orders: GET /api/orders.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.orders.List(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	resp := make([]orderResponse, len(list))
	for i := range list {
		resp[i] = toOrderResponse(&list[i])
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// respondError maps domain errors to HTTP status codes.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		invalidAmount *order.InvalidAmountError
		mismatch      *order.CurrencyMismatchError
		badQuantity   *order.InvalidQuantityError
		resolution    *organization.ResolutionError
	)
	switch {
	case errors.As(err, &invalidAmount),
		errors.As(err, &mismatch),
		errors.As(err, &badQuantity):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &resolution):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, order.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "order not found")
	default:
		zctx.From(r.Context()).Error("order request failed", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func decodeItems(items []orderItemRequest) ([]order.OrderItem, error) {
	decoded := make([]order.OrderItem, len(items))
	for i, item := range items {
		price, err := order.ParseUnitPrice(item.Price)
		if err != nil {
			return nil, err
		}
		taxes := make([]order.Tax, len(item.Taxes))
		for j, t := range item.Taxes {
			taxes[j] = order.Tax{Percentage: t.Percentage}
		}
		decoded[i] = order.OrderItem{
			Price:         price,
			PriceCurrency: item.PriceCurrency,
			Quantity:      item.Quantity,
			Taxes:         taxes,
		}
	}
	return decoded, nil
}

func toOrderResponse(o *order.Order) orderResponse {
	taxes := make(map[string]string, len(o.Taxes))
	for rate, amount := range o.Taxes {
		taxes[rate] = amount.StringFixed(2)
	}
	items := make([]orderItemResponse, len(o.Items))
	for i, item := range o.Items {
		t := make([]taxPayload, len(item.Taxes))
		for j, tax := range item.Taxes {
			t[j] = taxPayload{Percentage: tax.Percentage}
		}
		items[i] = orderItemResponse{
			Price:         item.Price.StringFixed(2),
			PriceCurrency: item.PriceCurrency,
			Quantity:      item.Quantity,
			Taxes:         t,
		}
	}
	return orderResponse{
		ID:                 o.ID,
		Reference:          o.Reference,
		ReferenceID:        o.ReferenceID,
		TargetOrganization: o.TargetOrganization,
		Price:              o.Price.StringFixed(2),
		PriceCurrency:      o.PriceCurrency,
		Taxes:              taxes,
		Items:              items,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
	}
}
