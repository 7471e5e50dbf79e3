package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/efreitasn/pairexchange/internal/domain"
	"github.com/efreitasn/pairexchange/internal/service"
)

// timeLayout keeps sub-second precision so trade_at values can be fed back
// as a since cursor.
const timeLayout = time.RFC3339Nano

const defaultPageLimit = 20

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	exchange *service.ExchangeService
	scale    int32
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(exchange *service.ExchangeService, scale int32) *OrderHandler {
	return &OrderHandler{exchange: exchange, scale: scale}
}

// placeOrderRequest is the JSON request body for POST /orders.
type placeOrderRequest struct {
	PairID   int64  `json:"pair_id"`
	Side     string `json:"side"`
	Price    string `json:"price"`
	Quantity int64  `json:"quantity"`
}

// orderResponse is the JSON representation of an order.
type orderResponse struct {
	OrderID           int64   `json:"order_id"`
	PairID            int64   `json:"pair_id"`
	OwnerID           string  `json:"owner_id"`
	Side              string  `json:"side"`
	Price             string  `json:"price"`
	Quantity          int64   `json:"quantity"`
	FilledQuantity    int64   `json:"filled_quantity"`
	RemainingQuantity int64   `json:"remaining_quantity"`
	Status            string  `json:"status"`
	CreatedAt         string  `json:"created_at"`
	CancelledAt       *string `json:"cancelled_at"`
}

// orderListResponse is the JSON response for GET /orders.
type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// PlaceOrder handles POST /orders.
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	var req placeOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	price, err := domain.ParseAmount(req.Price, h.scale)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}

	order, err := h.exchange.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		OwnerID:  user,
		PairID:   req.PairID,
		Side:     domain.Side(req.Side),
		Price:    price,
		Quantity: req.Quantity,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, h.buildOrderResponse(order))
}

// GetOrder handles GET /orders/{order_id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "order_id")
	if !ok {
		return
	}

	order, err := h.exchange.GetOrder(r.Context(), orderID, user)
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, h.buildOrderResponse(order))
}

// CancelOrder handles DELETE /orders/{order_id}.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathID(w, r, "order_id")
	if !ok {
		return
	}

	order, err := h.exchange.CancelOrder(r.Context(), orderID, user)
	if err != nil {
		mapError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, h.buildOrderResponse(order))
}

// ListOrders handles GET /orders for the calling user.
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}

	q := r.URL.Query()
	filter := domain.OrderFilter{Page: 1, Limit: defaultPageLimit}
	if s := q.Get("status"); s != "" {
		status := domain.Status(s)
		filter.Status = &status
	}
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"page", &filter.Page},
		{"limit", &filter.Limit},
	} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error",
				fmt.Sprintf("%s must be a valid integer", p.name))
			return
		}
		*p.dst = v
	}
	if raw := q.Get("pair_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "validation_error", "pair_id must be a valid integer")
			return
		}
		filter.PairID = id
	}

	orders, total, err := h.exchange.ListOrders(r.Context(), user, filter)
	if err != nil {
		mapError(w, err)
		return
	}

	resp := orderListResponse{
		Orders: make([]orderResponse, len(orders)),
		Total:  total,
		Page:   filter.Page,
		Limit:  filter.Limit,
	}
	for i, o := range orders {
		resp.Orders[i] = h.buildOrderResponse(o)
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (h *OrderHandler) buildOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		OrderID:           o.ID,
		PairID:            o.PairID,
		OwnerID:           o.OwnerID,
		Side:              string(o.Side),
		Price:             domain.FormatAmount(o.Price, h.scale),
		Quantity:          o.Quantity,
		FilledQuantity:    o.Filled(),
		RemainingQuantity: o.Remaining,
		Status:            string(o.Status),
		CreatedAt:         o.CreatedAt.UTC().Format(timeLayout),
	}
	if o.CancelledAt != nil {
		s := o.CancelledAt.UTC().Format(timeLayout)
		resp.CancelledAt = &s
	}
	return resp
}
