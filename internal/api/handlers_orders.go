package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/app"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/domain"
)

const (
	maxCheckoutBodyBytes = 256 << 10
	timeLayout           = time.RFC3339
)

// checkoutRequest accepts either structured items or the cart handoff string.
type checkoutRequest struct {
	Items          []app.CartItem         `json:"items"`
	Cart           string                 `json:"cart"`
	Shipping       domain.ShippingAddress `json:"shipping"`
	PaymentMethod  domain.PaymentMethod   `json:"payment_method"`
	DisplayedTotal *decimal.Decimal       `json:"displayed_total,omitempty"`
}

type checkoutResponse struct {
	OrderID       string               `json:"order_id"`
	Status        domain.OrderStatus   `json:"status"`
	TotalAmount   string               `json:"total_amount"`
	Currency      string               `json:"currency"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	PaymentURL    string               `json:"payment_url,omitempty"`
	OrderURL      string               `json:"order_url"`
}

type paymentResponse struct {
	OrderID    string `json:"order_id"`
	PaymentURL string `json:"payment_url"`
}

type advanceOrderRequest struct {
	Status domain.OrderStatus `json:"status"`
}

// CheckoutHandler creates a pending order and, for online payment, starts a
// hosted checkout session.
func (h *Handlers) CheckoutHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCheckoutBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	items := req.Items
	if len(items) == 0 && strings.TrimSpace(req.Cart) != "" {
		lines, err := domain.ParseCartParam(req.Cart)
		if err != nil {
			h.logger.Info("checkout rejected", "user_id", userID, "reason", "invalid_cart_param", "error", err)
			writeError(w, http.StatusBadRequest, "Invalid cart")
			return
		}
		items = app.CartItemsFromLines(lines)
	}

	order, err := h.orders.CreateOrder(r.Context(), userID, items, req.Shipping, app.CheckoutOptions{
		PaymentMethod:  domain.PaymentMethod(strings.ToLower(strings.TrimSpace(string(req.PaymentMethod)))),
		DisplayedTotal: req.DisplayedTotal,
	})
	if err != nil {
		h.writeServiceError(w, "checkout", err)
		return
	}

	resp := checkoutResponse{
		OrderID:       order.ID.String(),
		Status:        order.Status,
		TotalAmount:   order.TotalAmount.StringFixed(2),
		Currency:      order.Currency,
		PaymentMethod: order.PaymentMethod,
		OrderURL:      h.payments.RedirectURL(order.ID),
	}

	if order.PaymentMethod == domain.PaymentMethodIntaSend {
		paymentURL, err := h.payments.InitiatePayment(r.Context(), *order)
		if err != nil {
			status, message := classifyError(err)
			h.logger.Warn("checkout payment initiation failed", "user_id", userID, "order_id", order.ID, "status", status, "error", err)
			writeJSON(w, status, errorResponse{Error: message, OrderID: order.ID.String()})
			return
		}
		resp.PaymentURL = paymentURL
	}

	writeJSON(w, http.StatusCreated, resp)
}

// RetryPaymentHandler requests a new checkout session for a pending order.
func (h *Handlers) RetryPaymentHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathUUID(w, r, "orderID")
	if !ok {
		return
	}

	paymentURL, err := h.payments.RetryPayment(r.Context(), userID, orderID)
	if err != nil {
		status, message := classifyError(err)
		if status >= http.StatusInternalServerError {
			h.logger.Warn("payment retry failed", "user_id", userID, "order_id", orderID, "status", status, "error", err)
			writeJSON(w, status, errorResponse{Error: message, OrderID: orderID.String()})
			return
		}
		h.writeServiceError(w, "retry_payment", err)
		return
	}
	writeJSON(w, http.StatusOK, paymentResponse{OrderID: orderID.String(), PaymentURL: paymentURL})
}

func (h *Handlers) ListOrdersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	limit, ok := h.queryLimit(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListOrders(r.Context(), userID, limit)
	if err != nil {
		h.writeServiceError(w, "list_orders", err)
		return
	}
	resp := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		resp = append(resp, buildOrderResponse(order))
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetOrderHandler backs the order-status page the provider redirects to.
func (h *Handlers) GetOrderHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathUUID(w, r, "orderID")
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(r.Context(), userID, orderID)
	if err != nil {
		h.writeServiceError(w, "get_order", err)
		return
	}
	writeJSON(w, http.StatusOK, buildOrderResponse(*order))
}

func (h *Handlers) CancelOrderHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	orderID, ok := pathUUID(w, r, "orderID")
	if !ok {
		return
	}

	order, err := h.orders.CancelOrder(r.Context(), userID, orderID)
	if err != nil {
		h.writeServiceError(w, "cancel_order", err)
		return
	}
	writeJSON(w, http.StatusOK, buildOrderResponse(*order))
}

// AdvanceOrderHandler applies a staff status change.
func (h *Handlers) AdvanceOrderHandler(w http.ResponseWriter, r *http.Request) {
	orderID, ok := pathUUID(w, r, "orderID")
	if !ok {
		return
	}

	var req advanceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(string(req.Status))))
	if !target.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}

	order, err := h.orders.AdvanceOrder(r.Context(), orderID, target)
	if err != nil {
		h.writeServiceError(w, "advance_order", err)
		return
	}
	writeJSON(w, http.StatusOK, buildOrderResponse(*order))
}
