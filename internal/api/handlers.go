/**
 * @description
 * HTTP handlers for the fitness commerce API. Handlers parse requests, call
 * the application services and translate their errors into status codes in
 * one place. Response bodies stay terse; details go to the logs.
 */

package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/app"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/domain"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/pkg/intasend"
)

// OrderManager is the order lifecycle surface used by the handlers.
type OrderManager interface {
	CreateOrder(ctx context.Context, userID uuid.UUID, cart []app.CartItem, shipping domain.ShippingAddress, opts app.CheckoutOptions) (*domain.Order, error)
	GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error)
	ListOrders(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Order, error)
	CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error)
	AdvanceOrder(ctx context.Context, orderID uuid.UUID, target domain.OrderStatus) (*domain.Order, error)
}

// PaymentProcessor starts hosted checkouts and reconciles provider webhooks.
type PaymentProcessor interface {
	InitiatePayment(ctx context.Context, order domain.Order) (string, error)
	RetryPayment(ctx context.Context, userID, orderID uuid.UUID) (string, error)
	HandleWebhook(ctx context.Context, raw []byte) (*app.WebhookResult, error)
	RedirectURL(orderID uuid.UUID) string
}

// BookingManager books and releases slot places.
type BookingManager interface {
	BookSlot(ctx context.Context, userID, slotID uuid.UUID) (*domain.Booking, error)
	CancelBooking(ctx context.Context, userID, bookingID uuid.UUID) (*domain.Booking, error)
	GetSlot(ctx context.Context, slotID uuid.UUID) (*domain.Slot, error)
	ListBookings(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Booking, error)
}

// AccountManager serves notifications, activity and the subscription.
type AccountManager interface {
	ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int64, error)
	ListActivity(ctx context.Context, userID uuid.UUID, limit int) ([]domain.ActivityLogEntry, error)
	GetActiveSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)
	CancelSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)
}

// Handlers holds the services the HTTP layer delegates to.
type Handlers struct {
	orders       OrderManager
	payments     PaymentProcessor
	reservations BookingManager
	accounts     AccountManager
	limiter      app.RateLimiter
	logger       *slog.Logger
}

func NewHandlers(
	orders OrderManager,
	payments PaymentProcessor,
	reservations BookingManager,
	accounts AccountManager,
	limiter app.RateLimiter,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		orders:       orders,
		payments:     payments,
		reservations: reservations,
		accounts:     accounts,
		limiter:      limiter,
		logger:       logger,
	}
}

type errorResponse struct {
	Error   string            `json:"error"`
	OrderID string            `json:"order_id,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeServiceError maps service errors to responses. Unexpected errors are
// logged and answered with 500.
func (h *Handlers) writeServiceError(w http.ResponseWriter, endpoint string, err error) {
	var addrErr *app.AddressError
	if errors.As(err, &addrErr) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "Invalid shipping address", Fields: addrErr.Fields})
		return
	}

	status, message := classifyError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "endpoint", endpoint, "status", status, "error", err)
	} else {
		h.logger.Info("request rejected", "endpoint", endpoint, "status", status, "error", err)
	}
	writeError(w, status, message)
}

func classifyError(err error) (int, string) {
	switch {
	case errors.Is(err, app.ErrEmptyCart):
		return http.StatusBadRequest, "Cart is empty"
	case errors.Is(err, app.ErrInvalidCartItem):
		return http.StatusBadRequest, "Cart contains an invalid item"
	case errors.Is(err, app.ErrUnsupportedPaymentMethod):
		return http.StatusBadRequest, "Unsupported payment method"
	case errors.Is(err, app.ErrMalformedPayload):
		return http.StatusBadRequest, "Malformed payload"
	case errors.Is(err, app.ErrInvalidChallenge):
		return http.StatusUnauthorized, "Invalid webhook challenge"
	case errors.Is(err, app.ErrSubscriptionRequired):
		return http.StatusForbidden, "An active subscription is required to book sessions"
	case errors.Is(err, app.ErrOrderNotFound), errors.Is(err, app.ErrUnknownOrder):
		return http.StatusNotFound, "Order not found"
	case errors.Is(err, app.ErrSlotNotFound):
		return http.StatusNotFound, "Session not found"
	case errors.Is(err, app.ErrBookingNotFound):
		return http.StatusNotFound, "Booking not found"
	case errors.Is(err, app.ErrNotificationNotFound):
		return http.StatusNotFound, "Notification not found"
	case errors.Is(err, app.ErrSubscriptionNotFound):
		return http.StatusNotFound, "No active subscription"
	case errors.Is(err, app.ErrSlotFull):
		return http.StatusConflict, "Session is full"
	case errors.Is(err, app.ErrDuplicateBooking):
		return http.StatusConflict, "You are already booked for this session"
	case errors.Is(err, app.ErrSlotNotBookable):
		return http.StatusConflict, "Session is not open for booking"
	case errors.Is(err, app.ErrBookingNotCancelable):
		return http.StatusConflict, "Booking can no longer be cancelled"
	case errors.Is(err, app.ErrInvalidTransition):
		return http.StatusConflict, "Order cannot move to the requested status"
	case errors.Is(err, app.ErrPaymentNotRequired):
		return http.StatusConflict, "Order is not awaiting online payment"
	case errors.Is(err, intasend.ErrGatewayUnreachable):
		return http.StatusServiceUnavailable, "Payment provider is unavailable. Please try again."
	case errors.Is(err, intasend.ErrMisconfiguredCredentials), errors.Is(err, intasend.ErrGatewayRejected):
		return http.StatusBadGateway, "Payment could not be started"
	}
	return http.StatusInternalServerError, "Internal server error"
}

func (h *Handlers) requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := UserIDFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return uuid.Nil, false
	}
	return userID, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, param)))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+param)
		return uuid.Nil, false
	}
	return id, true
}

func parseLimit(raw string, defaultValue int) (int, error) {
	if strings.TrimSpace(raw) == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if value <= 0 {
		return 0, errors.New("must be > 0")
	}
	return value, nil
}

func (h *Handlers) queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	limit, err := parseLimit(r.URL.Query().Get("limit"), 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit")
		return 0, false
	}
	return limit, true
}

type orderItemResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int    `json:"quantity"`
	Price       string `json:"price"`
	LineTotal   string `json:"line_total"`
}

type orderResponse struct {
	ID               string                 `json:"id"`
	Status           domain.OrderStatus     `json:"status"`
	TotalAmount      string                 `json:"total_amount"`
	Currency         string                 `json:"currency"`
	PaymentMethod    domain.PaymentMethod   `json:"payment_method"`
	PaymentReference *string                `json:"payment_reference,omitempty"`
	ShippingAddress  domain.ShippingAddress `json:"shipping_address"`
	Items            []orderItemResponse    `json:"items,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
	UpdatedAt        time.Time              `json:"updated_at"`
}

func buildOrderResponse(order domain.Order) orderResponse {
	resp := orderResponse{
		ID:               order.ID.String(),
		Status:           order.Status,
		TotalAmount:      order.TotalAmount.StringFixed(2),
		Currency:         order.Currency,
		PaymentMethod:    order.PaymentMethod,
		PaymentReference: order.PaymentReference,
		ShippingAddress:  order.ShippingAddress,
		CreatedAt:        order.CreatedAt,
		UpdatedAt:        order.UpdatedAt,
	}
	for _, item := range order.Items {
		resp.Items = append(resp.Items, orderItemResponse{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Quantity:    item.Quantity,
			Price:       item.Price.StringFixed(2),
			LineTotal:   item.LineTotal().StringFixed(2),
		})
	}
	return resp
}
