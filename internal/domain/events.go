package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Routing keys used on the lifecycle events exchange.
const (
	RoutingKeyOrderCreated        = "order.created"
	RoutingKeyOrderStatusChanged  = "order.status_changed"
	RoutingKeyBookingCreated      = "booking.created"
	RoutingKeyBookingCancelled    = "booking.cancelled"
	RoutingKeyNotificationCreated = "notification.created"
	RoutingKeySubscriptionExpired = "subscription.expired"
)

// OutboxEvent is a message written alongside a state change and published
// to the broker later.
type OutboxEvent struct {
	RoutingKey string
	Payload    any
}

// OrderCreatedEvent is published once an order and its items are committed.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID       `json:"order_id"`
	UserID        uuid.UUID       `json:"user_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	Currency      string          `json:"currency"`
	ItemCount     int             `json:"item_count"`
	PaymentMethod PaymentMethod   `json:"payment_method"`
	Timestamp     time.Time       `json:"timestamp"`
}

// OrderStatusChangedEvent is published for every applied order transition.
type OrderStatusChangedEvent struct {
	OrderID          uuid.UUID   `json:"order_id"`
	UserID           uuid.UUID   `json:"user_id"`
	From             OrderStatus `json:"from"`
	To               OrderStatus `json:"to"`
	Actor            Actor       `json:"actor"`
	PaymentReference *string     `json:"payment_reference,omitempty"`
	Timestamp        time.Time   `json:"timestamp"`
}

// BookingEvent is published when a booking is created or cancelled.
type BookingEvent struct {
	BookingID       uuid.UUID     `json:"booking_id"`
	SlotID          uuid.UUID     `json:"slot_id"`
	UserID          uuid.UUID     `json:"user_id"`
	Status          BookingStatus `json:"status"`
	CapacityCurrent int           `json:"capacity_current"`
	CapacityMax     int           `json:"capacity_max"`
	Timestamp       time.Time     `json:"timestamp"`
}

// NotificationCreatedEvent fans a stored notification out to push/email workers.
type NotificationCreatedEvent struct {
	NotificationID uuid.UUID        `json:"notification_id"`
	UserID         uuid.UUID        `json:"user_id"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	Type           NotificationType `json:"type"`
	Timestamp      time.Time        `json:"timestamp"`
}
