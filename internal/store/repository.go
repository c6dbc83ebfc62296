/**
 * @description
 * Data access contracts for the order and booking lifecycle. Services depend on
 * the narrow interfaces below so tests can stub only what they touch; the
 * Postgres implementation satisfies all of them.
 *
 * @dependencies
 * - github.com/google/uuid: identifiers.
 * - internal/domain: lifecycle models.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/domain"
)

// OrderUpdate is the change an OrderDecider asks TransitionOrder to apply.
type OrderUpdate struct {
	Status           domain.OrderStatus
	PaymentReference *string
	Events           []domain.OutboxEvent
}

// OrderDecider inspects the locked current order and returns the update to
// apply, or nil to leave the order untouched. Returning an error rolls back.
type OrderDecider func(current domain.Order) (*OrderUpdate, error)

// OrderTransition reports what TransitionOrder did.
type OrderTransition struct {
	Before  domain.Order
	After   domain.Order
	Applied bool
}

// ReserveSlotParams describes a booking attempt.
type ReserveSlotParams struct {
	BookingID uuid.UUID
	SlotID    uuid.UUID
	UserID    uuid.UUID
}

// ReserveSlotResult is the committed booking and the slot after the increment.
type ReserveSlotResult struct {
	Booking domain.Booking
	Slot    domain.Slot
}

// CancelBookingResult is returned by CancelBooking. Applied is false when the
// booking was already cancelled.
type CancelBookingResult struct {
	Booking domain.Booking
	Slot    domain.Slot
	Applied bool
}

// OutboxMessage is a claimed row of event_outbox.
type OutboxMessage struct {
	ID         int64
	Exchange   string
	RoutingKey string
	Payload    []byte
	Attempts   int
}

// OrderRepository persists orders and their items.
type OrderRepository interface {
	// CreateOrder writes the order, its items and events in one transaction.
	CreateOrder(ctx context.Context, order *domain.Order, events ...domain.OutboxEvent) error
	FindOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error)
	ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Order, error)
	// TransitionOrder locks the order row, asks decide what to do and applies
	// the result together with its events before releasing the lock.
	TransitionOrder(ctx context.Context, orderID uuid.UUID, decide OrderDecider) (*OrderTransition, error)
}

// BookingRepository manages slots and bookings.
type BookingRepository interface {
	FindSlotByID(ctx context.Context, slotID uuid.UUID) (*domain.Slot, error)
	ReserveSlot(ctx context.Context, params ReserveSlotParams) (*ReserveSlotResult, error)
	CancelBooking(ctx context.Context, userID, bookingID uuid.UUID) (*CancelBookingResult, error)
	ListBookingsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Booking, error)
	CompletePastSlots(ctx context.Context, now time.Time) (int64, error)
}

// ActivityRepository stores activity log entries and notifications.
type ActivityRepository interface {
	// RecordEmission appends the entry, the optional notification and events atomically.
	RecordEmission(ctx context.Context, entry *domain.ActivityLogEntry, notification *domain.Notification, events ...domain.OutboxEvent) error
	ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]domain.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID uuid.UUID) error
	MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int64, error)
	ListActivity(ctx context.Context, userID uuid.UUID, limit int) ([]domain.ActivityLogEntry, error)
}

// SubscriptionRepository reads and maintains membership subscriptions.
type SubscriptionRepository interface {
	FindActiveSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)
	CancelActiveSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)
	ExpireSubscriptions(ctx context.Context, now time.Time) ([]domain.Subscription, error)
}

// OutboxRepository drives the event dispatcher.
type OutboxRepository interface {
	ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]OutboxMessage, error)
	MarkOutboxPublished(ctx context.Context, id int64) error
	MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error
}

// Repository is the full set of data access methods.
type Repository interface {
	OrderRepository
	BookingRepository
	ActivityRepository
	SubscriptionRepository
	OutboxRepository
}
