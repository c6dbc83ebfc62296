package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/domain"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/store"
)

// EmissionKind names a lifecycle side effect. It doubles as the activity type.
type EmissionKind string

const (
	KindOrderCreated          EmissionKind = "order_created"
	KindOrderStatusChanged    EmissionKind = "order_status_changed"
	KindUnhandledWebhookState EmissionKind = "unhandled_webhook_state"
	KindBookingCreated        EmissionKind = "booking_created"
	KindBookingCancelled      EmissionKind = "booking_cancelled"
	KindSubscriptionCancelled EmissionKind = "subscription_cancelled"
	KindSubscriptionExpired   EmissionKind = "subscription_expired"
)

// Emitter records the audit trail and user notifications for lifecycle events.
// Emit never fails the caller; storage errors are logged.
type Emitter interface {
	Emit(ctx context.Context, userID uuid.UUID, kind EmissionKind, payload domain.Metadata)
}

// ActivityEmitter persists emissions through the activity repository.
type ActivityEmitter struct {
	repo    store.ActivityRepository
	logger  *slog.Logger
	timeout time.Duration
}

func NewActivityEmitter(repo store.ActivityRepository, logger *slog.Logger) *ActivityEmitter {
	return &ActivityEmitter{repo: repo, logger: logger, timeout: 5 * time.Second}
}

// Emit writes one activity entry and, for kinds the user should hear about,
// one notification. The write is detached from ctx cancellation so a client
// disconnect after the primary commit does not drop the record.
func (e *ActivityEmitter) Emit(ctx context.Context, userID uuid.UUID, kind EmissionKind, payload domain.Metadata) {
	description, notice := renderEmission(kind, payload)

	entry := &domain.ActivityLogEntry{
		ID:           uuid.New(),
		UserID:       userID,
		ActivityType: string(kind),
		Description:  description,
		Metadata:     payload,
	}

	var (
		notification *domain.Notification
		events       []domain.OutboxEvent
	)
	if notice != nil {
		notification = &domain.Notification{
			ID:      uuid.New(),
			UserID:  userID,
			Title:   notice.title,
			Message: notice.message,
			Type:    notice.kind,
		}
		events = append(events, domain.OutboxEvent{
			RoutingKey: domain.RoutingKeyNotificationCreated,
			Payload: domain.NotificationCreatedEvent{
				NotificationID: notification.ID,
				UserID:         userID,
				Title:          notification.Title,
				Message:        notification.Message,
				Type:           notification.Type,
				Timestamp:      time.Now().UTC(),
			},
		})
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()

	if err := e.repo.RecordEmission(writeCtx, entry, notification, events...); err != nil {
		e.logger.Error("failed to record lifecycle emission",
			"user_id", userID,
			"kind", kind,
			"with_notification", notification != nil,
			"error", err,
		)
		return
	}
	e.logger.Debug("lifecycle emission recorded", "user_id", userID, "kind", kind, "activity_id", entry.ID)
}

type notice struct {
	title   string
	message string
	kind    domain.NotificationType
}

func metaString(payload domain.Metadata, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func renderEmission(kind EmissionKind, payload domain.Metadata) (string, *notice) {
	orderRef := "#" + shortID(metaString(payload, "order_id"))

	switch kind {
	case KindOrderCreated:
		description := fmt.Sprintf("Placed order %s for %s %s", orderRef, metaString(payload, "total_amount"), metaString(payload, "currency"))
		// Card orders are announced once payment lands; cash orders now.
		if metaString(payload, "payment_method") != string(domain.PaymentMethodCash) {
			return description, nil
		}
		return description + " for payment on delivery", &notice{
			title:   "Order placed",
			message: fmt.Sprintf("Your order %s has been placed. Please have %s %s ready on delivery.", orderRef, metaString(payload, "total_amount"), metaString(payload, "currency")),
			kind:    domain.NotificationSuccess,
		}

	case KindOrderStatusChanged:
		to := domain.OrderStatus(metaString(payload, "to"))
		description := fmt.Sprintf("Order %s moved from %s to %s", orderRef, metaString(payload, "from"), to)
		return description, orderStatusNotice(orderRef, to)

	case KindUnhandledWebhookState:
		return fmt.Sprintf("Payment provider sent unhandled state %q for order %s", metaString(payload, "state"), orderRef), nil

	case KindBookingCreated:
		return fmt.Sprintf("Booked %s", slotLabel(payload)), &notice{
			title:   "Booking confirmed",
			message: fmt.Sprintf("You're booked for %s.", slotLabel(payload)),
			kind:    domain.NotificationSuccess,
		}

	case KindBookingCancelled:
		return fmt.Sprintf("Cancelled booking for %s", slotLabel(payload)), &notice{
			title:   "Booking cancelled",
			message: fmt.Sprintf("Your booking for %s has been cancelled and your place released.", slotLabel(payload)),
			kind:    domain.NotificationInfo,
		}

	case KindSubscriptionCancelled:
		plan := metaString(payload, "plan_name")
		return fmt.Sprintf("Cancelled %s subscription", plan), &notice{
			title:   "Subscription cancelled",
			message: fmt.Sprintf("Your %s plan is now %s.", plan, domain.SubscriptionStatusCancelled),
			kind:    domain.NotificationInfo,
		}

	case KindSubscriptionExpired:
		plan := metaString(payload, "plan_name")
		return fmt.Sprintf("%s subscription expired", plan), &notice{
			title:   "Subscription expired",
			message: fmt.Sprintf("Your %s plan is now %s. Renew to keep booking sessions.", plan, domain.SubscriptionStatusExpired),
			kind:    domain.NotificationWarning,
		}
	}

	return string(kind), nil
}

func slotLabel(payload domain.Metadata) string {
	title := metaString(payload, "slot_title")
	if title == "" {
		title = "session " + shortID(metaString(payload, "slot_id"))
	}
	if start := metaString(payload, "start_time"); start != "" {
		return title + " on " + start
	}
	return title
}

func orderStatusNotice(orderRef string, to domain.OrderStatus) *notice {
	switch to {
	case domain.OrderStatusProcessing:
		return &notice{"Payment received", fmt.Sprintf("Payment for order %s was confirmed. We're preparing your items.", orderRef), domain.NotificationSuccess}
	case domain.OrderStatusFailed:
		return &notice{"Payment failed", fmt.Sprintf("Payment for order %s did not go through. You can place the order again.", orderRef), domain.NotificationError}
	case domain.OrderStatusShipped:
		return &notice{"Order shipped", fmt.Sprintf("Order %s is on its way.", orderRef), domain.NotificationInfo}
	case domain.OrderStatusDelivered:
		return &notice{"Order delivered", fmt.Sprintf("Order %s has been delivered.", orderRef), domain.NotificationSuccess}
	case domain.OrderStatusCancelled:
		return &notice{"Order cancelled", fmt.Sprintf("Order %s has been cancelled.", orderRef), domain.NotificationWarning}
	}
	return &notice{"Order updated", fmt.Sprintf("Order %s is now %s.", orderRef, to), domain.NotificationInfo}
}
