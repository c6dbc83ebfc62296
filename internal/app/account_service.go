package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/domain"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/store"
)

// AccountService serves the member's inbox, activity history and subscription.
type AccountService struct {
	activity      store.ActivityRepository
	subscriptions store.SubscriptionRepository
	emitter       Emitter
	logger        *slog.Logger
}

func NewAccountService(activity store.ActivityRepository, subscriptions store.SubscriptionRepository, emitter Emitter, logger *slog.Logger) *AccountService {
	return &AccountService{
		activity:      activity,
		subscriptions: subscriptions,
		emitter:       emitter,
		logger:        logger,
	}
}

func (s *AccountService) ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]domain.Notification, error) {
	notifications, err := s.activity.ListNotifications(ctx, userID, unreadOnly, limit)
	if err != nil {
		return nil, persistenceErr("list notifications", err)
	}
	return notifications, nil
}

func (s *AccountService) MarkNotificationRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	if err := s.activity.MarkNotificationRead(ctx, userID, notificationID); err != nil {
		if errors.Is(err, store.ErrNotificationNotFound) {
			return ErrNotificationNotFound
		}
		return persistenceErr("mark notification read", err)
	}
	return nil
}

func (s *AccountService) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := s.activity.MarkAllNotificationsRead(ctx, userID)
	if err != nil {
		return 0, persistenceErr("mark notifications read", err)
	}
	return n, nil
}

func (s *AccountService) ListActivity(ctx context.Context, userID uuid.UUID, limit int) ([]domain.ActivityLogEntry, error) {
	entries, err := s.activity.ListActivity(ctx, userID, limit)
	if err != nil {
		return nil, persistenceErr("list activity", err)
	}
	return entries, nil
}

func (s *AccountService) GetActiveSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.subscriptions.FindActiveSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrSubscriptionNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, persistenceErr("find subscription", err)
	}
	return sub, nil
}

func (s *AccountService) CancelSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.subscriptions.CancelActiveSubscription(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrSubscriptionNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, persistenceErr("cancel subscription", err)
	}
	s.logger.Info("subscription cancelled", "user_id", userID, "subscription_id", sub.ID, "plan", sub.PlanName)
	s.emitter.Emit(ctx, userID, KindSubscriptionCancelled, subscriptionPayload(*sub))
	return sub, nil
}

// ExpireSubscriptions moves lapsed subscriptions to expired and notifies each owner.
func (s *AccountService) ExpireSubscriptions(ctx context.Context, now time.Time) (int, error) {
	expired, err := s.subscriptions.ExpireSubscriptions(ctx, now)
	if err != nil {
		return 0, persistenceErr("expire subscriptions", err)
	}
	for _, sub := range expired {
		s.emitter.Emit(ctx, sub.UserID, KindSubscriptionExpired, subscriptionPayload(sub))
	}
	return len(expired), nil
}

func subscriptionPayload(sub domain.Subscription) domain.Metadata {
	payload := domain.Metadata{
		"subscription_id": sub.ID.String(),
		"plan_name":       sub.PlanName,
		"plan_price":      sub.PlanPrice.StringFixed(2),
		"status":          string(sub.Status),
	}
	if sub.EndDate != nil {
		payload["end_date"] = sub.EndDate.UTC().Format(time.RFC3339)
	}
	return payload
}
