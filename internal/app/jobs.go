/**
 * @description
 * Scheduled maintenance jobs for slots and subscriptions.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/store"
)

// SubscriptionExpirer expires lapsed subscriptions and notifies their owners.
type SubscriptionExpirer interface {
	ExpireSubscriptions(ctx context.Context, now time.Time) (int, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	slots         store.BookingRepository
	subscriptions SubscriptionExpirer
	logger        *slog.Logger
	now           func() time.Time
	timeout       time.Duration
}

func NewJobs(slots store.BookingRepository, subscriptions SubscriptionExpirer, logger *slog.Logger) *Jobs {
	return &Jobs{
		slots:         slots,
		subscriptions: subscriptions,
		logger:        logger,
		now:           time.Now,
		timeout:       2 * time.Minute,
	}
}

// CompletePastSlots closes slots whose session has ended.
func (j *Jobs) CompletePastSlots() {
	j.logger.Info("starting slot completion job")
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.slots.CompletePastSlots(ctx, j.now().UTC())
	if err != nil {
		j.logger.Error("failed to complete past slots", "error", err)
		return
	}
	j.logger.Info("slot completion job finished", "completed", n)
}

// ExpireSubscriptions expires subscriptions past their end date.
func (j *Jobs) ExpireSubscriptions() {
	j.logger.Info("starting subscription expiry job")
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	n, err := j.subscriptions.ExpireSubscriptions(ctx, j.now().UTC())
	if err != nil {
		j.logger.Error("failed to expire subscriptions", "error", err)
		return
	}
	j.logger.Info("subscription expiry job finished", "expired", n)
}
