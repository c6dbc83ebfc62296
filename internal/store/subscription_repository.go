package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/domain"
)

const subscriptionColumns = `id, user_id, plan_name, plan_price::text, status, start_date, end_date, created_at, updated_at`

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var (
		sub       domain.Subscription
		priceText string
	)
	if err := row.Scan(
		&sub.ID,
		&sub.UserID,
		&sub.PlanName,
		&priceText,
		&sub.Status,
		&sub.StartDate,
		&sub.EndDate,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	); err != nil {
		return nil, err
	}
	price, err := decimal.NewFromString(priceText)
	if err != nil {
		return nil, fmt.Errorf("parse plan price %q: %w", priceText, err)
	}
	sub.PlanPrice = price
	return &sub, nil
}

// FindActiveSubscription returns the most recent active subscription.
func (r *PostgresRepository) FindActiveSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	sub, err := scanSubscription(r.db.QueryRow(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions
		WHERE user_id = $1 AND status = 'active' AND (end_date IS NULL OR end_date > NOW())
		ORDER BY start_date DESC
		LIMIT 1
	`, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// CancelActiveSubscription moves the user's active subscription to cancelled.
func (r *PostgresRepository) CancelActiveSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	sub, err := scanSubscription(r.db.QueryRow(ctx, `
		UPDATE subscriptions
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = (
			SELECT id FROM subscriptions
			WHERE user_id = $1 AND status = 'active'
			ORDER BY start_date DESC
			LIMIT 1
		) AND status = 'active'
		RETURNING `+subscriptionColumns,
		userID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

// ExpireSubscriptions moves active subscriptions whose end date has passed
// to expired and returns them.
func (r *PostgresRepository) ExpireSubscriptions(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	rows, err := r.db.Query(ctx, `
		UPDATE subscriptions
		SET status = 'expired', updated_at = NOW()
		WHERE status = 'active' AND end_date IS NOT NULL AND end_date < $1
		RETURNING `+subscriptionColumns,
		now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	expired := make([]domain.Subscription, 0)
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		expired = append(expired, *sub)
	}
	return expired, rows.Err()
}
