package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/domain"
)

// RecordEmission appends an activity entry and, when given, a notification.
// It runs in its own transaction, separate from whatever state change
// triggered it.
func (r *PostgresRepository) RecordEmission(
	ctx context.Context,
	entry *domain.ActivityLogEntry,
	notification *domain.Notification,
	events ...domain.OutboxEvent,
) error {
	metadata := entry.Metadata
	if metadata == nil {
		metadata = domain.Metadata{}
	}
	blob, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("encode activity metadata: %w", err)
	}

	return r.withTx(ctx, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `
			INSERT INTO activity_logs (id, user_id, activity_type, description, metadata)
			VALUES ($1, $2, $3, $4, $5::jsonb)
			RETURNING created_at
		`, entry.ID, entry.UserID, entry.ActivityType, entry.Description, string(blob)).Scan(&entry.CreatedAt); err != nil {
			return fmt.Errorf("insert activity log: %w", err)
		}

		if notification != nil {
			if err := tx.QueryRow(ctx, `
				INSERT INTO notifications (id, user_id, title, message, type)
				VALUES ($1, $2, $3, $4, $5)
				RETURNING created_at
			`, notification.ID, notification.UserID, notification.Title, notification.Message, notification.Type).Scan(&notification.CreatedAt); err != nil {
				return fmt.Errorf("insert notification: %w", err)
			}
		}

		return r.enqueueEventsTx(ctx, tx, events)
	})
}

func (r *PostgresRepository) ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]domain.Notification, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, title, message, type, is_read, created_at
		FROM notifications
		WHERE user_id = $1 AND ($2 = FALSE OR is_read = FALSE)
		ORDER BY created_at DESC
		LIMIT $3
	`, userID, unreadOnly, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notifications := make([]domain.Notification, 0)
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (r *PostgresRepository) MarkNotificationRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = COALESCE(read_at, NOW())
		WHERE id = $1 AND user_id = $2
	`, notificationID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

func (r *PostgresRepository) MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE notifications
		SET is_read = TRUE, read_at = NOW()
		WHERE user_id = $1 AND is_read = FALSE
	`, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) ListActivity(ctx context.Context, userID uuid.UUID, limit int) ([]domain.ActivityLogEntry, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, activity_type, description, metadata::text, created_at
		FROM activity_logs
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.ActivityLogEntry, 0)
	for rows.Next() {
		var (
			entry        domain.ActivityLogEntry
			metadataText string
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.ActivityType, &entry.Description, &metadataText, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if metadataText != "" {
			if err := json.Unmarshal([]byte(metadataText), &entry.Metadata); err != nil {
				return nil, fmt.Errorf("decode activity metadata: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
