/**
 * @description
 * PostgreSQL implementation of the Repository interface on top of pgxpool.
 * Every multi-row write runs inside a single transaction and, where other
 * services need to hear about it, enqueues an outbox event in that same
 * transaction.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and toolkit.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/domain"
)

var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrSlotNotFound           = errors.New("slot not found")
	ErrSlotNotBookable        = errors.New("slot is not open for booking")
	ErrSlotFull               = errors.New("slot is full")
	ErrDuplicateActiveBooking = errors.New("user already holds an active booking for this slot")
	ErrBookingNotFound        = errors.New("booking not found")
	ErrBookingNotCancellable  = errors.New("booking can no longer be cancelled")
	ErrNotificationNotFound   = errors.New("notification not found")
	ErrSubscriptionNotFound   = errors.New("subscription not found")
)

const defaultListLimit = 50

var _ Repository = (*PostgresRepository)(nil)

// PostgresRepository is the concrete implementation of the Repository interface.
type PostgresRepository struct {
	db       *pgxpool.Pool
	exchange string
}

// NewPostgresRepository creates a new repository. exchange is the broker
// exchange recorded on outbox rows.
func NewPostgresRepository(db *pgxpool.Pool, exchange string) *PostgresRepository {
	return &PostgresRepository{db: db, exchange: strings.TrimSpace(exchange)}
}

func (r *PostgresRepository) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *PostgresRepository) enqueueEventsTx(ctx context.Context, tx pgx.Tx, events []domain.OutboxEvent) error {
	for _, event := range events {
		if err := enqueueEventTx(ctx, tx, r.exchange, event.RoutingKey, event.Payload); err != nil {
			return err
		}
	}
	return nil
}

func enqueueEventTx(ctx context.Context, tx pgx.Tx, exchange, routingKey string, payload interface{}) error {
	blob, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO event_outbox (exchange, routing_key, payload)
		VALUES ($1, $2, $3::jsonb)
	`, strings.TrimSpace(exchange), strings.TrimSpace(routingKey), string(blob))
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox event: %w", err)
	}
	return nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 200 {
		return defaultListLimit
	}
	return limit
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
