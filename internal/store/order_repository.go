package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/domain"
)

const orderColumns = `id, user_id, status, total_amount::text, currency, payment_method,
	shipping_address::text, payment_reference, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order       domain.Order
		totalText   string
		addressText string
	)
	if err := row.Scan(
		&order.ID,
		&order.UserID,
		&order.Status,
		&totalText,
		&order.Currency,
		&order.PaymentMethod,
		&addressText,
		&order.PaymentReference,
		&order.CreatedAt,
		&order.UpdatedAt,
	); err != nil {
		return nil, err
	}

	total, err := decimal.NewFromString(totalText)
	if err != nil {
		return nil, fmt.Errorf("parse order total %q: %w", totalText, err)
	}
	order.TotalAmount = total
	if err := json.Unmarshal([]byte(addressText), &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("decode shipping address: %w", err)
	}
	return &order, nil
}

// CreateOrder inserts the order header and every item in a single transaction.
// On success order.CreatedAt and order.UpdatedAt are populated.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order *domain.Order, events ...domain.OutboxEvent) error {
	address, err := json.Marshal(order.ShippingAddress)
	if err != nil {
		return fmt.Errorf("encode shipping address: %w", err)
	}

	return r.withTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO orders (id, user_id, status, total_amount, currency, payment_method, shipping_address)
			VALUES ($1, $2, $3, $4::numeric, $5, $6, $7::jsonb)
			RETURNING created_at, updated_at
		`,
			order.ID,
			order.UserID,
			order.Status,
			order.TotalAmount.String(),
			order.Currency,
			order.PaymentMethod,
			string(address),
		).Scan(&order.CreatedAt, &order.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert order: %w", err)
		}

		batch := &pgx.Batch{}
		for i, item := range order.Items {
			batch.Queue(`
				INSERT INTO order_items (id, order_id, product_id, product_name, quantity, price, position)
				VALUES ($1, $2, $3, $4, $5, $6::numeric, $7)
			`, item.ID, order.ID, item.ProductID, item.ProductName, item.Quantity, item.Price.String(), i)
		}
		results := tx.SendBatch(ctx, batch)
		for range order.Items {
			if _, err := results.Exec(); err != nil {
				results.Close()
				return fmt.Errorf("insert order item: %w", err)
			}
		}
		if err := results.Close(); err != nil {
			return fmt.Errorf("insert order items: %w", err)
		}

		return r.enqueueEventsTx(ctx, tx, events)
	})
}

// FindOrderByID returns the order with its items in cart order.
func (r *PostgresRepository) FindOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	order, err := scanOrder(r.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT id, order_id, product_id, product_name, quantity, price::text
		FROM order_items
		WHERE order_id = $1
		ORDER BY position
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	order.Items = make([]domain.OrderItem, 0)
	for rows.Next() {
		var (
			item      domain.OrderItem
			priceText string
		)
		if err := rows.Scan(&item.ID, &item.OrderID, &item.ProductID, &item.ProductName, &item.Quantity, &priceText); err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(priceText)
		if err != nil {
			return nil, fmt.Errorf("parse item price %q: %w", priceText, err)
		}
		item.Price = price
		order.Items = append(order.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrdersByUser returns the newest orders first, without items.
func (r *PostgresRepository) ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Order, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// TransitionOrder serializes status changes on one order through a row lock.
func (r *PostgresRepository) TransitionOrder(ctx context.Context, orderID uuid.UUID, decide OrderDecider) (*OrderTransition, error) {
	var result *OrderTransition
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		current, err := scanOrder(tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrOrderNotFound
			}
			return fmt.Errorf("lock order: %w", err)
		}

		update, err := decide(*current)
		if err != nil {
			return err
		}
		result = &OrderTransition{Before: *current, After: *current}
		if update == nil {
			return nil
		}

		after := *current
		err = tx.QueryRow(ctx, `
			UPDATE orders
			SET status = $2,
				payment_reference = COALESCE($3, payment_reference),
				updated_at = NOW()
			WHERE id = $1
			RETURNING status, payment_reference, updated_at
		`, orderID, update.Status, update.PaymentReference).Scan(&after.Status, &after.PaymentReference, &after.UpdatedAt)
		if err != nil {
			return fmt.Errorf("update order status: %w", err)
		}

		if err := r.enqueueEventsTx(ctx, tx, update.Events); err != nil {
			return err
		}
		result.After = after
		result.Applied = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
