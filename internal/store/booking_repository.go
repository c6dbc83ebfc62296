package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/domain"
)

const slotColumns = `id, title, trainer_id, start_time, end_time, max_participants, current_participants, status`

const bookingColumns = `id, schedule_id, user_id, status, created_at, updated_at`

func scanSlot(row rowScanner) (*domain.Slot, error) {
	var slot domain.Slot
	if err := row.Scan(
		&slot.ID,
		&slot.Title,
		&slot.TrainerID,
		&slot.StartTime,
		&slot.EndTime,
		&slot.CapacityMax,
		&slot.CapacityCurrent,
		&slot.Status,
	); err != nil {
		return nil, err
	}
	return &slot, nil
}

func scanBooking(row rowScanner) (*domain.Booking, error) {
	var booking domain.Booking
	if err := row.Scan(
		&booking.ID,
		&booking.SlotID,
		&booking.UserID,
		&booking.Status,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *PostgresRepository) FindSlotByID(ctx context.Context, slotID uuid.UUID) (*domain.Slot, error) {
	slot, err := scanSlot(r.db.QueryRow(ctx, `SELECT `+slotColumns+` FROM schedules WHERE id = $1`, slotID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}
	return slot, nil
}

// ReserveSlot claims one place in a slot. The slot row is locked for the whole
// transaction and the increment is additionally guarded by the capacity
// predicate, so concurrent callers can never push current past max.
func (r *PostgresRepository) ReserveSlot(ctx context.Context, params ReserveSlotParams) (*ReserveSlotResult, error) {
	var result *ReserveSlotResult
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		slot, err := scanSlot(tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM schedules WHERE id = $1 FOR UPDATE`, params.SlotID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrSlotNotFound
			}
			return fmt.Errorf("lock slot: %w", err)
		}
		if slot.Status != domain.SlotStatusScheduled {
			return ErrSlotNotBookable
		}

		var alreadyBooked bool
		if err := tx.QueryRow(ctx, `
			SELECT EXISTS (
				SELECT 1 FROM bookings
				WHERE schedule_id = $1 AND user_id = $2 AND status IN ('registered', 'attended')
			)
		`, params.SlotID, params.UserID).Scan(&alreadyBooked); err != nil {
			return fmt.Errorf("check existing booking: %w", err)
		}
		if alreadyBooked {
			return ErrDuplicateActiveBooking
		}

		err = tx.QueryRow(ctx, `
			UPDATE schedules
			SET current_participants = current_participants + 1,
				updated_at = NOW()
			WHERE id = $1
			  AND status = 'scheduled'
			  AND current_participants < max_participants
			RETURNING current_participants, max_participants
		`, params.SlotID).Scan(&slot.CapacityCurrent, &slot.CapacityMax)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrSlotFull
			}
			return fmt.Errorf("increment slot capacity: %w", err)
		}

		booking, err := scanBooking(tx.QueryRow(ctx, `
			INSERT INTO bookings (id, schedule_id, user_id, status)
			VALUES ($1, $2, $3, 'registered')
			RETURNING `+bookingColumns,
			params.BookingID, params.SlotID, params.UserID,
		))
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicateActiveBooking
			}
			return fmt.Errorf("insert booking: %w", err)
		}

		event := domain.BookingEvent{
			BookingID:       booking.ID,
			SlotID:          slot.ID,
			UserID:          booking.UserID,
			Status:          booking.Status,
			CapacityCurrent: slot.CapacityCurrent,
			CapacityMax:     slot.CapacityMax,
			Timestamp:       booking.CreatedAt,
		}
		if err := enqueueEventTx(ctx, tx, r.exchange, domain.RoutingKeyBookingCreated, event); err != nil {
			return err
		}

		result = &ReserveSlotResult{Booking: *booking, Slot: *slot}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// CancelBooking releases a registered booking and its place in the slot.
// Locks are taken slot first, then booking, matching ReserveSlot.
func (r *PostgresRepository) CancelBooking(ctx context.Context, userID, bookingID uuid.UUID) (*CancelBookingResult, error) {
	var slotID uuid.UUID
	if err := r.db.QueryRow(ctx, `SELECT schedule_id FROM bookings WHERE id = $1 AND user_id = $2`, bookingID, userID).Scan(&slotID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}

	var result *CancelBookingResult
	err := r.withTx(ctx, func(tx pgx.Tx) error {
		slot, err := scanSlot(tx.QueryRow(ctx, `SELECT `+slotColumns+` FROM schedules WHERE id = $1 FOR UPDATE`, slotID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrSlotNotFound
			}
			return fmt.Errorf("lock slot: %w", err)
		}

		booking, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1 AND user_id = $2 FOR UPDATE`, bookingID, userID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrBookingNotFound
			}
			return fmt.Errorf("lock booking: %w", err)
		}

		switch booking.Status {
		case domain.BookingStatusCancelled:
			result = &CancelBookingResult{Booking: *booking, Slot: *slot}
			return nil
		case domain.BookingStatusRegistered:
		default:
			return ErrBookingNotCancellable
		}
		if slot.Status != domain.SlotStatusScheduled {
			return ErrBookingNotCancellable
		}

		if err := tx.QueryRow(ctx, `
			UPDATE bookings SET status = 'cancelled', updated_at = NOW()
			WHERE id = $1
			RETURNING status, updated_at
		`, bookingID).Scan(&booking.Status, &booking.UpdatedAt); err != nil {
			return fmt.Errorf("cancel booking: %w", err)
		}
		if err := tx.QueryRow(ctx, `
			UPDATE schedules
			SET current_participants = GREATEST(current_participants - 1, 0),
				updated_at = NOW()
			WHERE id = $1
			RETURNING current_participants
		`, slotID).Scan(&slot.CapacityCurrent); err != nil {
			return fmt.Errorf("release slot capacity: %w", err)
		}

		event := domain.BookingEvent{
			BookingID:       booking.ID,
			SlotID:          slot.ID,
			UserID:          booking.UserID,
			Status:          booking.Status,
			CapacityCurrent: slot.CapacityCurrent,
			CapacityMax:     slot.CapacityMax,
			Timestamp:       booking.UpdatedAt,
		}
		if err := enqueueEventTx(ctx, tx, r.exchange, domain.RoutingKeyBookingCancelled, event); err != nil {
			return err
		}

		result = &CancelBookingResult{Booking: *booking, Slot: *slot, Applied: true}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ListBookingsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Booking, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]domain.Booking, 0)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *booking)
	}
	return bookings, rows.Err()
}

// CompletePastSlots marks scheduled slots whose end time has passed as completed.
func (r *PostgresRepository) CompletePastSlots(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE schedules
		SET status = 'completed', updated_at = NOW()
		WHERE status = 'scheduled' AND end_time < $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
