package app

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/domain"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/store"
)

const slotTimeLayout = "Mon 2 Jan 2006, 15:04 MST"

// ReservationService books and releases places in capacity-limited slots.
type ReservationService struct {
	repo                store.BookingRepository
	subscriptions       store.SubscriptionRepository
	emitter             Emitter
	logger              *slog.Logger
	requireSubscription bool
}

func NewReservationService(
	repo store.BookingRepository,
	subscriptions store.SubscriptionRepository,
	emitter Emitter,
	logger *slog.Logger,
	requireSubscription bool,
) *ReservationService {
	return &ReservationService{
		repo:                repo,
		subscriptions:       subscriptions,
		emitter:             emitter,
		logger:              logger,
		requireSubscription: requireSubscription,
	}
}

// BookSlot claims one place in slotID for userID. The capacity check, the
// increment and the booking insert commit together.
func (s *ReservationService) BookSlot(ctx context.Context, userID, slotID uuid.UUID) (*domain.Booking, error) {
	if s.requireSubscription {
		if _, err := s.subscriptions.FindActiveSubscription(ctx, userID); err != nil {
			if errors.Is(err, store.ErrSubscriptionNotFound) {
				return nil, ErrSubscriptionRequired
			}
			return nil, persistenceErr("find subscription", err)
		}
	}

	result, err := s.repo.ReserveSlot(ctx, store.ReserveSlotParams{
		BookingID: uuid.New(),
		SlotID:    slotID,
		UserID:    userID,
	})
	if err != nil {
		mapped := mapBookingError(err)
		var perr *PersistenceError
		if errors.As(mapped, &perr) {
			s.logger.Error("failed to reserve slot", "user_id", userID, "slot_id", slotID, "error", err)
		} else {
			s.logger.Info("booking rejected", "user_id", userID, "slot_id", slotID, "reason", mapped.Error())
		}
		return nil, mapped
	}

	booking := result.Booking
	s.logger.Info("slot booked",
		"user_id", userID,
		"slot_id", slotID,
		"booking_id", booking.ID,
		"capacity_current", result.Slot.CapacityCurrent,
		"capacity_max", result.Slot.CapacityMax,
	)
	s.emitter.Emit(ctx, userID, KindBookingCreated, bookingPayload(booking, result.Slot))
	return &booking, nil
}

// CancelBooking releases the user's registered booking. Cancelling an already
// cancelled booking returns it unchanged without side effects.
func (s *ReservationService) CancelBooking(ctx context.Context, userID, bookingID uuid.UUID) (*domain.Booking, error) {
	result, err := s.repo.CancelBooking(ctx, userID, bookingID)
	if err != nil {
		mapped := mapBookingError(err)
		var perr *PersistenceError
		if errors.As(mapped, &perr) {
			s.logger.Error("failed to cancel booking", "user_id", userID, "booking_id", bookingID, "error", err)
		}
		return nil, mapped
	}

	booking := result.Booking
	if !result.Applied {
		return &booking, nil
	}
	s.logger.Info("booking cancelled", "user_id", userID, "booking_id", bookingID, "slot_id", booking.SlotID)
	s.emitter.Emit(ctx, userID, KindBookingCancelled, bookingPayload(booking, result.Slot))
	return &booking, nil
}

func (s *ReservationService) GetSlot(ctx context.Context, slotID uuid.UUID) (*domain.Slot, error) {
	slot, err := s.repo.FindSlotByID(ctx, slotID)
	if err != nil {
		return nil, mapBookingError(err)
	}
	return slot, nil
}

func (s *ReservationService) ListBookings(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Booking, error) {
	bookings, err := s.repo.ListBookingsByUser(ctx, userID, limit)
	if err != nil {
		return nil, persistenceErr("list bookings", err)
	}
	return bookings, nil
}

func mapBookingError(err error) error {
	switch {
	case errors.Is(err, store.ErrSlotNotFound):
		return ErrSlotNotFound
	case errors.Is(err, store.ErrSlotNotBookable):
		return ErrSlotNotBookable
	case errors.Is(err, store.ErrSlotFull):
		return ErrSlotFull
	case errors.Is(err, store.ErrDuplicateActiveBooking):
		return ErrDuplicateBooking
	case errors.Is(err, store.ErrBookingNotFound):
		return ErrBookingNotFound
	case errors.Is(err, store.ErrBookingNotCancellable):
		return ErrBookingNotCancelable
	}
	return persistenceErr("booking", err)
}

func bookingPayload(booking domain.Booking, slot domain.Slot) domain.Metadata {
	payload := domain.Metadata{
		"booking_id":       booking.ID.String(),
		"slot_id":          slot.ID.String(),
		"status":           string(booking.Status),
		"capacity_current": strconv.Itoa(slot.CapacityCurrent),
		"capacity_max":     strconv.Itoa(slot.CapacityMax),
	}
	if slot.Title != "" {
		payload["slot_title"] = slot.Title
	}
	if !slot.StartTime.IsZero() {
		payload["start_time"] = slot.StartTime.UTC().Format(slotTimeLayout)
	}
	return payload
}
