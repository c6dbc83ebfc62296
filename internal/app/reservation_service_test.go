package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/domain"
)

func seedSlot(repo *memoryStore, capacity int, status domain.SlotStatus) domain.Slot {
	start := time.Now().Add(24 * time.Hour).UTC()
	slot := domain.Slot{
		ID:          uuid.New(),
		Title:       "Morning HIIT",
		StartTime:   start,
		EndTime:     start.Add(time.Hour),
		CapacityMax: capacity,
		Status:      status,
	}
	repo.putSlot(slot)
	return slot
}

func newTestReservationService(requireSubscription bool) (*ReservationService, *memoryStore, *recordingEmitter) {
	repo := newMemoryStore()
	emitter := &recordingEmitter{}
	return NewReservationService(repo, repo, emitter, discardLogger(), requireSubscription), repo, emitter
}

func TestBookSlot_Succeeds(t *testing.T) {
	svc, repo, emitter := newTestReservationService(false)
	slot := seedSlot(repo, 3, domain.SlotStatusScheduled)
	userID := uuid.New()

	booking, err := svc.BookSlot(context.Background(), userID, slot.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if booking.Status != domain.BookingStatusRegistered {
		t.Fatalf("expected registered booking, got %s", booking.Status)
	}
	if got := repo.slot(slot.ID).CapacityCurrent; got != 1 {
		t.Fatalf("expected capacity_current 1, got %d", got)
	}
	if emitter.count(KindBookingCreated) != 1 {
		t.Fatalf("expected one booking_created emission")
	}
	if repo.outboxCount(domain.RoutingKeyBookingCreated) != 1 {
		t.Fatalf("expected one booking.created event")
	}
}

func TestBookSlot_ConcurrentRequestsNeverOverbook(t *testing.T) {
	svc, repo, emitter := newTestReservationService(false)
	slot := seedSlot(repo, 1, domain.SlotStatusScheduled)

	const attempts = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		full      int
		other     []error
	)
	start := make(chan struct{})
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.BookSlot(context.Background(), uuid.New(), slot.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrSlotFull):
				full++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(other) > 0 {
		t.Fatalf("unexpected errors: %v", other)
	}
	if successes != 1 || full != attempts-1 {
		t.Fatalf("expected 1 success and %d full, got %d and %d", attempts-1, successes, full)
	}
	if got := repo.slot(slot.ID).CapacityCurrent; got != 1 {
		t.Fatalf("expected capacity_current 1, got %d", got)
	}
	if emitter.count(KindBookingCreated) != 1 {
		t.Fatalf("expected one booking_created emission, got %d", emitter.count(KindBookingCreated))
	}
}

func TestBookSlot_Rejections(t *testing.T) {
	t.Run("duplicate booking keeps capacity", func(t *testing.T) {
		svc, repo, emitter := newTestReservationService(false)
		slot := seedSlot(repo, 5, domain.SlotStatusScheduled)
		userID := uuid.New()

		if _, err := svc.BookSlot(context.Background(), userID, slot.ID); err != nil {
			t.Fatalf("first booking: unexpected error: %v", err)
		}
		_, err := svc.BookSlot(context.Background(), userID, slot.ID)
		if !errors.Is(err, ErrDuplicateBooking) {
			t.Fatalf("expected ErrDuplicateBooking, got %v", err)
		}
		if got := repo.slot(slot.ID).CapacityCurrent; got != 1 {
			t.Fatalf("expected capacity_current 1, got %d", got)
		}
		if emitter.count(KindBookingCreated) != 1 {
			t.Fatalf("expected one emission")
		}
	})

	t.Run("completed slot is not bookable", func(t *testing.T) {
		svc, repo, _ := newTestReservationService(false)
		slot := seedSlot(repo, 5, domain.SlotStatusCompleted)

		_, err := svc.BookSlot(context.Background(), uuid.New(), slot.ID)
		if !errors.Is(err, ErrSlotNotBookable) {
			t.Fatalf("expected ErrSlotNotBookable, got %v", err)
		}
		if got := repo.slot(slot.ID).CapacityCurrent; got != 0 {
			t.Fatalf("expected capacity unchanged, got %d", got)
		}
	})

	t.Run("missing slot", func(t *testing.T) {
		svc, _, _ := newTestReservationService(false)

		_, err := svc.BookSlot(context.Background(), uuid.New(), uuid.New())
		if !errors.Is(err, ErrSlotNotFound) {
			t.Fatalf("expected ErrSlotNotFound, got %v", err)
		}
	})
}

func TestBookSlot_SubscriptionGate(t *testing.T) {
	svc, repo, _ := newTestReservationService(true)
	slot := seedSlot(repo, 5, domain.SlotStatusScheduled)
	userID := uuid.New()

	_, err := svc.BookSlot(context.Background(), userID, slot.ID)
	if !errors.Is(err, ErrSubscriptionRequired) {
		t.Fatalf("expected ErrSubscriptionRequired, got %v", err)
	}
	if repo.writeCount() != 0 {
		t.Fatalf("expected no writes")
	}

	end := time.Now().Add(30 * 24 * time.Hour)
	repo.subscriptions[uuid.New()] = &domain.Subscription{
		ID:        uuid.New(),
		UserID:    userID,
		PlanName:  "Monthly",
		PlanPrice: decimal.RequireFromString("3500.00"),
		Status:    domain.SubscriptionStatusActive,
		StartDate: time.Now(),
		EndDate:   &end,
	}
	if _, err := svc.BookSlot(context.Background(), userID, slot.ID); err != nil {
		t.Fatalf("expected booking with an active subscription, got %v", err)
	}
}

func TestCancelBooking_ReleasesPlace(t *testing.T) {
	svc, repo, emitter := newTestReservationService(false)
	slot := seedSlot(repo, 1, domain.SlotStatusScheduled)
	userID := uuid.New()

	booking, err := svc.BookSlot(context.Background(), userID, slot.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, err := svc.CancelBooking(context.Background(), uuid.New(), booking.ID); !errors.Is(err, ErrBookingNotFound) {
		t.Fatalf("expected ErrBookingNotFound for another user, got %v", err)
	}

	cancelled, err := svc.CancelBooking(context.Background(), userID, booking.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cancelled.Status != domain.BookingStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if got := repo.slot(slot.ID).CapacityCurrent; got != 0 {
		t.Fatalf("expected capacity_current 0, got %d", got)
	}

	if _, err := svc.CancelBooking(context.Background(), userID, booking.ID); err != nil {
		t.Fatalf("expected repeated cancel to succeed, got %v", err)
	}
	if emitter.count(KindBookingCancelled) != 1 {
		t.Fatalf("expected one booking_cancelled emission, got %d", emitter.count(KindBookingCancelled))
	}

	// The released place can be taken again.
	if _, err := svc.BookSlot(context.Background(), uuid.New(), slot.ID); err != nil {
		t.Fatalf("expected freed place to be bookable, got %v", err)
	}
}
