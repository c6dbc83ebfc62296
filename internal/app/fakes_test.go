package app

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/domain"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memoryStore is an in-memory stand-in for the Postgres repository. A single
// mutex plays the role of the row locks.
type memoryStore struct {
	mu            sync.Mutex
	orders        map[uuid.UUID]*domain.Order
	slots         map[uuid.UUID]*domain.Slot
	bookings      map[uuid.UUID]*domain.Booking
	subscriptions map[uuid.UUID]*domain.Subscription
	outbox        []domain.OutboxEvent
	writes        int

	createErr     error
	findErr       error
	transitionErr error
}

var _ store.OrderRepository = (*memoryStore)(nil)
var _ store.BookingRepository = (*memoryStore)(nil)
var _ store.SubscriptionRepository = (*memoryStore)(nil)

func newMemoryStore() *memoryStore {
	return &memoryStore{
		orders:        make(map[uuid.UUID]*domain.Order),
		slots:         make(map[uuid.UUID]*domain.Slot),
		bookings:      make(map[uuid.UUID]*domain.Booking),
		subscriptions: make(map[uuid.UUID]*domain.Subscription),
	}
}

func (m *memoryStore) outboxCount(routingKey string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.outbox {
		if e.RoutingKey == routingKey {
			n++
		}
	}
	return n
}

func (m *memoryStore) writeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *memoryStore) putOrder(order domain.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := order
	m.orders[order.ID] = &copied
}

func (m *memoryStore) order(id uuid.UUID) domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.orders[id]
}

func (m *memoryStore) putSlot(slot domain.Slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := slot
	m.slots[slot.ID] = &copied
}

func (m *memoryStore) slot(id uuid.UUID) domain.Slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.slots[id]
}

func (m *memoryStore) CreateOrder(ctx context.Context, order *domain.Order, events ...domain.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	now := time.Now().UTC()
	order.CreatedAt, order.UpdatedAt = now, now
	copied := *order
	copied.Items = append([]domain.OrderItem(nil), order.Items...)
	m.orders[order.ID] = &copied
	m.outbox = append(m.outbox, events...)
	m.writes++
	return nil
}

func (m *memoryStore) FindOrderByID(ctx context.Context, orderID uuid.UUID) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	order, ok := m.orders[orderID]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	copied := *order
	return &copied, nil
}

func (m *memoryStore) ListOrdersByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Order
	for _, o := range m.orders {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, nil
}

func (m *memoryStore) TransitionOrder(ctx context.Context, orderID uuid.UUID, decide store.OrderDecider) (*store.OrderTransition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.transitionErr != nil {
		return nil, m.transitionErr
	}
	current, ok := m.orders[orderID]
	if !ok {
		return nil, store.ErrOrderNotFound
	}
	update, err := decide(*current)
	if err != nil {
		return nil, err
	}
	result := &store.OrderTransition{Before: *current, After: *current}
	if update == nil {
		return result, nil
	}
	current.Status = update.Status
	if update.PaymentReference != nil {
		ref := *update.PaymentReference
		current.PaymentReference = &ref
	}
	current.UpdatedAt = time.Now().UTC()
	m.outbox = append(m.outbox, update.Events...)
	m.writes++
	result.After = *current
	result.Applied = true
	return result, nil
}

func (m *memoryStore) FindSlotByID(ctx context.Context, slotID uuid.UUID) (*domain.Slot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[slotID]
	if !ok {
		return nil, store.ErrSlotNotFound
	}
	copied := *slot
	return &copied, nil
}

func (m *memoryStore) ReserveSlot(ctx context.Context, params store.ReserveSlotParams) (*store.ReserveSlotResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.slots[params.SlotID]
	if !ok {
		return nil, store.ErrSlotNotFound
	}
	if slot.Status != domain.SlotStatusScheduled {
		return nil, store.ErrSlotNotBookable
	}
	for _, b := range m.bookings {
		if b.SlotID == params.SlotID && b.UserID == params.UserID &&
			(b.Status == domain.BookingStatusRegistered || b.Status == domain.BookingStatusAttended) {
			return nil, store.ErrDuplicateActiveBooking
		}
	}
	if slot.CapacityCurrent >= slot.CapacityMax {
		return nil, store.ErrSlotFull
	}
	slot.CapacityCurrent++
	now := time.Now().UTC()
	booking := &domain.Booking{
		ID:        params.BookingID,
		SlotID:    params.SlotID,
		UserID:    params.UserID,
		Status:    domain.BookingStatusRegistered,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.bookings[booking.ID] = booking
	m.outbox = append(m.outbox, domain.OutboxEvent{RoutingKey: domain.RoutingKeyBookingCreated})
	m.writes++
	return &store.ReserveSlotResult{Booking: *booking, Slot: *slot}, nil
}

func (m *memoryStore) CancelBooking(ctx context.Context, userID, bookingID uuid.UUID) (*store.CancelBookingResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	booking, ok := m.bookings[bookingID]
	if !ok || booking.UserID != userID {
		return nil, store.ErrBookingNotFound
	}
	slot := m.slots[booking.SlotID]
	switch booking.Status {
	case domain.BookingStatusCancelled:
		return &store.CancelBookingResult{Booking: *booking, Slot: *slot}, nil
	case domain.BookingStatusRegistered:
	default:
		return nil, store.ErrBookingNotCancellable
	}
	booking.Status = domain.BookingStatusCancelled
	if slot.CapacityCurrent > 0 {
		slot.CapacityCurrent--
	}
	m.outbox = append(m.outbox, domain.OutboxEvent{RoutingKey: domain.RoutingKeyBookingCancelled})
	m.writes++
	return &store.CancelBookingResult{Booking: *booking, Slot: *slot, Applied: true}, nil
}

func (m *memoryStore) ListBookingsByUser(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Booking
	for _, b := range m.bookings {
		if b.UserID == userID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (m *memoryStore) CompletePastSlots(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, s := range m.slots {
		if s.Status == domain.SlotStatusScheduled && s.EndTime.Before(now) {
			s.Status = domain.SlotStatusCompleted
			n++
		}
	}
	return n, nil
}

func (m *memoryStore) FindActiveSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subscriptions {
		if s.UserID == userID && s.Status == domain.SubscriptionStatusActive {
			copied := *s
			return &copied, nil
		}
	}
	return nil, store.ErrSubscriptionNotFound
}

func (m *memoryStore) CancelActiveSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.subscriptions {
		if s.UserID == userID && s.Status == domain.SubscriptionStatusActive {
			s.Status = domain.SubscriptionStatusCancelled
			copied := *s
			return &copied, nil
		}
	}
	return nil, store.ErrSubscriptionNotFound
}

func (m *memoryStore) ExpireSubscriptions(ctx context.Context, now time.Time) ([]domain.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Subscription
	for _, s := range m.subscriptions {
		if s.Status == domain.SubscriptionStatusActive && s.EndDate != nil && s.EndDate.Before(now) {
			s.Status = domain.SubscriptionStatusExpired
			out = append(out, *s)
		}
	}
	return out, nil
}

type emission struct {
	userID  uuid.UUID
	kind    EmissionKind
	payload domain.Metadata
}

type recordingEmitter struct {
	mu    sync.Mutex
	calls []emission
}

func (e *recordingEmitter) Emit(ctx context.Context, userID uuid.UUID, kind EmissionKind, payload domain.Metadata) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, emission{userID: userID, kind: kind, payload: payload})
}

func (e *recordingEmitter) count(kind EmissionKind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

func (e *recordingEmitter) total() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}
