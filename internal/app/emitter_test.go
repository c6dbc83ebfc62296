package app

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/domain"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/store"
)

type activityRepoStub struct {
	store.ActivityRepository

	entries       []domain.ActivityLogEntry
	notifications []domain.Notification
	events        []domain.OutboxEvent
	ctxErr        error
	err           error
}

func (s *activityRepoStub) RecordEmission(ctx context.Context, entry *domain.ActivityLogEntry, notification *domain.Notification, events ...domain.OutboxEvent) error {
	s.ctxErr = ctx.Err()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, *entry)
	if notification != nil {
		s.notifications = append(s.notifications, *notification)
	}
	s.events = append(s.events, events...)
	return nil
}

func TestActivityEmitter_StatusChangeNotifiesUser(t *testing.T) {
	repo := &activityRepoStub{}
	emitter := NewActivityEmitter(repo, discardLogger())
	userID := uuid.New()
	orderID := uuid.New()

	emitter.Emit(context.Background(), userID, KindOrderStatusChanged, domain.Metadata{
		"order_id": orderID.String(),
		"from":     "pending",
		"to":       "processing",
	})

	if len(repo.entries) != 1 {
		t.Fatalf("expected one activity entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.ActivityType != string(KindOrderStatusChanged) || entry.UserID != userID {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if !strings.Contains(entry.Description, "#"+orderID.String()[:8]) {
		t.Fatalf("expected description to reference the order, got %q", entry.Description)
	}

	if len(repo.notifications) != 1 {
		t.Fatalf("expected one notification, got %d", len(repo.notifications))
	}
	if n := repo.notifications[0]; n.Title != "Payment received" || n.Type != domain.NotificationSuccess {
		t.Fatalf("unexpected notification %+v", n)
	}
	if len(repo.events) != 1 || repo.events[0].RoutingKey != domain.RoutingKeyNotificationCreated {
		t.Fatalf("expected one notification.created event, got %+v", repo.events)
	}
}

func TestActivityEmitter_AuditOnlyKinds(t *testing.T) {
	for _, kind := range []EmissionKind{KindOrderCreated, KindUnhandledWebhookState} {
		t.Run(string(kind), func(t *testing.T) {
			repo := &activityRepoStub{}
			emitter := NewActivityEmitter(repo, discardLogger())

			emitter.Emit(context.Background(), uuid.New(), kind, domain.Metadata{"order_id": uuid.NewString(), "state": "REVERSED"})

			if len(repo.entries) != 1 {
				t.Fatalf("expected one activity entry, got %d", len(repo.entries))
			}
			if len(repo.notifications) != 0 || len(repo.events) != 0 {
				t.Fatalf("expected no notification for %s", kind)
			}
		})
	}
}

func TestActivityEmitter_CashOrderCreatedNotifiesOnce(t *testing.T) {
	repo := &activityRepoStub{}
	emitter := NewActivityEmitter(repo, discardLogger())

	emitter.Emit(context.Background(), uuid.New(), KindOrderCreated, domain.Metadata{
		"order_id":       uuid.NewString(),
		"total_amount":   "25.00",
		"currency":       "KES",
		"payment_method": string(domain.PaymentMethodCash),
	})

	if len(repo.entries) != 1 || repo.entries[0].ActivityType != string(KindOrderCreated) {
		t.Fatalf("expected one order_created entry, got %+v", repo.entries)
	}
	if len(repo.notifications) != 1 {
		t.Fatalf("expected one notification, got %d", len(repo.notifications))
	}
	if n := repo.notifications[0]; n.Title != "Order placed" || !strings.Contains(n.Message, "25.00 KES") {
		t.Fatalf("unexpected notification %+v", n)
	}
}

func TestActivityEmitter_SurvivesCancelledContext(t *testing.T) {
	repo := &activityRepoStub{}
	emitter := NewActivityEmitter(repo, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	emitter.Emit(ctx, uuid.New(), KindBookingCreated, domain.Metadata{"slot_id": uuid.NewString(), "slot_title": "Yoga"})

	if repo.ctxErr != nil {
		t.Fatalf("expected write context to be live, got %v", repo.ctxErr)
	}
	if len(repo.notifications) != 1 {
		t.Fatalf("expected booking notification, got %d", len(repo.notifications))
	}
	if !strings.Contains(repo.notifications[0].Message, "Yoga") {
		t.Fatalf("expected message to name the slot, got %q", repo.notifications[0].Message)
	}
}

func TestActivityEmitter_LogsStorageFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	repo := &activityRepoStub{err: errors.New("relation does not exist")}
	emitter := NewActivityEmitter(repo, logger)

	emitter.Emit(context.Background(), uuid.New(), KindSubscriptionExpired, domain.Metadata{"plan_name": "Monthly"})

	out := buf.String()
	if !strings.Contains(out, "failed to record lifecycle emission") || !strings.Contains(out, "relation does not exist") {
		t.Fatalf("expected failure to be logged, got %q", out)
	}
}
