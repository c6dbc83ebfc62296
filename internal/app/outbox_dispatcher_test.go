package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/store"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/pkg/rabbitmq"
)

type outboxRepoStub struct {
	messages  []store.OutboxMessage
	published []int64
	failed    map[int64]int
	claimErr  error
}

func (s *outboxRepoStub) ClaimOutboxMessages(ctx context.Context, limit int, staleAfterSeconds int) ([]store.OutboxMessage, error) {
	if s.claimErr != nil {
		return nil, s.claimErr
	}
	claimed := s.messages
	s.messages = nil
	return claimed, nil
}

func (s *outboxRepoStub) MarkOutboxPublished(ctx context.Context, id int64) error {
	s.published = append(s.published, id)
	return nil
}

func (s *outboxRepoStub) MarkOutboxFailed(ctx context.Context, id int64, retryAfterSeconds int, reason string) error {
	if s.failed == nil {
		s.failed = make(map[int64]int)
	}
	s.failed[id] = retryAfterSeconds
	return nil
}

type publishedMessage struct {
	exchange   string
	routingKey string
	messageID  string
	body       interface{}
}

type publisherStub struct {
	sent   []publishedMessage
	failOn map[string]error
	closed int
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey, messageID string, body interface{}) error {
	if err := p.failOn[routingKey]; err != nil {
		return err
	}
	p.sent = append(p.sent, publishedMessage{exchange, routingKey, messageID, body})
	return nil
}

func (p *publisherStub) Close() { p.closed++ }

func TestOutboxDispatcher_FlushOnce(t *testing.T) {
	repo := &outboxRepoStub{messages: []store.OutboxMessage{
		{ID: 1, Exchange: "fitness.events", RoutingKey: "order.created", Payload: []byte(`{"order_id":"a"}`)},
		{ID: 2, Exchange: "fitness.events", RoutingKey: "booking.created", Payload: []byte(`{"booking_id":"b"}`), Attempts: 3},
		{ID: 3, Exchange: "fitness.events", RoutingKey: "order.status_changed", Payload: []byte(`not json`), Attempts: 1},
	}}
	publisher := &publisherStub{failOn: map[string]error{"booking.created": errors.New("channel closed")}}
	factoryCalls := 0
	dispatcher := NewOutboxDispatcher(repo, func() (rabbitmq.Publisher, error) {
		factoryCalls++
		return publisher, nil
	}, discardLogger(), 0)

	published, err := dispatcher.FlushOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if published != 1 {
		t.Fatalf("expected 1 published message, got %d", published)
	}
	if len(repo.published) != 1 || repo.published[0] != 1 {
		t.Fatalf("expected message 1 marked published, got %v", repo.published)
	}
	if repo.failed[2] != 8 {
		t.Fatalf("expected message 2 retried after 8s, got %d", repo.failed[2])
	}
	if repo.failed[3] != 2 {
		t.Fatalf("expected message 3 retried after 2s, got %d", repo.failed[3])
	}

	sent := publisher.sent[0]
	if sent.messageID != "1" || sent.exchange != "fitness.events" {
		t.Fatalf("unexpected publish %+v", sent)
	}
	if raw, ok := sent.body.(json.RawMessage); !ok || string(raw) != `{"order_id":"a"}` {
		t.Fatalf("expected raw json body, got %#v", sent.body)
	}
	if publisher.closed != 1 || factoryCalls != 2 {
		t.Fatalf("expected the publisher to be reopened after a failure, closed=%d factory=%d", publisher.closed, factoryCalls)
	}
}

func TestOutboxDispatcher_BrokerUnavailable(t *testing.T) {
	repo := &outboxRepoStub{messages: []store.OutboxMessage{
		{ID: 7, Exchange: "fitness.events", RoutingKey: "order.created", Payload: []byte(`{}`)},
	}}
	dispatcher := NewOutboxDispatcher(repo, func() (rabbitmq.Publisher, error) {
		return nil, errors.New("dial tcp: connection refused")
	}, discardLogger(), 0)

	published, err := dispatcher.FlushOnce(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if published != 0 {
		t.Fatalf("expected nothing published, got %d", published)
	}
	if _, ok := repo.failed[7]; !ok {
		t.Fatalf("expected message to be rescheduled")
	}
}

func TestOutboxDispatcher_ClaimError(t *testing.T) {
	repo := &outboxRepoStub{claimErr: errors.New("db down")}
	dispatcher := NewOutboxDispatcher(repo, func() (rabbitmq.Publisher, error) { return &publisherStub{}, nil }, discardLogger(), 0)

	if _, err := dispatcher.FlushOnce(context.Background()); err == nil {
		t.Fatal("expected claim error")
	}
}

func TestRetryDelaySeconds(t *testing.T) {
	tests := []struct {
		attempt int
		want    int
	}{
		{0, 1},
		{1, 2},
		{3, 8},
		{8, 256},
		{20, 256},
	}
	for _, tt := range tests {
		if got := retryDelaySeconds(tt.attempt); got != tt.want {
			t.Fatalf("attempt %d: expected %d, got %d", tt.attempt, tt.want, got)
		}
	}
}
