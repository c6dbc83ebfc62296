/**
 * @description
 * PaymentService connects orders to the hosted checkout provider. It requests
 * checkout sessions for pending orders and reconciles the provider's
 * asynchronous webhooks into order status transitions.
 *
 * @notes
 * - Webhooks are delivered at least once and possibly out of order. Every
 *   decision is taken while holding the order row lock, and only a pending
 *   order is ever moved.
 * - No database lock is held while talking to the provider.
 */

package app

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/domain"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/store"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/pkg/intasend"
)

// CheckoutGateway requests hosted checkout sessions.
type CheckoutGateway interface {
	CreateCheckout(ctx context.Context, payload intasend.CheckoutRequest) (*intasend.CheckoutResponse, error)
}

// PaymentConfig holds the URLs and secrets the payment flow needs.
type PaymentConfig struct {
	// AppBaseURL is where the customer is sent back to after paying.
	AppBaseURL string
	// PublicAPIBaseURL is this service's externally reachable base URL.
	PublicAPIBaseURL string
	// WebhookChallenge, when set, must match the challenge field of every webhook.
	WebhookChallenge string
	Host             string
}

// WebhookOutcome describes what a webhook delivery did.
type WebhookOutcome string

const (
	WebhookApplied         WebhookOutcome = "applied"
	WebhookDuplicate       WebhookOutcome = "duplicate"
	WebhookAlreadyTerminal WebhookOutcome = "already_terminal"
	WebhookSuperseded      WebhookOutcome = "superseded"
	WebhookInterim         WebhookOutcome = "interim"
	WebhookUnhandledState  WebhookOutcome = "unhandled_state"
)

// WebhookResult is returned for every acknowledged webhook.
type WebhookResult struct {
	OrderID uuid.UUID          `json:"order_id"`
	Outcome WebhookOutcome     `json:"outcome"`
	Status  domain.OrderStatus `json:"status"`
}

type PaymentService struct {
	gateway CheckoutGateway
	orders  store.OrderRepository
	emitter Emitter
	logger  *slog.Logger
	config  PaymentConfig
}

func NewPaymentService(gateway CheckoutGateway, orders store.OrderRepository, emitter Emitter, logger *slog.Logger, cfg PaymentConfig) *PaymentService {
	cfg.AppBaseURL = strings.TrimRight(strings.TrimSpace(cfg.AppBaseURL), "/")
	cfg.PublicAPIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.PublicAPIBaseURL), "/")
	cfg.WebhookChallenge = strings.TrimSpace(cfg.WebhookChallenge)
	return &PaymentService{
		gateway: gateway,
		orders:  orders,
		emitter: emitter,
		logger:  logger,
		config:  cfg,
	}
}

// RedirectURL is the order-status page the provider returns the customer to.
func (s *PaymentService) RedirectURL(orderID uuid.UUID) string {
	return s.config.AppBaseURL + "/order-status?order_id=" + url.QueryEscape(orderID.String())
}

// WebhookURL is the callback endpoint registered with every checkout.
func (s *PaymentService) WebhookURL() string {
	return s.config.PublicAPIBaseURL + "/webhooks/payment"
}

// InitiatePayment requests a hosted checkout session for a pending order and
// returns the URL to send the customer to. It never changes the order.
func (s *PaymentService) InitiatePayment(ctx context.Context, order domain.Order) (string, error) {
	if order.Status != domain.OrderStatusPending || order.PaymentMethod != domain.PaymentMethodIntaSend {
		return "", ErrPaymentNotRequired
	}

	addr := order.ShippingAddress
	req := intasend.CheckoutRequest{
		Amount:      json.Number(order.TotalAmount.StringFixed(2)),
		Currency:    order.Currency,
		APIRef:      order.APIRef(),
		Email:       addr.Email,
		FirstName:   addr.FirstName(),
		LastName:    addr.LastName(),
		PhoneNumber: addr.Phone,
		Address:     addr.Address,
		City:        addr.City,
		Zipcode:     addr.PostalCode,
		Country:     addr.Country,
		RedirectURL: s.RedirectURL(order.ID),
		WebhookURL:  s.WebhookURL(),
		Host:        s.config.Host,
		Comment:     fmt.Sprintf("Order %s", order.ID),
	}

	resp, err := s.gateway.CreateCheckout(ctx, req)
	if err != nil {
		if errors.Is(err, intasend.ErrMisconfiguredCredentials) {
			s.logger.Error("payment gateway rejected credentials", "order_id", order.ID, "error", err)
		} else {
			s.logger.Warn("payment session request failed", "order_id", order.ID, "error", err)
		}
		return "", err
	}

	s.logger.Info("payment session created", "order_id", order.ID, "checkout_id", resp.ID, "api_ref", req.APIRef)
	return resp.SessionURL(), nil
}

// RetryPayment requests a fresh checkout session for the user's pending order.
func (s *PaymentService) RetryPayment(ctx context.Context, userID, orderID uuid.UUID) (string, error) {
	order, err := s.orders.FindOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			return "", ErrOrderNotFound
		}
		return "", persistenceErr("find order", err)
	}
	if order.UserID != userID {
		return "", ErrOrderNotFound
	}
	return s.InitiatePayment(ctx, *order)
}

// HandleWebhook reconciles one provider callback. Errors map to 4xx
// (ErrMalformedPayload, ErrUnknownOrder, ErrInvalidChallenge) or 5xx
// (*PersistenceError); every other case is acknowledged with a result.
func (s *PaymentService) HandleWebhook(ctx context.Context, raw []byte) (*WebhookResult, error) {
	var event domain.PaymentWebhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	if s.config.WebhookChallenge != "" &&
		subtle.ConstantTimeCompare([]byte(strings.TrimSpace(event.Challenge)), []byte(s.config.WebhookChallenge)) != 1 {
		return nil, ErrInvalidChallenge
	}

	rawID, err := domain.ParseAPIRef(event.APIRef)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	state := strings.TrimSpace(event.ProviderState())
	if state == "" {
		return nil, fmt.Errorf("%w: missing state", ErrMalformedPayload)
	}
	// No order can have a non-UUID id, so this is an unknown order rather
	// than a malformed reference.
	orderID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, ErrUnknownOrder
	}

	logger := s.logger.With("order_id", orderID, "provider_state", state, "invoice_id", event.InvoiceID)

	outcome := domain.ClassifyPaymentState(state)
	target, final := outcome.TargetStatus()
	if !final {
		order, err := s.orders.FindOrderByID(ctx, orderID)
		if err != nil {
			if errors.Is(err, store.ErrOrderNotFound) {
				return nil, ErrUnknownOrder
			}
			return nil, persistenceErr("find order", err)
		}
		result := &WebhookResult{OrderID: orderID, Status: order.Status, Outcome: WebhookInterim}
		if outcome == domain.PaymentOutcomeUnknown {
			result.Outcome = WebhookUnhandledState
			logger.Warn("unhandled payment webhook state")
			s.emitter.Emit(ctx, order.UserID, KindUnhandledWebhookState, domain.Metadata{
				"order_id":   orderID.String(),
				"state":      state,
				"invoice_id": event.InvoiceID,
				"provider":   event.Provider,
			})
		} else {
			logger.Info("interim payment webhook acknowledged")
		}
		return result, nil
	}

	var paymentRef *string
	if ref := event.Reference(); ref != "" {
		paymentRef = &ref
	}

	result := &WebhookResult{OrderID: orderID}
	transition, err := s.orders.TransitionOrder(ctx, orderID, func(current domain.Order) (*store.OrderUpdate, error) {
		switch {
		case current.Status == target:
			result.Outcome = WebhookDuplicate
			return nil, nil
		case current.Status.IsTerminal():
			result.Outcome = WebhookAlreadyTerminal
			return nil, nil
		case current.Status != domain.OrderStatusPending:
			result.Outcome = WebhookSuperseded
			return nil, nil
		}
		result.Outcome = WebhookApplied
		return &store.OrderUpdate{
			Status:           target,
			PaymentReference: paymentRef,
			Events:           []domain.OutboxEvent{statusChangedEvent(current, target, domain.ActorWebhook, paymentRef)},
		}, nil
	})
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			return nil, ErrUnknownOrder
		}
		logger.Error("failed to apply payment webhook", "error", err)
		return nil, persistenceErr("apply payment webhook", err)
	}
	result.Status = transition.After.Status

	switch result.Outcome {
	case WebhookApplied:
		logger.Info("payment webhook applied", "from", transition.Before.Status, "to", transition.After.Status)
		payload := statusChangedPayload(transition.Before.Status, transition.After, domain.ActorWebhook)
		payload["provider_state"] = state
		s.emitter.Emit(ctx, transition.After.UserID, KindOrderStatusChanged, payload)
	case WebhookAlreadyTerminal:
		logger.Warn("payment webhook ignored for terminal order", "status", transition.Before.Status, "target", target)
	case WebhookSuperseded:
		logger.Warn("payment webhook ignored for order no longer pending", "status", transition.Before.Status, "target", target)
	default:
		logger.Info("duplicate payment webhook ignored", "status", transition.Before.Status)
	}
	return result, nil
}
