/**
 * @description
 * OrderService owns the shop order lifecycle: creating pending orders from a
 * cart snapshot, reading them back for the order-status page, and the user and
 * staff transitions of the order state machine.
 *
 * @dependencies
 * - github.com/go-playground/validator/v10: shipping address and cart validation.
 * - github.com/shopspring/decimal: money arithmetic.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/domain"
	"github.com/trader2544/rabbit-hole-fitness-lab-sub000/internal/store"
)

const maxCartLines = 100

// maxAmount is the largest value a NUMERIC(12,2) money column holds.
var maxAmount = decimal.RequireFromString("9999999999.99")

// CartItem is one line of the cart snapshot submitted at checkout.
type CartItem struct {
	ProductID string          `json:"product_id" validate:"required,max=64"`
	Name      string          `json:"name" validate:"max=200"`
	Quantity  int             `json:"quantity" validate:"gt=0,lte=1000"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// CartItemsFromLines converts the cart handoff format into cart items.
func CartItemsFromLines(lines []domain.CartLine) []CartItem {
	items := make([]CartItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, CartItem{
			ProductID: strings.TrimSpace(line.ID),
			Name:      strings.TrimSpace(line.Name),
			Quantity:  line.Quantity,
			UnitPrice: line.Price,
		})
	}
	return items
}

// CheckoutOptions carries the optional parts of a checkout request.
type CheckoutOptions struct {
	PaymentMethod  domain.PaymentMethod
	DisplayedTotal *decimal.Decimal
}

type OrderService struct {
	repo     store.OrderRepository
	emitter  Emitter
	validate *validator.Validate
	logger   *slog.Logger
	currency string
}

func NewOrderService(repo store.OrderRepository, emitter Emitter, logger *slog.Logger, currency string) *OrderService {
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "KES"
	}
	return &OrderService{
		repo:     repo,
		emitter:  emitter,
		validate: newValidator(),
		logger:   logger,
		currency: currency,
	}
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return field.Name
		}
		return name
	})
	return v
}

// CreateOrder validates the cart and shipping details and persists a pending
// order with its items in one transaction. The total is always computed here.
func (s *OrderService) CreateOrder(
	ctx context.Context,
	userID uuid.UUID,
	cart []CartItem,
	shipping domain.ShippingAddress,
	opts CheckoutOptions,
) (*domain.Order, error) {
	if len(cart) == 0 {
		return nil, ErrEmptyCart
	}
	if len(cart) > maxCartLines {
		return nil, fmt.Errorf("%w: cart has more than %d lines", ErrInvalidCartItem, maxCartLines)
	}
	for i, item := range cart {
		if err := s.validateCartItem(item); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidCartItem, i+1, err)
		}
	}

	shipping = normalizeAddress(shipping)
	if err := s.validateAddress(shipping); err != nil {
		return nil, err
	}

	method := opts.PaymentMethod
	if method == "" {
		method = domain.PaymentMethodIntaSend
	}
	if method != domain.PaymentMethodIntaSend && method != domain.PaymentMethodCash {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedPaymentMethod, method)
	}

	order := &domain.Order{
		ID:              uuid.New(),
		UserID:          userID,
		Status:          domain.OrderStatusPending,
		Currency:        s.currency,
		PaymentMethod:   method,
		ShippingAddress: shipping,
		Items:           make([]domain.OrderItem, 0, len(cart)),
	}
	for _, line := range cart {
		order.Items = append(order.Items, domain.OrderItem{
			ID:          uuid.New(),
			OrderID:     order.ID,
			ProductID:   strings.TrimSpace(line.ProductID),
			ProductName: strings.TrimSpace(line.Name),
			Quantity:    line.Quantity,
			Price:       line.UnitPrice,
		})
	}
	order.TotalAmount = domain.ComputeTotal(order.Items)
	if order.TotalAmount.GreaterThan(maxAmount) {
		return nil, fmt.Errorf("%w: order total exceeds %s", ErrInvalidCartItem, maxAmount.StringFixed(2))
	}

	if opts.DisplayedTotal != nil && !opts.DisplayedTotal.Equal(order.TotalAmount) {
		s.logger.Warn("client displayed total differs from computed total",
			"user_id", userID,
			"order_id", order.ID,
			"displayed_total", opts.DisplayedTotal.String(),
			"computed_total", order.TotalAmount.String(),
		)
	}

	created := domain.OutboxEvent{
		RoutingKey: domain.RoutingKeyOrderCreated,
		Payload: domain.OrderCreatedEvent{
			OrderID:       order.ID,
			UserID:        userID,
			TotalAmount:   order.TotalAmount,
			Currency:      order.Currency,
			ItemCount:     len(order.Items),
			PaymentMethod: method,
			Timestamp:     time.Now().UTC(),
		},
	}
	if err := s.repo.CreateOrder(ctx, order, created); err != nil {
		s.logger.Error("failed to persist order", "user_id", userID, "order_id", order.ID, "error", err)
		return nil, persistenceErr("create order", err)
	}

	s.logger.Info("order created",
		"user_id", userID,
		"order_id", order.ID,
		"items", len(order.Items),
		"total_amount", order.TotalAmount.StringFixed(2),
		"payment_method", method,
	)

	payload := domain.Metadata{
		"order_id":       order.ID.String(),
		"total_amount":   order.TotalAmount.StringFixed(2),
		"currency":       order.Currency,
		"item_count":     len(order.Items),
		"payment_method": string(method),
	}
	s.emitter.Emit(ctx, userID, KindOrderCreated, payload)
	return order, nil
}

func (s *OrderService) validateCartItem(item CartItem) error {
	if err := s.validate.Struct(item); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%s failed %s", verrs[0].Field(), verrs[0].Tag())
		}
		return err
	}
	if item.UnitPrice.IsNegative() {
		return errors.New("unit_price must not be negative")
	}
	if !item.UnitPrice.Equal(item.UnitPrice.Round(2)) {
		return errors.New("unit_price has more than two decimal places")
	}
	if item.UnitPrice.GreaterThan(maxAmount) {
		return fmt.Errorf("unit_price exceeds %s", maxAmount.StringFixed(2))
	}
	return nil
}

func normalizeAddress(a domain.ShippingAddress) domain.ShippingAddress {
	a.FullName = strings.TrimSpace(a.FullName)
	a.Email = strings.TrimSpace(a.Email)
	a.Phone = strings.TrimSpace(a.Phone)
	a.Address = strings.TrimSpace(a.Address)
	a.City = strings.TrimSpace(a.City)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	a.Country = strings.TrimSpace(a.Country)
	return a
}

func (s *OrderService) validateAddress(a domain.ShippingAddress) error {
	err := s.validate.Struct(a)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &AddressError{Fields: map[string]string{"address": err.Error()}}
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = describeFieldError(fe)
	}
	return &AddressError{Fields: fields}
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email address"
	case "min":
		return "must be at least " + fe.Param() + " characters"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	}
	return "is invalid"
}

// GetOrder returns an order with items if it belongs to userID.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, store.ErrOrderNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, persistenceErr("find order", err)
	}
	if order.UserID != userID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID, limit int) ([]domain.Order, error) {
	orders, err := s.repo.ListOrdersByUser(ctx, userID, limit)
	if err != nil {
		return nil, persistenceErr("list orders", err)
	}
	return orders, nil
}

// CancelOrder lets the owner cancel an order that has not been paid yet. It
// takes the same row lock as webhook reconciliation, so a payment confirmation
// that lands first wins and the cancel is rejected.
func (s *OrderService) CancelOrder(ctx context.Context, userID, orderID uuid.UUID) (*domain.Order, error) {
	return s.transition(ctx, orderID, domain.ActorUser, domain.OrderStatusCancelled, func(current domain.Order) error {
		if current.UserID != userID {
			return ErrOrderNotFound
		}
		return nil
	})
}

// AdvanceOrder applies a staff transition such as processing to shipped.
func (s *OrderService) AdvanceOrder(ctx context.Context, orderID uuid.UUID, target domain.OrderStatus) (*domain.Order, error) {
	if !target.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, target)
	}
	return s.transition(ctx, orderID, domain.ActorStaff, target, nil)
}

func (s *OrderService) transition(
	ctx context.Context,
	orderID uuid.UUID,
	actor domain.Actor,
	target domain.OrderStatus,
	guard func(current domain.Order) error,
) (*domain.Order, error) {
	result, err := s.repo.TransitionOrder(ctx, orderID, func(current domain.Order) (*store.OrderUpdate, error) {
		if guard != nil {
			if err := guard(current); err != nil {
				return nil, err
			}
		}
		if current.Status == target {
			return nil, nil
		}
		if !domain.CanTransition(actor, current.Status, target) {
			return nil, fmt.Errorf("%w: %s cannot move order from %s to %s", ErrInvalidTransition, actor, current.Status, target)
		}
		return &store.OrderUpdate{
			Status: target,
			Events: []domain.OutboxEvent{statusChangedEvent(current, target, actor, nil)},
		}, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrOrderNotFound), errors.Is(err, ErrOrderNotFound):
			return nil, ErrOrderNotFound
		case errors.Is(err, ErrInvalidTransition):
			return nil, err
		}
		s.logger.Error("order transition failed", "order_id", orderID, "actor", actor, "target", target, "error", err)
		return nil, persistenceErr("transition order", err)
	}

	after := result.After
	if !result.Applied {
		s.logger.Info("order transition was a no-op", "order_id", orderID, "actor", actor, "status", after.Status)
		return &after, nil
	}

	s.logger.Info("order transitioned", "order_id", orderID, "actor", actor, "from", result.Before.Status, "to", after.Status)
	s.emitter.Emit(ctx, after.UserID, KindOrderStatusChanged, statusChangedPayload(result.Before.Status, after, actor))
	return &after, nil
}

func statusChangedEvent(current domain.Order, target domain.OrderStatus, actor domain.Actor, paymentRef *string) domain.OutboxEvent {
	ref := current.PaymentReference
	if paymentRef != nil {
		ref = paymentRef
	}
	return domain.OutboxEvent{
		RoutingKey: domain.RoutingKeyOrderStatusChanged,
		Payload: domain.OrderStatusChangedEvent{
			OrderID:          current.ID,
			UserID:           current.UserID,
			From:             current.Status,
			To:               target,
			Actor:            actor,
			PaymentReference: ref,
			Timestamp:        time.Now().UTC(),
		},
	}
}

func statusChangedPayload(from domain.OrderStatus, after domain.Order, actor domain.Actor) domain.Metadata {
	payload := domain.Metadata{
		"order_id": after.ID.String(),
		"from":     string(from),
		"to":       string(after.Status),
		"actor":    string(actor),
	}
	if after.PaymentReference != nil {
		payload["payment_reference"] = *after.PaymentReference
	}
	return payload
}
