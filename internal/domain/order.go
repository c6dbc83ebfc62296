/**
 * @description
 * Order domain model for the shop checkout flow. An order is created in the
 * pending state from a cart snapshot and then moved through its lifecycle by
 * payment webhooks, staff actions and user cancellation.
 *
 * @dependencies
 * - github.com/google/uuid: order and user identifiers.
 * - github.com/shopspring/decimal: fixed-point currency amounts.
 */

package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusFailed     OrderStatus = "failed"
)

// APIRefPrefix prefixes the order id in the reference sent to the payment provider.
const APIRefPrefix = "order_"

// Actor identifies who requested an order transition.
type Actor string

const (
	ActorWebhook Actor = "webhook"
	ActorStaff   Actor = "staff"
	ActorUser    Actor = "user"
)

// PaymentMethod selects how an order is settled.
type PaymentMethod string

const (
	PaymentMethodIntaSend PaymentMethod = "intasend"
	PaymentMethodCash     PaymentMethod = "cash"
)

// ShippingAddress is the structured delivery address captured at checkout.
type ShippingAddress struct {
	FullName   string `json:"full_name" validate:"required,max=120"`
	Email      string `json:"email" validate:"required,email"`
	Phone      string `json:"phone" validate:"required,min=7,max=20"`
	Address    string `json:"address" validate:"required,max=255"`
	City       string `json:"city" validate:"required,max=100"`
	PostalCode string `json:"postal_code" validate:"required,max=20"`
	Country    string `json:"country,omitempty" validate:"omitempty,max=100"`
}

// FirstName returns the first token of FullName.
func (a ShippingAddress) FirstName() string {
	parts := strings.Fields(a.FullName)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}

// LastName returns everything after the first token of FullName.
func (a ShippingAddress) LastName() string {
	parts := strings.Fields(a.FullName)
	if len(parts) < 2 {
		return ""
	}
	return strings.Join(parts[1:], " ")
}

// Order is a shop order.
type Order struct {
	ID               uuid.UUID       `json:"id"`
	UserID           uuid.UUID       `json:"user_id"`
	Status           OrderStatus     `json:"status"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Currency         string          `json:"currency"`
	PaymentMethod    PaymentMethod   `json:"payment_method"`
	ShippingAddress  ShippingAddress `json:"shipping_address"`
	PaymentReference *string         `json:"payment_reference,omitempty"`
	Items            []OrderItem     `json:"items,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// OrderItem is one line of an order. Price is the unit price captured when the
// order was placed and is never recomputed.
type OrderItem struct {
	ID          uuid.UUID       `json:"id"`
	OrderID     uuid.UUID       `json:"order_id"`
	ProductID   string          `json:"product_id"`
	ProductName string          `json:"product_name,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// LineTotal is Price x Quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ComputeTotal sums the line totals of items.
func ComputeTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// APIRef is the reference the payment provider echoes back in webhooks.
func (o Order) APIRef() string {
	return APIRefPrefix + o.ID.String()
}

// ErrMalformedAPIRef is returned by ParseAPIRef when the reference does not
// follow the order_<id> scheme.
var ErrMalformedAPIRef = fmt.Errorf("api_ref does not match %s<id>", APIRefPrefix)

// ParseAPIRef recovers the raw order id from a provider reference. The id part
// is returned unparsed so callers can tell an unknown order apart from a
// malformed reference.
func ParseAPIRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if !strings.HasPrefix(ref, APIRefPrefix) {
		return "", ErrMalformedAPIRef
	}
	id := strings.TrimPrefix(ref, APIRefPrefix)
	if id == "" || strings.ContainsAny(id, " \t\r\n/") {
		return "", ErrMalformedAPIRef
	}
	return id, nil
}

// IsTerminal reports whether no further transitions are accepted from s.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusDelivered, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusProcessing, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

var orderTransitions = map[Actor]map[OrderStatus][]OrderStatus{
	ActorWebhook: {
		OrderStatusPending: {OrderStatusProcessing, OrderStatusFailed},
	},
	ActorStaff: {
		OrderStatusPending:    {OrderStatusProcessing, OrderStatusFailed, OrderStatusCancelled},
		OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
		OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled},
	},
	ActorUser: {
		OrderStatusPending: {OrderStatusCancelled},
	},
}

// CanTransition reports whether actor may move an order from one status to another.
func CanTransition(actor Actor, from, to OrderStatus) bool {
	if from.IsTerminal() {
		return false
	}
	for _, allowed := range orderTransitions[actor][from] {
		if allowed == to {
			return true
		}
	}
	return false
}
