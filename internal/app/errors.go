package app

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrEmptyCart                = errors.New("cart is empty")
	ErrInvalidCartItem          = errors.New("cart contains an invalid item")
	ErrOrderNotFound            = errors.New("order not found")
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
	ErrInvalidTransition        = errors.New("order status transition not allowed")
	ErrPaymentNotRequired       = errors.New("order is not awaiting online payment")
	ErrMalformedPayload         = errors.New("malformed webhook payload")
	ErrUnknownOrder             = errors.New("webhook references an unknown order")
	ErrInvalidChallenge         = errors.New("webhook challenge mismatch")
	ErrSlotNotFound             = errors.New("slot not found")
	ErrSlotNotBookable          = errors.New("slot is not open for booking")
	ErrSlotFull                 = errors.New("slot is full")
	ErrDuplicateBooking         = errors.New("already booked for this slot")
	ErrBookingNotFound          = errors.New("booking not found")
	ErrBookingNotCancelable     = errors.New("booking can no longer be cancelled")
	ErrSubscriptionRequired     = errors.New("an active subscription is required")
	ErrSubscriptionNotFound     = errors.New("no active subscription")
	ErrNotificationNotFound     = errors.New("notification not found")
	ErrRateLimited              = errors.New("too many requests")
)

// AddressError reports which shipping fields failed validation.
type AddressError struct {
	Fields map[string]string
}

func (e *AddressError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "invalid shipping address (" + strings.Join(parts, ", ") + ")"
}

// PersistenceError wraps a storage failure the caller may retry.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func persistenceErr(op string, err error) error {
	return &PersistenceError{Op: op, Err: err}
}

// RateLimitError carries the wait before the caller may try again.
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("too many requests, retry after %ds", e.RetryAfterSeconds)
}

func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}
