/**
 * @description
 * Payment provider webhook payloads (IntaSend checkout collections) and the
 * mapping from provider state to internal order status.
 *
 * @notes
 * - Providers are inconsistent about casing and wording, so states are
 *   normalized before they are classified.
 * - Amount fields arrive as either JSON numbers or strings and are kept raw.
 */
package domain

import (
	"encoding/json"
	"strings"
)

// PaymentWebhookEvent is the body posted by the payment provider.
type PaymentWebhookEvent struct {
	InvoiceID      string          `json:"invoice_id"`
	State          string          `json:"state"`
	Status         string          `json:"status,omitempty"`
	Provider       string          `json:"provider,omitempty"`
	Charges        json.RawMessage `json:"charges,omitempty"`
	NetAmount      json.RawMessage `json:"net_amount,omitempty"`
	Currency       string          `json:"currency,omitempty"`
	Value          json.RawMessage `json:"value,omitempty"`
	Account        string          `json:"account,omitempty"`
	APIRef         string          `json:"api_ref"`
	MpesaReference string          `json:"mpesa_reference,omitempty"`
	FailedReason   string          `json:"failed_reason,omitempty"`
	FailedCode     string          `json:"failed_code,omitempty"`
	Challenge      string          `json:"challenge,omitempty"`
	CreatedAt      string          `json:"created_at,omitempty"`
	UpdatedAt      string          `json:"updated_at,omitempty"`
}

// ProviderState returns the state field, falling back to status.
func (e PaymentWebhookEvent) ProviderState() string {
	if strings.TrimSpace(e.State) != "" {
		return e.State
	}
	return e.Status
}

// Reference is the provider-side identifier persisted as payment_reference.
func (e PaymentWebhookEvent) Reference() string {
	if ref := strings.TrimSpace(e.InvoiceID); ref != "" {
		return ref
	}
	return strings.TrimSpace(e.MpesaReference)
}

// PaymentOutcome classifies a provider state.
type PaymentOutcome int

const (
	PaymentOutcomeUnknown PaymentOutcome = iota
	PaymentOutcomeInterim
	PaymentOutcomeSucceeded
	PaymentOutcomeFailed
)

func normalizeState(state string) string {
	normalized := strings.ToUpper(strings.TrimSpace(state))
	normalized = strings.ReplaceAll(normalized, "-", "_")
	return strings.ReplaceAll(normalized, " ", "_")
}

// ClassifyPaymentState maps a provider state onto a payment outcome.
func ClassifyPaymentState(state string) PaymentOutcome {
	switch normalizeState(state) {
	case "COMPLETE", "COMPLETED", "SUCCESS", "SUCCESSFUL", "PAID":
		return PaymentOutcomeSucceeded
	case "FAILED", "FAILURE", "DECLINED", "REJECTED":
		return PaymentOutcomeFailed
	case "PENDING", "PROCESSING", "IN_PROGRESS":
		return PaymentOutcomeInterim
	default:
		return PaymentOutcomeUnknown
	}
}

// TargetStatus is the order status a final outcome moves a pending order to.
func (o PaymentOutcome) TargetStatus() (OrderStatus, bool) {
	switch o {
	case PaymentOutcomeSucceeded:
		return OrderStatusProcessing, true
	case PaymentOutcomeFailed:
		return OrderStatusFailed, true
	}
	return "", false
}
