package api

import (
	"errors"
	"io"
	"net/http"
)

const maxWebhookBodyBytes = 1 << 20

// PaymentWebhookHandler reconciles a payment provider callback. A 2xx answer
// means the delivery was processed or safely ignored; 5xx asks the provider
// to retry.
func (h *Handlers) PaymentWebhookHandler(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "Could not read request body")
		return
	}

	result, err := h.payments.HandleWebhook(r.Context(), body)
	if err != nil {
		h.writeServiceError(w, "payment_webhook", err)
		return
	}

	h.logger.Info("payment webhook processed", "order_id", result.OrderID, "outcome", result.Outcome, "status", result.Status)
	writeJSON(w, http.StatusOK, result)
}
