package api

import (
	"net/http"
	"strings"
)

type markAllReadResponse struct {
	Updated int64 `json:"updated"`
}

// ListNotificationsHandler lists the member's notifications. ?status=unread
// narrows the list to unread entries.
func (h *Handlers) ListNotificationsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	limit, ok := h.queryLimit(w, r)
	if !ok {
		return
	}

	unreadOnly := false
	switch strings.ToLower(strings.TrimSpace(r.URL.Query().Get("status"))) {
	case "":
	case "unread":
		unreadOnly = true
	default:
		writeError(w, http.StatusBadRequest, "Invalid status")
		return
	}

	items, err := h.accounts.ListNotifications(r.Context(), userID, unreadOnly, limit)
	if err != nil {
		h.writeServiceError(w, "list_notifications", err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *Handlers) MarkNotificationReadHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	notificationID, ok := pathUUID(w, r, "notificationID")
	if !ok {
		return
	}

	if err := h.accounts.MarkNotificationRead(r.Context(), userID, notificationID); err != nil {
		h.writeServiceError(w, "mark_notification_read", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) MarkAllNotificationsReadHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	updated, err := h.accounts.MarkAllNotificationsRead(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "mark_all_notifications_read", err)
		return
	}
	writeJSON(w, http.StatusOK, markAllReadResponse{Updated: updated})
}

func (h *Handlers) ListActivityHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	limit, ok := h.queryLimit(w, r)
	if !ok {
		return
	}

	entries, err := h.accounts.ListActivity(r.Context(), userID, limit)
	if err != nil {
		h.writeServiceError(w, "list_activity", err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handlers) GetSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	sub, err := h.accounts.GetActiveSubscription(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "get_subscription", err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *Handlers) CancelSubscriptionHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	sub, err := h.accounts.CancelSubscription(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, "cancel_subscription", err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
