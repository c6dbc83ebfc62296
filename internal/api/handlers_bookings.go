package api

import (
	"net/http"
)

type slotResponse struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	Status          string `json:"status"`
	CapacityMax     int    `json:"capacity_max"`
	CapacityCurrent int    `json:"capacity_current"`
	Remaining       int    `json:"remaining"`
}

// BookSlotHandler claims one place in a slot for the member.
func (h *Handlers) BookSlotHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	slotID, ok := pathUUID(w, r, "slotID")
	if !ok {
		return
	}

	booking, err := h.reservations.BookSlot(r.Context(), userID, slotID)
	if err != nil {
		h.writeServiceError(w, "book_slot", err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (h *Handlers) CancelBookingHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	bookingID, ok := pathUUID(w, r, "bookingID")
	if !ok {
		return
	}

	booking, err := h.reservations.CancelBooking(r.Context(), userID, bookingID)
	if err != nil {
		h.writeServiceError(w, "cancel_booking", err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (h *Handlers) GetSlotHandler(w http.ResponseWriter, r *http.Request) {
	slotID, ok := pathUUID(w, r, "slotID")
	if !ok {
		return
	}

	slot, err := h.reservations.GetSlot(r.Context(), slotID)
	if err != nil {
		h.writeServiceError(w, "get_slot", err)
		return
	}
	writeJSON(w, http.StatusOK, slotResponse{
		ID:              slot.ID.String(),
		Title:           slot.Title,
		StartTime:       slot.StartTime.UTC().Format(timeLayout),
		EndTime:         slot.EndTime.UTC().Format(timeLayout),
		Status:          string(slot.Status),
		CapacityMax:     slot.CapacityMax,
		CapacityCurrent: slot.CapacityCurrent,
		Remaining:       slot.Remaining(),
	})
}

func (h *Handlers) ListBookingsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	limit, ok := h.queryLimit(w, r)
	if !ok {
		return
	}

	bookings, err := h.reservations.ListBookings(r.Context(), userID, limit)
	if err != nil {
		h.writeServiceError(w, "list_bookings", err)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}
