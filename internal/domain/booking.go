package domain

import (
	"time"

	"github.com/google/uuid"
)

// SlotStatus is the state of a bookable schedule slot.
type SlotStatus string

const (
	SlotStatusScheduled SlotStatus = "scheduled"
	SlotStatusCompleted SlotStatus = "completed"
	SlotStatusCancelled SlotStatus = "cancelled"
)

// Slot is a capacity-limited schedule entry, e.g. a coaching session.
type Slot struct {
	ID              uuid.UUID  `json:"id"`
	Title           string     `json:"title"`
	TrainerID       *uuid.UUID `json:"trainer_id,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         time.Time  `json:"end_time"`
	CapacityMax     int        `json:"capacity_max"`
	CapacityCurrent int        `json:"capacity_current"`
	Status          SlotStatus `json:"status"`
}

// Remaining is the number of free places left.
func (s Slot) Remaining() int {
	if s.CapacityCurrent >= s.CapacityMax {
		return 0
	}
	return s.CapacityMax - s.CapacityCurrent
}

// BookingStatus is the state of a user's booking.
type BookingStatus string

const (
	BookingStatusRegistered BookingStatus = "registered"
	BookingStatusAttended   BookingStatus = "attended"
	BookingStatusMissed     BookingStatus = "missed"
	BookingStatusCancelled  BookingStatus = "cancelled"
)

// Booking is a user's claim on one place in a slot.
type Booking struct {
	ID        uuid.UUID     `json:"id"`
	SlotID    uuid.UUID     `json:"slot_id"`
	UserID    uuid.UUID     `json:"user_id"`
	Status    BookingStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}
