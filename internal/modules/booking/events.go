package booking

import (
	"time"

	"haulbook/internal/types"
)

type EventKind string

const (
	EventCreated       EventKind = "booking.created"
	EventTruckAssigned EventKind = "booking.truck_assigned"
	EventStatusChanged EventKind = "booking.status_changed"
	EventCancelled     EventKind = "booking.cancelled"
)

// Event describes a committed lifecycle change.
type Event struct {
	Kind        EventKind
	BookingID   types.ID
	RequesterID types.ID
	Status      Status
	State       State
	TruckID     *types.ID
	OccurredAt  time.Time
}

func newEvent(kind EventKind, b *Booking) Event {
	return Event{
		Kind:        kind,
		BookingID:   b.ID,
		RequesterID: b.RequesterID,
		Status:      b.Status,
		State:       b.State,
		TruckID:     b.AssignedTruckID,
		OccurredAt:  b.UpdatedAt,
	}
}
