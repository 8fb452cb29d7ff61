// README: Booking aggregate, status/state definitions and the status graph.
package booking

import (
	"time"

	"github.com/shopspring/decimal"

	"haulbook/internal/types"
)

// Status is the business stage of a booking.
type Status string

const (
	StatusPending       Status = "pending"
	StatusAccepted      Status = "accepted"
	StatusTruckAssigned Status = "truck_assigned"
	StatusLoading       Status = "loading"
	StatusInTransit     Status = "in_transit"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
)

// State is the operational progress of a booking. It is stored and set
// independently of Status even where the vocabulary overlaps.
type State string

const (
	StatePending   State = "pending"
	StateAccepted  State = "accepted"
	StateAssigned  State = "assigned"
	StateLoading   State = "loading"
	StateTransit   State = "transit"
	StateDelivered State = "delivered"
)

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusTruckAssigned, StatusLoading,
		StatusInTransit, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// needsTruck reports whether a booking may only hold this status with a truck attached.
func (s Status) needsTruck() bool {
	switch s {
	case StatusTruckAssigned, StatusLoading, StatusInTransit, StatusCompleted:
		return true
	}
	return false
}

func (s State) Valid() bool {
	switch s {
	case StatePending, StateAccepted, StateAssigned, StateLoading, StateTransit, StateDelivered:
		return true
	}
	return false
}

type Booking struct {
	ID                   types.ID
	RequesterID          types.ID
	MaterialID           types.ID
	VehicleTypeID        types.ID
	Source               string
	Destination          string
	Quantity             decimal.Decimal
	Status               Status
	State                State
	StatusVersion        int
	AssignedTruckID      *types.ID
	BookingTime          time.Time
	ExpectedDeliveryTime *time.Time
	ActualDeliveryTime   *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// HistoryEntry is one immutable row of the status journal. Status is a plain
// string snapshot so old labels survive enum changes.
type HistoryEntry struct {
	ID        types.ID
	BookingID types.ID
	Status    string
	UpdatedAt time.Time
	Notes     *string
}

type Filter struct {
	OwnerID types.ID
	Status  Status
}

// AllowedTransitions represents the booking status flow as code. A booking may
// also stay in its current non-terminal status (state/timestamp updates).
// Trucks are only attached to pending bookings, so accepted can only be held
// or cancelled.
var AllowedTransitions = map[Status][]Status{
	StatusPending:       {StatusAccepted, StatusTruckAssigned, StatusCancelled},
	StatusAccepted:      {StatusCancelled},
	StatusTruckAssigned: {StatusLoading, StatusCancelled},
	StatusLoading:       {StatusInTransit, StatusCancelled},
	StatusInTransit:     {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	if from.Terminal() {
		return false
	}
	if from == to {
		return true
	}
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type CreateCommand struct {
	MaterialID    types.ID
	VehicleTypeID types.ID
	Source        string
	Destination   string
	Quantity      decimal.Decimal
	BookingTime   time.Time
}

// AssignCommand names a truck for manual assignment; a nil TruckID asks for
// automatic selection.
type AssignCommand struct {
	TruckID *types.ID
}

type StatusUpdate struct {
	Status           Status
	State            *State
	ExpectedDelivery *time.Time
	ActualDelivery   *time.Time
	Notes            string
}
