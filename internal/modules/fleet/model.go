// README: Truck records owned by the fleet registry.
package fleet

import (
	"time"

	"haulbook/internal/types"
)

type Status string

const (
	StatusAvailable   Status = "available"
	StatusBooked      Status = "booked"
	StatusInTransit   Status = "in_transit"
	StatusMaintenance Status = "maintenance"
)

type Truck struct {
	ID              types.ID
	OwnerID         types.ID
	VehicleNumber   string
	VehicleTypeID   types.ID
	IsAvailable     bool
	Status          Status
	CurrentLocation string
	Position        *types.Point
	UpdatedAt       time.Time
}

// Selectable reports whether the truck may be claimed for a booking. Both
// fields move together; a truck with only one of them set is not selectable.
func (t *Truck) Selectable() bool {
	return t.IsAvailable && t.Status == StatusAvailable
}

// Engaged reports whether the truck is held by a booking.
func (t *Truck) Engaged() bool {
	return t.Status == StatusBooked || t.Status == StatusInTransit
}

type LocationUpdate struct {
	Text     string
	Position *types.Point
}

// RegisterCommand describes a truck an owner adds to the fleet.
type RegisterCommand struct {
	VehicleNumber   string
	VehicleTypeID   types.ID
	CurrentLocation string
	Position        *types.Point
}

// UpdateCommand carries owner-editable fields. Nil fields are left as they are.
type UpdateCommand struct {
	VehicleNumber *string
	VehicleTypeID *types.ID
	// Status may only be set to available or maintenance.
	Status *Status
}
