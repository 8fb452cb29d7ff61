// README: Truck selection and proximity search types.
package matching

import (
	"haulbook/internal/modules/fleet"
	"haulbook/internal/types"
)

const (
	// DefaultNearbyRadiusKm applies when a nearby search does not name a radius.
	DefaultNearbyRadiusKm = 50.0
	// MaxNearbyRadiusKm bounds caller-supplied radii.
	MaxNearbyRadiusKm = 500.0
)

type Config struct {
	NearbyRadiusKm float64
	MaxRadiusKm    float64
}

type NearbyQuery struct {
	Point         types.Point
	RadiusKm      float64
	VehicleTypeID types.ID
}

// RankedTruck is a truck with its distance from the search origin.
type RankedTruck struct {
	Truck      *fleet.Truck
	DistanceKm float64
}
