// README: Shared value objects used across modules.
package types

// ID is an opaque entity identifier (UUID strings for bookings and trucks).
type ID string

func (id ID) String() string { return string(id) }

// Point is a WGS84 coordinate in signed decimal degrees.
type Point struct {
	Lat float64
	Lng float64
}
