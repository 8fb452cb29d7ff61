// README: Truck selector for assignment and distance-ranked nearby search.
package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"haulbook/internal/modules/fleet"
	"haulbook/internal/modules/location"
	"haulbook/internal/types"
)

var ErrBadRequest = errors.New("bad request")

// EligibleFinder lists selectable trucks of a vehicle type in a stable order.
type EligibleFinder interface {
	FindEligible(ctx context.Context, vehicleTypeID types.ID) ([]*fleet.Truck, error)
}

// SelectTruck picks the truck to assign for a booking. It prefers trucks whose
// location text overlaps the source text and otherwise falls back to the whole
// eligibility set. A nil truck with a nil error means nothing qualified.
// Selection never mutates the fleet.
func SelectTruck(ctx context.Context, finder EligibleFinder, vehicleTypeID types.ID, source string) (*fleet.Truck, error) {
	eligible, err := finder.FindEligible(ctx, vehicleTypeID)
	if err != nil {
		return nil, err
	}
	return PickTruck(eligible, source), nil
}

// PickTruck applies the proximity subset and tie-break to an eligibility set
// already in registry order (ascending id). Trucks that are not selectable are
// ignored.
func PickTruck(eligible []*fleet.Truck, source string) *fleet.Truck {
	var first *fleet.Truck
	for _, t := range eligible {
		if t == nil || !t.Selectable() {
			continue
		}
		if first == nil {
			first = t
		}
		if NearText(t.CurrentLocation, source) {
			return t
		}
	}
	return first
}

// NearText is the coarse location affinity check: either text contains the
// other, ignoring case and surrounding space. Empty text never matches.
func NearText(truckLocation, source string) bool {
	a := strings.ToLower(strings.TrimSpace(truckLocation))
	b := strings.ToLower(strings.TrimSpace(source))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// CoordinateLister lists selectable trucks with coordinates. An empty
// vehicle type means any type.
type CoordinateLister interface {
	ListAvailableWithCoordinates(ctx context.Context, vehicleTypeID types.ID) ([]*fleet.Truck, error)
	ListByIDs(ctx context.Context, ids []types.ID) ([]*fleet.Truck, error)
}

// CandidateIndex narrows nearby searches to ids inside a radius.
type CandidateIndex interface {
	Within(ctx context.Context, p types.Point, radiusKm float64) ([]types.ID, error)
}

type Service struct {
	trucks CoordinateLister
	index  CandidateIndex
	cfg    Config
}

// NewService builds the nearby-search service. index may be nil, in which
// case every truck with coordinates is scanned.
func NewService(trucks CoordinateLister, index CandidateIndex, cfg Config) *Service {
	if cfg.NearbyRadiusKm <= 0 {
		cfg.NearbyRadiusKm = DefaultNearbyRadiusKm
	}
	if cfg.MaxRadiusKm <= 0 {
		cfg.MaxRadiusKm = MaxNearbyRadiusKm
	}
	return &Service{trucks: trucks, index: index, cfg: cfg}
}

// Nearby ranks available trucks by great-circle distance from q.Point,
// closest first, keeping those within the radius.
func (s *Service) Nearby(ctx context.Context, q NearbyQuery) ([]RankedTruck, error) {
	if err := location.ValidatePoint(q.Point); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if q.RadiusKm == 0 {
		q.RadiusKm = s.cfg.NearbyRadiusKm
	}
	if q.RadiusKm <= 0 || q.RadiusKm > s.cfg.MaxRadiusKm {
		return nil, fmt.Errorf("%w: radius must be in (0, %g] km", ErrBadRequest, s.cfg.MaxRadiusKm)
	}

	candidates, err := s.candidates(ctx, q)
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedTruck, 0, len(candidates))
	for _, t := range candidates {
		if t.Position == nil || !t.Selectable() {
			continue
		}
		if q.VehicleTypeID != "" && t.VehicleTypeID != q.VehicleTypeID {
			continue
		}
		d := location.Distance(q.Point, *t.Position)
		if d <= q.RadiusKm {
			ranked = append(ranked, RankedTruck{Truck: t, DistanceKm: d})
		}
	}
	location.SortByDistance(ranked, func(r RankedTruck) float64 { return r.DistanceKm })
	return ranked, nil
}

func (s *Service) candidates(ctx context.Context, q NearbyQuery) ([]*fleet.Truck, error) {
	if s.index == nil {
		return s.trucks.ListAvailableWithCoordinates(ctx, q.VehicleTypeID)
	}
	ids, err := s.index.Within(ctx, q.Point, q.RadiusKm)
	if err != nil {
		return nil, fmt.Errorf("geo index search: %w", err)
	}
	return s.trucks.ListByIDs(ctx, ids)
}
