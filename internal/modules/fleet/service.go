// README: Fleet service: owner truck management, lookups and geo index upkeep.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"haulbook/internal/modules/location"
	"haulbook/internal/types"
)

var (
	ErrForbidden  = errors.New("truck belongs to another owner")
	ErrBadRequest = errors.New("bad request")
	ErrInUse      = errors.New("truck is held by a booking")
	ErrDuplicate  = errors.New("vehicle number already registered")
)

// Registry is the persistence surface the service needs.
type Registry interface {
	Get(ctx context.Context, id types.ID) (*Truck, error)
	ListByOwner(ctx context.Context, ownerID types.ID) ([]*Truck, error)
	UpdateLocation(ctx context.Context, id types.ID, u LocationUpdate) error
	ListWithCoordinates(ctx context.Context) ([]*Truck, error)
	Insert(ctx context.Context, t *Truck) error
	Update(ctx context.Context, t *Truck, idle bool) (bool, error)
	Delete(ctx context.Context, id types.ID) (bool, error)
}

// PositionIndex is the optional geo index (Redis in production).
type PositionIndex interface {
	Set(ctx context.Context, id types.ID, p types.Point) error
	Remove(ctx context.Context, id types.ID) error
}

type Service struct {
	registry Registry
	index    PositionIndex
	log      *slog.Logger
}

// NewService wires the fleet service. index may be nil.
func NewService(registry Registry, index PositionIndex, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{registry: registry, index: index, log: log}
}

// Get returns a truck to its owner.
func (s *Service) Get(ctx context.Context, ownerID, truckID types.ID) (*Truck, error) {
	return s.owned(ctx, ownerID, truckID)
}

// Register adds a selectable truck owned by ownerID.
func (s *Service) Register(ctx context.Context, ownerID types.ID, cmd RegisterCommand) (*Truck, error) {
	number := strings.TrimSpace(cmd.VehicleNumber)
	switch {
	case ownerID == "":
		return nil, fmt.Errorf("%w: owner is required", ErrBadRequest)
	case number == "":
		return nil, fmt.Errorf("%w: vehicle number is required", ErrBadRequest)
	case cmd.VehicleTypeID == "":
		return nil, fmt.Errorf("%w: vehicle type is required", ErrBadRequest)
	}
	if cmd.Position != nil {
		if err := location.ValidatePoint(*cmd.Position); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
	}

	t := &Truck{
		ID:              types.ID(uuid.NewString()),
		OwnerID:         ownerID,
		VehicleNumber:   number,
		VehicleTypeID:   cmd.VehicleTypeID,
		IsAvailable:     true,
		Status:          StatusAvailable,
		CurrentLocation: strings.TrimSpace(cmd.CurrentLocation),
		Position:        cmd.Position,
	}
	if err := s.registry.Insert(ctx, t); err != nil {
		return nil, err
	}
	if t.Position != nil {
		s.indexSet(ctx, t.ID, *t.Position)
	}
	s.log.Info("truck registered", "truck_id", t.ID, "owner_id", ownerID)
	return t, nil
}

// Update edits an owned truck. Changing the vehicle type or status of a truck
// held by a booking is refused with ErrInUse.
func (s *Service) Update(ctx context.Context, ownerID, truckID types.ID, cmd UpdateCommand) (*Truck, error) {
	if cmd.VehicleNumber != nil && strings.TrimSpace(*cmd.VehicleNumber) == "" {
		return nil, fmt.Errorf("%w: vehicle number is empty", ErrBadRequest)
	}
	if cmd.VehicleTypeID != nil && *cmd.VehicleTypeID == "" {
		return nil, fmt.Errorf("%w: vehicle type is empty", ErrBadRequest)
	}
	if cmd.Status != nil && *cmd.Status != StatusAvailable && *cmd.Status != StatusMaintenance {
		return nil, fmt.Errorf("%w: status %q cannot be set by an owner", ErrBadRequest, *cmd.Status)
	}

	t, err := s.owned(ctx, ownerID, truckID)
	if err != nil {
		return nil, err
	}
	engaged := t.Engaged()
	idle := false
	if cmd.VehicleNumber != nil {
		t.VehicleNumber = strings.TrimSpace(*cmd.VehicleNumber)
	}
	if cmd.VehicleTypeID != nil && *cmd.VehicleTypeID != t.VehicleTypeID {
		t.VehicleTypeID = *cmd.VehicleTypeID
		idle = true
	}
	if cmd.Status != nil && *cmd.Status != t.Status {
		t.Status = *cmd.Status
		t.IsAvailable = *cmd.Status == StatusAvailable
		idle = true
	}
	if idle && engaged {
		return nil, fmt.Errorf("%w: truck %s", ErrInUse, truckID)
	}
	ok, err := s.registry.Update(ctx, t, idle)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: truck %s", ErrInUse, truckID)
	}
	return t, nil
}

// Delete removes an owned truck that no booking holds.
func (s *Service) Delete(ctx context.Context, ownerID, truckID types.ID) error {
	t, err := s.owned(ctx, ownerID, truckID)
	if err != nil {
		return err
	}
	if t.Engaged() {
		return fmt.Errorf("%w: truck %s", ErrInUse, truckID)
	}
	ok, err := s.registry.Delete(ctx, truckID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: truck %s", ErrInUse, truckID)
	}
	if s.index != nil {
		if err := s.index.Remove(ctx, truckID); err != nil {
			s.log.Warn("geo index update failed", "truck_id", truckID, "err", err)
		}
	}
	s.log.Info("truck deleted", "truck_id", truckID)
	return nil
}

func (s *Service) ListByOwner(ctx context.Context, ownerID types.ID) ([]*Truck, error) {
	if ownerID == "" {
		return nil, ErrBadRequest
	}
	return s.registry.ListByOwner(ctx, ownerID)
}

// UpdateLocation records a new location for a truck owned by ownerID. The geo
// index is refreshed after the database write; an index failure is logged and
// does not fail the update.
func (s *Service) UpdateLocation(ctx context.Context, ownerID, truckID types.ID, u LocationUpdate) (*Truck, error) {
	u.Text = strings.TrimSpace(u.Text)
	if u.Text == "" {
		return nil, fmt.Errorf("%w: location text is required", ErrBadRequest)
	}
	if u.Position != nil {
		if err := location.ValidatePoint(*u.Position); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
		}
	}

	t, err := s.owned(ctx, ownerID, truckID)
	if err != nil {
		return nil, err
	}
	if err := s.registry.UpdateLocation(ctx, truckID, u); err != nil {
		return nil, err
	}

	if u.Position != nil {
		s.indexSet(ctx, truckID, *u.Position)
	} else if s.index != nil {
		if err := s.index.Remove(ctx, truckID); err != nil {
			s.log.Warn("geo index update failed", "truck_id", truckID, "err", err)
		}
	}

	t.CurrentLocation = u.Text
	t.Position = u.Position
	return t, nil
}

// SyncIndex loads every truck that has coordinates into the geo index. It runs
// at startup because location updates only touch the index incrementally.
func (s *Service) SyncIndex(ctx context.Context) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	trucks, err := s.registry.ListWithCoordinates(ctx)
	if err != nil {
		return 0, err
	}
	for _, t := range trucks {
		if err := s.index.Set(ctx, t.ID, *t.Position); err != nil {
			return 0, fmt.Errorf("index truck %s: %w", t.ID, err)
		}
	}
	return len(trucks), nil
}

func (s *Service) owned(ctx context.Context, ownerID, truckID types.ID) (*Truck, error) {
	t, err := s.registry.Get(ctx, truckID)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != ownerID {
		return nil, ErrForbidden
	}
	return t, nil
}

// indexSet mirrors a position into the geo index. Failures are logged; the
// index is rebuilt by SyncIndex on the next start.
func (s *Service) indexSet(ctx context.Context, id types.ID, p types.Point) {
	if s.index == nil {
		return
	}
	if err := s.index.Set(ctx, id, p); err != nil {
		s.log.Warn("geo index update failed", "truck_id", id, "err", err)
	}
}
