// README: Booking lifecycle engine: creation, truck assignment, status updates and cancellation.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"haulbook/internal/modules/catalog"
	"haulbook/internal/modules/fleet"
	"haulbook/internal/modules/matching"
	"haulbook/internal/types"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrNotAllowed   = errors.New("operation not allowed")
	ErrNotAvailable = errors.New("truck not available")
	ErrConflict     = errors.New("booking modified concurrently")
)

const DefaultAssignAttempts = 3

// maxQuantity is the first value the numeric(12,2) quantity column rejects.
var maxQuantity = decimal.New(1, 10)

type Config struct {
	// AssignAttempts bounds re-selection when a truck claim loses a race.
	AssignAttempts int
}

// TruckRegistry is the fleet surface the engine needs inside a transaction.
type TruckRegistry interface {
	matching.EligibleFinder
	Get(ctx context.Context, id types.ID) (*fleet.Truck, error)
	Claim(ctx context.Context, id types.ID) (bool, error)
	UpdateAvailability(ctx context.Context, id types.ID, isAvailable bool, status fleet.Status) error
}

// Tx is one unit of work. Everything written through it commits or rolls back together.
type Tx interface {
	// GetForUpdate loads a booking and locks it until the transaction ends.
	GetForUpdate(ctx context.Context, id types.ID) (*Booking, error)
	Insert(ctx context.Context, b *Booking) error
	// Update writes b when the stored status_version still equals version and
	// reports whether it did.
	Update(ctx context.Context, b *Booking, version int) (bool, error)
	AppendHistory(ctx context.Context, e *HistoryEntry) error
	Trucks() TruckRegistry
}

type Repository interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Get(ctx context.Context, id types.ID) (*Booking, error)
	List(ctx context.Context, f Filter) ([]*Booking, error)
	History(ctx context.Context, bookingID types.ID) ([]*HistoryEntry, error)
}

type Catalog interface {
	Material(ctx context.Context, id types.ID) (*catalog.Material, error)
	VehicleType(ctx context.Context, id types.ID) (*catalog.VehicleType, error)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Service struct {
	repo    Repository
	catalog Catalog
	pub     Publisher
	cfg     Config
	log     *slog.Logger
	now     func() time.Time
}

// NewService wires the engine. pub may be nil to disable event publishing.
func NewService(repo Repository, cat Catalog, pub Publisher, cfg Config, log *slog.Logger) *Service {
	if cfg.AssignAttempts <= 0 {
		cfg.AssignAttempts = DefaultAssignAttempts
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{repo: repo, catalog: cat, pub: pub, cfg: cfg, log: log, now: time.Now}
}

func (s *Service) Create(ctx context.Context, requesterID types.ID, cmd CreateCommand) (*Booking, error) {
	source := strings.TrimSpace(cmd.Source)
	destination := strings.TrimSpace(cmd.Destination)
	switch {
	case requesterID == "":
		return nil, fmt.Errorf("%w: requester is required", ErrValidation)
	case source == "":
		return nil, fmt.Errorf("%w: source is required", ErrValidation)
	case destination == "":
		return nil, fmt.Errorf("%w: destination is required", ErrValidation)
	case !cmd.Quantity.IsPositive():
		return nil, fmt.Errorf("%w: quantity must be positive", ErrValidation)
	case !cmd.Quantity.Equal(cmd.Quantity.Truncate(2)):
		return nil, fmt.Errorf("%w: quantity allows at most 2 decimal places", ErrValidation)
	case cmd.Quantity.GreaterThanOrEqual(maxQuantity):
		return nil, fmt.Errorf("%w: quantity must be below %s", ErrValidation, maxQuantity)
	case cmd.MaterialID == "" || cmd.VehicleTypeID == "":
		return nil, fmt.Errorf("%w: material and vehicle type are required", ErrValidation)
	}

	if _, err := s.catalog.Material(ctx, cmd.MaterialID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("%w: material %s", ErrNotFound, cmd.MaterialID)
		}
		return nil, fmt.Errorf("lookup material: %w", err)
	}
	if _, err := s.catalog.VehicleType(ctx, cmd.VehicleTypeID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("%w: vehicle type %s", ErrNotFound, cmd.VehicleTypeID)
		}
		return nil, fmt.Errorf("lookup vehicle type: %w", err)
	}

	bookingTime := cmd.BookingTime
	if bookingTime.IsZero() {
		bookingTime = s.now()
	}

	var out *Booking
	var events []Event
	err := s.repo.InTx(ctx, func(tx Tx) error {
		events = events[:0]
		b := &Booking{
			ID:            types.ID(uuid.NewString()),
			RequesterID:   requesterID,
			MaterialID:    cmd.MaterialID,
			VehicleTypeID: cmd.VehicleTypeID,
			Source:        source,
			Destination:   destination,
			Quantity:      cmd.Quantity,
			Status:        StatusPending,
			State:         StatePending,
			BookingTime:   bookingTime.UTC(),
		}
		stamp := nextStamp(time.Time{}, s.now())
		b.CreatedAt, b.UpdatedAt = stamp, stamp
		if err := tx.Insert(ctx, b); err != nil {
			return err
		}
		if err := tx.AppendHistory(ctx, newEntry(b, "Booking created")); err != nil {
			return err
		}
		events = append(events, newEvent(EventCreated, b))

		assigned, err := s.autoAssign(ctx, tx, b)
		if err != nil {
			return err
		}
		if assigned {
			events = append(events, newEvent(EventTruckAssigned, b))
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("booking created", "booking_id", out.ID, "status", out.Status)
	s.publish(ctx, events...)
	return out, nil
}

// AutoAssign runs truck selection for a booking still waiting for one. Only
// the requester may ask for it.
func (s *Service) AutoAssign(ctx context.Context, bookingID, actorID types.ID) (*Booking, error) {
	var out *Booking
	err := s.repo.InTx(ctx, func(tx Tx) error {
		b, err := s.lockPending(ctx, tx, bookingID, actorID)
		if err != nil {
			return err
		}
		assigned, err := s.autoAssign(ctx, tx, b)
		if err != nil {
			return err
		}
		if !assigned {
			return fmt.Errorf("%w: no eligible truck for booking %s", ErrNotAllowed, bookingID)
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, newEvent(EventTruckAssigned, out))
	return out, nil
}

// AssignTruck attaches a specific truck, or falls back to automatic selection
// when cmd.TruckID is nil. Only the requester may assign.
func (s *Service) AssignTruck(ctx context.Context, bookingID, actorID types.ID, cmd AssignCommand) (*Booking, error) {
	if cmd.TruckID == nil {
		return s.AutoAssign(ctx, bookingID, actorID)
	}
	truckID := *cmd.TruckID
	if truckID == "" {
		return nil, fmt.Errorf("%w: truck id is empty", ErrValidation)
	}

	var out *Booking
	err := s.repo.InTx(ctx, func(tx Tx) error {
		b, err := s.lockPending(ctx, tx, bookingID, actorID)
		if err != nil {
			return err
		}
		t, err := tx.Trucks().Get(ctx, truckID)
		if errors.Is(err, fleet.ErrNotFound) {
			return fmt.Errorf("%w: truck %s", ErrNotFound, truckID)
		}
		if err != nil {
			return fmt.Errorf("load truck: %w", err)
		}
		if !t.Selectable() {
			return fmt.Errorf("%w: truck %s is %s", ErrNotAvailable, truckID, t.Status)
		}
		if t.VehicleTypeID != b.VehicleTypeID {
			return fmt.Errorf("%w: truck %s is not of vehicle type %s", ErrNotAvailable, truckID, b.VehicleTypeID)
		}
		ok, err := tx.Trucks().Claim(ctx, truckID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: truck %s was taken", ErrNotAvailable, truckID)
		}
		if err := s.attachTruck(ctx, tx, b, truckID, fmt.Sprintf("Truck %s assigned manually", truckID)); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("truck assigned", "booking_id", out.ID, "truck_id", truckID, "manual", true)
	s.publish(ctx, newEvent(EventTruckAssigned, out))
	return out, nil
}

// UpdateStatus moves a booking along the transition graph. The requester and
// the owner of the assigned truck may report progress.
func (s *Service) UpdateStatus(ctx context.Context, bookingID, actorID types.ID, u StatusUpdate) (*Booking, error) {
	if !u.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, u.Status)
	}
	if u.State != nil && !u.State.Valid() {
		return nil, fmt.Errorf("%w: unknown state %q", ErrValidation, *u.State)
	}

	var out *Booking
	err := s.repo.InTx(ctx, func(tx Tx) error {
		b, err := tx.GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, tx, b, actorID, true); err != nil {
			return err
		}
		if b.Status.Terminal() {
			return fmt.Errorf("%w: booking is %s", ErrNotAllowed, b.Status)
		}
		if !CanTransition(b.Status, u.Status) {
			return fmt.Errorf("%w: %s -> %s", ErrNotAllowed, b.Status, u.Status)
		}
		if u.Status.needsTruck() && b.AssignedTruckID == nil {
			return fmt.Errorf("%w: %s requires an assigned truck", ErrNotAllowed, u.Status)
		}

		version := b.StatusVersion
		b.Status = u.Status
		if u.State != nil {
			b.State = *u.State
		}
		if u.ExpectedDelivery != nil {
			v := u.ExpectedDelivery.UTC()
			b.ExpectedDeliveryTime = &v
		}
		if u.ActualDelivery != nil {
			v := u.ActualDelivery.UTC()
			b.ActualDeliveryTime = &v
		}

		if b.AssignedTruckID != nil {
			switch u.Status {
			case StatusInTransit:
				if err := s.dispatchTruck(ctx, tx, *b.AssignedTruckID); err != nil {
					return err
				}
			case StatusCompleted, StatusCancelled:
				if err := s.releaseTruck(ctx, tx, *b.AssignedTruckID); err != nil {
					return err
				}
			}
		}

		if err := s.save(ctx, tx, b, version, strings.TrimSpace(u.Notes)); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	kind := EventStatusChanged
	if out.Status == StatusCancelled {
		kind = EventCancelled
	}
	s.publish(ctx, newEvent(kind, out))
	return out, nil
}

// Cancel lets the requester abandon a booking and frees its truck.
func (s *Service) Cancel(ctx context.Context, bookingID, requesterID types.ID) (*Booking, error) {
	var out *Booking
	err := s.repo.InTx(ctx, func(tx Tx) error {
		b, err := tx.GetForUpdate(ctx, bookingID)
		if err != nil {
			return err
		}
		if err := s.authorize(ctx, tx, b, requesterID, false); err != nil {
			return err
		}
		if b.Status.Terminal() {
			return fmt.Errorf("%w: booking is %s", ErrNotAllowed, b.Status)
		}
		version := b.StatusVersion
		b.Status = StatusCancelled
		b.State = StatePending
		if b.AssignedTruckID != nil {
			if err := s.releaseTruck(ctx, tx, *b.AssignedTruckID); err != nil {
				return err
			}
		}
		if err := s.save(ctx, tx, b, version, "Booking cancelled by user"); err != nil {
			return err
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("booking cancelled", "booking_id", out.ID)
	s.publish(ctx, newEvent(EventCancelled, out))
	return out, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Booking, error) {
	return s.repo.Get(ctx, id)
}

// List returns bookings newest booking_time first.
func (s *Service) List(ctx context.Context, f Filter) ([]*Booking, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, f.Status)
	}
	return s.repo.List(ctx, f)
}

// History returns the status journal of a booking, most recent entry first.
func (s *Service) History(ctx context.Context, bookingID types.ID) ([]*HistoryEntry, error) {
	if _, err := s.repo.Get(ctx, bookingID); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, bookingID)
}

// autoAssign selects and claims a truck for b. A false result with a nil
// error means no truck could be claimed and b is unchanged.
func (s *Service) autoAssign(ctx context.Context, tx Tx, b *Booking) (bool, error) {
	for attempt := 0; attempt < s.cfg.AssignAttempts; attempt++ {
		t, err := matching.SelectTruck(ctx, tx.Trucks(), b.VehicleTypeID, b.Source)
		if err != nil {
			return false, fmt.Errorf("select truck: %w", err)
		}
		if t == nil {
			return false, nil
		}
		ok, err := tx.Trucks().Claim(ctx, t.ID)
		if err != nil {
			return false, err
		}
		if !ok {
			s.log.Debug("truck claim lost, reselecting", "booking_id", b.ID, "truck_id", t.ID, "attempt", attempt+1)
			continue
		}
		if err := s.attachTruck(ctx, tx, b, t.ID, fmt.Sprintf("Truck %s assigned", t.ID)); err != nil {
			return false, err
		}
		s.log.Info("truck assigned", "booking_id", b.ID, "truck_id", t.ID)
		return true, nil
	}
	return false, nil
}

func (s *Service) attachTruck(ctx context.Context, tx Tx, b *Booking, truckID types.ID, note string) error {
	version := b.StatusVersion
	id := truckID
	b.AssignedTruckID = &id
	b.Status = StatusTruckAssigned
	b.State = StateAssigned
	return s.save(ctx, tx, b, version, note)
}

// save stamps b, writes it under the optimistic version check and journals the change.
func (s *Service) save(ctx context.Context, tx Tx, b *Booking, version int, note string) error {
	b.UpdatedAt = nextStamp(b.UpdatedAt, s.now())
	ok, err := tx.Update(ctx, b, version)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: booking %s", ErrConflict, b.ID)
	}
	b.StatusVersion = version + 1
	return tx.AppendHistory(ctx, newEntry(b, note))
}

// authorize admits the requester. With carrier set it also admits the owner
// of the booking's assigned truck.
func (s *Service) authorize(ctx context.Context, tx Tx, b *Booking, actorID types.ID, carrier bool) error {
	if actorID != "" && b.RequesterID == actorID {
		return nil
	}
	if carrier && actorID != "" && b.AssignedTruckID != nil {
		t, err := tx.Trucks().Get(ctx, *b.AssignedTruckID)
		if err != nil && !errors.Is(err, fleet.ErrNotFound) {
			return fmt.Errorf("load truck %s: %w", *b.AssignedTruckID, err)
		}
		if err == nil && t.OwnerID == actorID {
			return nil
		}
	}
	return fmt.Errorf("%w: booking belongs to another requester", ErrNotAllowed)
}

func (s *Service) lockPending(ctx context.Context, tx Tx, id, actorID types.ID) (*Booking, error) {
	b, err := tx.GetForUpdate(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, tx, b, actorID, false); err != nil {
		return nil, err
	}
	if b.Status != StatusPending {
		return nil, fmt.Errorf("%w: booking is %s, truck assignment needs pending", ErrNotAllowed, b.Status)
	}
	return b, nil
}

// dispatchTruck marks an engaged truck as on the road.
func (s *Service) dispatchTruck(ctx context.Context, tx Tx, id types.ID) error {
	t, err := tx.Trucks().Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load truck %s: %w", id, err)
	}
	if !t.Engaged() {
		return nil
	}
	return tx.Trucks().UpdateAvailability(ctx, id, false, fleet.StatusInTransit)
}

// releaseTruck returns an engaged truck to the pool. Trucks that are already
// available or under maintenance are left alone.
func (s *Service) releaseTruck(ctx context.Context, tx Tx, id types.ID) error {
	t, err := tx.Trucks().Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load truck %s: %w", id, err)
	}
	if !t.Engaged() {
		return nil
	}
	if err := tx.Trucks().UpdateAvailability(ctx, id, true, fleet.StatusAvailable); err != nil {
		return err
	}
	s.log.Info("truck released", "truck_id", id)
	return nil
}

func (s *Service) publish(ctx context.Context, events ...Event) {
	if s.pub == nil {
		return
	}
	for _, e := range events {
		if err := s.pub.Publish(ctx, e); err != nil {
			s.log.Warn("publish booking event failed", "kind", e.Kind, "booking_id", e.BookingID, "error", err)
		}
	}
}

func newEntry(b *Booking, note string) *HistoryEntry {
	e := &HistoryEntry{
		ID:        types.ID(uuid.NewString()),
		BookingID: b.ID,
		Status:    string(b.Status),
		UpdatedAt: b.UpdatedAt,
	}
	if note != "" {
		n := note
		e.Notes = &n
	}
	return e
}

// nextStamp returns a microsecond timestamp strictly after prev, the
// resolution Postgres keeps for timestamptz.
func nextStamp(prev, now time.Time) time.Time {
	t := now.UTC().Truncate(time.Microsecond)
	if !prev.IsZero() && !t.After(prev) {
		return prev.UTC().Truncate(time.Microsecond).Add(time.Microsecond)
	}
	return t
}
