// README: Fleet registry store backed by PostgreSQL.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"haulbook/internal/infra"
	"haulbook/internal/types"
)

var ErrNotFound = errors.New("truck not found")

type Store struct {
	db infra.DBTX
}

func NewStore(db infra.DBTX) *Store {
	return &Store{db: db}
}

// WithTx returns a Store whose statements run inside tx.
func (s *Store) WithTx(tx pgx.Tx) *Store {
	return &Store{db: tx}
}

const truckColumns = `id, owner_id, vehicle_number, vehicle_type_id, is_available, status,
       current_location, latitude, longitude, updated_at`

// FindEligible returns selectable trucks of the given vehicle type ordered by id.
func (s *Store) FindEligible(ctx context.Context, vehicleTypeID types.ID) ([]*Truck, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+truckColumns+`
        FROM trucks
        WHERE vehicle_type_id = $1 AND is_available AND status = $2
        ORDER BY id`, string(vehicleTypeID), string(StatusAvailable),
	)
	if err != nil {
		return nil, fmt.Errorf("query eligible trucks: %w", err)
	}
	return collectTrucks(rows)
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Truck, error) {
	row := s.db.QueryRow(ctx, `SELECT `+truckColumns+` FROM trucks WHERE id = $1`, string(id))
	t, err := scanTruck(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get truck: %w", err)
	}
	return t, nil
}

// Claim moves a selectable truck to (false, booked). It reports false when
// another caller got there first or the truck stopped qualifying.
func (s *Store) Claim(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE trucks
        SET is_available = FALSE, status = $2, updated_at = NOW()
        WHERE id = $1 AND is_available AND status = $3`,
		string(id), string(StatusBooked), string(StatusAvailable),
	)
	if err != nil {
		return false, fmt.Errorf("claim truck: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateAvailability sets both availability fields together.
func (s *Store) UpdateAvailability(ctx context.Context, id types.ID, isAvailable bool, status Status) error {
	tag, err := s.db.Exec(ctx, `
        UPDATE trucks
        SET is_available = $2, status = $3, updated_at = NOW()
        WHERE id = $1`,
		string(id), isAvailable, string(status),
	)
	if err != nil {
		return fmt.Errorf("update truck availability: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListByOwner(ctx context.Context, ownerID types.ID) ([]*Truck, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+truckColumns+`
        FROM trucks
        WHERE owner_id = $1
        ORDER BY id`, string(ownerID),
	)
	if err != nil {
		return nil, fmt.Errorf("query owner trucks: %w", err)
	}
	return collectTrucks(rows)
}

// ListAvailableWithCoordinates returns selectable trucks that carry
// coordinates, optionally restricted to one vehicle type.
func (s *Store) ListAvailableWithCoordinates(ctx context.Context, vehicleTypeID types.ID) ([]*Truck, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+truckColumns+`
        FROM trucks
        WHERE is_available AND status = $1
          AND latitude IS NOT NULL AND longitude IS NOT NULL
          AND ($2 = '' OR vehicle_type_id = $2)
        ORDER BY id`, string(StatusAvailable), string(vehicleTypeID),
	)
	if err != nil {
		return nil, fmt.Errorf("query trucks with coordinates: %w", err)
	}
	return collectTrucks(rows)
}

func (s *Store) ListWithCoordinates(ctx context.Context) ([]*Truck, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+truckColumns+`
        FROM trucks
        WHERE latitude IS NOT NULL AND longitude IS NOT NULL
        ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query located trucks: %w", err)
	}
	return collectTrucks(rows)
}

func (s *Store) ListByIDs(ctx context.Context, ids []types.ID) ([]*Truck, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `
        SELECT `+truckColumns+`
        FROM trucks
        WHERE id = ANY($1)
        ORDER BY id`, raw,
	)
	if err != nil {
		return nil, fmt.Errorf("query trucks by id: %w", err)
	}
	return collectTrucks(rows)
}

func (s *Store) UpdateLocation(ctx context.Context, id types.ID, u LocationUpdate) error {
	var lat, lng *float64
	if u.Position != nil {
		lat, lng = &u.Position.Lat, &u.Position.Lng
	}
	tag, err := s.db.Exec(ctx, `
        UPDATE trucks
        SET current_location = $2, latitude = $3, longitude = $4, updated_at = $5
        WHERE id = $1`,
		string(id), u.Text, lat, lng, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("update truck location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Insert registers a truck. A taken vehicle number is ErrDuplicate and an
// unknown vehicle type is ErrBadRequest.
func (s *Store) Insert(ctx context.Context, t *Truck) error {
	var lat, lng *float64
	if t.Position != nil {
		lat, lng = &t.Position.Lat, &t.Position.Lng
	}
	if t.UpdatedAt.IsZero() {
		t.UpdatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
        INSERT INTO trucks (
            id, owner_id, vehicle_number, vehicle_type_id, is_available, status,
            current_location, latitude, longitude, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		string(t.ID), string(t.OwnerID), t.VehicleNumber, string(t.VehicleTypeID),
		t.IsAvailable, string(t.Status), t.CurrentLocation, lat, lng, t.UpdatedAt,
	)
	if err != nil {
		return classify("insert truck", err, ErrBadRequest)
	}
	return nil
}

// Update writes the owner-editable fields of t. With idle set, availability
// is written too and the row must not be held by a booking; false reports
// that it was.
func (s *Store) Update(ctx context.Context, t *Truck, idle bool) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE trucks
        SET vehicle_number = $2,
            vehicle_type_id = $3,
            is_available = CASE WHEN $6::boolean THEN $4::boolean ELSE is_available END,
            status = CASE WHEN $6::boolean THEN $5 ELSE status END,
            updated_at = NOW()
        WHERE id = $1 AND (NOT $6::boolean OR status NOT IN ($7, $8))`,
		string(t.ID), t.VehicleNumber, string(t.VehicleTypeID), t.IsAvailable, string(t.Status), idle,
		string(StatusBooked), string(StatusInTransit),
	)
	if err != nil {
		return false, classify("update truck", err, ErrBadRequest)
	}
	return tag.RowsAffected() == 1, nil
}

// Delete removes a truck that is not held by a booking. Trucks referenced by
// past bookings are kept and reported as ErrInUse.
func (s *Store) Delete(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        DELETE FROM trucks
        WHERE id = $1 AND status NOT IN ($2, $3)`,
		string(id), string(StatusBooked), string(StatusInTransit),
	)
	if err != nil {
		return false, classify("delete truck", err, ErrInUse)
	}
	return tag.RowsAffected() == 1, nil
}

// classify maps constraint violations to fleet errors. fkErr is returned for
// foreign key violations, whose meaning depends on the statement.
func classify(op string, err error, fkErr error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.Detail)
		case "23503":
			return fmt.Errorf("%w: %s", fkErr, pgErr.Detail)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func collectTrucks(rows pgx.Rows) ([]*Truck, error) {
	defer rows.Close()
	var out []*Truck
	for rows.Next() {
		t, err := scanTruck(rows)
		if err != nil {
			return nil, fmt.Errorf("scan truck: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func scanTruck(row pgx.Row) (*Truck, error) {
	var t Truck
	var lat, lng *float64
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.VehicleNumber, &t.VehicleTypeID, &t.IsAvailable, &t.Status,
		&t.CurrentLocation, &lat, &lng, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lat != nil && lng != nil {
		t.Position = &types.Point{Lat: *lat, Lng: *lng}
	}
	return &t, nil
}
