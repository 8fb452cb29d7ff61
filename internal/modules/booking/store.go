// README: Booking repository backed by PostgreSQL; one pgx transaction per engine operation.
package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"haulbook/internal/infra"
	"haulbook/internal/modules/fleet"
	"haulbook/internal/types"
)

type Store struct {
	db     infra.TxBeginner
	trucks *fleet.Store
}

func NewStore(db infra.TxBeginner, trucks *fleet.Store) *Store {
	return &Store{db: db, trucks: trucks}
}

func (s *Store) InTx(ctx context.Context, fn func(tx Tx) error) error {
	return infra.InTx(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx, trucks: s.trucks.WithTx(tx)})
	})
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Booking, error) {
	return getBooking(ctx, s.db, id, false)
}

func (s *Store) List(ctx context.Context, f Filter) ([]*Booking, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+bookingColumns+`
        FROM bookings
        WHERE ($1 = '' OR requester_id = $1)
          AND ($2 = '' OR status = $2)
        ORDER BY booking_time DESC, id`,
		string(f.OwnerID), string(f.Status),
	)
	if err != nil {
		return nil, fmt.Errorf("query bookings: %w", err)
	}
	defer rows.Close()
	out := []*Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *Store) History(ctx context.Context, bookingID types.ID) ([]*HistoryEntry, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, booking_id, status, updated_at, notes
        FROM booking_status_history
        WHERE booking_id = $1
        ORDER BY updated_at DESC`, string(bookingID),
	)
	if err != nil {
		return nil, fmt.Errorf("query booking history: %w", err)
	}
	defer rows.Close()
	out := []*HistoryEntry{}
	for rows.Next() {
		var e HistoryEntry
		if err := rows.Scan(&e.ID, &e.BookingID, &e.Status, &e.UpdatedAt, &e.Notes); err != nil {
			return nil, fmt.Errorf("scan booking history: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

type pgTx struct {
	tx     pgx.Tx
	trucks *fleet.Store
}

func (t *pgTx) Trucks() TruckRegistry { return t.trucks }

func (t *pgTx) GetForUpdate(ctx context.Context, id types.ID) (*Booking, error) {
	return getBooking(ctx, t.tx, id, true)
}

func (t *pgTx) Insert(ctx context.Context, b *Booking) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO bookings (
            id, requester_id, material_id, vehicle_type_id, source, destination,
            quantity, status, state, status_version, assigned_truck_id,
            booking_time, expected_delivery_time, actual_delivery_time,
            created_at, updated_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6,
            $7::numeric, $8, $9, $10, $11,
            $12, $13, $14,
            $15, $16
        )`,
		string(b.ID), string(b.RequesterID), string(b.MaterialID), string(b.VehicleTypeID),
		b.Source, b.Destination,
		b.Quantity.String(), string(b.Status), string(b.State), b.StatusVersion, idPtr(b.AssignedTruckID),
		b.BookingTime, b.ExpectedDeliveryTime, b.ActualDeliveryTime,
		b.CreatedAt, b.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}

func (t *pgTx) Update(ctx context.Context, b *Booking, version int) (bool, error) {
	tag, err := t.tx.Exec(ctx, `
        UPDATE bookings
        SET status = $2,
            state = $3,
            status_version = status_version + 1,
            assigned_truck_id = $4,
            expected_delivery_time = $5,
            actual_delivery_time = $6,
            updated_at = $7
        WHERE id = $1 AND status_version = $8`,
		string(b.ID), string(b.Status), string(b.State), idPtr(b.AssignedTruckID),
		b.ExpectedDeliveryTime, b.ActualDeliveryTime, b.UpdatedAt, version,
	)
	if err != nil {
		return false, fmt.Errorf("update booking: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) AppendHistory(ctx context.Context, e *HistoryEntry) error {
	_, err := t.tx.Exec(ctx, `
        INSERT INTO booking_status_history (id, booking_id, status, updated_at, notes)
        VALUES ($1, $2, $3, $4, $5)`,
		string(e.ID), string(e.BookingID), e.Status, e.UpdatedAt, e.Notes,
	)
	if err != nil {
		return fmt.Errorf("append booking history: %w", err)
	}
	return nil
}

const bookingColumns = `id, requester_id, material_id, vehicle_type_id, source, destination,
       quantity::text, status, state, status_version, assigned_truck_id,
       booking_time, expected_delivery_time, actual_delivery_time, created_at, updated_at`

func getBooking(ctx context.Context, db infra.DBTX, id types.ID, forUpdate bool) (*Booking, error) {
	q := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	b, err := scanBooking(db.QueryRow(ctx, q, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: booking %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	var truckID *string
	err := row.Scan(
		&b.ID, &b.RequesterID, &b.MaterialID, &b.VehicleTypeID, &b.Source, &b.Destination,
		&b.Quantity, &b.Status, &b.State, &b.StatusVersion, &truckID,
		&b.BookingTime, &b.ExpectedDeliveryTime, &b.ActualDeliveryTime, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if truckID != nil {
		id := types.ID(*truckID)
		b.AssignedTruckID = &id
	}
	return &b, nil
}

func idPtr(id *types.ID) *string {
	if id == nil {
		return nil
	}
	v := string(*id)
	return &v
}
