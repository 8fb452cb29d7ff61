// README: Catalog lookups backed by PostgreSQL.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"haulbook/internal/infra"
	"haulbook/internal/types"
)

var ErrNotFound = errors.New("catalog entry not found")

type Store struct {
	db infra.DBTX
}

func NewStore(db infra.DBTX) *Store {
	return &Store{db: db}
}

func (s *Store) Material(ctx context.Context, id types.ID) (*Material, error) {
	var m Material
	err := s.db.QueryRow(ctx, `
        SELECT id, name, source, unit FROM materials WHERE id = $1`, string(id),
	).Scan(&m.ID, &m.Name, &m.Source, &m.Unit)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("material %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get material: %w", err)
	}
	return &m, nil
}

func (s *Store) VehicleType(ctx context.Context, id types.ID) (*VehicleType, error) {
	var v VehicleType
	err := s.db.QueryRow(ctx, `
        SELECT id, name, capacity_ton::text FROM vehicle_types WHERE id = $1`, string(id),
	).Scan(&v.ID, &v.Name, &v.CapacityTon)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("vehicle type %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle type: %w", err)
	}
	return &v, nil
}

func (s *Store) InsertMaterial(ctx context.Context, m *Material) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO materials (id, name, source, unit) VALUES ($1, $2, $3, $4)`,
		string(m.ID), m.Name, m.Source, m.Unit,
	)
	return err
}

func (s *Store) InsertVehicleType(ctx context.Context, v *VehicleType) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO vehicle_types (id, name, capacity_ton) VALUES ($1, $2, $3::numeric)`,
		string(v.ID), v.Name, v.CapacityTon.String(),
	)
	return err
}
