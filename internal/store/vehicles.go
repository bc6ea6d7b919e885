package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stocklens/yardbot/internal/match"
)

// Vehicle is one tracked vehicle. Rego is stored normalized (uppercase,
// alphanumeric only) and carries a unique constraint.
type Vehicle struct {
	ID           uuid.UUID
	Rego         string
	Make         string
	Model        string
	Badge        string
	Year         string
	Description  string
	Location     string
	NextLocation string
	Stage        string
	Ready        bool
	SoldTo       string
	SalePrice    string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const vehicleColumns = `id, rego, make, model, badge, year, description,
	location, next_location, stage, ready, sold_to, sale_price, created_at, updated_at`

func scanVehicle(row pgx.Row) (*Vehicle, error) {
	var v Vehicle
	err := row.Scan(&v.ID, &v.Rego, &v.Make, &v.Model, &v.Badge, &v.Year,
		&v.Description, &v.Location, &v.NextLocation, &v.Stage, &v.Ready,
		&v.SoldTo, &v.SalePrice, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// GetVehicleByRego returns the vehicle with the exact normalized rego, or
// nil when no such vehicle exists.
func (s *Store) GetVehicleByRego(ctx context.Context, rego string) (*Vehicle, error) {
	rego = match.Normalize(rego)
	row := s.pool.QueryRow(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles WHERE rego = $1`, rego)
	v, err := scanVehicle(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vehicle by rego %s: %w", rego, err)
	}
	return v, nil
}

// ListVehiclesByMakeModel returns all vehicles whose make and model match
// case-insensitively.
func (s *Store) ListVehiclesByMakeModel(ctx context.Context, makeName, model string) ([]Vehicle, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+vehicleColumns+` FROM vehicles
		 WHERE lower(make) = lower($1) AND lower(model) = lower($2)`,
		makeName, model)
	if err != nil {
		return nil, fmt.Errorf("list vehicles %s %s: %w", makeName, model, err)
	}
	defer rows.Close()

	var out []Vehicle
	for rows.Next() {
		v, err := scanVehicle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vehicle: %w", err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

// CreateVehicle registers a new vehicle. The rego is normalized before
// insert. Two concurrent creations for the same rego are expected: the
// loser hits the unique constraint and re-fetches the winner's row instead
// of erroring.
func (s *Store) CreateVehicle(ctx context.Context, v Vehicle) (*Vehicle, error) {
	v.Rego = match.Normalize(v.Rego)
	if v.Rego == "" {
		return nil, fmt.Errorf("create vehicle: empty rego")
	}
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO vehicles (id, rego, make, model, badge, year, description,
			location, next_location, stage, ready, sold_to, sale_price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now(), now())`,
		v.ID, v.Rego, v.Make, v.Model, v.Badge, v.Year, v.Description,
		v.Location, v.NextLocation, v.Stage, v.Ready, v.SoldTo, v.SalePrice,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			existing, ferr := s.GetVehicleByRego(ctx, v.Rego)
			if ferr != nil {
				return nil, fmt.Errorf("refetch after duplicate rego %s: %w", v.Rego, ferr)
			}
			if existing != nil {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("insert vehicle %s: %w", v.Rego, err)
	}

	return s.GetVehicleByRego(ctx, v.Rego)
}
