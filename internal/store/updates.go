package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// UpdateLocation sets a vehicle's current location.
func (s *Store) UpdateLocation(ctx context.Context, id uuid.UUID, location string) error {
	return s.exec(ctx, "update location",
		`UPDATE vehicles SET location = $2, updated_at = now() WHERE id = $1`, id, location)
}

// SetNextLocation records where the vehicle should go after its current stop.
func (s *Store) SetNextLocation(ctx context.Context, id uuid.UUID, next string) error {
	return s.exec(ctx, "set next location",
		`UPDATE vehicles SET next_location = $2, updated_at = now() WHERE id = $1`, id, next)
}

// MarkSold flags a vehicle as sold with optional buyer and price.
func (s *Store) MarkSold(ctx context.Context, id uuid.UUID, soldTo, salePrice string) error {
	return s.exec(ctx, "mark sold",
		`UPDATE vehicles SET stage = 'sold', sold_to = $2, sale_price = $3, updated_at = now()
		 WHERE id = $1`, id, soldTo, salePrice)
}

// SetReady flips a vehicle's ready-for-sale flag.
func (s *Store) SetReady(ctx context.Context, id uuid.UUID, ready bool) error {
	return s.exec(ctx, "set ready",
		`UPDATE vehicles SET ready = $2, updated_at = now() WHERE id = $1`, id, ready)
}

// RecordDropOff moves a vehicle to its drop-off destination and stores the
// accompanying note on the drop-off row.
func (s *Store) RecordDropOff(ctx context.Context, id uuid.UUID, destination, note string) error {
	if err := s.exec(ctx, "drop-off location",
		`UPDATE vehicles SET location = $2, updated_at = now() WHERE id = $1`, id, destination); err != nil {
		return err
	}
	return s.exec(ctx, "drop-off record",
		`INSERT INTO drop_offs (id, vehicle_id, destination, note, created_at)
		 VALUES ($1, $2, $3, $4, now())`, uuid.New(), id, destination, note)
}

// AddChecklistItem appends one repair item to a vehicle's checklist.
func (s *Store) AddChecklistItem(ctx context.Context, id uuid.UUID, item string) error {
	return s.exec(ctx, "add checklist item",
		`INSERT INTO vehicle_checklist (id, vehicle_id, item, done, created_at)
		 VALUES ($1, $2, $3, false, now())`, uuid.New(), id, item)
}

// CreateAppointment books a vehicle in with a customer or reconditioner.
// kind is "customer" or "recon"; scheduledFor is free text as spoken in chat.
func (s *Store) CreateAppointment(ctx context.Context, vehicleID uuid.UUID, kind, withName, scheduledFor, note string) (uuid.UUID, error) {
	id := uuid.New()
	err := s.exec(ctx, "create appointment",
		`INSERT INTO appointments (id, vehicle_id, kind, with_name, scheduled_for, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())`,
		id, vehicleID, kind, withName, scheduledFor, note)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// CreateTask records a generic task, optionally bound to a vehicle
// (uuid.Nil stores NULL).
func (s *Store) CreateTask(ctx context.Context, vehicleID uuid.UUID, description string) (uuid.UUID, error) {
	id := uuid.New()
	var vid any
	if vehicleID != uuid.Nil {
		vid = vehicleID
	}
	err := s.exec(ctx, "create task",
		`INSERT INTO tasks (id, vehicle_id, description, done, created_at)
		 VALUES ($1, $2, $3, false, now())`, id, vid, description)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

func (s *Store) exec(ctx context.Context, op, sql string, args ...any) error {
	if _, err := s.pool.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
