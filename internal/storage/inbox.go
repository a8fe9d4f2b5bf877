package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/yegors/landing-tracker/internal/landing"
)

// InsertReservation queues a reservation unless the same one is already queued
func (s *Store) InsertReservation(ctx context.Context, r landing.Reservation) (bool, error) {
	res, err := s.exec(ctx, `
		INSERT INTO reservations (reservation_key, airport, departing_to, registration, departure, arrival, received_at, passes)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)
		ON CONFLICT (reservation_key) DO NOTHING`,
		r.Key(), r.Airport, r.DepartingTo, r.Registration, r.Departure, r.Arrival, r.ReceivedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert reservation for %s: %w", r.Registration, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PendingReservations returns queued reservations, oldest first
func (s *Store) PendingReservations(ctx context.Context) ([]landing.Reservation, error) {
	rows, err := s.query(ctx, `
		SELECT id, airport, departing_to, registration, departure, arrival, received_at, passes
		FROM reservations
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var reservations []landing.Reservation
	for rows.Next() {
		var r landing.Reservation
		if err := rows.Scan(&r.ID, &r.Airport, &r.DepartingTo, &r.Registration, &r.Departure,
			&r.Arrival, &r.ReceivedAt, &r.Passes); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

// SetReservationPasses records how many reconciliation passes a reservation went through
func (s *Store) SetReservationPasses(ctx context.Context, id int64, passes int) error {
	if _, err := s.exec(ctx, `UPDATE reservations SET passes = ? WHERE id = ?`, passes, id); err != nil {
		return fmt.Errorf("failed to update reservation %d: %w", id, err)
	}
	return nil
}

// DeleteReservation removes a resolved reservation
func (s *Store) DeleteReservation(ctx context.Context, id int64) error {
	if _, err := s.exec(ctx, `DELETE FROM reservations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete reservation %d: %w", id, err)
	}
	return nil
}

// InsertTelemetry queues a movement message unless its message id was already queued
func (s *Store) InsertTelemetry(ctx context.Context, m landing.Telemetry) (bool, error) {
	res, err := s.exec(ctx, `
		INSERT INTO telemetry (message_id, registration, airport, event_time)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (message_id) DO NOTHING`,
		m.MessageID, m.Registration, m.Airport, m.Time)
	if err != nil {
		return false, fmt.Errorf("failed to insert telemetry %d: %w", m.MessageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PendingTelemetry returns queued movement messages, oldest first
func (s *Store) PendingTelemetry(ctx context.Context) ([]landing.Telemetry, error) {
	rows, err := s.query(ctx, `
		SELECT id, message_id, registration, airport, event_time
		FROM telemetry
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query telemetry: %w", err)
	}
	defer rows.Close()

	var messages []landing.Telemetry
	for rows.Next() {
		var m landing.Telemetry
		if err := rows.Scan(&m.ID, &m.MessageID, &m.Registration, &m.Airport, &m.Time); err != nil {
			return nil, fmt.Errorf("failed to scan telemetry: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// DeleteTelemetry removes a processed movement message
func (s *Store) DeleteTelemetry(ctx context.Context, id int64) error {
	if _, err := s.exec(ctx, `DELETE FROM telemetry WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete telemetry %d: %w", id, err)
	}
	return nil
}

// State reads a poller state value
func (s *Store) State(ctx context.Context, name string) (string, bool, error) {
	var value string
	err := s.queryRow(ctx, `SELECT value FROM poller_state WHERE name = ?`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read state %s: %w", name, err)
	}
	return value, true, nil
}

// SetState writes a poller state value
func (s *Store) SetState(ctx context.Context, name, value string) error {
	_, err := s.exec(ctx, `
		INSERT INTO poller_state (name, value) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value`, name, value)
	if err != nil {
		return fmt.Errorf("failed to write state %s: %w", name, err)
	}
	return nil
}
