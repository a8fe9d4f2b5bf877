package storage

import (
	"context"
	"fmt"

	"github.com/yegors/landing-tracker/internal/landing"
)

// UpsertObservation records a fresh report from a feed; the row becomes visible again
func (s *Store) UpsertObservation(ctx context.Context, o landing.Observation) error {
	_, err := s.exec(ctx, `
		INSERT INTO observations (registration, source, lat, lon, altitude, velocity, heading, seen_at, visible, invisible_since)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, 0)
		ON CONFLICT (registration, source) DO UPDATE SET
			lat = excluded.lat,
			lon = excluded.lon,
			altitude = excluded.altitude,
			velocity = excluded.velocity,
			heading = excluded.heading,
			seen_at = excluded.seen_at,
			visible = 1,
			invisible_since = 0`,
		o.Registration, o.Source, o.Lat, o.Lon, o.Altitude, o.Velocity, o.Heading, o.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to upsert observation %s/%s: %w", o.Registration, o.Source, err)
	}
	return nil
}

// Observations returns every observation ordered by registration then source
func (s *Store) Observations(ctx context.Context) ([]landing.Observation, error) {
	rows, err := s.query(ctx, `
		SELECT registration, source, lat, lon, altitude, velocity, heading, seen_at, visible, invisible_since
		FROM observations
		ORDER BY registration, source`)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", err)
	}
	defer rows.Close()

	var observations []landing.Observation
	for rows.Next() {
		var (
			o       landing.Observation
			visible int
		)
		if err := rows.Scan(&o.Registration, &o.Source, &o.Lat, &o.Lon, &o.Altitude, &o.Velocity,
			&o.Heading, &o.Timestamp, &visible, &o.InvisibleSince); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		o.Visible = visible == 1
		observations = append(observations, o)
	}
	return observations, rows.Err()
}

// MarkInvisible flags visible rows last seen before staleBefore as invisible since now
func (s *Store) MarkInvisible(ctx context.Context, staleBefore, now int64) (int64, error) {
	res, err := s.exec(ctx, `
		UPDATE observations SET visible = 0, invisible_since = ?
		WHERE visible = 1 AND seen_at < ?`, now, staleBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to mark observations invisible: %w", err)
	}
	return res.RowsAffected()
}

// DeleteInvisibleObservations drops the invisible rows of one registration
func (s *Store) DeleteInvisibleObservations(ctx context.Context, registration string) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM observations WHERE registration = ? AND visible = 0`, registration)
	if err != nil {
		return 0, fmt.Errorf("failed to delete invisible observations of %s: %w", registration, err)
	}
	return res.RowsAffected()
}

// PurgeInvisible deletes invisible rows that went invisible before the cutoff
func (s *Store) PurgeInvisible(ctx context.Context, before int64) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM observations WHERE visible = 0 AND invisible_since < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge invisible observations: %w", err)
	}
	return res.RowsAffected()
}
