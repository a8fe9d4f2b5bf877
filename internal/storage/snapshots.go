package storage

import (
	"context"
	"fmt"

	"github.com/yegors/landing-tracker/internal/landing"
)

// SaveSnapshot stores the snapshot of a vanished aircraft and logs the disappearance.
// A pending snapshot for the same registration is replaced.
func (s *Store) SaveSnapshot(ctx context.Context, snap landing.Snapshot) error {
	_, err := s.exec(ctx, `
		INSERT INTO snapshots (registration, source, lat, lon, altitude, velocity, heading, contact_time, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (registration) DO UPDATE SET
			source = excluded.source,
			lat = excluded.lat,
			lon = excluded.lon,
			altitude = excluded.altitude,
			velocity = excluded.velocity,
			heading = excluded.heading,
			contact_time = excluded.contact_time,
			created_at = excluded.created_at`,
		snap.Registration, snap.Source, snap.Lat, snap.Lon, snap.Altitude, snap.Velocity, snap.Heading,
		snap.ContactTime, snap.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save snapshot of %s: %w", snap.Registration, err)
	}

	_, err = s.exec(ctx, `
		INSERT INTO disappearances (registration, contact_time) VALUES (?, ?)
		ON CONFLICT (registration, contact_time) DO NOTHING`,
		snap.Registration, snap.ContactTime)
	if err != nil {
		return fmt.Errorf("failed to log disappearance of %s: %w", snap.Registration, err)
	}
	return nil
}

// HasDisappearance reports whether a disappearance of the registration was logged within [from, to]
func (s *Store) HasDisappearance(ctx context.Context, registration string, from, to int64) (bool, error) {
	var count int
	err := s.queryRow(ctx, `
		SELECT COUNT(*) FROM disappearances
		WHERE registration = ? AND contact_time BETWEEN ? AND ?`,
		registration, from, to).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to query disappearances of %s: %w", registration, err)
	}
	return count > 0, nil
}

// PruneDisappearances forgets disappearances older than the cutoff
func (s *Store) PruneDisappearances(ctx context.Context, before int64) (int64, error) {
	res, err := s.exec(ctx, `DELETE FROM disappearances WHERE contact_time < ?`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to prune disappearances: %w", err)
	}
	return res.RowsAffected()
}

// Snapshots returns pending snapshots, oldest first
func (s *Store) Snapshots(ctx context.Context) ([]landing.Snapshot, error) {
	rows, err := s.query(ctx, `
		SELECT registration, source, lat, lon, altitude, velocity, heading, contact_time, created_at
		FROM snapshots
		ORDER BY created_at, registration`)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []landing.Snapshot
	for rows.Next() {
		var snap landing.Snapshot
		if err := rows.Scan(&snap.Registration, &snap.Source, &snap.Lat, &snap.Lon, &snap.Altitude,
			&snap.Velocity, &snap.Heading, &snap.ContactTime, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// DeleteSnapshot removes a consumed snapshot
func (s *Store) DeleteSnapshot(ctx context.Context, registration string) error {
	if _, err := s.exec(ctx, `DELETE FROM snapshots WHERE registration = ?`, registration); err != nil {
		return fmt.Errorf("failed to delete snapshot of %s: %w", registration, err)
	}
	return nil
}
