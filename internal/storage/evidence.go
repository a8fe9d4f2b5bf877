package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/yegors/landing-tracker/internal/landing"
)

// EvidenceQuery selects evidence; zero fields are not filtered on
type EvidenceQuery struct {
	Airport        string
	Registration   string
	From, To       int64 // inclusive time range, ignored when both are zero
	Primary        string
	ExcludePrimary string
}

const evidenceColumns = `id, airport, registration, probability, primary_source, secondary_source, event_time, lat, lon`

// InsertEvidence stores a new evidence item and returns its id
func (s *Store) InsertEvidence(ctx context.Context, e landing.Evidence) (int64, error) {
	var lat, lon sql.NullFloat64
	if e.Position != nil {
		lat = sql.NullFloat64{Float64: e.Position.Lat, Valid: true}
		lon = sql.NullFloat64{Float64: e.Position.Lon, Valid: true}
	}

	var id int64
	err := s.queryRow(ctx, `
		INSERT INTO evidence (airport, registration, probability, primary_source, secondary_source, event_time, lat, lon)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`,
		e.Airport, e.Registration, e.Probability, e.Primary, e.Secondary, e.Timestamp, lat, lon).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert evidence for %s at %s: %w", e.Registration, e.Airport, err)
	}
	return id, nil
}

// EvidenceAirports returns the airports that have pending evidence
func (s *Store) EvidenceAirports(ctx context.Context) ([]string, error) {
	rows, err := s.query(ctx, `SELECT DISTINCT airport FROM evidence ORDER BY airport`)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence airports: %w", err)
	}
	defer rows.Close()

	var airports []string
	for rows.Next() {
		var airport string
		if err := rows.Scan(&airport); err != nil {
			return nil, fmt.Errorf("failed to scan airport: %w", err)
		}
		airports = append(airports, airport)
	}
	return airports, rows.Err()
}

// FindEvidence returns matching evidence in insertion order
func (s *Store) FindEvidence(ctx context.Context, q EvidenceQuery) ([]landing.Evidence, error) {
	var (
		where []string
		args  []any
	)
	if q.Airport != "" {
		where = append(where, "airport = ?")
		args = append(args, q.Airport)
	}
	if q.Registration != "" {
		where = append(where, "registration = ?")
		args = append(args, q.Registration)
	}
	if q.From != 0 || q.To != 0 {
		where = append(where, "event_time BETWEEN ? AND ?")
		args = append(args, q.From, q.To)
	}
	if q.Primary != "" {
		where = append(where, "primary_source = ?")
		args = append(args, q.Primary)
	}
	if q.ExcludePrimary != "" {
		where = append(where, "primary_source <> ?")
		args = append(args, q.ExcludePrimary)
	}

	query := `SELECT ` + evidenceColumns + ` FROM evidence`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query evidence: %w", err)
	}
	defer rows.Close()

	var items []landing.Evidence
	for rows.Next() {
		var (
			e        landing.Evidence
			lat, lon sql.NullFloat64
		)
		if err := rows.Scan(&e.ID, &e.Airport, &e.Registration, &e.Probability, &e.Primary,
			&e.Secondary, &e.Timestamp, &lat, &lon); err != nil {
			return nil, fmt.Errorf("failed to scan evidence: %w", err)
		}
		if lat.Valid && lon.Valid {
			e.Position = &landing.Position{Lat: lat.Float64, Lon: lon.Float64}
		}
		items = append(items, e)
	}
	return items, rows.Err()
}

// DeleteEvidence removes evidence by id
func (s *Store) DeleteEvidence(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf(`DELETE FROM evidence WHERE id IN (%s)`, placeholders(len(ids)))
	if _, err := s.exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete evidence: %w", err)
	}
	return nil
}
