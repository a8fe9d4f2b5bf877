package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/yegors/landing-tracker/internal/landing"
)

// LandingQuery selects landing records; zero fields are not filtered on
type LandingQuery struct {
	Airport      string
	Registration string
	From, To     int64 // inclusive time range, ignored when both are zero
	UnsentOnly   bool
	Limit        int
}

// UpsertResult tells what UpsertLanding did
type UpsertResult int

const (
	LandingUnchanged UpsertResult = iota
	LandingInserted
	LandingRaised
)

// FindLandings returns matching records ordered by event time then id
func (s *Store) FindLandings(ctx context.Context, q LandingQuery) ([]landing.Record, error) {
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
	if q.UnsentOnly {
		where = append(where, "sent = 0")
	}

	query := `SELECT id, airport, registration, event_time, probability, sent FROM landings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY event_time, id"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query landings: %w", err)
	}
	defer rows.Close()

	var records []landing.Record
	for rows.Next() {
		var (
			r    landing.Record
			sent int
		)
		if err := rows.Scan(&r.ID, &r.Airport, &r.Registration, &r.Time, &r.Probability, &sent); err != nil {
			return nil, fmt.Errorf("failed to scan landing: %w", err)
		}
		r.Sent = sent == 1
		records = append(records, r)
	}
	return records, rows.Err()
}

// InsertLanding stores a new landing record and returns its id
func (s *Store) InsertLanding(ctx context.Context, r landing.Record) (int64, error) {
	var id int64
	err := s.queryRow(ctx, `
		INSERT INTO landings (airport, registration, event_time, probability, sent)
		VALUES (?, ?, ?, ?, ?)
		RETURNING id`,
		r.Airport, r.Registration, r.Time, r.Probability, boolToInt(r.Sent)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert landing of %s at %s: %w", r.Registration, r.Airport, err)
	}
	return id, nil
}

// UpdateLanding sets the probability and event time of a record
func (s *Store) UpdateLanding(ctx context.Context, id int64, probability float64, eventTime int64) error {
	_, err := s.exec(ctx, `UPDATE landings SET probability = ?, event_time = ? WHERE id = ?`, probability, eventTime, id)
	if err != nil {
		return fmt.Errorf("failed to update landing %d: %w", id, err)
	}
	return nil
}

// UpsertLanding keeps (airport, registration) unique within ±window seconds of the
// record's time. An existing record is raised when the new probability is higher;
// otherwise nothing changes. The stored record is returned.
func (s *Store) UpsertLanding(ctx context.Context, r landing.Record, window int64) (landing.Record, UpsertResult, error) {
	existing, err := s.FindLandings(ctx, LandingQuery{
		Airport:      r.Airport,
		Registration: r.Registration,
		From:         r.Time - window,
		To:           r.Time + window,
	})
	if err != nil {
		return r, LandingUnchanged, err
	}

	if len(existing) == 0 {
		id, err := s.InsertLanding(ctx, r)
		if err != nil {
			return r, LandingUnchanged, err
		}
		r.ID = id
		return r, LandingInserted, nil
	}

	best := existing[0]
	for _, e := range existing[1:] {
		if e.Probability > best.Probability {
			best = e
		}
	}
	if r.Probability <= best.Probability {
		return best, LandingUnchanged, nil
	}

	if err := s.UpdateLanding(ctx, best.ID, r.Probability, r.Time); err != nil {
		return best, LandingUnchanged, err
	}
	best.Probability = r.Probability
	best.Time = r.Time
	return best, LandingRaised, nil
}

// DeleteLandings removes records by id
func (s *Store) DeleteLandings(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf(`DELETE FROM landings WHERE id IN (%s)`, placeholders(len(ids)))
	if _, err := s.exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete landings: %w", err)
	}
	return nil
}

// RepeatedRegistrations returns registrations with more than one landing record
func (s *Store) RepeatedRegistrations(ctx context.Context) ([]string, error) {
	rows, err := s.query(ctx, `
		SELECT registration FROM landings
		GROUP BY registration
		HAVING COUNT(*) > 1
		ORDER BY registration`)
	if err != nil {
		return nil, fmt.Errorf("failed to query repeated registrations: %w", err)
	}
	defer rows.Close()

	var registrations []string
	for rows.Next() {
		var reg string
		if err := rows.Scan(&reg); err != nil {
			return nil, fmt.Errorf("failed to scan registration: %w", err)
		}
		registrations = append(registrations, reg)
	}
	return registrations, rows.Err()
}

// UnsentAirports returns airports with landings not yet delivered
func (s *Store) UnsentAirports(ctx context.Context) ([]string, error) {
	rows, err := s.query(ctx, `SELECT DISTINCT airport FROM landings WHERE sent = 0 ORDER BY airport`)
	if err != nil {
		return nil, fmt.Errorf("failed to query unsent airports: %w", err)
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

// MarkSent flags a landing as delivered
func (s *Store) MarkSent(ctx context.Context, id int64) error {
	if _, err := s.exec(ctx, `UPDATE landings SET sent = 1 WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to mark landing %d sent: %w", id, err)
	}
	return nil
}
