package storage

import "fmt"

var schema = []struct {
	name string
	ddl  string
}{
	{"observations", `
		CREATE TABLE IF NOT EXISTS observations (
			registration TEXT NOT NULL,
			source TEXT NOT NULL,
			lat %FLOAT% NOT NULL,
			lon %FLOAT% NOT NULL,
			altitude %FLOAT% NOT NULL DEFAULT 0,
			velocity %FLOAT% NOT NULL DEFAULT 0,
			heading %FLOAT% NOT NULL DEFAULT 0,
			seen_at %INT% NOT NULL,
			visible %INT% NOT NULL DEFAULT 1,
			invisible_since %INT% NOT NULL DEFAULT 0,
			PRIMARY KEY (registration, source)
		)`},
	{"snapshots", `
		CREATE TABLE IF NOT EXISTS snapshots (
			registration TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			lat %FLOAT% NOT NULL,
			lon %FLOAT% NOT NULL,
			altitude %FLOAT% NOT NULL DEFAULT 0,
			velocity %FLOAT% NOT NULL DEFAULT 0,
			heading %FLOAT% NOT NULL DEFAULT 0,
			contact_time %INT% NOT NULL,
			created_at %INT% NOT NULL
		)`},
	{"disappearances", `
		CREATE TABLE IF NOT EXISTS disappearances (
			registration TEXT NOT NULL,
			contact_time %INT% NOT NULL,
			PRIMARY KEY (registration, contact_time)
		)`},
	{"evidence", `
		CREATE TABLE IF NOT EXISTS evidence (
			id %ID%,
			airport TEXT NOT NULL,
			registration TEXT NOT NULL,
			probability %FLOAT% NOT NULL,
			primary_source TEXT NOT NULL,
			secondary_source TEXT NOT NULL,
			event_time %INT% NOT NULL,
			lat %FLOAT%,
			lon %FLOAT%
		)`},
	{"evidence_airport_idx", `CREATE INDEX IF NOT EXISTS evidence_airport_idx ON evidence (airport, registration)`},
	{"landings", `
		CREATE TABLE IF NOT EXISTS landings (
			id %ID%,
			airport TEXT NOT NULL,
			registration TEXT NOT NULL,
			event_time %INT% NOT NULL,
			probability %FLOAT% NOT NULL,
			sent %INT% NOT NULL DEFAULT 0
		)`},
	{"landings_airport_idx", `CREATE INDEX IF NOT EXISTS landings_airport_idx ON landings (airport, registration, event_time)`},
	{"reservations", `
		CREATE TABLE IF NOT EXISTS reservations (
			id %ID%,
			reservation_key TEXT NOT NULL UNIQUE,
			airport TEXT NOT NULL,
			departing_to TEXT NOT NULL,
			registration TEXT NOT NULL,
			departure %INT% NOT NULL DEFAULT 0,
			arrival %INT% NOT NULL DEFAULT 0,
			received_at %INT% NOT NULL,
			passes %INT% NOT NULL DEFAULT 0
		)`},
	{"telemetry", `
		CREATE TABLE IF NOT EXISTS telemetry (
			id %ID%,
			message_id %INT% NOT NULL UNIQUE,
			registration TEXT NOT NULL,
			airport TEXT NOT NULL,
			event_time %INT% NOT NULL
		)`},
	{"poller_state", `
		CREATE TABLE IF NOT EXISTS poller_state (
			name TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`},
	{"store_probe", `
		CREATE TABLE IF NOT EXISTS store_probe (
			owner TEXT PRIMARY KEY,
			probed_at %INT% NOT NULL
		)`},
}

// initSchema creates the tables if they don't exist
func (s *Store) initSchema() error {
	s.logger.Info("Initializing database schema")

	types := s.dialect.types()
	for _, table := range schema {
		if _, err := s.db.Exec(types.Replace(table.ddl)); err != nil {
			return fmt.Errorf("failed to create %s: %w", table.name, err)
		}
	}
	return nil
}
