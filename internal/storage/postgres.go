package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/yegors/landing-tracker/pkg/logger"
)

type postgresDialect struct{}

func (postgresDialect) name() string { return DriverPostgres }

func (postgresDialect) rebind(query string) string { return rebindPositional(query) }

func (postgresDialect) types() *strings.Replacer {
	return strings.NewReplacer(
		"%ID%", "BIGSERIAL PRIMARY KEY",
		"%FLOAT%", "DOUBLE PRECISION",
		"%INT%", "BIGINT",
	)
}

// isBusy reports lock and serialization conflicts
func (postgresDialect) isBusy(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	switch pqErr.Code {
	case "55P03", // lock_not_available
		"40001", // serialization_failure
		"40P01": // deadlock_detected
		return true
	}
	return false
}

func openPostgres(dsn string, log *logger.Logger) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}

	log.Info("Initializing PostgreSQL storage")

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
