package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/yegors/landing-tracker/pkg/logger"
)

// Drivers
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options configures the store
type Options struct {
	Driver      string        // "sqlite" or "postgres"
	SQLitePath  string        // database file for sqlite
	PostgresDSN string        // connection string for postgres
	BusyTimeout time.Duration // how long the driver itself waits on a lock
	BusyBackoff time.Duration // pause between busy probes
	Owner       string        // probe row owner, one per process
}

// dialect hides the differences between the supported databases
type dialect interface {
	name() string
	rebind(query string) string
	types() *strings.Replacer
	isBusy(err error) bool
}

// Store is the shared relational store used by every component
type Store struct {
	db          *sql.DB
	dialect     dialect
	logger      *logger.Logger
	busyBackoff time.Duration
	owner       string
}

// Open opens the store for the configured driver and creates the schema
func Open(opts Options, log *logger.Logger) (*Store, error) {
	storeLogger := log.Named("store")

	if opts.BusyBackoff <= 0 {
		opts.BusyBackoff = 5 * time.Second
	}
	if opts.Owner == "" {
		host, _ := os.Hostname()
		opts.Owner = fmt.Sprintf("%s-%d", host, os.Getpid())
	}

	var (
		db  *sql.DB
		d   dialect
		err error
	)
	switch opts.Driver {
	case "", DriverSQLite:
		db, err = openSQLite(opts.SQLitePath, opts.BusyTimeout, storeLogger)
		d = sqliteDialect{}
	case DriverPostgres:
		db, err = openPostgres(opts.PostgresDSN, storeLogger)
		d = postgresDialect{}
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", opts.Driver)
	}
	if err != nil {
		return nil, err
	}

	s := &Store{
		db:          db,
		dialect:     d,
		logger:      storeLogger,
		busyBackoff: opts.BusyBackoff,
		owner:       opts.Owner,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Driver returns the dialect name
func (s *Store) Driver() string {
	return s.dialect.name()
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

func (s *Store) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

// rebindPositional turns ? placeholders into $1, $2, ...
func rebindPositional(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// placeholders returns "?, ?, ?" for n arguments
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
