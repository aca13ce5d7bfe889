// Package sqlite implements the storage.Store interface on an embedded
// SQLite database via the pure-Go modernc driver.
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/schedq/schedq/db"
	"github.com/schedq/schedq/internal/clock"
	"github.com/schedq/schedq/internal/codec"
	"github.com/schedq/schedq/internal/models"
)

// Store implements the storage.Store interface using SQLite
type Store struct {
	db            *sql.DB
	codec         codec.Codec
	clock         clock.Clock
	retryDelayCap int
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the wall clock, used by tests.
func WithClock(clk clock.Clock) Option {
	return func(s *Store) {
		if clk != nil {
			s.clock = clk
		}
	}
}

// WithRetryDelayCap bounds the exponential retry delay, in seconds.
// Zero means uncapped.
func WithRetryDelayCap(secs int) Option {
	return func(s *Store) {
		s.retryDelayCap = secs
	}
}

// NewStore creates a new SQLite store on an open database handle
func NewStore(database *sql.DB, c codec.Codec, opts ...Option) *Store {
	s := &Store{
		db:            database,
		codec:         c,
		clock:         clock.System(),
		retryDelayCap: models.DefaultRetryDelayCap,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open opens the database file with the given DSN and verifies the
// connection. The DSN is expected to carry the busy_timeout and foreign_keys
// pragmas (see config.Database.DSN).
func Open(dsn string, maxOpenConns int) (*sql.DB, error) {
	database, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if maxOpenConns > 0 {
		database.SetMaxOpenConns(maxOpenConns)
	}
	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("ping sqlite database: %w", err)
	}
	return database, nil
}

// Migrate brings the schema up to date from the embedded migrations.
func Migrate(database *sql.DB) error {
	src, err := iofs.New(db.Migrations, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	driver, err := migratesqlite.WithInstance(database, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("create migrate driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// GetDB returns the underlying database handle (for testing)
func (s *Store) GetDB() *sql.DB {
	return s.db
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// now returns the current time in the durable string format.
func (s *Store) now() string {
	return models.FormatDate(s.clock.Now())
}
