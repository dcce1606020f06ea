// Package migrations embeds the schema migrations for each supported driver
// and applies them with golang-migrate.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// Supported migration drivers. They match the database package driver names.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Source returns the embedded migration source for driver.
func Source(driver string) (source.Driver, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
		return iofs.New(files, driver)
	default:
		return nil, fmt.Errorf("unsupported migration driver: %q", driver)
	}
}

// New creates a migrator for driver connected through url
// (postgres://... or sqlite://path).
func New(driver, url string) (*migrate.Migrate, error) {
	src, err := Source(driver)
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

// Up applies every pending up migration to an open connection.
// The connection stays open; callers keep ownership of db.
func Up(db *sql.DB, driver string) error {
	src, err := Source(driver)
	if err != nil {
		return err
	}

	var target database.Driver
	switch driver {
	case DriverPostgres:
		// A dedicated connection keeps the driver from closing the shared pool.
		ctx := context.Background()
		conn, cerr := db.Conn(ctx)
		if cerr != nil {
			return fmt.Errorf("acquire migration connection: %w", cerr)
		}
		defer conn.Close()
		target, err = postgres.WithConnection(ctx, conn, &postgres.Config{})
	case DriverSQLite:
		target, err = sqlite.WithInstance(db, &sqlite.Config{})
	}
	if err != nil {
		return fmt.Errorf("open %s migration driver: %w", driver, err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, target)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}
