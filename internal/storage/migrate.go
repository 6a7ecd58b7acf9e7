package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the migrations/ directory of source through driver and
// returns the schema version it ends on. A dirty version is an error: a
// previous run failed halfway and needs manual repair. Closing the migrator
// closes driver.
func Migrate(source fs.FS, name string, driver database.Driver) (uint, error) {
	src, err := iofs.New(source, "migrations")
	if err != nil {
		return 0, fmt.Errorf("open %s migrations: %w", name, err)
	}
	m, err := migrate.NewWithInstance("iofs", src, name, driver)
	if err != nil {
		return 0, fmt.Errorf("create %s migrator: %w", name, err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("apply %s migrations: %w", name, err)
	}
	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("read %s schema version: %w", name, err)
	}
	if dirty {
		return version, fmt.Errorf("%s schema version %d is dirty", name, version)
	}
	return version, nil
}

// RunMigrations migrates the SQLite database at dsn over a connection of its
// own, since the migrator closes the handle it is given.
func RunMigrations(dsn string) (uint, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return 0, fmt.Errorf("open migration database: %w", err)
	}
	defer db.Close()

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return 0, fmt.Errorf("create sqlite driver: %w", err)
	}
	return Migrate(migrationsFS, "sqlite", driver)
}
