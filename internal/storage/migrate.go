package storage

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrationsFS embed.FS

// RunMigrations applies the embedded migrations for driver. It opens its own
// connection because closing the migrate instance closes the database handle.
func RunMigrations(driver, dsn string) error {
	sqlDriver, err := sqlDriverName(driver)
	if err != nil {
		return err
	}
	migrateDB, err := sql.Open(sqlDriver, dsn)
	if err != nil {
		return fmt.Errorf("open migration database: %w", err)
	}
	defer migrateDB.Close()

	var (
		dbDriver database.Driver
		dbName   string
	)
	switch driver {
	case DriverSQLite:
		dbDriver, err = sqlite.WithInstance(migrateDB, &sqlite.Config{})
		dbName = "sqlite"
	case DriverPostgres:
		dbDriver, err = pgxmigrate.WithInstance(migrateDB, &pgxmigrate.Config{})
		dbName = "pgx5"
	}
	if err != nil {
		return fmt.Errorf("create %s migration driver: %w", driver, err)
	}

	src, err := iofs.New(migrationsFS, "migrations/"+driver)
	if err != nil {
		return fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, dbName, dbDriver)
	if err != nil {
		return fmt.Errorf("create migrate instance: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
