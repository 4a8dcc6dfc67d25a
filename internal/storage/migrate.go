package storage

import (
	"database/sql"
	"embed"
	"errors"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/agilecore/boardsyncd/internal/errs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// migrateDB applies all pending schema migrations to db. Migrations are
// idempotent: running it twice against an up-to-date database is a no-op
// (migrate.ErrNoChange), which is what lets the race-free lazy-init path in
// Manager.GetPool retry safely after a failed creation.
func migrateDB(db *sql.DB) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return errs.Wrap(err, "init migration source")
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return errs.Wrap(err, "init migration driver")
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return errs.Wrap(err, "init migrator")
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return errs.Wrap(err, "apply migrations")
	}
	return nil
}
