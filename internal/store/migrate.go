package store

import (
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/matheus3301/chatline/internal/store/migrations"
)

// ErrDirtySchema means an earlier migration stopped halfway. The database
// needs manual repair (or removal; it only caches server state).
var ErrDirtySchema = errors.New("store schema is dirty")

// MigrateResult describes what happened during migration.
type MigrateResult struct {
	// From is the version found before migrating, 0 for a new database.
	From    uint
	Version uint
	Dirty   bool
	Changed bool
}

func (db *DB) migrator() (*migrate.Migrate, error) {
	source, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return nil, fmt.Errorf("migration source: %w", err)
	}
	driver, err := sqlite3.WithInstance(db.DB, &sqlite3.Config{})
	if err != nil {
		return nil, fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return nil, fmt.Errorf("migration instance: %w", err)
	}
	return m, nil
}

// Migrate applies every pending migration. It refuses to touch a dirty schema.
func (db *DB) Migrate() (*MigrateResult, error) {
	m, err := db.migrator()
	if err != nil {
		return nil, err
	}

	from, dirty, err := m.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		from = 0
	case err != nil:
		return nil, fmt.Errorf("migration version: %w", err)
	case dirty:
		return nil, fmt.Errorf("%w at version %d", ErrDirtySchema, from)
	}

	res := &MigrateResult{From: from, Changed: true}
	if err := m.Up(); errors.Is(err, migrate.ErrNoChange) {
		res.Changed = false
	} else if err != nil {
		return nil, fmt.Errorf("migration up: %w", err)
	}

	res.Version, res.Dirty, _ = m.Version()
	return res, nil
}
