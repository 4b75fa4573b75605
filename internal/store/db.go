package store

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// DB is the profile's local cache: the contact roster, the outbox and
// small key/value checkpoints. Messages themselves are never stored.
type DB struct {
	*sql.DB
}

// pragmas are go-sqlite3 DSN options applied to every connection.
var pragmas = url.Values{
	"_journal_mode": {"WAL"},
	"_busy_timeout": {"5000"},
	"_foreign_keys": {"on"},
	"_txlock":       {"immediate"},
	"_synchronous":  {"NORMAL"},
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?"+pragmas.Encode())
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	// Writers serialize on the sqlite lock anyway.
	db.SetMaxOpenConns(1)
	return &DB{db}, nil
}

// OpenMigrated opens the database at path and applies pending migrations.
func OpenMigrated(path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
