package store

import (
	"database/sql"
	"time"
)

// SetState stores a checkpoint value under key.
func (db *DB) SetState(key, value string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sync_state (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, now)
	return err
}

// GetState returns the checkpoint stored under key; ok is false when absent.
func (db *DB) GetState(key string) (value string, ok bool, err error) {
	err = db.QueryRow(`SELECT value FROM sync_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}
