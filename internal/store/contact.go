package store

import (
	"database/sql"
	"fmt"
	"time"
)

const upsertContactSQL = `
	INSERT INTO contacts (id, display_name, online, last_preview, last_message_at, unread_count, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		display_name = CASE WHEN excluded.display_name != '' THEN excluded.display_name ELSE contacts.display_name END,
		online = excluded.online,
		last_preview = CASE WHEN excluded.last_message_at >= contacts.last_message_at THEN excluded.last_preview ELSE contacts.last_preview END,
		last_message_at = MAX(contacts.last_message_at, excluded.last_message_at),
		unread_count = excluded.unread_count,
		updated_at = excluded.updated_at`

// UpsertContact inserts or updates a contact. An empty display name never
// overwrites a known one, and an older preview never replaces a newer one.
func (db *DB) UpsertContact(c *Contact) error {
	_, err := db.Exec(upsertContactSQL,
		c.ID, c.DisplayName, c.Online, c.LastMessagePreview, c.LastMessageAt, max(c.UnreadCount, 0), time.Now().UnixMilli())
	return err
}

// BulkUpsertContacts inserts or updates multiple contacts in a single transaction.
func (db *DB) BulkUpsertContacts(contacts []Contact) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, c := range contacts {
		if _, err := tx.Exec(upsertContactSQL,
			c.ID, c.DisplayName, c.Online, c.LastMessagePreview, c.LastMessageAt, max(c.UnreadCount, 0), now); err != nil {
			return fmt.Errorf("upsert contact %q: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// SeedContacts inserts contacts that are not yet known, leaving existing rows alone.
func (db *DB) SeedContacts(contacts []Contact) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UnixMilli()
	for _, c := range contacts {
		if _, err := tx.Exec(`
			INSERT INTO contacts (id, display_name, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				display_name = CASE WHEN contacts.display_name = '' THEN excluded.display_name ELSE contacts.display_name END`,
			c.ID, c.DisplayName, now); err != nil {
			return fmt.Errorf("seed contact %q: %w", c.ID, err)
		}
	}
	return tx.Commit()
}

// GetContact returns a contact by id, or nil when unknown.
func (db *DB) GetContact(id string) (*Contact, error) {
	var c Contact
	err := db.QueryRow(`
		SELECT id, display_name, online, last_preview, last_message_at, unread_count
		FROM contacts WHERE id = ?`, id).
		Scan(&c.ID, &c.DisplayName, &c.Online, &c.LastMessagePreview, &c.LastMessageAt, &c.UnreadCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListContacts returns all contacts, most recently active first.
func (db *DB) ListContacts() ([]Contact, error) {
	rows, err := db.Query(`
		SELECT id, display_name, online, last_preview, last_message_at, unread_count
		FROM contacts ORDER BY last_message_at DESC, display_name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ID, &c.DisplayName, &c.Online, &c.LastMessagePreview, &c.LastMessageAt, &c.UnreadCount); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// ResetPresence marks every contact offline; presence is only trusted for
// the lifetime of a realtime connection.
func (db *DB) ResetPresence() error {
	_, err := db.Exec(`UPDATE contacts SET online = 0`)
	return err
}

// ContactCount returns the total number of contacts.
func (db *DB) ContactCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM contacts`).Scan(&count)
	return count, err
}
