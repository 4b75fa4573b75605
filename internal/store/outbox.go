package store

import "time"

const outboxColumns = `id, client_msg_id, recipient_id, content, attachment_id, attachment_filename,
	timestamp, status, attempts, error_message, created_at`

// QueueOutbox adds a message to the send outbox. Queuing the same client id
// twice re-queues the existing entry.
func (db *DB) QueueOutbox(e *OutboxEntry) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO outbox (client_msg_id, recipient_id, content, attachment_id, attachment_filename,
			timestamp, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 'queued', ?, ?)
		ON CONFLICT(client_msg_id) DO UPDATE SET status = 'queued', updated_at = excluded.updated_at`,
		e.ClientMsgID, e.RecipientID, e.Content, e.AttachmentID, e.AttachmentFilename, e.Timestamp, now, now)
	return err
}

// MarkOutboxSending updates an outbox entry to 'sending' status.
func (db *DB) MarkOutboxSending(clientMsgID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sending', attempts = attempts + 1, updated_at = ? WHERE client_msg_id = ?`, now, clientMsgID)
	return err
}

// MarkOutboxSent updates an outbox entry to 'sent'.
func (db *DB) MarkOutboxSent(clientMsgID string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'sent', error_message = '', updated_at = ? WHERE client_msg_id = ?`, now, clientMsgID)
	return err
}

// MarkOutboxRetry puts an entry back in the queue, recording why the last attempt failed.
func (db *DB) MarkOutboxRetry(clientMsgID, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'queued', error_message = ?, updated_at = ? WHERE client_msg_id = ?`, errMsg, now, clientMsgID)
	return err
}

// MarkOutboxFailed updates an outbox entry to 'failed' with an error message.
func (db *DB) MarkOutboxFailed(clientMsgID, errMsg string) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`UPDATE outbox SET status = 'failed', error_message = ?, updated_at = ? WHERE client_msg_id = ?`, errMsg, now, clientMsgID)
	return err
}

// RecoverOutbox re-queues entries left in 'sending' by a previous run.
func (db *DB) RecoverOutbox() (int64, error) {
	res, err := db.Exec(`UPDATE outbox SET status = 'queued' WHERE status = 'sending'`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// PendingOutbox returns outbox entries that are still queued, oldest first.
func (db *DB) PendingOutbox() ([]OutboxEntry, error) {
	return db.queryOutbox(`SELECT `+outboxColumns+` FROM outbox WHERE status = 'queued' ORDER BY created_at ASC, id ASC`)
}

// ListOutbox returns every outbox entry, newest first.
func (db *DB) ListOutbox(limit int) ([]OutboxEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	return db.queryOutbox(`SELECT `+outboxColumns+` FROM outbox ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
}

func (db *DB) queryOutbox(query string, args ...any) ([]OutboxEntry, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.ClientMsgID, &e.RecipientID, &e.Content, &e.AttachmentID, &e.AttachmentFilename,
			&e.Timestamp, &e.Status, &e.Attempts, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
