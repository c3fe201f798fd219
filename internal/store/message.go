package store

import (
	"database/sql"
	"time"
)

const messageColumns = `id, COALESCE(client_message_id, ''), phone, client_id, name, message, status, from_me, source, author_name, created_at`

// DefaultFetchLimit bounds the bulk fetch when the caller passes no limit.
const DefaultFetchLimit = 200

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(s scanner, m *Message) error {
	var created string
	if err := s.Scan(&m.ID, &m.ClientMessageID, &m.Phone, &m.ClientID, &m.Name, &m.Body,
		&m.Status, &m.FromMe, &m.Source, &m.AuthorName, &created); err != nil {
		return err
	}
	m.CreatedAt = parseTime(created)
	return nil
}

// InsertMessage stores a message. It is idempotent on client_message_id: a second insert with
// the same key returns the row already stored and created=false.
func (db *DB) InsertMessage(m *Message) (stored *Message, created bool, err error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	res, err := db.Exec(`
		INSERT INTO messages (client_message_id, phone, client_id, name, message, status, from_me, source, author_name, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(client_message_id) DO NOTHING`,
		nullString(m.ClientMessageID), m.Phone, m.ClientID, m.Name, m.Body, m.Status, m.FromMe,
		m.Source, m.AuthorName, formatTime(m.CreatedAt))
	if err != nil {
		return nil, false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if n == 0 {
		existing, err := db.MessageByClientID(m.ClientMessageID)
		return existing, false, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, err
	}
	stored, err = db.GetMessage(id)
	return stored, true, err
}

// GetMessage returns a message by row id, or nil if it does not exist.
func (db *DB) GetMessage(id int64) (*Message, error) {
	var m Message
	err := scanMessage(db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id), &m)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MessageByClientID returns the message carrying the given idempotency key, or nil.
func (db *DB) MessageByClientID(clientMessageID string) (*Message, error) {
	var m Message
	err := scanMessage(db.QueryRow(`SELECT `+messageColumns+` FROM messages WHERE client_message_id = ?`, clientMessageID), &m)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns the newest limit messages in ascending time order. A non-empty
// contact restricts the result to rows whose phone or client id matches it.
func (db *DB) ListMessages(contact string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	q := `SELECT ` + messageColumns + ` FROM messages`
	var args []any
	if contact != "" {
		q += ` WHERE phone = ? OR client_id = ?`
		args = append(args, contact, contact)
	}
	q += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := scanMessage(rows, &m); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount() (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
