package store

import (
	"time"

	"github.com/matheus3301/wppcrm/internal/crmerr"
)

// AddNote attaches an internal note to a conversation.
func (db *DB) AddNote(conversationID int64, author, text string) (*Note, error) {
	if conversationID == 0 || text == "" {
		return nil, crmerr.Errorf(crmerr.Validation, "add note", "conversation_id and text required")
	}
	now := time.Now()
	res, err := db.Exec(`INSERT INTO conversation_notes (conversation_id, author, text, created_at) VALUES (?, ?, ?, ?)`,
		conversationID, author, text, formatTime(now))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &Note{ID: id, ConversationID: conversationID, Author: author, Text: text, CreatedAt: parseTime(formatTime(now))}, nil
}

// ListNotes returns a conversation's notes, newest first.
func (db *DB) ListNotes(conversationID int64) ([]Note, error) {
	rows, err := db.Query(`
		SELECT id, conversation_id, author, text, created_at
		FROM conversation_notes
		WHERE conversation_id = ?
		ORDER BY created_at DESC, id DESC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	notes := []Note{}
	for rows.Next() {
		var (
			n       Note
			created string
		)
		if err := rows.Scan(&n.ID, &n.ConversationID, &n.Author, &n.Text, &created); err != nil {
			return nil, err
		}
		n.CreatedAt = parseTime(created)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
