package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/matheus3301/wppcrm/internal/crmerr"
)

const conversationColumns = `id, phone, name, bot_enabled, COALESCE(assigned_to, ''), COALESCE(assigned_at, ''), tags, status, created_at`

func scanConversation(s scanner) (*Conversation, error) {
	var (
		c                           Conversation
		assignedAt, tags, createdAt string
	)
	if err := s.Scan(&c.ID, &c.Phone, &c.Name, &c.BotEnabled, &c.AssignedTo, &assignedAt, &tags, &c.Status, &createdAt); err != nil {
		return nil, err
	}
	if assignedAt != "" {
		t := parseTime(assignedAt)
		c.AssignedAt = &t
	}
	if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil || c.Tags == nil {
		c.Tags = []string{}
	}
	c.CreatedAt = parseTime(createdAt)
	return &c, nil
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

// ListConversations returns the newest conversation records first.
func (db *DB) ListConversations(limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = DefaultFetchLimit
	}
	rows, err := db.Query(`SELECT `+conversationColumns+` FROM conversations ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// GetConversation returns a conversation by id, or nil if it does not exist.
func (db *DB) GetConversation(id int64) (*Conversation, error) {
	c, err := scanConversation(db.QueryRow(`SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ConversationByPhone returns the record for a contact key, or nil if none exists yet.
func (db *DB) ConversationByPhone(phone string) (*Conversation, error) {
	c, err := scanConversation(db.QueryRow(`SELECT `+conversationColumns+` FROM conversations WHERE phone = ?`, phone))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// EnsureConversation creates the record for phone if missing. A non-empty name fills a blank one.
func (db *DB) EnsureConversation(phone, name string) (*Conversation, error) {
	_, err := db.Exec(`
		INSERT INTO conversations (phone, name, created_at)
		VALUES (?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET
			name = CASE WHEN conversations.name = '' THEN excluded.name ELSE conversations.name END`,
		phone, name, formatTime(time.Now()))
	if err != nil {
		return nil, err
	}
	return db.ConversationByPhone(phone)
}

// SetBotEnabled toggles the automated responder for a conversation.
func (db *DB) SetBotEnabled(id int64, enabled bool) (*Conversation, error) {
	return db.updateConversation(id, `UPDATE conversations SET bot_enabled = ? WHERE id = ?`, enabled, id)
}

// Assign hands a conversation to an operator.
func (db *DB) Assign(id int64, user string, at time.Time) (*Conversation, error) {
	if user == "" {
		return nil, crmerr.Errorf(crmerr.Validation, "assign", "user is required")
	}
	return db.updateConversation(id, `UPDATE conversations SET assigned_to = ?, assigned_at = ? WHERE id = ?`, user, formatTime(at), id)
}

// Release clears the assignee.
func (db *DB) Release(id int64) (*Conversation, error) {
	return db.updateConversation(id, `UPDATE conversations SET assigned_to = NULL, assigned_at = NULL WHERE id = ?`, id)
}

// SetStatus moves a conversation between open, pending and closed.
func (db *DB) SetStatus(id int64, status string) (*Conversation, error) {
	if !ValidStatus(status) {
		return nil, crmerr.Errorf(crmerr.Validation, "set status", "invalid status %q", status)
	}
	return db.updateConversation(id, `UPDATE conversations SET status = ? WHERE id = ?`, status, id)
}

// SetTags replaces the tag list.
func (db *DB) SetTags(id int64, tags []string) (*Conversation, error) {
	return db.updateConversation(id, `UPDATE conversations SET tags = ? WHERE id = ?`, encodeTags(tags), id)
}

// ValidStatus reports whether status is one of the conversation statuses.
func ValidStatus(status string) bool {
	switch status {
	case StatusOpen, StatusPending, StatusClosed:
		return true
	}
	return false
}

func (db *DB) updateConversation(id int64, query string, args ...any) (*Conversation, error) {
	res, err := db.Exec(query, args...)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		return nil, crmerr.Errorf(crmerr.NotFound, "conversation", "conversation %d not found", id)
	}
	return db.GetConversation(id)
}
