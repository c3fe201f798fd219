package store

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/matheus3301/wppcrm/internal/crmerr"
)

const contactColumns = `id, phone, name, notes, tags, updated_at`

func scanContact(s scanner) (*Contact, error) {
	var (
		c               Contact
		tags, updatedAt string
	)
	if err := s.Scan(&c.ID, &c.Phone, &c.Name, &c.Notes, &tags, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &c.Tags); err != nil || c.Tags == nil {
		c.Tags = []string{}
	}
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// UpsertContact inserts or updates a contact keyed by phone.
func (db *DB) UpsertContact(c *Contact) (*Contact, error) {
	if c.Phone == "" || c.Name == "" {
		return nil, crmerr.Errorf(crmerr.Validation, "upsert contact", "phone and name required")
	}
	_, err := db.Exec(`
		INSERT INTO contacts (phone, name, notes, tags, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET
			name = excluded.name,
			notes = excluded.notes,
			tags = excluded.tags,
			updated_at = excluded.updated_at`,
		c.Phone, c.Name, c.Notes, encodeTags(c.Tags), formatTime(time.Now()))
	if err != nil {
		return nil, err
	}
	return db.ContactByPhone(c.Phone)
}

// UpdateContact applies a patch to an existing contact.
func (db *DB) UpdateContact(id int64, p ContactPatch) (*Contact, error) {
	cur, err := db.GetContact(id)
	if err != nil {
		return nil, err
	}
	if cur == nil {
		return nil, crmerr.Errorf(crmerr.NotFound, "update contact", "contact %d not found", id)
	}
	if p.Name != nil {
		cur.Name = *p.Name
	}
	if p.Notes != nil {
		cur.Notes = *p.Notes
	}
	if p.Tags != nil {
		cur.Tags = p.Tags
	}
	if _, err := db.Exec(`UPDATE contacts SET name = ?, notes = ?, tags = ?, updated_at = ? WHERE id = ?`,
		cur.Name, cur.Notes, encodeTags(cur.Tags), formatTime(time.Now()), id); err != nil {
		return nil, err
	}
	return db.GetContact(id)
}

// GetContact returns a contact by id, or nil.
func (db *DB) GetContact(id int64) (*Contact, error) {
	c, err := scanContact(db.QueryRow(`SELECT `+contactColumns+` FROM contacts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

// ContactByPhone returns a contact by phone, or nil.
func (db *DB) ContactByPhone(phone string) (*Contact, error) {
	c, err := scanContact(db.QueryRow(`SELECT `+contactColumns+` FROM contacts WHERE phone = ?`, phone))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}
