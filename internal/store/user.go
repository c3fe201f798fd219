package store

import (
	"database/sql"
	"time"
)

const userColumns = `id, email, name, role, password_hash, active, created_at`

func scanUser(s scanner) (*User, error) {
	var (
		u       User
		created string
	)
	if err := s.Scan(&u.ID, &u.Email, &u.Name, &u.Role, &u.PasswordHash, &u.Active, &created); err != nil {
		return nil, err
	}
	u.CreatedAt = parseTime(created)
	return &u, nil
}

// CreateUser inserts an operator account. The password must already be hashed.
func (db *DB) CreateUser(u *User) (*User, error) {
	res, err := db.Exec(`INSERT INTO users (email, name, role, password_hash, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		u.Email, u.Name, u.Role, u.PasswordHash, u.Active, formatTime(time.Now()))
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return db.UserByID(id)
}

// UserByEmail returns the account for email, or nil.
func (db *DB) UserByEmail(email string) (*User, error) {
	u, err := scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// UserByID returns the account for id, or nil.
func (db *DB) UserByID(id int64) (*User, error) {
	u, err := scanUser(db.QueryRow(`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// CreateToken records an opaque session token.
func (db *DB) CreateToken(token string, userID int64, expiresAt time.Time) error {
	_, err := db.Exec(`INSERT INTO auth_tokens (token, user_id, expires_at) VALUES (?, ?, ?)`,
		token, userID, expiresAt.UnixMilli())
	return err
}

// UserByToken resolves a live token to its active user, or nil when the token is unknown,
// expired or belongs to a deactivated account.
func (db *DB) UserByToken(token string, now time.Time) (*User, error) {
	u, err := scanUser(db.QueryRow(`
		SELECT u.id, u.email, u.name, u.role, u.password_hash, u.active, u.created_at
		FROM auth_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token = ? AND t.expires_at > ? AND u.active = 1`, token, now.UnixMilli()))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// DeleteToken revokes a token.
func (db *DB) DeleteToken(token string) error {
	_, err := db.Exec(`DELETE FROM auth_tokens WHERE token = ?`, token)
	return err
}

// DeleteExpiredTokens removes tokens past their expiry and returns how many were removed.
func (db *DB) DeleteExpiredTokens(now time.Time) (int64, error) {
	res, err := db.Exec(`DELETE FROM auth_tokens WHERE expires_at <= ?`, now.UnixMilli())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
