// Package auth handles operator login, bearer-token sessions and per-client rate limits.
package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/matheus3301/wppcrm/internal/crmerr"
	"github.com/matheus3301/wppcrm/internal/store"
)

// Operator roles.
const (
	RoleAdmin = "admin"
	RoleAgent = "agent"
)

// DefaultTokenTTL is used when the service is built with a zero TTL.
const DefaultTokenTTL = 24 * time.Hour

// HashPassword returns the bcrypt hash stored for an account.
func HashPassword(password string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Session is what a successful login hands back to the client.
type Session struct {
	Token     string
	User      *store.User
	ExpiresAt time.Time
}

// Service issues and resolves tokens against the user table.
type Service struct {
	db  *store.DB
	ttl time.Duration
	now func() time.Time
}

// NewService creates an auth service.
func NewService(db *store.DB, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Service{db: db, ttl: ttl, now: time.Now}
}

// Login checks credentials and opens a session. Unknown emails and wrong passwords look the
// same to the caller; a disabled account is reported as such.
func (s *Service) Login(email, password string) (*Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, crmerr.Errorf(crmerr.Validation, "login", "email and password are required")
	}
	if s.db == nil {
		return nil, crmerr.Errorf(crmerr.NotConfigured, "login", "user store is not configured")
	}
	u, err := s.db.UserByEmail(email)
	if err != nil {
		return nil, crmerr.E(crmerr.Persistence, "login", err)
	}
	if u == nil {
		return nil, crmerr.Errorf(crmerr.Unauthorized, "login", "invalid credentials")
	}
	if !u.Active {
		return nil, crmerr.Errorf(crmerr.Forbidden, "login", "account is disabled")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, crmerr.Errorf(crmerr.Unauthorized, "login", "invalid credentials")
	}

	token := uuid.NewString()
	expires := s.now().Add(s.ttl)
	if err := s.db.CreateToken(token, u.ID, expires); err != nil {
		return nil, crmerr.E(crmerr.Persistence, "login", err)
	}
	return &Session{Token: token, User: u, ExpiresAt: expires}, nil
}

// Authenticate resolves a bearer token to its user.
func (s *Service) Authenticate(token string) (*store.User, error) {
	if token == "" {
		return nil, crmerr.Errorf(crmerr.Unauthorized, "authenticate", "missing token")
	}
	if s.db == nil {
		return nil, crmerr.Errorf(crmerr.NotConfigured, "authenticate", "user store is not configured")
	}
	u, err := s.db.UserByToken(token, s.now())
	if err != nil {
		return nil, crmerr.E(crmerr.Persistence, "authenticate", err)
	}
	if u == nil {
		return nil, crmerr.Errorf(crmerr.Unauthorized, "authenticate", "invalid or expired token")
	}
	return u, nil
}

// Logout revokes a token. Unknown tokens are not an error.
func (s *Service) Logout(token string) error {
	if err := s.db.DeleteToken(token); err != nil {
		return crmerr.E(crmerr.Persistence, "logout", err)
	}
	return nil
}

// CreateUser adds an operator account with a hashed password.
func (s *Service) CreateUser(email, name, role, password string) (*store.User, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return nil, crmerr.Errorf(crmerr.Validation, "create user", "email and password are required")
	}
	if role == "" {
		role = RoleAgent
	}
	if role != RoleAdmin && role != RoleAgent {
		return nil, crmerr.Errorf(crmerr.Validation, "create user", "unknown role %q", role)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, crmerr.E(crmerr.Validation, "create user", err)
	}
	u, err := s.db.CreateUser(&store.User{Email: email, Name: name, Role: role, PasswordHash: hash, Active: true})
	if err != nil {
		return nil, crmerr.E(crmerr.Persistence, "create user", err)
	}
	return u, nil
}
