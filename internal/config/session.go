package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Session is the operator's login, passed explicitly to clients instead of living in globals.
type Session struct {
	BaseURL string `toml:"base_url"`
	Token   string `toml:"token"`
	User    string `toml:"user"`
	Role    string `toml:"role"`
}

// LoggedIn reports whether the session carries a token.
func (s *Session) LoggedIn() bool {
	return s != nil && s.Token != ""
}

// LoadSession reads the session file. A missing file yields an empty session.
func LoadSession(path string) (*Session, error) {
	var s Session
	if _, err := toml.DecodeFile(path, &s); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &Session{}, nil
		}
		return nil, err
	}
	return &s, nil
}

// SaveSession writes the session file with 0600 permissions.
func SaveSession(path string, s *Session) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(s)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// ClearSession removes the session file.
func ClearSession(path string) error {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
