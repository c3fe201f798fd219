package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestSaveAndLoad(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	cfg := Default()
	cfg.DefaultInstance = "work"
	cfg.Gateway.URL = "https://api.z-api.io/instances/x/token/y/send-text"
	cfg.Gateway.Timeout = Duration{5 * time.Second}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.DefaultInstance != "work" {
		t.Errorf("DefaultInstance = %q, want %q", loaded.DefaultInstance, "work")
	}
	if loaded.Gateway.Timeout.Duration != 5*time.Second {
		t.Errorf("Gateway.Timeout = %v, want 5s", loaded.Gateway.Timeout)
	}
	if loaded.Gateway.URL != cfg.Gateway.URL {
		t.Errorf("Gateway.URL = %q", loaded.Gateway.URL)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.toml")
	if err == nil {
		t.Error("Load() expected error for missing file")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "none.toml"))
	if err != nil {
		t.Fatalf("LoadOrDefault() error = %v", err)
	}
	if cfg.Gateway.Timeout.Duration != 10*time.Second {
		t.Errorf("default gateway timeout = %v, want 10s", cfg.Gateway.Timeout)
	}
	if cfg.Client.PollInterval.Duration != 2*time.Second {
		t.Errorf("default poll interval = %v, want 2s", cfg.Client.PollInterval)
	}
}

func TestPartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := "[server]\naddr = \"0.0.0.0:9000\"\n\n[gateway]\ntimeout = \"3s\"\n"
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("Server.Addr = %q", cfg.Server.Addr)
	}
	if cfg.Gateway.Timeout.Duration != 3*time.Second {
		t.Errorf("Gateway.Timeout = %v", cfg.Gateway.Timeout)
	}
	if cfg.Gateway.Driver != DriverZAPI {
		t.Errorf("Gateway.Driver = %q, want default", cfg.Gateway.Driver)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("WPPCRM_ADDR", ":9999")
	t.Setenv("ZAPI_URL", "http://gw/send-text")
	t.Setenv("ZAPI_CLIENT_TOKEN", "secret")
	t.Setenv("WPPCRM_DB", "/tmp/x.db")
	t.Setenv("WPPCRM_GATEWAY", DriverWhatsmeow)

	cfg := Default()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != ":9999" || cfg.Gateway.URL != "http://gw/send-text" ||
		cfg.Gateway.ClientToken != "secret" || cfg.Store.Path != "/tmp/x.db" ||
		cfg.Gateway.Driver != DriverWhatsmeow {
		t.Errorf("env not applied: %+v", cfg)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad driver", func(c *Config) { c.Gateway.Driver = "smtp" }},
		{"zero timeout", func(c *Config) { c.Gateway.Timeout = Duration{} }},
		{"bad cron", func(c *Config) { c.Auth.CleanupCron = "every minute" }},
		{"zero rps", func(c *Config) { c.Limits.RPS = 0 }},
		{"bad location", func(c *Config) { c.Client.Location = "Mars/Olympus" }},
	}
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() expected error")
			}
		})
	}
}

func TestSavePermissions(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.toml")

	if err := Save(path, Default()); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	perm := info.Mode().Perm()
	if perm != 0600 {
		t.Errorf("file permission = %o, want 0600", perm)
	}
}

func TestSessionRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.toml")

	empty, err := LoadSession(path)
	if err != nil {
		t.Fatalf("LoadSession(missing) error = %v", err)
	}
	if empty.LoggedIn() {
		t.Error("missing session should not be logged in")
	}

	s := &Session{BaseURL: "http://localhost:8787", Token: "tok", User: "Ana", Role: "agent"}
	if err := SaveSession(path, s); err != nil {
		t.Fatal(err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("session permission = %o, want 0600", perm)
	}

	got, err := LoadSession(path)
	if err != nil {
		t.Fatal(err)
	}
	if *got != *s {
		t.Errorf("LoadSession() = %+v, want %+v", got, s)
	}

	if err := ClearSession(path); err != nil {
		t.Fatal(err)
	}
	if err := ClearSession(path); err != nil {
		t.Errorf("ClearSession twice: %v", err)
	}
}
