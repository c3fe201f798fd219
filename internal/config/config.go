package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/adhocore/gronx"
	"github.com/joho/godotenv"
)

// Gateway drivers.
const (
	DriverZAPI      = "zapi"
	DriverWhatsmeow = "whatsmeow"
)

// Duration wraps time.Duration so TOML files can say "10s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config represents the global ~/.wppcrm/config.toml.
type Config struct {
	DefaultInstance string `toml:"default_instance"`

	Server  ServerConfig  `toml:"server"`
	Store   StoreConfig   `toml:"store"`
	Gateway GatewayConfig `toml:"gateway"`
	Auth    AuthConfig    `toml:"auth"`
	Limits  LimitsConfig  `toml:"limits"`
	Client  ClientConfig  `toml:"client"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

// StoreConfig points at the message store. An empty path means the instance default.
type StoreConfig struct {
	Path string `toml:"path"`
}

type GatewayConfig struct {
	Driver      string   `toml:"driver"`
	URL         string   `toml:"url"`
	ClientToken string   `toml:"client_token"`
	Timeout     Duration `toml:"timeout"`
}

type AuthConfig struct {
	TokenTTL    Duration `toml:"token_ttl"`
	CleanupCron string   `toml:"cleanup_cron"`
}

// LimitsConfig bounds login attempts per client IP.
type LimitsConfig struct {
	RPS   float64 `toml:"rps"`
	Burst int     `toml:"burst"`
}

type ClientConfig struct {
	BaseURL      string   `toml:"base_url"`
	PollInterval Duration `toml:"poll_interval"`
	Location     string   `toml:"location"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{Addr: "127.0.0.1:8787"},
		Gateway: GatewayConfig{Driver: DriverZAPI, Timeout: Duration{10 * time.Second}},
		Auth:    AuthConfig{TokenTTL: Duration{24 * time.Hour}, CleanupCron: "*/15 * * * *"},
		Limits:  LimitsConfig{RPS: 5, Burst: 10},
		Client: ClientConfig{
			BaseURL:      "http://127.0.0.1:8787",
			PollInterval: Duration{2 * time.Second},
			Location:     "Local",
		},
	}
}

// Load reads config from the given path on top of Default. Returns an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads .env, then the config file if present, then applies environment overrides.
func LoadOrDefault(path string) (*Config, error) {
	_ = godotenv.Load(".env")

	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides file values with WPPCRM_* and ZAPI_* variables.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("WPPCRM_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("WPPCRM_DB"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("WPPCRM_GATEWAY"); v != "" {
		c.Gateway.Driver = v
	}
	if v := os.Getenv("ZAPI_URL"); v != "" {
		c.Gateway.URL = v
	}
	if v := os.Getenv("ZAPI_CLIENT_TOKEN"); v != "" {
		c.Gateway.ClientToken = v
	}
	if v := os.Getenv("WPPCRM_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("WPPCRM_RPS: %w", err)
		}
		c.Limits.RPS = rps
	}
	return nil
}

// Validate rejects values the daemon cannot run with.
func (c *Config) Validate() error {
	switch c.Gateway.Driver {
	case DriverZAPI, DriverWhatsmeow:
	default:
		return fmt.Errorf("gateway.driver %q: want %q or %q", c.Gateway.Driver, DriverZAPI, DriverWhatsmeow)
	}
	if c.Gateway.Timeout.Duration <= 0 {
		return errors.New("gateway.timeout must be positive")
	}
	if c.Client.PollInterval.Duration <= 0 {
		return errors.New("client.poll_interval must be positive")
	}
	if c.Auth.CleanupCron != "" && !gronx.IsValid(c.Auth.CleanupCron) {
		return fmt.Errorf("auth.cleanup_cron %q is not a valid cron expression", c.Auth.CleanupCron)
	}
	if c.Limits.RPS <= 0 || c.Limits.Burst <= 0 {
		return errors.New("limits.rps and limits.burst must be positive")
	}
	if _, err := time.LoadLocation(c.Client.Location); err != nil {
		return fmt.Errorf("client.location: %w", err)
	}
	return nil
}

// Location resolves the display timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Client.Location)
	if err != nil {
		return time.Local
	}
	return loc
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
