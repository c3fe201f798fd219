package instance

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.wppcrm, or $WPPCRM_HOME when set.
func BaseDir() string {
	if dir := os.Getenv("WPPCRM_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".wppcrm")
}

// Dir returns the instance-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "instances", name)
}

// DBPath returns the backend message store path.
func DBPath(name string) string {
	return filepath.Join(Dir(name), "crm.db")
}

// DeviceDBPath returns the whatsmeow device store path.
func DeviceDBPath(name string) string {
	return filepath.Join(Dir(name), "device.db")
}

// LogDir returns the log directory for an instance.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the daemon log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "crmd.log")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// SessionPath returns where the operator's login session is kept.
func SessionPath() string {
	return filepath.Join(BaseDir(), "session.toml")
}

// EnsureDir creates the instance directory tree with proper permissions.
func EnsureDir(name string) error {
	for _, d := range []string{Dir(name), LogDir(name)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
