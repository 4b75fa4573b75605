package profile

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.chatline, or $CHATLINE_HOME when set.
func BaseDir() string {
	if dir := os.Getenv("CHATLINE_HOME"); dir != "" {
		return dir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".chatline")
}

// Dir returns the profile-specific directory.
func Dir(name string) string {
	return filepath.Join(BaseDir(), "profiles", name)
}

// LockPath returns the lock file path for a profile.
func LockPath(name string) string {
	return filepath.Join(Dir(name), "LOCK")
}

// StorePath returns the local state database for a profile.
func StorePath(name string) string {
	return filepath.Join(Dir(name), "chatline.db")
}

// LogDir returns the log directory for a profile.
func LogDir(name string) string {
	return filepath.Join(Dir(name), "logs")
}

// LogPath returns the client log file path.
func LogPath(name string) string {
	return filepath.Join(LogDir(name), "chatline.log")
}

// EnvPath returns the per-profile dotenv file.
func EnvPath(name string) string {
	return filepath.Join(Dir(name), ".env")
}

// ConfigPath returns the global config file path.
func ConfigPath() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with proper permissions.
func EnsureDir(name string) error {
	dirs := []string{
		Dir(name),
		LogDir(name),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
