// Package config binds viper settings to the engine and the CLI's stores.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandPath expands ~ and environment variables in a file path.
func ExpandPath(path string) string {
	if path == "" {
		return path
	}

	home, err := os.UserHomeDir()
	switch {
	case err != nil:
	case path == "~":
		path = home
	case strings.HasPrefix(path, "~/"):
		path = filepath.Join(home, path[2:])
	}

	return os.ExpandEnv(path)
}

// DefaultDatabasePath returns where the SQLite database lives when
// database.path is unset.
func DefaultDatabasePath() string {
	if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
		return filepath.Join(dataHome, "sentinel", "sentinel.db")
	}
	return ExpandPath(filepath.Join("~", ".local", "share", "sentinel", "sentinel.db"))
}
