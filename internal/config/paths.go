package config

import (
	"os"
	"path/filepath"
)

const appDirName = ".relay"

// DataDir returns the base data directory, honoring RELAY_DATA_DIR for
// tests and alternate deployments.
func DataDir() (string, error) {
	if dir := os.Getenv("RELAY_DATA_DIR"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, appDirName), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "config.toml"), nil
}

// DBPath returns the path to the bbolt database file.
func DBPath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "relay.db"), nil
}

// TokenPath returns the path to the daemon auth token file.
func TokenPath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "token"), nil
}

// LogPath returns the path of the daemon log file used in background mode.
func LogPath() (string, error) {
	dataDir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "daemon.log"), nil
}
