package app

import (
	"fmt"
	"os"
	"path/filepath"
)

// Environment variables that relocate impulse's files.
const (
	EnvConfigPath = "IMPULSE_CONFIG_PATH"
	EnvHome       = "IMPULSE_HOME"
)

// GetDefaults returns application default paths, checking environment variables first.
// Environment variables:
//   - IMPULSE_CONFIG_PATH: config file location (default: ~/.config/impulse.toml)
//   - IMPULSE_HOME: base directory for impulse data (default: ~/.local/share/impulse)
func GetDefaults() (map[string]string, error) {
	configPath, err := getConfigPath()
	if err != nil {
		return nil, err
	}

	baseDir, err := getBaseDir()
	if err != nil {
		return nil, err
	}

	return map[string]string{
		"config_path": configPath,
		"base_dir":    baseDir,
		"log_dir":     filepath.Join(baseDir, "log"),
		"cache_dir":   filepath.Join(baseDir, "cache"),
		"env_file":    ".env",
	}, nil
}

// getConfigPath returns the config file path, checking IMPULSE_CONFIG_PATH first,
// then falling back to the default ~/.config/impulse.toml.
func getConfigPath() (string, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".config", "impulse.toml"), nil
}

// getBaseDir returns the base directory for impulse data, checking IMPULSE_HOME first,
// then falling back to the XDG default ~/.local/share/impulse.
func getBaseDir() (string, error) {
	if path := os.Getenv(EnvHome); path != "" {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".local", "share", "impulse"), nil
}
