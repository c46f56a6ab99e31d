package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// Config holds the client configuration
type Config struct {
	DatabasePath string `toml:"database_path"`
	CacheDir     string `toml:"cache_dir"`
	LogLevel     string `toml:"log_level"`
	AppIcon      string `toml:"app_icon"` // Fallback notification icon
}

// Default returns the default client configuration rooted in the user's
// config directory
func Default() *Config {
	base := "."
	if home, err := os.UserHomeDir(); err == nil {
		base = filepath.Join(home, ".beacon")
	}
	return &Config{
		DatabasePath: filepath.Join(base, "beacon.db"),
		CacheDir:     filepath.Join(base, "cache"),
		LogLevel:     "info",
	}
}

// DefaultPaths lists the locations probed for a config file, in order
func DefaultPaths() []string {
	return []string{
		"./beacon.toml",
		os.ExpandEnv("$HOME/.config/beacon/beacon.toml"),
		os.ExpandEnv("$HOME/.beacon/beacon.toml"),
	}
}

// Load reads a TOML config file over the given defaults
func Load(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// EnsureDirs creates the directories the configured paths live in
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{filepath.Dir(c.DatabasePath), c.CacheDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
