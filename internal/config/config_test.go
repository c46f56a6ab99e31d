package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("file values override defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "beacon.toml")
		require.NoError(t, os.WriteFile(path, []byte(`
database_path = "/data/beacon.db"
log_level = "debug"
`), 0644))

		cfg := Default()
		require.NoError(t, Load(path, cfg))

		assert.Equal(t, "/data/beacon.db", cfg.DatabasePath)
		assert.Equal(t, "debug", cfg.LogLevel)
		assert.NotEmpty(t, cfg.CacheDir, "unset keys keep their defaults")
	})

	t.Run("missing file is an error", func(t *testing.T) {
		cfg := Default()
		assert.Error(t, Load(filepath.Join(t.TempDir(), "absent.toml"), cfg))
	})

	t.Run("malformed TOML is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "beacon.toml")
		require.NoError(t, os.WriteFile(path, []byte(`database_path = [`), 0644))

		cfg := Default()
		assert.Error(t, Load(path, cfg))
	})
}

func TestEnsureDirs(t *testing.T) {
	base := t.TempDir()
	cfg := &Config{
		DatabasePath: filepath.Join(base, "nested", "beacon.db"),
		CacheDir:     filepath.Join(base, "cache"),
	}

	require.NoError(t, cfg.EnsureDirs())
	assert.DirExists(t, filepath.Join(base, "nested"))
	assert.DirExists(t, cfg.CacheDir)
}
