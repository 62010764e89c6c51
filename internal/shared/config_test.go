package shared

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig(t *testing.T) {
	t.Run("DefaultConfig", func(t *testing.T) {
		config := DefaultConfig()

		assert.Equal(t, "./scrobblex.db", config.Database.Path)
		assert.Equal(t, 5055, config.Server.Port)
		assert.Equal(t, 6*time.Hour, config.Sync.Interval.Duration)
		assert.Equal(t, 7*24*time.Hour, config.Sync.Retention.Duration)
		assert.Equal(t, 10*time.Minute, config.Sync.RateLimitCooldown.Duration)
		assert.Equal(t, 5, config.Sync.CommitEvery)
		assert.Equal(t, 10, config.Sync.LowWater)
		assert.NoError(t, config.Validate())
	})

	t.Run("CreateConfigFile", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		require.NoError(t, CreateConfigFile(configPath))
		_, err := os.Stat(configPath)
		require.NoError(t, err)

		config, err := LoadConfig(configPath)
		require.NoError(t, err)
		assert.Equal(t, DefaultConfig().Database.Path, config.Database.Path)

		assert.Error(t, CreateConfigFile(configPath), "creating config file again should fail")
	})

	t.Run("LoadConfig", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")

		testConfig := `[database]
path = "/custom/path.db"

[server]
host = "0.0.0.0"
port = 8080

[tracker]
base_url = "http://localhost:9999"
license_key = "abc"

[sync]
interval = "2h"
commit_every = 3
`
		require.NoError(t, os.WriteFile(configPath, []byte(testConfig), 0644))

		config, err := LoadConfig(configPath)
		require.NoError(t, err)

		assert.Equal(t, "/custom/path.db", config.Database.Path)
		assert.Equal(t, "0.0.0.0:8080", config.Server.Addr())
		assert.Equal(t, "abc", config.Tracker.LicenseKey)
		assert.Equal(t, 2*time.Hour, config.Sync.Interval.Duration)
		assert.Equal(t, 3, config.Sync.CommitEvery)
		// untouched keys keep their defaults
		assert.Equal(t, 24*time.Hour, config.Sync.CleanupInterval.Duration)
	})

	t.Run("LoadConfig reports a missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.toml"))
		assert.ErrorIs(t, err, ErrMissingConfig)
	})

	t.Run("LoadConfig rejects bad durations", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.toml")
		require.NoError(t, os.WriteFile(configPath, []byte("[sync]\ninterval = \"soon\"\n"), 0644))

		_, err := LoadConfig(configPath)
		assert.Error(t, err)
	})

	t.Run("Validate", func(t *testing.T) {
		tt := []struct {
			name   string
			mutate func(c *Config)
		}{
			{name: "missing base url", mutate: func(c *Config) { c.Tracker.BaseURL = "" }},
			{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }},
			{name: "zero interval", mutate: func(c *Config) { c.Sync.Interval.Duration = 0 }},
			{name: "zero commit batch", mutate: func(c *Config) { c.Sync.CommitEvery = 0 }},
			{name: "negative retries", mutate: func(c *Config) { c.Sync.JobRetries = -1 }},
		}

		for _, tc := range tt {
			t.Run(tc.name, func(t *testing.T) {
				config := DefaultConfig()
				tc.mutate(config)
				assert.ErrorIs(t, config.Validate(), ErrInvalidConfig)
			})
		}
	})
}
