package shared

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Tracker  TrackerConfig  `toml:"tracker"`
	Sync     SyncConfig     `toml:"sync"`
	Log      LogConfig      `toml:"log"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains operator HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TrackerConfig contains the remote tracking API settings.
type TrackerConfig struct {
	BaseURL    string   `toml:"base_url"`
	LicenseKey string   `toml:"license_key"`
	Timeout    Duration `toml:"timeout"`
	UserAgent  string   `toml:"user_agent"`
}

// SyncConfig tunes the scrobble synchronization engine and its schedule.
type SyncConfig struct {
	Interval          Duration `toml:"interval"`
	CleanupInterval   Duration `toml:"cleanup_interval"`
	Retention         Duration `toml:"retention"`
	CommitEvery       int      `toml:"commit_every"`
	LowWater          int      `toml:"low_water"`
	Throttle          Duration `toml:"throttle"`
	LowQuotaPause     Duration `toml:"low_quota_pause"`
	RateLimitCooldown Duration `toml:"rate_limit_cooldown"`
	RateLimitRetries  int      `toml:"rate_limit_retries"`
	JobRetries        int      `toml:"job_retries"`
	JobRetryBackoff   Duration `toml:"job_retry_backoff"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Duration is a [time.Duration] that decodes from TOML strings such as "10m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("%w: duration %q: %v", ErrInvalidConfig, string(text), err)
	}
	d.Duration = parsed
	return nil
}

// MarshalText implements [encoding.TextMarshaler].
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Validate checks that the scheduling and tracker settings are usable.
func (c *Config) Validate() error {
	if c.Tracker.BaseURL == "" {
		return fmt.Errorf("%w: tracker.base_url is required", ErrInvalidConfig)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}

	durations := map[string]time.Duration{
		"sync.interval":            c.Sync.Interval.Duration,
		"sync.cleanup_interval":    c.Sync.CleanupInterval.Duration,
		"sync.retention":           c.Sync.Retention.Duration,
		"sync.rate_limit_cooldown": c.Sync.RateLimitCooldown.Duration,
	}
	for name, d := range durations {
		if d <= 0 {
			return fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, name)
		}
	}

	if c.Sync.CommitEvery <= 0 {
		return fmt.Errorf("%w: sync.commit_every must be positive", ErrInvalidConfig)
	}
	if c.Sync.RateLimitRetries < 0 || c.Sync.JobRetries < 0 {
		return fmt.Errorf("%w: retry counts cannot be negative", ErrInvalidConfig)
	}

	return nil
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults. A missing file yields [ErrMissingConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingConfig, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
