// Package config loads and saves the smartdated configuration file. Files ending in .toml are
// read and written as TOML, everything else as YAML.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/cyp0633/smartdate/recurrence"
	"github.com/cyp0633/smartdate/window"
)

// EnvDSN overrides Storage.DSN when set
const EnvDSN = "SMARTDATE_DSN"

// Storage drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// LogConfig selects the log level and output format.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level" toml:"level" json:"level"`
	// Format is one of text, json, pretty.
	Format string `yaml:"format" toml:"format" json:"format"`
}

// StorageConfig selects the storage backend.
type StorageConfig struct {
	// Driver is memory, postgres or sqlite.
	Driver string `yaml:"driver" toml:"driver" json:"driver"`
	// DSN is the PostgreSQL connection string or the SQLite file path.
	DSN string `yaml:"dsn" toml:"dsn" json:"dsn"`
}

// CacheConfig mirrors recurrence.CacheConfig with durations written as strings ("15m").
type CacheConfig struct {
	Enabled         bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	TTL             string `yaml:"ttl" toml:"ttl" json:"ttl"`
	MaxEntries      int    `yaml:"max_entries" toml:"max_entries" json:"max_entries"`
	CleanupInterval string `yaml:"cleanup_interval" toml:"cleanup_interval" json:"cleanup_interval"`
}

// EngineConfig bounds rule expansion.
type EngineConfig struct {
	// HorizonMonths bounds rules without a count or end date.
	HorizonMonths int         `yaml:"horizon_months" toml:"horizon_months" json:"horizon_months"`
	MaxInstances  int         `yaml:"max_instances" toml:"max_instances" json:"max_instances"`
	Cache         CacheConfig `yaml:"cache" toml:"cache" json:"cache"`
}

// WindowConfig controls how many instances are shown around now.
type WindowConfig struct {
	Past               int  `yaml:"past" toml:"past" json:"past"`
	Upcoming           int  `yaml:"upcoming" toml:"upcoming" json:"upcoming"`
	ShowNext           bool `yaml:"show_next" toml:"show_next" json:"show_next"`
	CurrentAsUpcoming  bool `yaml:"current_as_upcoming" toml:"current_as_upcoming" json:"current_as_upcoming"`
	CollapseDailyRange bool `yaml:"collapse_daily_range" toml:"collapse_daily_range" json:"collapse_daily_range"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" toml:"username" json:"username"`
	Password string `yaml:"password" toml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" toml:"listen" json:"listen"`

	// Timezone is the IANA zone used for calendar-day grouping and floating imported times.
	Timezone string `yaml:"timezone" toml:"timezone" json:"timezone"`

	Log     LogConfig     `yaml:"log" toml:"log" json:"log"`
	Storage StorageConfig `yaml:"storage" toml:"storage" json:"storage"`
	Engine  EngineConfig  `yaml:"engine" toml:"engine" json:"engine"`
	Window  WindowConfig  `yaml:"window" toml:"window" json:"window"`

	// ApplyCron is the cron schedule of the "apply changes" batch job. Empty disables it.
	ApplyCron string `yaml:"apply_cron" toml:"apply_cron" json:"apply_cron"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" toml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// Viewers are additional read-only accounts. Ignored unless BasicAuth is set.
	Viewers []BasicAuthConfig `yaml:"viewers,omitempty" toml:"viewers,omitempty" json:"viewers,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	win := window.DefaultOptions()
	return &Config{
		Listen:   "127.0.0.1:8080",
		Timezone: "UTC",
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Driver: DriverMemory,
		},
		Engine: EngineConfig{
			HorizonMonths: recurrence.DefaultHorizonMonths,
			MaxInstances:  recurrence.DefaultMaxInstances,
			Cache: CacheConfig{
				Enabled:         true,
				TTL:             recurrence.DefaultCacheConfig.TTL.String(),
				MaxEntries:      recurrence.DefaultCacheConfig.MaxEntries,
				CleanupInterval: recurrence.DefaultCacheConfig.CleanupInterval.String(),
			},
		},
		Window: WindowConfig{
			Past:               win.Past,
			Upcoming:           win.Upcoming,
			ShowNext:           win.ShowNext,
			CurrentAsUpcoming:  win.CurrentAsUpcoming,
			CollapseDailyRange: win.CollapseDailyRange,
		},
		ApplyCron: "@hourly",
	}
}

// Normalize fills in missing or invalid values with defaults so that partially
// filled configs still behave correctly. Booleans are left as written.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}

	c.Log.Level = strings.ToLower(c.Log.Level)
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		c.Log.Level = def.Log.Level
	}
	c.Log.Format = strings.ToLower(c.Log.Format)
	switch c.Log.Format {
	case "text", "json", "pretty":
	default:
		c.Log.Format = def.Log.Format
	}

	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	if c.Storage.Driver == "" {
		c.Storage.Driver = def.Storage.Driver
	}

	if c.Engine.HorizonMonths <= 0 {
		c.Engine.HorizonMonths = def.Engine.HorizonMonths
	}
	if c.Engine.MaxInstances <= 0 {
		c.Engine.MaxInstances = def.Engine.MaxInstances
	}
	if _, err := time.ParseDuration(c.Engine.Cache.TTL); err != nil {
		c.Engine.Cache.TTL = def.Engine.Cache.TTL
	}
	if c.Engine.Cache.MaxEntries <= 0 {
		c.Engine.Cache.MaxEntries = def.Engine.Cache.MaxEntries
	}
	if _, err := time.ParseDuration(c.Engine.Cache.CleanupInterval); err != nil {
		c.Engine.Cache.CleanupInterval = def.Engine.Cache.CleanupInterval
	}

	if c.Window.Past < 0 {
		c.Window.Past = 0
	}
	if c.Window.Upcoming < 0 {
		c.Window.Upcoming = 0
	}
}

// Validate reports settings that cannot be defaulted.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory:
	case DriverPostgres, DriverSQLite:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage driver %s needs a dsn", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	if c.BasicAuth != nil && c.BasicAuth.Username == "" {
		return errors.New("basic_auth needs a username")
	}
	for i, v := range c.Viewers {
		if v.Username == "" {
			return fmt.Errorf("viewer %d needs a username", i)
		}
	}
	return nil
}

// Location returns the configured timezone, or UTC if it does not load.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// EngineConfig converts the engine section for recurrence.NewEngineWithConfig.
func (c *Config) EngineConfig() recurrence.EngineConfig {
	ttl, _ := time.ParseDuration(c.Engine.Cache.TTL)
	cleanup, _ := time.ParseDuration(c.Engine.Cache.CleanupInterval)
	return recurrence.EngineConfig{
		CacheEnabled: c.Engine.Cache.Enabled,
		CacheConfig: recurrence.CacheConfig{
			TTL:             ttl,
			MaxEntries:      c.Engine.Cache.MaxEntries,
			CleanupInterval: cleanup,
		},
		DefaultHorizonMonths: c.Engine.HorizonMonths,
		MaxInstances:         c.Engine.MaxInstances,
	}
}

// WindowOptions converts the window section for window.NewSelector.
func (c *Config) WindowOptions() window.Options {
	return window.Options{
		Past:               c.Window.Past,
		Upcoming:           c.Window.Upcoming,
		ShowNext:           c.Window.ShowNext,
		CurrentAsUpcoming:  c.Window.CurrentAsUpcoming,
		CollapseDailyRange: c.Window.CollapseDailyRange,
		Location:           c.Location(),
	}
}

// ApplyEnv applies environment overrides.
func (c *Config) ApplyEnv() {
	if dsn := os.Getenv(EnvDSN); dsn != "" {
		c.Storage.DSN = dsn
	}
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Marshal encodes cfg in the format implied by path.
func Marshal(path string, cfg *Config) ([]byte, error) {
	if isTOML(path) {
		return toml.Marshal(cfg)
	}
	return yaml.Marshal(cfg)
}

// Load loads configuration from the given path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600 perms
//     and returned.
//   - Otherwise the file is decoded on top of the defaults, normalized, and
//     environment overrides are applied.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			cfg.ApplyEnv()
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if isTOML(path) {
		err = toml.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()
	cfg.ApplyEnv()

	return cfg, nil
}

// Save writes cfg to path atomically via a temp file in the same directory.
// The parent directory is created with 0700 and the file ends up with 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := Marshal(path, cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".smartdated-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// Save is a convenience wrapper around the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
