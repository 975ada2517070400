package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// SeedConfig selects where the initial entries come from. At most one source
// is used, in this order: File, ICSURL, ICSFile. With none set the built-in
// sample day is loaded.
type SeedConfig struct {
	// File is a YAML seed (see internal/seed).
	File string `yaml:"file,omitempty" json:"file,omitempty"`
	// ICSURL is an HTTP(S) calendar feed.
	ICSURL string `yaml:"ics_url,omitempty" json:"ics_url,omitempty"`
	// ICSFile is a local .ics file.
	ICSFile string `yaml:"ics_file,omitempty" json:"ics_file,omitempty"`
	// Day (YYYY-MM-DD) picks the day imported from an ICS source. Empty means
	// today in Timezone.
	Day string `yaml:"day,omitempty" json:"day,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone the displayed day is placed in.
	Timezone string `yaml:"timezone" json:"timezone"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" json:"log_level"`

	// PixelsPerMinute is the vertical scale of the grid.
	PixelsPerMinute int `yaml:"pixels_per_minute" json:"pixels_per_minute"`

	// SnapMinutes is the grid drag deltas are rounded to.
	SnapMinutes int `yaml:"snap_minutes" json:"snap_minutes"`

	// MinDurationMinutes is the shortest duration a resize may produce.
	MinDurationMinutes int `yaml:"min_duration_minutes" json:"min_duration_minutes"`

	Seed SeedConfig `yaml:"seed" json:"seed"`

	// RefreshCron is a cron spec (e.g. "*/15 * * * *") for re-importing an ICS
	// seed source. Empty disables periodic refresh.
	RefreshCron string `yaml:"refresh,omitempty" json:"refresh,omitempty"`

	// BasicAuth, if set, protects every endpoint except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:             "127.0.0.1:8080",
		Timezone:           "UTC",
		LogLevel:           "info",
		PixelsPerMinute:    2,
		SnapMinutes:        5,
		MinDurationMinutes: 10,
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.Timezone == "" {
		c.Timezone = d.Timezone
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.PixelsPerMinute <= 0 {
		c.PixelsPerMinute = d.PixelsPerMinute
	}
	if c.SnapMinutes <= 0 {
		c.SnapMinutes = d.SnapMinutes
	}
	if c.MinDurationMinutes <= 0 {
		c.MinDurationMinutes = d.MinDurationMinutes
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.Password == "") {
		c.BasicAuth = nil
	}
}

// Location resolves Timezone, falling back to UTC when it is unknown.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC, err
	}
	return loc, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written there (0600)
//     and returned.
//   - Otherwise the YAML is decoded and normalized.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Still usable; the caller decides whether this is fatal.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
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

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".timetable-config-*.tmp")
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
