package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"recall/internal/edit"
	"recall/internal/ics"
	"recall/internal/layout"
	appLog "recall/internal/log"
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// ID is an internal identifier used for de-dup and logging. Imported
	// events carry it as their Source.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// Category is assigned to events without CATEGORIES of their own.
	Category string `yaml:"category,omitempty" json:"category,omitempty"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the Web UI/API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the Web UI and API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone day keys are computed in (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone" json:"timezone"`

	// DataDir is where events and the ICS cache live.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Scale is the default zoom in pixels per hour.
	Scale float64 `yaml:"scale" json:"scale"`

	// Rounding is the drag snap: "quarter_hour", "half_hour" or "hour".
	Rounding string `yaml:"rounding" json:"rounding"`

	// Window restricts rendering to part of the day.
	Window layout.Window `yaml:",inline" json:"window"`

	// CacheDays bounds the number of day buckets kept in memory.
	CacheDays int `yaml:"cache_days" json:"cache_days"`

	// RefreshCron is the cron schedule for ICS refresh. Empty disables it.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays and BackfillDays bound ICS expansion around today.
	HorizonDays  int `yaml:"horizon_days" json:"horizon_days"`
	BackfillDays int `yaml:"backfill_days" json:"backfill_days"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:       "127.0.0.1:8080",
		Timezone:     "UTC",
		DataDir:      "./var/recall",
		Scale:        layout.DefaultScale,
		Rounding:     edit.QuarterHour.String(),
		Window:       layout.FullDay,
		CacheDays:    62,
		RefreshCron:  "*/30 * * * *",
		HorizonDays:  14,
		BackfillDays: 7,
		ICS:          []ICSConfig{},
		LogLevel:     "info",
	}
}

// Normalize fills in missing/zero values and clamps out-of-range ones so
// partially-filled configs still behave.
func (c *Config) Normalize() {
	def := DefaultConfig()
	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.DataDir == "" {
		c.DataDir = def.DataDir
	}
	if c.Scale == 0 {
		c.Scale = def.Scale
	}
	c.Scale = layout.ClampScale(c.Scale)
	if r, err := edit.ParseRounding(c.Rounding); err == nil {
		c.Rounding = r.String()
	} else {
		appLog.Warn("config: unknown rounding, using default", "rounding", c.Rounding)
		c.Rounding = def.Rounding
	}

	if w, err := c.Window.Clamped(); err == nil {
		c.Window = w
	} else {
		c.Window = layout.FullDay
	}

	if c.CacheDays <= 0 {
		c.CacheDays = def.CacheDays
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = def.HorizonDays
	}
	if c.BackfillDays < 0 {
		c.BackfillDays = 0
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
	for i := range c.ICS {
		if c.ICS[i].ID == "" {
			c.ICS[i].ID = fmt.Sprintf("ics-%d", i+1)
		}
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
}

// Validate reports settings Normalize cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("config: timezone %q: %w", c.Timezone, err))
	}
	if _, err := appLog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("config: %w", err))
	}
	seen := make(map[string]bool, len(c.ICS))
	for _, src := range c.ICS {
		if strings.TrimSpace(src.URL) == "" {
			errs = append(errs, fmt.Errorf("config: ics %q has no url", src.ID))
		}
		if seen[src.ID] {
			errs = append(errs, fmt.Errorf("config: duplicate ics id %q", src.ID))
		}
		seen[src.ID] = true
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.Password == "") {
		errs = append(errs, errors.New("config: basic_auth needs both username and password"))
	}
	return errors.Join(errs...)
}

// Location resolves Timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Sources converts the subscriptions for the fetcher.
func (c *Config) Sources() []ics.Source {
	out := make([]ics.Source, 0, len(c.ICS))
	for _, s := range c.ICS {
		out = append(out, ics.Source{ID: s.ID, URL: s.URL, Category: s.Category})
	}
	return out
}

// EventsDir and CacheDir are the on-disk locations under DataDir.
func (c *Config) EventsDir() string { return filepath.Join(c.DataDir, "store") }
func (c *Config) CacheDir() string  { return filepath.Join(c.DataDir, "ics-cache") }

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist, a default config is written with 0600
//     perms (creating the parent directory) and returned.
//   - Otherwise the YAML is unmarshaled, normalized and validated.
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
			appLog.Info("config created", "path", path)
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600 perms.
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

	tmp, err := os.CreateTemp(dir, ".recall-config-*.tmp")
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

func (c *Config) Save(path string) error {
	return Save(path, c)
}
