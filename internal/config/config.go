package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// SourceConfig describes one calendar owner participating in reconciliation.
type SourceConfig struct {
	// Name is the unique source key (e.g. "family").
	Name string `yaml:"name" json:"name"`
	// FeedURL is the owner's main ICS feed.
	FeedURL string `yaml:"feed_url" json:"feed_url"`
	// BlockedURL is the base URL of the owner's placeholder store;
	// placeholders are addressed as {BlockedURL}{uid}.ics.
	BlockedURL string `yaml:"blocked_url" json:"blocked_url"`
}

// ApprovedFeedConfig describes the externally managed feed whose events are
// always surfaced as approved, bypassing the placeholder workflow.
type ApprovedFeedConfig struct {
	Name string `yaml:"name" json:"name"`
	URL  string `yaml:"url" json:"url"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// ScrapeConfig holds the credentials and selectors for the work-shift
// scraper. All fields are required when the scraper is used.
type ScrapeConfig struct {
	// LoginURL is the schedule site's login page.
	LoginURL string `yaml:"login_url" json:"login_url"`
	Email    string `yaml:"email" json:"email"`
	Password string `yaml:"password" json:"password"`
	// UserID selects the timetable row to read (data-user attribute).
	UserID string `yaml:"user_id" json:"user_id"`
	// Timezone is the IANA zone the timetable's wall-clock times are in.
	Timezone string `yaml:"timezone" json:"timezone"`
	// Summary is the title published for each shift.
	Summary string `yaml:"summary" json:"summary"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA reference timezone used when interpreting
	// date-only calendar values. Feed times themselves are normalized to UTC.
	Timezone string `yaml:"timezone" json:"timezone"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// driving the periodic reconciliation pass. Empty disables it.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// SyncWindowDays is the forward-looking horizon within which source
	// events are considered for reconciliation.
	SyncWindowDays int `yaml:"sync_window_days" json:"sync_window_days"`

	// DatabasePath is the SQLite file holding buffer/privacy/ignore settings.
	DatabasePath string `yaml:"database_path" json:"database_path"`

	// Sources lists the calendar owners subject to the approval workflow.
	Sources []SourceConfig `yaml:"sources" json:"sources"`

	// ApprovedFeed, if non-nil, is an extra feed whose events are always
	// approved (e.g. a managed work calendar).
	ApprovedFeed *ApprovedFeedConfig `yaml:"approved_feed,omitempty" json:"approved_feed,omitempty"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// Scrape, if non-nil, configures the work-shift scraper.
	Scrape *ScrapeConfig `yaml:"scrape,omitempty" json:"scrape,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         "127.0.0.1:8080",
		Timezone:       "UTC",
		RefreshCron:    "*/15 * * * *",
		SyncWindowDays: 90,
		DatabasePath:   "calmanage.db",
		Sources:        []SourceConfig{},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if c.SyncWindowDays <= 0 {
		c.SyncWindowDays = 90
	}
	if c.DatabasePath == "" {
		c.DatabasePath = "calmanage.db"
	}
	if c.Sources == nil {
		c.Sources = []SourceConfig{}
	}
	if c.ApprovedFeed != nil && c.ApprovedFeed.Name == "" {
		c.ApprovedFeed.Name = "Work"
	}
	if c.Scrape != nil {
		if c.Scrape.Timezone == "" {
			c.Scrape.Timezone = c.Timezone
		}
		if c.Scrape.Summary == "" {
			c.Scrape.Summary = "Work"
		}
	}
}

// Validate reports configuration errors that Normalize cannot paper over.
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Sources))
	for _, src := range c.Sources {
		if src.Name == "" {
			return errors.New("config: source with empty name")
		}
		if seen[src.Name] {
			return errors.New("config: duplicate source name " + src.Name)
		}
		seen[src.Name] = true
		if src.FeedURL == "" {
			return errors.New("config: source " + src.Name + " has no feed_url")
		}
		if src.BlockedURL == "" {
			return errors.New("config: source " + src.Name + " has no blocked_url")
		}
	}
	return nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600 (feed URLs embed secrets).
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

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".calmanage-config-*.tmp")
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

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}
