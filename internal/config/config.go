package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// ICSConfig describes a single ICS feed whose events are published.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for de-dup and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for /metrics.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the object endpoints.
	Listen string `yaml:"listen" json:"listen"`

	// BaseURL is the public origin objects are published under
	// (e.g. "https://events.example.org"). Object ids are derived from it.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Actor is the ActivityPub actor the events are attributed to.
	Actor string `yaml:"actor" json:"actor"`

	// Timezone is the IANA timezone used when a feed does not declare one.
	Timezone string `yaml:"timezone" json:"timezone"`

	// Language is the BCP 47 tag used for contentMap.
	Language string `yaml:"language" json:"language"`

	// BlockNamespace is the block name prefix owned by the host event
	// system. Blocks in this namespace are dropped from federated content.
	BlockNamespace string `yaml:"block_namespace" json:"block_namespace"`

	// RefreshCron is a cron-style schedule string (e.g. "*/15 * * * *")
	// for periodic catalog refresh.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// HorizonDays is how many days ahead recurring events are expanded.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// CacheDir holds per-feed HTTP cache data.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	LogLevel  string `yaml:"log_level" json:"log_level"`
	LogPretty bool   `yaml:"log_pretty" json:"log_pretty"`

	// ICS is the list of published feeds.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// MetricsAuth, if non-nil, protects /metrics with HTTP Basic Auth.
	// Federation endpoints stay public.
	MetricsAuth *BasicAuthConfig `yaml:"metrics_auth,omitempty" json:"metrics_auth,omitempty"`
}

const (
	defaultListen         = "127.0.0.1:8080"
	defaultBaseURL        = "http://127.0.0.1:8080"
	defaultTimezone       = "UTC"
	defaultLanguage       = "en"
	defaultBlockNamespace = "gatherpress"
	defaultRefreshCron    = "*/15 * * * *"
	defaultHorizonDays    = 90
	defaultCacheDir       = "./var/ics-cache"
	defaultLogLevel       = "info"
)

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:         defaultListen,
		BaseURL:        defaultBaseURL,
		Actor:          defaultBaseURL + "/actor",
		Timezone:       defaultTimezone,
		Language:       defaultLanguage,
		BlockNamespace: defaultBlockNamespace,
		RefreshCron:    defaultRefreshCron,
		HorizonDays:    defaultHorizonDays,
		CacheDir:       defaultCacheDir,
		LogLevel:       defaultLogLevel,
		ICS:            []ICSConfig{},
	}
}

// Normalize fills in missing/zero values so partially-filled configs still
// behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Actor == "" {
		c.Actor = c.BaseURL + "/actor"
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	if c.Language == "" {
		c.Language = defaultLanguage
	}
	// Stored without the separator; "gatherpress/" and "gatherpress" mean the same.
	c.BlockNamespace = strings.TrimSuffix(strings.TrimSpace(c.BlockNamespace), "/")
	if c.BlockNamespace == "" {
		c.BlockNamespace = defaultBlockNamespace
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// Load reads, normalizes and validates the YAML config at path. A missing
// file is created with defaults (0600) on first run.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Caller decides whether an unsaved default is acceptable.
				return cfg, err
			}
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

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid config")

// Validate checks values Normalize cannot repair.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config: base_url %q must be an absolute http(s) URL: %w", c.BaseURL, ErrInvalid)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("config: timezone %q: %w", c.Timezone, errors.Join(ErrInvalid, err))
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		return fmt.Errorf("config: refresh %q: %w", c.RefreshCron, errors.Join(ErrInvalid, err))
	}

	seen := make(map[string]bool, len(c.ICS))
	for i, feed := range c.ICS {
		if strings.TrimSpace(feed.URL) == "" {
			return fmt.Errorf("config: ics[%d]: url is empty: %w", i, ErrInvalid)
		}
		id := feed.ID
		if id == "" {
			id = feed.URL
		}
		if seen[id] {
			return fmt.Errorf("config: ics[%d]: duplicate id %q: %w", i, id, ErrInvalid)
		}
		seen[id] = true
	}
	return nil
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

	tmp, err := os.CreateTemp(dir, ".eventfed-config-*.tmp")
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

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
