// Package config handles configuration loading and validation for leasesign.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/BurntSushi/toml"
)

// Version is the current configuration schema version.
const Version = 1

// Config is the complete leasesign configuration.
type Config struct {
	mu sync.RWMutex

	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	Service    ServiceConfig    `toml:"service" json:"service" yaml:"service"`
	Checkpoint CheckpointConfig `toml:"checkpoint" json:"checkpoint" yaml:"checkpoint"`
	Signing    SigningConfig    `toml:"signing" json:"signing" yaml:"signing"`
	Logging    LoggingConfig    `toml:"logging" json:"logging" yaml:"logging"`
	GUI        GUIConfig        `toml:"gui" json:"gui" yaml:"gui"`
	DevServer  DevServerConfig  `toml:"dev_server" json:"dev_server" yaml:"dev_server"`
}

// ServiceConfig describes the lease signing service.
type ServiceConfig struct {
	// BaseURL is the service root. Session URLs are BaseURL/api/lease-signing/sessions/{token}.
	BaseURL string `toml:"base_url" json:"base_url" yaml:"base_url"`

	// TimeoutSec bounds each HTTP request.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`

	// BearerToken is sent as an Authorization header when set.
	BearerToken string `toml:"bearer_token" json:"bearer_token" yaml:"bearer_token"`

	// SubmitRatePerSec limits submit requests. Zero disables the limit.
	SubmitRatePerSec float64 `toml:"submit_rate_per_sec" json:"submit_rate_per_sec" yaml:"submit_rate_per_sec"`

	// SubmitBurst is the submit limiter's bucket size.
	SubmitBurst int `toml:"submit_burst" json:"submit_burst" yaml:"submit_burst"`
}

// CheckpointConfig selects where signing progress is kept between runs.
type CheckpointConfig struct {
	// Backend is "memory", "sqlite", "redis" or "file".
	Backend string `toml:"backend" json:"backend" yaml:"backend"`

	// Path is the sqlite database file or the checkpoint directory.
	Path string `toml:"path" json:"path" yaml:"path"`

	// RedisAddr is host:port of the redis server.
	RedisAddr string `toml:"redis_addr" json:"redis_addr" yaml:"redis_addr"`

	// RedisDB is the redis database number.
	RedisDB int `toml:"redis_db" json:"redis_db" yaml:"redis_db"`

	// TTLHours is how long saved progress stays valid.
	TTLHours int `toml:"ttl_hours" json:"ttl_hours" yaml:"ttl_hours"`
}

// SigningConfig tunes the signing modal.
type SigningConfig struct {
	// StrokeColor is the pen color as #RRGGBB or #RRGGBBAA.
	StrokeColor string `toml:"stroke_color" json:"stroke_color" yaml:"stroke_color"`

	// StrokeWidth is the pen width in visual units.
	StrokeWidth float32 `toml:"stroke_width" json:"stroke_width" yaml:"stroke_width"`

	PadWidth  int `toml:"pad_width" json:"pad_width" yaml:"pad_width"`
	PadHeight int `toml:"pad_height" json:"pad_height" yaml:"pad_height"`

	// ActiveSectionThreshold is the distance below the viewport top at
	// which a heading becomes the active section.
	ActiveSectionThreshold float32 `toml:"active_section_threshold" json:"active_section_threshold" yaml:"active_section_threshold"`

	// ScrollOffset is the gap left above a section scrolled into view.
	ScrollOffset float32 `toml:"scroll_offset" json:"scroll_offset" yaml:"scroll_offset"`

	// AutoDate fills date fields with today's date.
	AutoDate bool `toml:"auto_date" json:"auto_date" yaml:"auto_date"`

	// DateFormat is a Go time layout.
	DateFormat string `toml:"date_format" json:"date_format" yaml:"date_format"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `toml:"level" json:"level" yaml:"level"`

	// Format is the log format: "text" or "json".
	Format string `toml:"format" json:"format" yaml:"format"`

	// Output is "stdout", "stderr", "file" or "both".
	Output string `toml:"output" json:"output" yaml:"output"`

	// FilePath is the log file when Output is "file" or "both".
	FilePath string `toml:"file_path" json:"file_path" yaml:"file_path"`
}

// GUIConfig sizes the desktop window.
type GUIConfig struct {
	Width  int `toml:"width" json:"width" yaml:"width"`
	Height int `toml:"height" json:"height" yaml:"height"`
}

// DevServerConfig configures the local development service.
type DevServerConfig struct {
	Addr string `toml:"addr" json:"addr" yaml:"addr"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dataDir := DataDir()
	return &Config{
		Version: Version,
		Service: ServiceConfig{
			BaseURL:          "http://127.0.0.1:8787",
			TimeoutSec:       30,
			SubmitRatePerSec: 1,
			SubmitBurst:      2,
		},
		Checkpoint: CheckpointConfig{
			Backend:  "sqlite",
			Path:     filepath.Join(dataDir, "checkpoints.db"),
			TTLHours: 72,
		},
		Signing: SigningConfig{
			StrokeColor:            "#1A1A2E",
			StrokeWidth:            2.5,
			PadWidth:               400,
			PadHeight:              160,
			ActiveSectionThreshold: 100,
			ScrollOffset:           20,
			AutoDate:               true,
			DateFormat:             "January 2, 2006",
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "text",
			Output:   "stderr",
			FilePath: filepath.Join(PlatformLogDir(), "leasesign.log"),
		},
		GUI: GUIConfig{
			Width:  960,
			Height: 760,
		},
		DevServer: DevServerConfig{
			Addr: "127.0.0.1:8787",
		},
	}
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(PlatformConfigDir(), "config.toml")
}

// Load reads configuration from path. A missing file yields the defaults.
// The format follows the extension; unknown extensions are auto-detected.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	if path == "" {
		if path = FindConfigFile(); path == "" {
			path = ConfigPath()
		}
	}
	cfg, err := loadConfigFromFile(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// Parse decodes TOML text over the defaults.
func Parse(data string) (*Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.Decode(data, cfg); err != nil {
		return nil, fmt.Errorf("decode TOML: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the directories the configured files live in.
func (c *Config) EnsureDirectories() error {
	c.mu.RLock()
	var dirs []string
	switch c.Checkpoint.Backend {
	case "sqlite":
		dirs = append(dirs, filepath.Dir(c.Checkpoint.Path))
	case "file":
		dirs = append(dirs, c.Checkpoint.Path)
	}
	if c.Logging.Output == "file" || c.Logging.Output == "both" {
		dirs = append(dirs, filepath.Dir(c.Logging.FilePath))
	}
	c.mu.RUnlock()

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DataDir returns the base leasesign data directory, honoring
// LEASESIGN_DATA_DIR.
func DataDir() string {
	if envDir := os.Getenv("LEASESIGN_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// ApplyEnvOverrides applies LEASESIGN_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("LEASESIGN_BASE_URL"); v != "" {
		c.Service.BaseURL = v
	}
	// Credentials from env
	if v := os.Getenv("LEASESIGN_BEARER_TOKEN"); v != "" {
		c.Service.BearerToken = v
	}

	if v := os.Getenv("LEASESIGN_CHECKPOINT_BACKEND"); v != "" {
		c.Checkpoint.Backend = v
	}
	if v := os.Getenv("LEASESIGN_CHECKPOINT_PATH"); v != "" {
		c.Checkpoint.Path = v
	}
	if v := os.Getenv("LEASESIGN_REDIS_ADDR"); v != "" {
		c.Checkpoint.RedisAddr = v
	}
	if v := os.Getenv("LEASESIGN_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Checkpoint.RedisDB = n
		}
	}

	if v := os.Getenv("LEASESIGN_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("LEASESIGN_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return &Config{
		Version:    c.Version,
		Service:    c.Service,
		Checkpoint: c.Checkpoint,
		Signing:    c.Signing,
		Logging:    c.Logging,
		GUI:        c.GUI,
		DevServer:  c.DevServer,
	}
}
