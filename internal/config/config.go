package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"toolshed/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`

	// Shared per-member budget on mutating requests; enforced only when a
	// shared limiter backend (redis) is wired.
	UserWriteLimit     int `yaml:"user_write_limit"`
	UserWriteWindowSec int `yaml:"user_write_window_sec"`
}

type BookingConfig struct {
	MaxAdvanceDays        int `yaml:"max_advance_days"`
	SlotHours             int `yaml:"slot_hours"`
	SearchStepHours       int `yaml:"search_step_hours"`
	CalendarCacheTTLSec   int `yaml:"calendar_cache_ttl_sec"`
	ReconcileIntervalSec  int `yaml:"reconcile_interval_sec"`
	ReconcileMaxRetries   int `yaml:"reconcile_max_retries"`
	ReconcileInitialDelay int `yaml:"reconcile_initial_delay_sec"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

// Load reads the YAML config, expanding ${VAR} references from the
// environment. A .env file is merged in first when present.
func Load(configPath string) (*Config, error) {
	// .env is optional; ignore a missing file
	if err := godotenv.Load(".env"); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expanded := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expanded, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.API.Enabled && c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api auth is enabled but no api keys are configured")
	}
	if c.Booking.SlotHours < 0 || c.Booking.SearchStepHours < 0 {
		return errors.New("booking slot and search step must not be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "toolshed"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = float64(models.RateLimitRequests) / float64(models.RateLimitWindow)
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 5
	}
	if c.API.RateLimit.UserWriteLimit == 0 {
		c.API.RateLimit.UserWriteLimit = 30
	}
	if c.API.RateLimit.UserWriteWindowSec == 0 {
		c.API.RateLimit.UserWriteWindowSec = 60
	}

	if c.Booking.MaxAdvanceDays == 0 {
		c.Booking.MaxAdvanceDays = models.DefaultMaxAdvanceDays
	}
	if c.Booking.SlotHours == 0 {
		c.Booking.SlotHours = int(models.DefaultSlotDuration / time.Hour)
	}
	if c.Booking.SearchStepHours == 0 {
		c.Booking.SearchStepHours = int(models.DefaultSearchStep / time.Hour)
	}
	if c.Booking.CalendarCacheTTLSec == 0 {
		c.Booking.CalendarCacheTTLSec = models.DefaultCalendarCacheTTL
	}
	if c.Booking.ReconcileIntervalSec == 0 {
		c.Booking.ReconcileIntervalSec = 2
	}

	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}

// SlotDuration returns the configured calendar slot size.
func (c *BookingConfig) SlotDuration() time.Duration {
	return time.Duration(c.SlotHours) * time.Hour
}

// CalendarCacheTTL returns the configured calendar cache TTL.
func (c *BookingConfig) CalendarCacheTTL() time.Duration {
	return time.Duration(c.CalendarCacheTTLSec) * time.Second
}

// UserWriteWindow returns the window for the shared per-member write limit.
func (c *APIRateLimitConfig) UserWriteWindow() time.Duration {
	return time.Duration(c.UserWriteWindowSec) * time.Second
}
