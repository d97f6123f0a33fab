package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverRedis    = "redis"
	DriverFailover = "failover"
)

type Config struct {
	Server struct {
		Address               string  `yaml:"address"`
		RateLimitRPS          float64 `yaml:"rate_limit_rps"`
		RateLimitBurst        int     `yaml:"rate_limit_burst"`
		SessionTimeoutMinutes int     `yaml:"session_timeout_minutes"`
	} `yaml:"server"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`

	Storage struct {
		Driver    string `yaml:"driver"`
		TimeoutMS int    `yaml:"timeout_ms"`
		KeyPrefix string `yaml:"key_prefix"`
	} `yaml:"storage"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		IntervalHours int    `yaml:"interval_hours"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Booking struct {
		VenuesConfigPath    string   `yaml:"venues_config"`
		ReloadSeconds       int      `yaml:"reload_seconds"`
		PhonePattern        string   `yaml:"phone_pattern"`
		BlockedDates        []string `yaml:"blocked_dates"`
		ClosedDays          string   `yaml:"closed_days"` // "hours" or "weekends"
		ReferenceAttempts   int      `yaml:"reference_attempts"`
		CleanupIntervalSecs int      `yaml:"cleanup_interval_seconds"`
	} `yaml:"booking"`
}

// LoadDotEnv loads .env files into the process environment. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.usesSQLite() {
		if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverSQLite
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/kinderbook.db"
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "backups"
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Booking.VenuesConfigPath == "" {
		c.Booking.VenuesConfigPath = "configs/venues.yaml"
	}
	if c.Booking.ClosedDays == "" {
		c.Booking.ClosedDays = "hours"
	}
}

// Validate checks values that have no sensible default.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverMemory, DriverSQLite:
	case DriverRedis, DriverFailover:
		if c.Redis.Address == "" {
			return fmt.Errorf("storage.driver %q requires redis.address", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}

	switch c.Booking.ClosedDays {
	case "hours", "weekends":
	default:
		return fmt.Errorf("booking.closed_days must be \"hours\" or \"weekends\", got %q", c.Booking.ClosedDays)
	}

	if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

func (c *Config) usesSQLite() bool {
	return c.Storage.Driver == DriverSQLite || c.Storage.Driver == DriverFailover
}

// LogLevel returns the configured zerolog level.
func (c *Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Logging.Level)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}

func (c *Config) StorageTimeout() time.Duration {
	if c.Storage.TimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Storage.TimeoutMS) * time.Millisecond
}

func (c *Config) SessionTimeout() time.Duration {
	if c.Server.SessionTimeoutMinutes <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.Server.SessionTimeoutMinutes) * time.Minute
}

func (c *Config) SessionCleanupInterval() time.Duration {
	if c.Booking.CleanupIntervalSecs <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Booking.CleanupIntervalSecs) * time.Second
}

func (c *Config) CatalogReloadInterval() time.Duration {
	if c.Booking.ReloadSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Booking.ReloadSeconds) * time.Second
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) BackupRetentionDays() int {
	if c.Backup.RetentionDays <= 0 {
		return 14
	}
	return c.Backup.RetentionDays
}

// RateLimit returns requests per second and burst for the API limiter.
// A zero rate disables limiting.
func (c *Config) RateLimit() (float64, int) {
	burst := c.Server.RateLimitBurst
	if burst <= 0 {
		burst = 20
	}
	return c.Server.RateLimitRPS, burst
}
