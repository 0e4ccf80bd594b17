package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Address         string `yaml:"address"`
		ReadTimeoutSec  int    `yaml:"read_timeout_seconds"`
		WriteTimeoutSec int    `yaml:"write_timeout_seconds"`
	} `yaml:"server"`

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
		Address         string `yaml:"address"`
		Password        string `yaml:"password"`
		DB              int    `yaml:"db"`
		CacheTTLSeconds int    `yaml:"cache_ttl_seconds"`
	} `yaml:"redis"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
		GRPCHealthPort    int  `yaml:"grpc_health_port"`
	} `yaml:"monitoring"`

	RateLimit struct {
		BookingsPerSecond float64 `yaml:"bookings_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"rate_limit"`

	Doctors struct {
		SeedPath              string `yaml:"seed_path"`
		ReloadIntervalSeconds int    `yaml:"reload_interval_seconds"`
	} `yaml:"doctors"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Load reads .env (if present) and the YAML config at path.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

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

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/scheduler.db"
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Doctors.SeedPath == "" {
		c.Doctors.SeedPath = "configs/doctors.yaml"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c *Config) ReadTimeout() time.Duration {
	if c.Server.ReadTimeoutSec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Server.ReadTimeoutSec) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	if c.Server.WriteTimeoutSec <= 0 {
		return 15 * time.Second
	}
	return time.Duration(c.Server.WriteTimeoutSec) * time.Second
}

func (c *Config) CacheTTL() time.Duration {
	if c.Redis.CacheTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Redis.CacheTTLSeconds) * time.Second
}

func (c *Config) BackupInterval() time.Duration {
	if c.Backup.IntervalHours <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Backup.IntervalHours) * time.Hour
}

func (c *Config) DoctorsReloadInterval() time.Duration {
	if c.Doctors.ReloadIntervalSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Doctors.ReloadIntervalSeconds) * time.Second
}

// BookingRate returns the token-bucket parameters for POST /bookings.
// A non-positive rate disables limiting.
func (c *Config) BookingRate() (perSecond float64, burst int) {
	perSecond = c.RateLimit.BookingsPerSecond
	burst = c.RateLimit.Burst
	if burst <= 0 {
		burst = 10
	}
	return perSecond, burst
}
