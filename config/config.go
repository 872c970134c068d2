// Package config loads leave engine settings from a .env file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverFile     = "file"
)

type Config struct {
	Database  DatabaseConfig
	Scheduler SchedulerConfig
	App       AppConfig
}

type DatabaseConfig struct {
	Driver string // sqlite, postgres or file
	Path   string // sqlite database or JSON file
	URL    string // postgres DSN
}

type SchedulerConfig struct {
	RecalcInterval time.Duration
	Debounce       time.Duration
}

type AppConfig struct {
	Timezone string
	LogLevel string
}

// Load reads the settings with Read and validates them.
func Load(files ...string) (*Config, error) {
	cfg, err := Read(files...)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Read reads .env files if present, then the environment. Missing files are
// not an error. The result is not validated, so callers can apply overrides
// first.
func Read(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Driver: strings.ToLower(getEnv("LEAVE_DB_DRIVER", DriverSQLite)),
			Path:   getEnv("LEAVE_DB_PATH", "leave.db"),
			URL:    getEnv("DATABASE_URL", ""),
		},
		App: AppConfig{
			Timezone: getEnv("LEAVE_TIMEZONE", "Local"),
			LogLevel: getEnv("LOG_LEVEL", "info"),
		},
	}

	var err error
	if cfg.Scheduler.RecalcInterval, err = getEnvDuration("LEAVE_RECALC_INTERVAL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.Scheduler.Debounce, err = getEnvDuration("LEAVE_DEBOUNCE", 5*time.Second); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that have no usable default.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverFile:
		if c.Database.Path == "" {
			return fmt.Errorf("LEAVE_DB_PATH is required for driver %q", c.Database.Driver)
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unknown LEAVE_DB_DRIVER %q", c.Database.Driver)
	}
	if c.Scheduler.RecalcInterval <= 0 {
		return fmt.Errorf("LEAVE_RECALC_INTERVAL must be positive")
	}
	if c.Scheduler.Debounce < 0 {
		return fmt.Errorf("LEAVE_DEBOUNCE must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.App.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.App.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid LEAVE_TIMEZONE %q: %w", c.App.Timezone, err)
	}
	return loc, nil
}

// NewLogger builds the JSON slog logger for the configured level.
func (c *Config) NewLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: ParseLevel(c.App.LogLevel)}))
}

// ParseLevel maps a LOG_LEVEL value to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
