package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete application configuration.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	GC       GCConfig       `mapstructure:"gc"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// DatabaseConfig holds the SQLite store configuration.
type DatabaseConfig struct {
	Path        string `mapstructure:"path"`
	Memory      bool   `mapstructure:"memory"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// GCConfig holds the incremental garbage collector's budget and targets.
type GCConfig struct {
	IntervalSeconds int   `mapstructure:"interval_seconds"`
	MinBlocks       int   `mapstructure:"min_blocks"`
	MaxDurationMS   int   `mapstructure:"max_duration_ms"`
	MaxCount        int64 `mapstructure:"max_count"`
	MaxSizeBytes    int64 `mapstructure:"max_size_bytes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // console, json
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// DefaultConfig returns configuration with the store's verified default
// values.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".blockvault")

	return &Config{
		Database: DatabaseConfig{
			Path:        filepath.Join(configDir, "blocks.db"),
			Memory:      false,
			AutoMigrate: true,
		},
		GC: GCConfig{
			IntervalSeconds: 300,
			MinBlocks:       100,
			MaxDurationMS:   500,
			MaxCount:        1_000_000,
			MaxSizeBytes:    1 << 30,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			File:       "",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

// Load loads configuration from a YAML file with fallback to defaults.
// Searches in multiple locations:
//  1. ./config.yaml (current directory)
//  2. ~/.blockvault/config.yaml (user home)
//  3. /etc/blockvault/config.yaml (system-wide)
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath(".")
	homeDir, _ := os.UserHomeDir()
	v.AddConfigPath(filepath.Join(homeDir, ".blockvault"))
	v.AddConfigPath("/etc/blockvault")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()
	configDir := filepath.Join(homeDir, ".blockvault")

	v.SetDefault("database.path", filepath.Join(configDir, "blocks.db"))
	v.SetDefault("database.memory", false)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("gc.interval_seconds", 300)
	v.SetDefault("gc.min_blocks", 100)
	v.SetDefault("gc.max_duration_ms", 500)
	v.SetDefault("gc.max_count", 1_000_000)
	v.SetDefault("gc.max_size_bytes", 1<<30)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 10)
	v.SetDefault("logging.max_backups", 5)
	v.SetDefault("logging.max_age_days", 28)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Database.Memory && c.Database.Path == "" {
		return fmt.Errorf("database.path is required unless database.memory is set")
	}

	if c.GC.MinBlocks < 0 {
		return fmt.Errorf("gc.min_blocks must be >= 0")
	}
	if c.GC.MaxDurationMS < 0 {
		return fmt.Errorf("gc.max_duration_ms must be >= 0")
	}
	if c.GC.MaxCount < 0 {
		return fmt.Errorf("gc.max_count must be >= 0")
	}
	if c.GC.MaxSizeBytes < 0 {
		return fmt.Errorf("gc.max_size_bytes must be >= 0")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	validFormats := map[string]bool{"console": true, "json": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: console, json")
	}

	return nil
}

// EnsureConfigDir creates the store's containing directory if it doesn't
// exist. A no-op for in-memory databases.
func (c *Config) EnsureConfigDir() error {
	if c.Database.Memory {
		return nil
	}
	configDir := filepath.Dir(c.Database.Path)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return nil
}

// ConfigPath returns the path to the configuration directory.
func ConfigPath() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".blockvault")
}

// DatabasePath returns the default database path.
func DatabasePath() string {
	return filepath.Join(ConfigPath(), "blocks.db")
}
