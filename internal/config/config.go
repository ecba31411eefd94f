// Package config loads and validates the scanner configuration from a
// YAML file, layering file values over defaults. Credentials for
// authenticated scans are deliberately absent: they arrive per-request
// and are never written to configuration or disk.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/asplund/netasset/internal/enrich"
	"github.com/asplund/netasset/internal/logging"
	"github.com/asplund/netasset/internal/registry"
	"github.com/asplund/netasset/internal/scan"
)

// Config represents the complete scanner configuration.
type Config struct {
	// API server configuration
	API APIConfig `yaml:"api" json:"api"`

	// Database configuration
	Database registry.Config `yaml:"database" json:"database"`

	// Discovery and scan orchestration configuration
	Discovery scan.Config `yaml:"discovery" json:"discovery"`

	// Authenticated enrichment configuration
	Enrichment enrich.Config `yaml:"enrichment" json:"enrichment"`

	// Logging configuration
	Logging logging.Config `yaml:"logging" json:"logging"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics" json:"metrics"`

	// Recurring discovery schedules
	Schedules []ScheduleConfig `yaml:"schedules" json:"schedules"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	// Listen address
	ListenAddr string `yaml:"listen_addr" json:"listen_addr"`

	// Listen port
	Port int `yaml:"port" json:"port"`

	// Request timeout in seconds
	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" json:"request_timeout_seconds"`

	// CORS settings
	CORS CORSConfig `yaml:"cors" json:"cors"`
}

// CORSConfig holds CORS settings.
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled" json:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers" json:"allowed_headers"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// ScheduleConfig describes one recurring discovery scan.
type ScheduleConfig struct {
	// Name identifies the schedule in logs
	Name string `yaml:"name" json:"name"`

	// Cron is a standard five-field cron expression
	Cron string `yaml:"cron" json:"cron"`

	// NetworkRange is the CIDR to sweep on each run
	NetworkRange string `yaml:"network_range" json:"network_range"`

	// Enabled toggles the schedule without removing it
	Enabled bool `yaml:"enabled" json:"enabled"`
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		API: APIConfig{
			ListenAddr:            "0.0.0.0",
			Port:                  8000,
			RequestTimeoutSeconds: 30,
			CORS: CORSConfig{
				Enabled:        true,
				AllowedOrigins: []string{"*"},
				AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
				AllowedHeaders: []string{"Content-Type", "Authorization"},
			},
		},
		Database:   registry.DefaultConfig(),
		Discovery:  scan.DefaultConfig(),
		Enrichment: enrich.DefaultConfig(),
		Logging: logging.Config{
			Level:  logging.LevelInfo,
			Format: logging.FormatText,
			Output: "stdout",
		},
		Metrics:   MetricsConfig{Enabled: true},
		Schedules: nil,
	}
}

// Load loads configuration from a file, returning defaults when the
// file does not exist.
func Load(path string) (*Config, error) {
	config := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("API port must be between 1 and 65535")
	}
	if c.API.ListenAddr == "" {
		return fmt.Errorf("API listen address is required")
	}
	if c.API.RequestTimeoutSeconds <= 0 {
		return fmt.Errorf("API request timeout must be positive")
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}
	if c.Database.Username == "" {
		return fmt.Errorf("database username is required")
	}

	if c.Discovery.MaxHosts < 0 {
		return fmt.Errorf("discovery host cap cannot be negative")
	}

	if c.Enrichment.SSHTimeout <= 0 {
		return fmt.Errorf("SSH timeout must be positive")
	}
	if c.Enrichment.SNMPTimeout <= 0 {
		return fmt.Errorf("SNMP timeout must be positive")
	}

	validLogLevels := map[logging.LogLevel]bool{
		logging.LevelDebug: true,
		logging.LevelInfo:  true,
		logging.LevelWarn:  true,
		logging.LevelError: true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validLogFormats := map[logging.LogFormat]bool{
		logging.FormatText: true,
		logging.FormatJSON: true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	for i := range c.Schedules {
		s := &c.Schedules[i]
		if s.Name == "" {
			return fmt.Errorf("schedule %d: name is required", i)
		}
		if s.Cron == "" {
			return fmt.Errorf("schedule %q: cron expression is required", s.Name)
		}
		if s.NetworkRange == "" {
			return fmt.Errorf("schedule %q: network range is required", s.Name)
		}
	}

	return nil
}

// GetAPIAddress returns the full API listen address.
func (c *Config) GetAPIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.ListenAddr, c.API.Port)
}
