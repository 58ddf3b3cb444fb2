// Package config provides configuration file support for OmniSniff.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config represents the OmniSniff configuration file.
type Config struct {
	// Server configuration for the sniffing HTTP API
	Server ServerConfig `yaml:"server"`

	// Proxy configuration for the sniffing forward proxy
	Proxy ProxyConfig `yaml:"proxy"`

	// Store configuration for sniff results
	Store StoreConfig `yaml:"store"`

	// Metrics configuration
	Metrics MetricsConfig `yaml:"metrics"`

	// Log configuration
	Log LogConfig `yaml:"log"`
}

// ServerConfig holds HTTP API configuration.
type ServerConfig struct {
	// Host to bind to
	Host string `yaml:"host"`
	// Port to listen on
	Port int `yaml:"port"`
	// MaxBodySize is the largest upload accepted by /v1/sniff
	MaxBodySize int64 `yaml:"maxBodySize"`
}

// ProxyConfig holds forward proxy configuration.
type ProxyConfig struct {
	// Host to bind to
	Host string `yaml:"host"`
	// Port to listen on
	Port int `yaml:"port"`
	// Upstream is an optional upstream proxy URL
	Upstream string `yaml:"upstream,omitempty"`
	// Verbose enables goproxy request logging
	Verbose bool `yaml:"verbose"`
	// SetHeader adds the sniffed media types to proxied responses
	SetHeader bool `yaml:"setHeader"`
	// SkipHosts lists hosts whose responses are not sniffed (supports wildcards)
	SkipHosts []string `yaml:"skipHosts,omitempty"`
}

// StoreConfig holds sniff result storage configuration.
type StoreConfig struct {
	// Type is the store backend (none, memory, file, db)
	Type string `yaml:"type"`
	// Output is the file path for the file store (empty means stdout)
	Output string `yaml:"output,omitempty"`
	// Format is the file store format (ndjson, json)
	Format string `yaml:"format"`
	// DB is the database URL for the db store
	DB string `yaml:"db,omitempty"`
	// Async configures buffered writes
	Async AsyncConfig `yaml:"async"`
	// SampleRate is the fraction of results to store (0.0 to 1.0)
	SampleRate float64 `yaml:"sampleRate"`
}

// AsyncConfig holds async store wrapper configuration.
type AsyncConfig struct {
	QueueSize int `yaml:"queueSize"`
	BatchSize int `yaml:"batchSize"`
	Workers   int `yaml:"workers"`
}

// MetricsConfig holds metrics and health endpoint configuration.
type MetricsConfig struct {
	// Enabled turns on the Prometheus exporter
	Enabled bool `yaml:"enabled"`
	// Port for /metrics, /healthz and /readyz (0 = disabled)
	Port int `yaml:"port"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `yaml:"level"`
	// Format is text or json
	Format string `yaml:"format"`
}

// Store types.
const (
	StoreNone   = "none"
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreDB     = "db"
)

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8090,
			MaxBodySize: 32 * 1024 * 1024, // 32MB
		},
		Proxy: ProxyConfig{
			Host:      "127.0.0.1",
			Port:      8080,
			SetHeader: true,
		},
		Store: StoreConfig{
			Type:   StoreNone,
			Format: "ndjson",
			Async: AsyncConfig{
				QueueSize: 10000,
				BatchSize: 100,
				Workers:   2,
			},
			SampleRate: 1.0,
		},
		Metrics: MetricsConfig{
			Enabled: false,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate reports configuration values that cannot work.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case StoreNone, StoreMemory, StoreFile:
	case StoreDB:
		if c.Store.DB == "" {
			return fmt.Errorf("store type %q requires store.db", c.Store.Type)
		}
	default:
		return fmt.Errorf("unknown store type: %s", c.Store.Type)
	}
	switch c.Store.Format {
	case "ndjson", "json":
	default:
		return fmt.Errorf("unknown store format: %s", c.Store.Format)
	}
	if c.Store.SampleRate < 0 || c.Store.SampleRate > 1 {
		return fmt.Errorf("store.sampleRate must be between 0 and 1, got %v", c.Store.SampleRate)
	}
	if c.Server.MaxBodySize <= 0 {
		return fmt.Errorf("server.maxBodySize must be positive")
	}
	return nil
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads configuration from a file, or returns default if not found.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// DefaultConfigPath returns the default configuration file path.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "omnisniff.yaml"
	}
	return filepath.Join(home, ".omnisniff", "config.yaml")
}

// ExampleConfig returns an example configuration as YAML string.
func ExampleConfig() string {
	cfg := DefaultConfig()
	cfg.Store.Type = StoreDB
	cfg.Store.DB = "sqlite://omnisniff.db"
	cfg.Metrics.Enabled = true
	cfg.Metrics.Port = 9090

	data, _ := yaml.Marshal(cfg)
	return string(data)
}
