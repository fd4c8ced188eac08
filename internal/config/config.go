// Package config provides configuration management for emby-exporter.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the exporter.
type Config struct {
	// Upstream
	EmbyAddr         string        `yaml:"emby"`
	APIKey           string        `yaml:"auth"`
	UserID           string        `yaml:"userid"`
	Extended         bool          `yaml:"extended"`
	Timeout          time.Duration `yaml:"timeout"`
	PageSize         int           `yaml:"page_size"`
	FetchConcurrency int           `yaml:"fetch_concurrency"`

	// Polling
	Interval    time.Duration `yaml:"interval"`
	PollTimeout time.Duration `yaml:"poll_timeout"` // whole fetch; 0 means the interval

	// Metrics endpoint
	Interface string `yaml:"interface"`
	Port      int    `yaml:"port"`

	// Observability
	Verbose    bool   `yaml:"verbose"`
	LogFormat  string `yaml:"log_format"` // json, text
	LogLevel   string `yaml:"log_level"`  // debug, info, warn, error
	TUIEnabled bool   `yaml:"tui"`

	// Modes
	Once          bool `yaml:"once"`
	SkipPreflight bool `yaml:"skip_preflight"`

	// Command line only
	ConfigFile  string `yaml:"-"`
	ShowVersion bool   `yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		// Upstream
		EmbyAddr:         "localhost:8096",
		Timeout:          10 * time.Second,
		PageSize:         500,
		FetchConcurrency: 4,

		// Polling
		Interval: 15 * time.Second,

		// Metrics endpoint
		Interface: "0.0.0.0",
		Port:      9123,

		// Observability
		LogFormat: "json",
		LogLevel:  "info",
	}
}

// ListenAddr returns the host:port the metrics server binds.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Interface, strconv.Itoa(c.Port))
}

// LoadFile overlays the YAML file at path onto cfg.
// Keys absent from the file keep their current value.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse yaml %q: %w", path, err)
	}
	return nil
}
