package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strconv"
	"time"
)

// Config represents the main templog configuration
type Config struct {
	// Session log storage
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Temperature sampling
	Sampler SamplerConfig `json:"sampler" mapstructure:"sampler"`

	// Wall clock synchronization
	Clock ClockConfig `json:"clock" mapstructure:"clock"`

	// HTTP server
	HTTP HTTPConfig `json:"http" mapstructure:"http"`

	// Archive of compacted sessions
	Archive ArchiveConfig `json:"archive" mapstructure:"archive"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// StorageConfig holds session log settings
type StorageConfig struct {
	DataDir         string `json:"data_dir" mapstructure:"data_dir"`
	File            string `json:"file" mapstructure:"file"`
	CompactSchedule string `json:"compact_schedule" mapstructure:"compact_schedule"` // cron expression, empty to disable
}

// SamplerConfig holds sample source settings
type SamplerConfig struct {
	Source      string  `json:"source" mapstructure:"source"` // thermal, file, static
	Path        string  `json:"path" mapstructure:"path"`
	Interval    string  `json:"interval" mapstructure:"interval"` // Go duration
	Schedule    string  `json:"schedule" mapstructure:"schedule"` // cron expression, overrides interval
	StaticValue float64 `json:"static_value" mapstructure:"static_value"`
}

// ClockConfig holds clock synchronization settings
type ClockConfig struct {
	SyncTimeout  string `json:"sync_timeout" mapstructure:"sync_timeout"`     // Go duration, "0s" waits forever
	MinValidTime string `json:"min_valid_time" mapstructure:"min_valid_time"` // RFC3339
}

// HTTPConfig holds HTTP server settings
type HTTPConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	Host      string `json:"host" mapstructure:"host"`
	Port      int    `json:"port" mapstructure:"port"`
	AuthToken string `json:"auth_token" mapstructure:"auth_token"`
	RateLimit int    `json:"rate_limit" mapstructure:"rate_limit"` // requests per minute per host
}

// ArchiveConfig holds archive settings
type ArchiveConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	AuditFile string `json:"audit_file" mapstructure:"audit_file"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			DataDir: "",
			File:    "sess",
		},
		Sampler: SamplerConfig{
			Source:   "thermal",
			Interval: "10s",
		},
		Clock: ClockConfig{
			SyncTimeout:  "10s",
			MinValidTime: "2020-01-01T00:00:00Z",
		},
		HTTP: HTTPConfig{
			Enabled:   true,
			Host:      "0.0.0.0",
			Port:      8080,
			RateLimit: 60,
		},
		Archive: ArchiveConfig{
			Enabled: false,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   10,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	return errors.Join(NewValidator().ValidateConfig(c)...)
}

// SessionLogPath returns the location of the session log file
func (c *Config) SessionLogPath() string {
	return filepath.Join(c.Storage.DataDir, c.Storage.File)
}

// PIDPath returns the location of the daemon PID file
func (c *Config) PIDPath() string {
	return filepath.Join(c.Storage.DataDir, "templog.pid")
}

// SampleInterval returns the parsed sampling interval
func (c *Config) SampleInterval() time.Duration {
	d, _ := time.ParseDuration(c.Sampler.Interval)
	return d
}

// SyncTimeout returns the parsed clock sync timeout
func (c *Config) SyncTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Clock.SyncTimeout)
	return d
}

// MinValidTime returns the earliest wall time treated as synchronized
func (c *Config) MinValidTime() time.Time {
	t, err := time.Parse(time.RFC3339, c.Clock.MinValidTime)
	if err != nil {
		return time.Date(2020, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	return t
}

// HTTPAddr returns the host:port the HTTP server binds to
func (c *Config) HTTPAddr() string {
	return net.JoinHostPort(c.HTTP.Host, strconv.Itoa(c.HTTP.Port))
}

// Redact returns a copy of the config safe to print
func (c *Config) Redact() *Config {
	out := *c
	if out.HTTP.AuthToken != "" {
		out.HTTP.AuthToken = "[REDACTED]"
	}
	return &out
}

func durationField(name, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", name, value, err)
	}
	if d < 0 {
		return fmt.Errorf("%s: must not be negative", name)
	}
	return nil
}
