package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "sess", cfg.Storage.File)
	assert.Equal(t, "thermal", cfg.Sampler.Source)
	assert.Equal(t, 10*time.Second, cfg.SampleInterval())
	assert.Equal(t, 10*time.Second, cfg.SyncTimeout())
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), cfg.MinValidTime())
	assert.True(t, cfg.HTTP.Enabled)
	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing file name",
			mutate:  func(c *Config) { c.Storage.File = "" },
			wantErr: "storage.file is required",
		},
		{
			name:    "bad compaction schedule",
			mutate:  func(c *Config) { c.Storage.CompactSchedule = "every tuesday" },
			wantErr: "invalid compaction schedule",
		},
		{
			name:    "unknown source",
			mutate:  func(c *Config) { c.Sampler.Source = "i2c" },
			wantErr: "invalid sample source",
		},
		{
			name:    "file source without path",
			mutate:  func(c *Config) { c.Sampler.Source = "file" },
			wantErr: "sampler.path is required",
		},
		{
			name:    "bad interval",
			mutate:  func(c *Config) { c.Sampler.Interval = "ten seconds" },
			wantErr: "sampler.interval",
		},
		{
			name:    "interval too short",
			mutate:  func(c *Config) { c.Sampler.Interval = "100ms" },
			wantErr: "at least 1s",
		},
		{
			name:    "bad sync timeout",
			mutate:  func(c *Config) { c.Clock.SyncTimeout = "-1s" },
			wantErr: "must not be negative",
		},
		{
			name:    "bad min valid time",
			mutate:  func(c *Config) { c.Clock.MinValidTime = "yesterday" },
			wantErr: "clock.min_valid_time",
		},
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.HTTP.Port = 99999 },
			wantErr: "invalid port",
		},
		{
			name: "archive without path",
			mutate: func(c *Config) {
				c.Archive.Enabled = true
				c.Archive.Path = ""
			},
			wantErr: "archive.path is required",
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Logging.Level = "verbose" },
			wantErr: "invalid log level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfigValidateSubSecondIntervalWithSchedule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Sampler.Interval = "0s"
	cfg.Sampler.Schedule = "*/5 * * * * *"

	assert.NoError(t, cfg.Validate())
}

func TestConfigPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.DataDir = "/var/lib/templog"
	cfg.HTTP.Host = "127.0.0.1"

	assert.Equal(t, "/var/lib/templog/sess", cfg.SessionLogPath())
	assert.Equal(t, "/var/lib/templog/templog.pid", cfg.PIDPath())
	assert.Equal(t, "127.0.0.1:8080", cfg.HTTPAddr())
}

func TestConfigRedact(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTP.AuthToken = "s3cret"

	redacted := cfg.Redact()

	assert.Equal(t, "[REDACTED]", redacted.HTTP.AuthToken)
	assert.Equal(t, "s3cret", cfg.HTTP.AuthToken)
	assert.NotContains(t, redacted.String(), "s3cret")
}

func TestConfigString(t *testing.T) {
	cfg := DefaultConfig()

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(cfg.String()), &decoded))
	assert.Contains(t, decoded, "storage")
	assert.Contains(t, decoded, "sampler")
	assert.Contains(t, decoded, "http")
}
