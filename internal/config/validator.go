package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/xeipuuv/gojsonschema"
)

// sampleScheduleParser matches the sampler's schedule syntax, which
// allows an optional seconds field
var sampleScheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Validator validates configuration values
type Validator struct {
	schemaLoader gojsonschema.JSONLoader
}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{
		schemaLoader: gojsonschema.NewStringLoader(Schema),
	}
}

// ValidateDocument validates a raw config file against the JSON schema
func (v *Validator) ValidateDocument(data []byte) error {
	result, err := gojsonschema.Validate(v.schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("schema validation errors: %s", strings.Join(msgs, "; "))
	}

	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSource validates the sample source kind
func (v *Validator) ValidateSource(source, path string) error {
	switch source {
	case "thermal", "static":
		return nil
	case "file":
		if path == "" {
			return fmt.Errorf("sampler.path is required for the file source")
		}
		return nil
	default:
		return fmt.Errorf("invalid sample source: %s (must be one of: thermal, file, static)", source)
	}
}

// ValidateCompactSchedule validates a standard 5-field cron expression
func (v *Validator) ValidateCompactSchedule(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := cron.ParseStandard(expr); err != nil {
		return fmt.Errorf("invalid compaction schedule %q: %w", expr, err)
	}
	return nil
}

// ValidateSampleSchedule validates a sampling cron expression
func (v *Validator) ValidateSampleSchedule(expr string) error {
	if expr == "" {
		return nil
	}
	if _, err := sampleScheduleParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid sample schedule %q: %w", expr, err)
	}
	return nil
}

// ValidatePort validates a TCP port
func (v *Validator) ValidatePort(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if cfg.Storage.File == "" {
		errors = append(errors, fmt.Errorf("storage.file is required"))
	}
	if err := v.ValidateCompactSchedule(cfg.Storage.CompactSchedule); err != nil {
		errors = append(errors, err)
	}

	if err := v.ValidateSource(cfg.Sampler.Source, cfg.Sampler.Path); err != nil {
		errors = append(errors, err)
	}
	if err := durationField("sampler.interval", cfg.Sampler.Interval); err != nil {
		errors = append(errors, err)
	} else if cfg.SampleInterval() < time.Second && cfg.Sampler.Schedule == "" {
		errors = append(errors, fmt.Errorf("sampler.interval must be at least 1s"))
	}
	if err := v.ValidateSampleSchedule(cfg.Sampler.Schedule); err != nil {
		errors = append(errors, err)
	}

	if err := durationField("clock.sync_timeout", cfg.Clock.SyncTimeout); err != nil {
		errors = append(errors, err)
	}
	if _, err := time.Parse(time.RFC3339, cfg.Clock.MinValidTime); err != nil {
		errors = append(errors, fmt.Errorf("clock.min_valid_time: %w", err))
	}

	if cfg.HTTP.Enabled {
		if err := v.ValidatePort(cfg.HTTP.Port); err != nil {
			errors = append(errors, err)
		}
	}
	if cfg.HTTP.RateLimit < 0 {
		errors = append(errors, fmt.Errorf("http.rate_limit must be >= 0"))
	}

	if cfg.Archive.Enabled && cfg.Archive.Path == "" {
		errors = append(errors, fmt.Errorf("archive.path is required when the archive is enabled"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}

	return errors
}
