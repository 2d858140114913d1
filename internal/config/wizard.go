package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

// NewWizard creates a new configuration wizard
func NewWizard(in io.Reader, out io.Writer) *Wizard {
	return &Wizard{
		reader: bufio.NewReader(in),
		out:    out,
	}
}

// Run runs the interactive configuration wizard starting from base
func (w *Wizard) Run(base *Config) (*Config, error) {
	fmt.Fprintln(w.out, "=== templog Configuration Wizard ===")
	fmt.Fprintln(w.out)

	cfg := *base
	validator := NewValidator()

	// Sampler
	fmt.Fprintln(w.out, "Sampling:")
	for {
		source, err := w.prompt("Sample source (thermal/file/static)", cfg.Sampler.Source)
		if err != nil {
			return nil, err
		}
		path := cfg.Sampler.Path
		if source == "file" || source == "thermal" {
			if path, err = w.prompt("Sensor path", path); err != nil {
				return nil, err
			}
		}
		if err := validator.ValidateSource(source, path); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Sampler.Source = source
		cfg.Sampler.Path = path
		break
	}

	for {
		interval, err := w.prompt("Sample interval", cfg.Sampler.Interval)
		if err != nil {
			return nil, err
		}
		if err := durationField("interval", interval); err != nil {
			fmt.Fprintf(w.out, "Error: %v\n", err)
			continue
		}
		cfg.Sampler.Interval = interval
		break
	}

	fmt.Fprintln(w.out)

	// HTTP
	fmt.Fprintln(w.out, "HTTP server:")
	enable, err := w.prompt("Enable HTTP server? (y/n)", yesNo(cfg.HTTP.Enabled))
	if err != nil {
		return nil, err
	}
	cfg.HTTP.Enabled = strings.ToLower(enable) == "y"

	if cfg.HTTP.Enabled {
		for {
			raw, err := w.prompt("Port", strconv.Itoa(cfg.HTTP.Port))
			if err != nil {
				return nil, err
			}
			port, err := strconv.Atoi(raw)
			if err == nil {
				err = validator.ValidatePort(port)
			}
			if err != nil {
				fmt.Fprintf(w.out, "Error: %v\n", err)
				continue
			}
			cfg.HTTP.Port = port
			break
		}

		token, err := w.prompt("Auth token for deleting sessions (empty for none)", cfg.HTTP.AuthToken)
		if err != nil {
			return nil, err
		}
		cfg.HTTP.AuthToken = token
	}

	fmt.Fprintln(w.out)

	// Log Level
	fmt.Fprintln(w.out, "Logging:")
	level, err := w.prompt("Log level (debug/info/warn/error)", cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateLogLevel(level); err != nil {
		fmt.Fprintf(w.out, "Warning: %v, using default (info)\n", err)
		level = "info"
	}
	cfg.Logging.Level = level

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "Configuration complete!")

	return &cfg, nil
}

func (w *Wizard) prompt(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(w.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(w.out, "%s: ", label)
	}

	line, err := w.reader.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	return line, nil
}

func yesNo(b bool) string {
	if b {
		return "y"
	}
	return "n"
}
