package sampler

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/harun/templog/pkg/session"
	"github.com/spf13/afero"
)

// Source kinds accepted by NewSource
const (
	SourceThermal = "thermal"
	SourceFile    = "file"
	SourceStatic  = "static"
)

// DefaultThermalPath is the first thermal zone exposed by Linux sysfs
const DefaultThermalPath = "/sys/class/thermal/thermal_zone0/temp"

// Source supplies temperature readings in degrees Celsius
type Source interface {
	Name() string
	Read(ctx context.Context) (float64, error)
}

// NewSource builds the source named by kind. path is ignored by the
// static source; value is only used by it.
func NewSource(kind string, fs afero.Fs, path string, value float64) (Source, error) {
	switch kind {
	case SourceThermal, "":
		if path == "" {
			path = DefaultThermalPath
		}
		return &ThermalSource{fs: fs, path: path}, nil
	case SourceFile:
		if path == "" {
			return nil, fmt.Errorf("file source requires a path")
		}
		return &FileSource{fs: fs, path: path}, nil
	case SourceStatic:
		return StaticSource(value), nil
	default:
		return nil, fmt.Errorf("unknown sample source: %s", kind)
	}
}

// ThermalSource reads a sysfs thermal zone, which reports millidegrees
type ThermalSource struct {
	fs   afero.Fs
	path string
}

func (s *ThermalSource) Name() string { return SourceThermal }

func (s *ThermalSource) Read(ctx context.Context) (float64, error) {
	raw, err := readValue(ctx, s.fs, s.path)
	if err != nil {
		return 0, err
	}
	milli, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse thermal reading %q: %w", raw, err)
	}
	return float64(milli) / 1000, nil
}

// FileSource reads a file holding a single reading in degrees
type FileSource struct {
	fs   afero.Fs
	path string
}

func (s *FileSource) Name() string { return SourceFile }

func (s *FileSource) Read(ctx context.Context) (float64, error) {
	raw, err := readValue(ctx, s.fs, s.path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse reading %q: %w", raw, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid reading %q", raw)
	}
	return v, nil
}

// StaticSource always returns the same reading
type StaticSource float64

func (s StaticSource) Name() string { return SourceStatic }

func (s StaticSource) Read(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return float64(s), nil
}

// ToSample rounds a reading to the nearest degree and clamps it to the
// storable range 0..MaxSample.
func ToSample(celsius float64) uint8 {
	v := math.Round(celsius)
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= float64(session.MaxSample):
		return session.MaxSample
	default:
		return uint8(v)
	}
}

func readValue(ctx context.Context, fs afero.Fs, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return strings.TrimSpace(string(data)), nil
}
