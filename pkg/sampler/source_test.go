package sampler

import (
	"context"
	"math"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToSample(t *testing.T) {
	tests := []struct {
		name    string
		celsius float64
		want    uint8
	}{
		{"rounds down", 21.4, 21},
		{"rounds half away from zero", 21.5, 22},
		{"zero", 0, 0},
		{"negative clamps to zero", -12.7, 0},
		{"max sample", 254, 254},
		{"above max clamps", 254.6, 254},
		{"far above max", 1000, 254},
		{"nan", math.NaN(), 0},
		{"positive infinity", math.Inf(1), 254},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ToSample(tt.celsius))
		})
	}
}

func TestThermalSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, DefaultThermalPath, []byte("42312\n"), 0644))

	src, err := NewSource(SourceThermal, fs, "", 0)
	require.NoError(t, err)
	assert.Equal(t, SourceThermal, src.Name())

	v, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 42.312, v, 1e-9)
}

func TestThermalSourceErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	src, err := NewSource(SourceThermal, fs, "/sys/thermal", 0)
	require.NoError(t, err)

	_, err = src.Read(context.Background())
	assert.Error(t, err)

	require.NoError(t, afero.WriteFile(fs, "/sys/thermal", []byte("hot"), 0644))
	_, err = src.Read(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse thermal reading")
}

func TestFileSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/run/temp", []byte(" 19.75 "), 0644))

	src, err := NewSource(SourceFile, fs, "/run/temp", 0)
	require.NoError(t, err)

	v, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 19.75, v)

	require.NoError(t, afero.WriteFile(fs, "/run/temp", []byte("NaN"), 0644))
	_, err = src.Read(context.Background())
	assert.Error(t, err)
}

func TestFileSourceRequiresPath(t *testing.T) {
	_, err := NewSource(SourceFile, afero.NewMemMapFs(), "", 0)
	assert.Error(t, err)
}

func TestStaticSource(t *testing.T) {
	src, err := NewSource(SourceStatic, nil, "", 23.2)
	require.NoError(t, err)

	v, err := src.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 23.2, v)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = src.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUnknownSource(t *testing.T) {
	_, err := NewSource("i2c", afero.NewMemMapFs(), "", 0)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sample source")
}
