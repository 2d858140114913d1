package logger

import (
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestWriter(t *testing.T, maxSize int64, maxAge int, compress bool) (*RotatingWriter, afero.Fs, *clock.Mock) {
	t.Helper()

	fs := afero.NewMemMapFs()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	rw, err := newRotatingWriter(fs, clk, "/var/log/templog/templog.log", maxSize, maxAge, compress)
	require.NoError(t, err)
	t.Cleanup(func() { rw.Close() })

	return rw, fs, clk
}

func TestNewRotatingWriter(t *testing.T) {
	t.Run("create file and directory", func(t *testing.T) {
		_, fs, _ := setupTestWriter(t, 1024, 7, false)

		exists, err := afero.Exists(fs, "/var/log/templog/templog.log")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("os filesystem", func(t *testing.T) {
		rw, err := NewRotatingWriter(afero.NewOsFs(), t.TempDir()+"/sub/test.log", 10, 7, false)
		require.NoError(t, err)
		assert.NoError(t, rw.Close())
	})
}

func TestRotatingWriterWrite(t *testing.T) {
	rw, fs, _ := setupTestWriter(t, 1024, 7, false)

	data := []byte("test log message\n")
	n, err := rw.Write(data)
	require.NoError(t, err)
	assert.Equal(t, len(data), n)

	content, err := afero.ReadFile(fs, "/var/log/templog/templog.log")
	require.NoError(t, err)
	assert.Equal(t, "test log message\n", string(content))
}

func TestRotatingWriterRotation(t *testing.T) {
	rw, fs, clk := setupTestWriter(t, 100, 7, false)

	_, err := rw.Write(make([]byte, 80))
	require.NoError(t, err)

	clk.Add(time.Second)
	_, err = rw.Write(make([]byte, 40))
	require.NoError(t, err)

	rotated, err := afero.Glob(fs, "/var/log/templog/templog.log.*")
	require.NoError(t, err)
	require.Len(t, rotated, 1)
	assert.Equal(t, "/var/log/templog/templog.log.20240301-120001.000", rotated[0])

	info, err := fs.Stat(rotated[0])
	require.NoError(t, err)
	assert.Equal(t, int64(80), info.Size())

	info, err = fs.Stat("/var/log/templog/templog.log")
	require.NoError(t, err)
	assert.Equal(t, int64(40), info.Size())
}

func TestRotatingWriterOversizedFirstWrite(t *testing.T) {
	rw, fs, _ := setupTestWriter(t, 10, 7, false)

	_, err := rw.Write(make([]byte, 50))
	require.NoError(t, err)

	rotated, err := afero.Glob(fs, "/var/log/templog/templog.log.*")
	require.NoError(t, err)
	assert.Empty(t, rotated)
}

func TestRotatingWriterCompression(t *testing.T) {
	rw, fs, _ := setupTestWriter(t, 10, 7, true)

	_, err := rw.Write(make([]byte, 8))
	require.NoError(t, err)
	_, err = rw.Write(make([]byte, 8))
	require.NoError(t, err)

	// Close waits for compression
	require.NoError(t, rw.Close())

	gz, err := afero.Glob(fs, "/var/log/templog/templog.log.*.gz")
	require.NoError(t, err)
	assert.Len(t, gz, 1)

	all, err := afero.Glob(fs, "/var/log/templog/templog.log.*")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestRotatingWriterClose(t *testing.T) {
	rw, _, _ := setupTestWriter(t, 1024, 7, false)

	assert.NoError(t, rw.Close())
	assert.NoError(t, rw.Close())
}

func TestCleanup(t *testing.T) {
	fs := afero.NewMemMapFs()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))

	oldFile := "/logs/test.log.20200101-120000.000"
	freshFile := "/logs/test.log.20240229-120000.000"
	require.NoError(t, afero.WriteFile(fs, oldFile, []byte("old log"), 0644))
	require.NoError(t, afero.WriteFile(fs, freshFile, []byte("fresh log"), 0644))

	oldTime := clk.Now().AddDate(0, 0, -10)
	require.NoError(t, fs.Chtimes(oldFile, oldTime, oldTime))
	freshTime := clk.Now().AddDate(0, 0, -1)
	require.NoError(t, fs.Chtimes(freshFile, freshTime, freshTime))

	rw, err := newRotatingWriter(fs, clk, "/logs/test.log", 1024, 7, false)
	require.NoError(t, err)
	defer rw.Close()

	exists, _ := afero.Exists(fs, oldFile)
	assert.False(t, exists)
	exists, _ = afero.Exists(fs, freshFile)
	assert.True(t, exists)
}
