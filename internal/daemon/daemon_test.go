package daemon

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/harun/templog/internal/config"
	"github.com/harun/templog/internal/logger"
	"github.com/harun/templog/pkg/sampler"
	"github.com/harun/templog/pkg/session"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestDaemon creates a daemon on an in-memory filesystem with a
// static sample source and the HTTP server on a random local port
func createTestDaemon(t *testing.T, mutate func(*config.Config)) (*Daemon, afero.Fs) {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = "/data"
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Archive.Path = filepath.Join(t.TempDir(), "archive.db")
	if mutate != nil {
		mutate(cfg)
	}

	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	t.Cleanup(func() { log.Close() })

	fs := afero.NewMemMapFs()
	d, err := New(cfg, log, WithFs(fs), WithSource(sampler.StaticSource(21.6)))
	require.NoError(t, err)

	return d, fs
}

func getSessions(t *testing.T, addr, query string) []session.Record {
	t.Helper()

	resp, err := http.Get("http://" + addr + "/sessions" + query)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var records []session.Record
	require.NoError(t, json.Unmarshal(body, &records))
	return records
}

func TestNew(t *testing.T) {
	d, _ := createTestDaemon(t, nil)

	assert.NotNil(t, d)
	assert.NotNil(t, d.lifecycle)
	assert.NotNil(t, d.source)
	assert.False(t, d.Status().Running)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	defer log.Close()

	cfg := config.DefaultConfig()
	cfg.Sampler.Source = "i2c"

	_, err = New(cfg, log)
	assert.Error(t, err)

	_, err = New(nil, log)
	assert.Error(t, err)
}

func TestDaemonStartStop(t *testing.T) {
	d, fs := createTestDaemon(t, nil)

	require.NoError(t, d.Start())

	status := d.Status()
	assert.True(t, status.Running)
	assert.NotZero(t, status.SessionStart)

	pid, err := ReadPID(fs, "/data/templog.pid")
	require.NoError(t, err)
	assert.Positive(t, pid)

	addr := d.GetServer().Addr()
	require.NotEmpty(t, addr)

	// the first sample is taken immediately
	require.Eventually(t, func() bool {
		records := getSessions(t, addr, "")
		return len(records) == 1 && len(records[0].Temperatures) == 1
	}, 2*time.Second, 20*time.Millisecond)

	records := getSessions(t, addr, "")
	assert.Equal(t, session.Samples{22}, records[0].Temperatures)
	assert.Equal(t, status.SessionStart, records[0].StartAt)

	require.NoError(t, d.Stop())
	assert.False(t, d.Status().Running)

	exists, err := afero.Exists(fs, "/data/templog.pid")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.Error(t, d.Stop())
}

func TestDaemonStartsNewSessionEachRun(t *testing.T) {
	fs := afero.NewMemMapFs()
	log, err := logger.New(logger.Config{Level: "error"})
	require.NoError(t, err)
	defer log.Close()

	cfg := config.DefaultConfig()
	cfg.Storage.DataDir = "/data"
	cfg.HTTP.Enabled = false

	// an earlier run left a closed and an open session behind
	prior := session.Encode([]session.Record{
		{StartAt: 100, Temperatures: session.Samples{20}},
		{StartAt: 200, Temperatures: session.Samples{21, 22}},
	})
	require.NoError(t, afero.WriteFile(fs, "/data/sess", prior, 0644))

	d, err := New(cfg, log, WithFs(fs), WithSource(sampler.StaticSource(30)))
	require.NoError(t, err)
	require.NoError(t, d.Start())

	require.Eventually(t, func() bool {
		records, err := d.GetStore().ReadSessions(context.Background(), false)
		return err == nil && len(records) == 3 && len(records[2].Temperatures) == 1
	}, 2*time.Second, 20*time.Millisecond)

	records, err := d.GetStore().ReadSessions(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, session.Samples{21, 22}, records[1].Temperatures)
	assert.Equal(t, session.Samples{30}, records[2].Temperatures)

	require.NoError(t, d.Stop())
}

func TestDaemonDeleteArchivesSessions(t *testing.T) {
	d, fs := createTestDaemon(t, func(cfg *config.Config) {
		cfg.Archive.Enabled = true
		cfg.HTTP.AuthToken = "s3cret"
	})

	prior := session.Encode([]session.Record{{StartAt: 100, Temperatures: session.Samples{20}}})
	require.NoError(t, afero.WriteFile(fs, "/data/sess", prior, 0644))

	require.NoError(t, d.Start())
	defer d.Stop()

	addr := d.GetServer().Addr()

	req, err := http.NewRequest(http.MethodGet, "http://"+addr+"/sessions?delete", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.Header.Set("Authorization", "Bearer s3cret")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	records := getSessions(t, addr, "")
	require.Len(t, records, 1)
	assert.NotEqual(t, uint64(100), records[0].StartAt)

	archived, err := d.archiver.List(context.Background())
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, uint64(100), archived[0].StartAt)
}

func TestDaemonStartFailsWithoutClockSync(t *testing.T) {
	d, fs := createTestDaemon(t, func(cfg *config.Config) {
		cfg.Clock.MinValidTime = "2999-01-01T00:00:00Z"
		cfg.Clock.SyncTimeout = "1s"
	})

	err := d.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to sync clock")
	assert.False(t, d.Status().Running)

	// nothing is written before the clock is trusted
	exists, _ := afero.Exists(fs, "/data/sess")
	assert.False(t, exists)
	exists, _ = afero.Exists(fs, "/data/templog.pid")
	assert.False(t, exists)
}

func TestDaemonRefusesSecondInstance(t *testing.T) {
	d, fs := createTestDaemon(t, nil)

	// PID 1 is always alive
	require.NoError(t, fs.MkdirAll("/data", 0755))
	require.NoError(t, afero.WriteFile(fs, "/data/templog.pid", []byte(strconv.Itoa(1)), 0644))

	err := d.Start()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	// the other daemon's PID file is left alone
	pid, err := ReadPID(fs, "/data/templog.pid")
	require.NoError(t, err)
	assert.Equal(t, 1, pid)
}

func TestDaemonStartTwice(t *testing.T) {
	d, _ := createTestDaemon(t, func(cfg *config.Config) { cfg.HTTP.Enabled = false })

	require.NoError(t, d.Start())
	defer d.Stop()

	assert.Error(t, d.Start())
}

func TestApplyConfigUpdatesLogLevel(t *testing.T) {
	d, _ := createTestDaemon(t, nil)

	t.Cleanup(func() { _ = logger.SetLevel("error") })

	cfg := config.DefaultConfig()
	cfg.Logging.Level = "debug"
	d.applyConfig(cfg)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())

	cfg.Logging.Level = "loud"
	d.applyConfig(cfg)
	assert.Equal(t, zerolog.DebugLevel, zerolog.GlobalLevel())
}
