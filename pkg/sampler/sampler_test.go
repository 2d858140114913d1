package sampler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingAppender struct {
	mu      sync.Mutex
	samples []uint8
	err     error
}

func (a *recordingAppender) AddSample(ctx context.Context, value uint8) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.err != nil {
		return a.err
	}
	a.samples = append(a.samples, value)
	return nil
}

func (a *recordingAppender) Samples() []uint8 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]uint8(nil), a.samples...)
}

type sequenceSource struct {
	mu       sync.Mutex
	readings []float64
	errs     []error
	i        int
}

func (s *sequenceSource) Name() string { return "sequence" }

func (s *sequenceSource) Read(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.i % len(s.readings)
	s.i++
	if i < len(s.errs) && s.errs[i] != nil {
		return 0, s.errs[i]
	}
	return s.readings[i], nil
}

func setupTestSampler(t *testing.T, cfg Config) (*Sampler, *recordingAppender, *clock.Mock) {
	t.Helper()

	clk := clock.NewMock()
	appender := &recordingAppender{}
	if cfg.Source == nil {
		cfg.Source = StaticSource(21.6)
	}
	cfg.Appender = appender
	cfg.Clock = clk
	cfg.Logger = zerolog.Nop()

	s, err := New(cfg)
	require.NoError(t, err)
	return s, appender, clk
}

func TestNew(t *testing.T) {
	t.Run("requires source", func(t *testing.T) {
		_, err := New(Config{Appender: &recordingAppender{}})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "sample source is required")
	})

	t.Run("requires appender", func(t *testing.T) {
		_, err := New(Config{Source: StaticSource(1)})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "sample appender is required")
	})

	t.Run("rejects bad schedule", func(t *testing.T) {
		_, err := New(Config{Source: StaticSource(1), Appender: &recordingAppender{}, Schedule: "not a schedule"})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "invalid sample schedule")
	})

	t.Run("accepts seconds field", func(t *testing.T) {
		_, err := New(Config{Source: StaticSource(1), Appender: &recordingAppender{}, Schedule: "*/5 * * * * *"})
		assert.NoError(t, err)
	})
}

func TestTick(t *testing.T) {
	var got []uint8
	s, appender, _ := setupTestSampler(t, Config{
		OnSample: func(value uint8, at time.Time) { got = append(got, value) },
	})

	require.NoError(t, s.Tick(context.Background()))

	assert.Equal(t, []uint8{22}, appender.Samples())
	assert.Equal(t, []uint8{22}, got)
}

func TestTickSkipsFailedReading(t *testing.T) {
	src := &sequenceSource{
		readings: []float64{0, 30},
		errs:     []error{errors.New("i2c nack")},
	}
	called := false
	s, appender, _ := setupTestSampler(t, Config{
		Source:   src,
		OnSample: func(uint8, time.Time) { called = true },
	})

	require.NoError(t, s.Tick(context.Background()))
	assert.Empty(t, appender.Samples())
	assert.False(t, called)

	require.NoError(t, s.Tick(context.Background()))
	assert.Equal(t, []uint8{30}, appender.Samples())
}

func TestTickReturnsAppendError(t *testing.T) {
	s, appender, _ := setupTestSampler(t, Config{})
	appender.err = errors.New("disk full")

	err := s.Tick(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to append sample")
}

func TestRunSamplesOnInterval(t *testing.T) {
	s, appender, clk := setupTestSampler(t, Config{Interval: 10 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	// first reading is taken immediately
	require.Eventually(t, func() bool { return len(appender.Samples()) == 1 }, time.Second, time.Millisecond)
	assert.True(t, s.IsRunning())

	require.Eventually(t, func() bool {
		clk.Add(time.Second)
		return len(appender.Samples()) >= 3
	}, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.False(t, s.IsRunning())
}

func TestRunSamplesOnSchedule(t *testing.T) {
	s, appender, clk := setupTestSampler(t, Config{Schedule: "@every 30s"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool { return len(appender.Samples()) == 1 }, time.Second, time.Millisecond)

	// nothing more before the schedule fires
	clk.Add(20 * time.Second)
	assert.Len(t, appender.Samples(), 1)

	require.Eventually(t, func() bool {
		clk.Add(5 * time.Second)
		return len(appender.Samples()) >= 2
	}, 2*time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestRunStopsOnAppendError(t *testing.T) {
	s, appender, _ := setupTestSampler(t, Config{})
	appender.err = errors.New("disk full")

	err := s.Run(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.False(t, s.IsRunning())
}
