package sampler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/harun/templog/internal/observability"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// DefaultInterval is the time between readings when no schedule is set
const DefaultInterval = 10 * time.Second

// scheduleParser accepts standard 5-field expressions with an optional
// leading seconds field, plus descriptors such as "@every 30s".
var scheduleParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Appender receives samples
type Appender interface {
	AddSample(ctx context.Context, value uint8) error
}

// Config holds sampler configuration
type Config struct {
	Source   Source
	Appender Appender

	// Interval between readings. Ignored when Schedule is set.
	Interval time.Duration
	// Schedule is an optional cron expression for readings.
	Schedule string

	// OnSample is called after each sample is durably appended
	OnSample func(value uint8, at time.Time)

	Clock  clock.Clock
	Logger zerolog.Logger
}

// Sampler reads the source on a schedule and appends each reading to
// the open session
type Sampler struct {
	source   Source
	appender Appender
	schedule cron.Schedule
	onSample func(uint8, time.Time)
	clock    clock.Clock
	logger   zerolog.Logger

	mu      sync.Mutex
	running bool
}

// New creates a sampler
func New(cfg Config) (*Sampler, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("sample source is required")
	}
	if cfg.Appender == nil {
		return nil, fmt.Errorf("sample appender is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}

	var schedule cron.Schedule
	if cfg.Schedule != "" {
		sched, err := scheduleParser.Parse(cfg.Schedule)
		if err != nil {
			return nil, fmt.Errorf("invalid sample schedule: %w", err)
		}
		schedule = sched
	} else {
		interval := cfg.Interval
		if interval <= 0 {
			interval = DefaultInterval
		}
		schedule = cron.Every(interval)
	}

	observability.EnsureRegistered()

	return &Sampler{
		source:   cfg.Source,
		appender: cfg.Appender,
		schedule: schedule,
		onSample: cfg.OnSample,
		clock:    cfg.Clock,
		logger:   cfg.Logger.With().Str("component", "sampler").Str("source", cfg.Source.Name()).Logger(),
	}, nil
}

// Tick takes one reading and appends it. A failed reading is logged and
// skipped; a failed append is returned.
func (s *Sampler) Tick(ctx context.Context) error {
	celsius, err := s.source.Read(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		observability.RecordSourceRead(false)
		s.logger.Warn().Err(err).Msg("Failed to read temperature, skipping sample")
		return nil
	}
	observability.RecordSourceRead(true)

	value := ToSample(celsius)
	if err := s.appender.AddSample(ctx, value); err != nil {
		return fmt.Errorf("failed to append sample: %w", err)
	}

	now := s.clock.Now()
	s.logger.Debug().Float64("celsius", celsius).Uint8("value", value).Msg("Sample recorded")

	if s.onSample != nil {
		s.onSample(value, now)
	}
	return nil
}

// Run takes a reading immediately and then on every scheduled tick until
// ctx is cancelled. It returns nil on cancellation and the append error
// otherwise.
func (s *Sampler) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("sampler is already running")
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.logger.Info().Msg("Sampler started")
	defer s.logger.Info().Msg("Sampler stopped")

	for {
		if err := s.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		now := s.clock.Now()
		timer := s.clock.Timer(s.schedule.Next(now).Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// IsRunning reports whether Run is active
func (s *Sampler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
